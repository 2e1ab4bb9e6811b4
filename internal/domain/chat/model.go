package chat

import (
	"time"

	"github.com/google/uuid"
)

// RoomStatus is the lifecycle state of a chat room.
type RoomStatus string

const (
	RoomActive   RoomStatus = "active"
	RoomArchived RoomStatus = "archived"
	RoomClosed   RoomStatus = "closed"
)

// MessageType discriminates message payloads.
type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeVoice    MessageType = "voice"
	TypeLocation MessageType = "location"
	TypeSystem   MessageType = "system"
)

// MessageStatus tracks delivery progress of a message.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Participant maps to the chat_participant table. DisplayName and Avatar are
// value copies taken when the participant joined; later profile edits do not
// propagate here.
type Participant struct {
	RoomID      uuid.UUID `db:"room_id" json:"room_id"`
	ActorID     uuid.UUID `db:"actor_id" json:"actor_id"`
	Role        string    `db:"role" json:"role"`
	DisplayName string    `db:"display_name" json:"display_name"`
	Avatar      *string   `db:"avatar" json:"avatar,omitempty"`
	UnreadCount int       `db:"unread_count" json:"unread_count"`
	JoinedAt    time.Time `db:"joined_at" json:"joined_at"`
}

// Room maps to the chat_room table. At most one room exists per service
// request; it is created lazily on first need.
type Room struct {
	ID                 uuid.UUID      `db:"id" json:"id"`
	ServiceRequestID   uuid.UUID      `db:"service_request_id" json:"service_request_id"`
	Status             RoomStatus     `db:"status" json:"status"`
	Participants       []*Participant `json:"participants"`
	LastMessagePreview *string        `db:"last_message_preview" json:"last_message_preview,omitempty"`
	LastMessageAt      *time.Time     `db:"last_message_at" json:"last_message_at,omitempty"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

// ParticipantFor returns the participant entry for the actor, or nil.
func (r *Room) ParticipantFor(actorID uuid.UUID) *Participant {
	for _, p := range r.Participants {
		if p.ActorID == actorID {
			return p
		}
	}
	return nil
}

// Message maps to the chat_message table. Deleted messages keep their row
// with cleared content; deletion is never reversed.
type Message struct {
	ID            uuid.UUID     `db:"id" json:"id"`
	RoomID        uuid.UUID     `db:"room_id" json:"room_id"`
	SenderID      uuid.UUID     `db:"sender_id" json:"sender_id"`
	Type          MessageType   `db:"type" json:"type"`
	Content       *string       `db:"content" json:"content,omitempty"`
	AttachmentURL *string       `db:"attachment_url" json:"attachment_url,omitempty"`
	Latitude      *float64      `db:"latitude" json:"latitude,omitempty"`
	Longitude     *float64      `db:"longitude" json:"longitude,omitempty"`
	Status        MessageStatus `db:"status" json:"status"`
	Deleted       bool          `db:"deleted" json:"deleted"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	ReadAt        *time.Time    `db:"read_at" json:"read_at,omitempty"`
}
