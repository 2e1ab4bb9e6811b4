package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence operations for chat rooms and messages.
// Unread counters are incremented and reset with atomic per-row updates so
// concurrent senders never lose counts.
type Repository interface {
	CreateRoom(ctx context.Context, room *Room) error
	GetRoom(ctx context.Context, id uuid.UUID) (*Room, error)
	GetRoomByRequest(ctx context.Context, requestID uuid.UUID) (*Room, error)
	SetRoomStatus(ctx context.Context, id uuid.UUID, status RoomStatus) error
	ListRoomsFor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*Room, int, error)

	CreateMessage(ctx context.Context, m *Message) error
	GetMessage(ctx context.Context, id uuid.UUID) (*Message, error)
	ListMessages(ctx context.Context, roomID uuid.UUID, limit int, before *time.Time) ([]*Message, error)

	// MarkRead flips the listed messages to read, skipping the reader's own
	// messages, and returns the ids actually updated.
	MarkRead(ctx context.Context, roomID, readerID uuid.UUID, messageIDs []uuid.UUID) ([]uuid.UUID, error)

	// SoftDelete clears the content only if the message belongs to senderID
	// and is not already deleted.
	SoftDelete(ctx context.Context, messageID, senderID uuid.UUID) (bool, error)

	IncrementUnread(ctx context.Context, roomID, exceptActorID uuid.UUID) error
	ResetUnread(ctx context.Context, roomID, actorID uuid.UUID) error
	SetLastMessage(ctx context.Context, roomID uuid.UUID, preview string, at time.Time) error
}
