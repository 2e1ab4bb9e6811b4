package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/homecare/homecare/internal/platform/apperror"
	"github.com/homecare/homecare/internal/platform/realtime"
)

// ParticipantSeed is the actor snapshot captured when a room is created.
type ParticipantSeed struct {
	ActorID     uuid.UUID
	Role        string
	DisplayName string
	Avatar      *string
}

// RequestChatInfo is what the chat service needs to know about a service
// request before opening its room.
type RequestChatInfo struct {
	RequestID    uuid.UUID
	Accepted     bool
	Terminal     bool
	Participants []ParticipantSeed
}

// RequestSource resolves a service request into room seeds. Wired to the
// dispatch service at startup.
type RequestSource interface {
	RequestChatInfo(ctx context.Context, requestID uuid.UUID) (*RequestChatInfo, error)
}

// SendLimiter enforces the per-sender message budget. Allow returns a
// throttled error when the sender is over the window limit.
type SendLimiter interface {
	Allow(actorID string) error
}

// Notifier is the fire-and-forget push dispatch surface.
type Notifier interface {
	Notify(ctx context.Context, actorID, template string, data map[string]string)
}

// Service implements the per-request chat rooms: message delivery, unread
// counters, read receipts and typing state.
type Service struct {
	repo      Repository
	requests  RequestSource
	publisher realtime.Publisher
	limiter   SendLimiter
	notifier  Notifier
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(repo Repository, requests RequestSource, publisher realtime.Publisher, limiter SendLimiter, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		requests:  requests,
		publisher: publisher,
		limiter:   limiter,
		notifier:  notifier,
		logger:    logger.With().Str("component", "chat").Logger(),
		now:       time.Now,
	}
}

// EnsureRoom returns the request's chat room, creating it on first need. A
// room opens only once a nurse has accepted and never for a finished request.
func (s *Service) EnsureRoom(ctx context.Context, requestID uuid.UUID) (*Room, error) {
	if room, err := s.repo.GetRoomByRequest(ctx, requestID); err == nil {
		return room, nil
	}

	info, err := s.requests.RequestChatInfo(ctx, requestID)
	if err != nil {
		return nil, apperror.NotFoundf("request %s not found", requestID)
	}
	if !info.Accepted {
		return nil, apperror.Conflict("chat opens once a nurse has accepted")
	}
	if info.Terminal {
		return nil, apperror.Conflict("request is finished")
	}

	room := &Room{
		ServiceRequestID: requestID,
		Status:           RoomActive,
	}
	now := s.now()
	for _, seed := range info.Participants {
		room.Participants = append(room.Participants, &Participant{
			ActorID:     seed.ActorID,
			Role:        seed.Role,
			DisplayName: seed.DisplayName,
			Avatar:      seed.Avatar,
			JoinedAt:    now,
		})
	}
	if err := s.repo.CreateRoom(ctx, room); err != nil {
		// A concurrent EnsureRoom may have won; fall back to the stored row.
		if existing, lookupErr := s.repo.GetRoomByRequest(ctx, requestID); lookupErr == nil {
			return existing, nil
		}
		return nil, apperror.Internal("create chat room", err)
	}
	return room, nil
}

// Room returns the room if the actor is a participant (admins excepted).
func (s *Service) Room(ctx context.Context, roomID, actorID uuid.UUID, isAdmin bool) (*Room, error) {
	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, apperror.NotFoundf("chat room %s not found", roomID)
	}
	if !isAdmin && room.ParticipantFor(actorID) == nil {
		return nil, apperror.Authorization("not a participant of this room")
	}
	return room, nil
}

// IsActiveParticipant is the room-join authorization check used by the
// realtime gateway. It re-reads the room on every attempt.
func (s *Service) IsActiveParticipant(ctx context.Context, roomID, actorID uuid.UUID) bool {
	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil || room.Status != RoomActive {
		return false
	}
	return room.ParticipantFor(actorID) != nil
}

// SendInput is the sender-supplied part of a message.
type SendInput struct {
	Type          MessageType `json:"type"`
	Content       *string     `json:"content,omitempty"`
	AttachmentURL *string     `json:"attachment_url,omitempty"`
	Latitude      *float64    `json:"latitude,omitempty"`
	Longitude     *float64    `json:"longitude,omitempty"`
}

func (in SendInput) validate() error {
	switch in.Type {
	case TypeText, TypeSystem:
		if in.Content == nil || *in.Content == "" {
			return apperror.Invalid("content is required for text messages")
		}
	case TypeImage, TypeVoice:
		if in.AttachmentURL == nil || *in.AttachmentURL == "" {
			return apperror.Invalid("attachment_url is required for media messages")
		}
	case TypeLocation:
		if in.Latitude == nil || in.Longitude == nil {
			return apperror.Invalid("latitude and longitude are required for location messages")
		}
	default:
		return apperror.Invalid("unknown message type")
	}
	return nil
}

// Send checks the rate limit, persists the message, bumps unread counters
// for the other participants and fans the event out to the room plus the
// personal channels of participants not currently subscribed.
func (s *Service) Send(ctx context.Context, roomID, senderID uuid.UUID, in SendInput) (*Message, error) {
	if err := s.limiter.Allow(senderID.String()); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, apperror.NotFoundf("chat room %s not found", roomID)
	}
	if room.Status != RoomActive {
		return nil, apperror.Conflictf("room is %s", room.Status)
	}
	sender := room.ParticipantFor(senderID)
	if sender == nil {
		return nil, apperror.Authorization("not a participant of this room")
	}

	m := &Message{
		RoomID:        roomID,
		SenderID:      senderID,
		Type:          in.Type,
		Content:       in.Content,
		AttachmentURL: in.AttachmentURL,
		Latitude:      in.Latitude,
		Longitude:     in.Longitude,
		Status:        StatusSent,
		CreatedAt:     s.now(),
	}
	if err := s.repo.CreateMessage(ctx, m); err != nil {
		return nil, apperror.Internal("store message", err)
	}

	if err := s.repo.IncrementUnread(ctx, roomID, senderID); err != nil {
		s.logger.Warn().Err(err).Str("room_id", roomID.String()).Msg("incrementing unread counters failed")
	}
	if err := s.repo.SetLastMessage(ctx, roomID, preview(m), m.CreatedAt); err != nil {
		s.logger.Warn().Err(err).Str("room_id", roomID.String()).Msg("updating last message failed")
	}

	others := make([]string, 0, len(room.Participants)-1)
	for _, p := range room.Participants {
		if p.ActorID != senderID {
			others = append(others, p.ActorID.String())
		}
	}
	s.publisher.Fanout(realtime.ChatRoom(roomID), others, realtime.EventNewMessage, m)
	for _, actorID := range others {
		s.notifier.Notify(ctx, actorID, "chat-message", map[string]string{
			"room_id": roomID.String(),
			"sender":  sender.DisplayName,
			"preview": preview(m),
		})
	}
	return m, nil
}

func preview(m *Message) string {
	switch m.Type {
	case TypeText, TypeSystem:
		const max = 80
		if m.Content == nil {
			return ""
		}
		if len(*m.Content) > max {
			return (*m.Content)[:max]
		}
		return *m.Content
	case TypeImage:
		return "[imagen]"
	case TypeVoice:
		return "[audio]"
	case TypeLocation:
		return "[ubicación]"
	}
	return ""
}

// Messages returns the room history, newest first, optionally before a
// cursor timestamp.
func (s *Service) Messages(ctx context.Context, roomID, actorID uuid.UUID, limit int, before *time.Time) ([]*Message, error) {
	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, apperror.NotFoundf("chat room %s not found", roomID)
	}
	if room.ParticipantFor(actorID) == nil {
		return nil, apperror.Authorization("not a participant of this room")
	}
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListMessages(ctx, roomID, limit, before)
}

// ReadReceipt is the payload broadcast when messages are marked read.
type ReadReceipt struct {
	RoomID     uuid.UUID   `json:"room_id"`
	ReaderID   uuid.UUID   `json:"reader_id"`
	MessageIDs []uuid.UUID `json:"message_ids"`
	At         time.Time   `json:"at"`
}

// MarkRead flips the listed messages to read for the reader, resets the
// reader's unread counter and broadcasts the receipt to the room.
func (s *Service) MarkRead(ctx context.Context, roomID, readerID uuid.UUID, messageIDs []uuid.UUID) error {
	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return apperror.NotFoundf("chat room %s not found", roomID)
	}
	if room.ParticipantFor(readerID) == nil {
		return apperror.Authorization("not a participant of this room")
	}

	updated, err := s.repo.MarkRead(ctx, roomID, readerID, messageIDs)
	if err != nil {
		return apperror.Internal("mark read", err)
	}
	if err := s.repo.ResetUnread(ctx, roomID, readerID); err != nil {
		s.logger.Warn().Err(err).Str("room_id", roomID.String()).Msg("resetting unread counter failed")
	}
	if len(updated) > 0 {
		s.publisher.Publish(realtime.ChatRoom(roomID), realtime.EventMessagesRead, ReadReceipt{
			RoomID:     roomID,
			ReaderID:   readerID,
			MessageIDs: updated,
			At:         s.now(),
		})
	}
	return nil
}

// TypingEvent is the payload broadcast on typing state changes.
type TypingEvent struct {
	RoomID   uuid.UUID `json:"room_id"`
	ActorID  uuid.UUID `json:"actor_id"`
	IsTyping bool      `json:"is_typing"`
}

// Typing relays the typing indicator to the room. Nothing is persisted.
func (s *Service) Typing(ctx context.Context, roomID, actorID uuid.UUID, isTyping bool) error {
	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return apperror.NotFoundf("chat room %s not found", roomID)
	}
	if room.ParticipantFor(actorID) == nil {
		return apperror.Authorization("not a participant of this room")
	}
	s.publisher.Publish(realtime.ChatRoom(roomID), realtime.EventUserTyping, TypingEvent{
		RoomID:   roomID,
		ActorID:  actorID,
		IsTyping: isTyping,
	})
	return nil
}

// DeleteMessage soft-deletes the sender's own message and announces it to
// the room.
func (s *Service) DeleteMessage(ctx context.Context, messageID, senderID uuid.UUID) error {
	m, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return apperror.NotFoundf("message %s not found", messageID)
	}
	if m.SenderID != senderID {
		return apperror.Authorization("only the sender may delete a message")
	}
	ok, err := s.repo.SoftDelete(ctx, messageID, senderID)
	if err != nil {
		return apperror.Internal("delete message", err)
	}
	if !ok {
		return apperror.Conflict("message already deleted")
	}
	s.publisher.Publish(realtime.ChatRoom(m.RoomID), realtime.EventMessageDeleted, map[string]string{
		"room_id":    m.RoomID.String(),
		"message_id": messageID.String(),
	})
	return nil
}

// CloseForRequest closes the request's room if one exists. Called by the
// dispatcher on terminal transitions; missing rooms are not an error.
func (s *Service) CloseForRequest(ctx context.Context, requestID uuid.UUID) error {
	room, err := s.repo.GetRoomByRequest(ctx, requestID)
	if err != nil {
		return nil
	}
	if room.Status != RoomActive {
		return nil
	}
	return s.repo.SetRoomStatus(ctx, room.ID, RoomClosed)
}

// RoomsFor lists the actor's rooms, most recently active first.
func (s *Service) RoomsFor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*Room, int, error) {
	return s.repo.ListRoomsFor(ctx, actorID, limit, offset)
}
