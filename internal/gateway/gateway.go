// Package gateway bridges WebSocket connections to the realtime hub and the
// domain services. It authenticates the handshake, routes inbound client
// frames, and enforces room-join authorization on every attempt.
package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/homecare/homecare/internal/domain/chat"
	"github.com/homecare/homecare/internal/domain/panicalert"
	"github.com/homecare/homecare/internal/platform/apperror"
	"github.com/homecare/homecare/internal/platform/auth"
	"github.com/homecare/homecare/internal/platform/geo"
	"github.com/homecare/homecare/internal/platform/realtime"
)

// Client actions understood by the gateway.
const (
	ActionJoin           = "join"
	ActionLeave          = "leave"
	ActionLocationUpdate = "location:update"
	ActionMessageSend    = "message:send"
	ActionTyping         = "typing"
	ActionRead           = "read"
	ActionPanicTrigger   = "panic:trigger"
)

// ClientFrame is one inbound message from a connected client.
type ClientFrame struct {
	Action string          `json:"action"`
	Room   realtime.RoomID `json:"room,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// TokenVerifier authenticates the handshake token. Satisfied by
// *auth.Verifier.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// DispatchService is the slice of the dispatch domain the gateway needs.
type DispatchService interface {
	CanTrack(ctx context.Context, requestID uuid.UUID, identity auth.Identity) bool
	UpdateNurseLocation(ctx context.Context, requestID, nurseID uuid.UUID, p geo.Point, heading, speed *float64) error
}

// ChatService is the slice of the chat domain the gateway needs.
type ChatService interface {
	IsActiveParticipant(ctx context.Context, roomID, actorID uuid.UUID) bool
	Send(ctx context.Context, roomID, senderID uuid.UUID, in chat.SendInput) (*chat.Message, error)
	Typing(ctx context.Context, roomID, actorID uuid.UUID, isTyping bool) error
	MarkRead(ctx context.Context, roomID, readerID uuid.UUID, messageIDs []uuid.UUID) error
}

// PanicService is the slice of the panic alert domain the gateway needs.
type PanicService interface {
	Trigger(ctx context.Context, nurseID uuid.UUID, in panicalert.TriggerInput) (*panicalert.PanicAlert, error)
}

// Gateway routes frames between WebSocket clients and the domain services.
type Gateway struct {
	hub      *realtime.Hub
	verifier TokenVerifier
	dispatch DispatchService
	chat     ChatService
	panic    PanicService
	logger   zerolog.Logger
}

func New(hub *realtime.Hub, verifier TokenVerifier, dispatch DispatchService, chatSvc ChatService, panicSvc PanicService, logger zerolog.Logger) *Gateway {
	return &Gateway{
		hub:      hub,
		verifier: verifier,
		dispatch: dispatch,
		chat:     chatSvc,
		panic:    panicSvc,
		logger:   logger.With().Str("component", "gateway").Logger(),
	}
}

// HandleFrame processes one inbound client frame. Errors are reported back on
// the sender's connection as an error event; they never tear the connection
// down.
func (g *Gateway) HandleFrame(ctx context.Context, conn *realtime.Connection, raw []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		g.sendError(conn, apperror.Invalid("malformed frame"))
		return
	}
	if err := g.dispatchFrame(ctx, conn, frame); err != nil {
		g.sendError(conn, err)
	}
}

func (g *Gateway) dispatchFrame(ctx context.Context, conn *realtime.Connection, frame ClientFrame) error {
	identity := auth.Identity{ActorID: conn.ActorID, Role: conn.Role}

	switch frame.Action {
	case ActionJoin:
		if err := g.authorizeJoin(ctx, identity, frame.Room); err != nil {
			return err
		}
		g.hub.Join(conn, frame.Room)
		return nil

	case ActionLeave:
		g.hub.Leave(conn.ID, frame.Room)
		return nil

	case ActionLocationUpdate:
		return g.handleLocation(ctx, identity, frame.Data)

	case ActionMessageSend:
		return g.handleSend(ctx, identity, frame.Data)

	case ActionTyping:
		return g.handleTyping(ctx, identity, frame.Data)

	case ActionRead:
		return g.handleRead(ctx, identity, frame.Data)

	case ActionPanicTrigger:
		return g.handlePanic(ctx, identity, frame.Data)

	default:
		return apperror.Invalid("unknown action")
	}
}

// authorizeJoin re-checks room access on every attempt. Membership granted
// earlier never carries over to a new join.
func (g *Gateway) authorizeJoin(ctx context.Context, identity auth.Identity, room realtime.RoomID) error {
	switch room.Kind() {
	case realtime.KindActor:
		// Personal channels admit their owner only. Admins use the admins
		// room; they get no access to other actors' private streams.
		if room.Suffix() != identity.ActorID {
			return apperror.Authorization("cannot join another actor's channel")
		}
		return nil

	case realtime.KindAdmins:
		if identity.Role != auth.RoleAdmin {
			return apperror.Authorization("admins only")
		}
		return nil

	case realtime.KindTracking:
		requestID, err := room.EntityID()
		if err != nil {
			return apperror.Invalid("malformed room key")
		}
		if !g.dispatch.CanTrack(ctx, requestID, identity) {
			return apperror.Authorization("not a party to this request")
		}
		return nil

	case realtime.KindChat:
		roomID, err := room.EntityID()
		if err != nil {
			return apperror.Invalid("malformed room key")
		}
		actorID, err := uuid.Parse(identity.ActorID)
		if err != nil {
			return apperror.Authorization("actor id is not a uuid")
		}
		if !g.chat.IsActiveParticipant(ctx, roomID, actorID) {
			return apperror.Authorization("not a participant of this room")
		}
		return nil

	default:
		return apperror.Invalid("unknown room")
	}
}

func (g *Gateway) handleLocation(ctx context.Context, identity auth.Identity, data json.RawMessage) error {
	if identity.Role != auth.RoleNurse {
		return apperror.Authorization("only nurses report location")
	}
	var in struct {
		RequestID uuid.UUID `json:"request_id"`
		Location  geo.Point `json:"location"`
		Heading   *float64  `json:"heading,omitempty"`
		Speed     *float64  `json:"speed,omitempty"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return apperror.Invalid("malformed location payload")
	}
	nurseID, err := uuid.Parse(identity.ActorID)
	if err != nil {
		return apperror.Authorization("actor id is not a uuid")
	}
	return g.dispatch.UpdateNurseLocation(ctx, in.RequestID, nurseID, in.Location, in.Heading, in.Speed)
}

func (g *Gateway) handleSend(ctx context.Context, identity auth.Identity, data json.RawMessage) error {
	var in struct {
		RoomID uuid.UUID `json:"room_id"`
		chat.SendInput
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return apperror.Invalid("malformed message payload")
	}
	senderID, err := uuid.Parse(identity.ActorID)
	if err != nil {
		return apperror.Authorization("actor id is not a uuid")
	}
	_, err = g.chat.Send(ctx, in.RoomID, senderID, in.SendInput)
	return err
}

func (g *Gateway) handleTyping(ctx context.Context, identity auth.Identity, data json.RawMessage) error {
	var in struct {
		RoomID   uuid.UUID `json:"room_id"`
		IsTyping bool      `json:"is_typing"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return apperror.Invalid("malformed typing payload")
	}
	actorID, err := uuid.Parse(identity.ActorID)
	if err != nil {
		return apperror.Authorization("actor id is not a uuid")
	}
	return g.chat.Typing(ctx, in.RoomID, actorID, in.IsTyping)
}

func (g *Gateway) handleRead(ctx context.Context, identity auth.Identity, data json.RawMessage) error {
	var in struct {
		RoomID     uuid.UUID   `json:"room_id"`
		MessageIDs []uuid.UUID `json:"message_ids"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return apperror.Invalid("malformed read payload")
	}
	readerID, err := uuid.Parse(identity.ActorID)
	if err != nil {
		return apperror.Authorization("actor id is not a uuid")
	}
	return g.chat.MarkRead(ctx, in.RoomID, readerID, in.MessageIDs)
}

func (g *Gateway) handlePanic(ctx context.Context, identity auth.Identity, data json.RawMessage) error {
	if identity.Role != auth.RoleNurse {
		return apperror.Authorization("only nurses trigger panic alerts")
	}
	var in panicalert.TriggerInput
	if err := json.Unmarshal(data, &in); err != nil {
		return apperror.Invalid("malformed panic payload")
	}
	nurseID, err := uuid.Parse(identity.ActorID)
	if err != nil {
		return apperror.Authorization("actor id is not a uuid")
	}
	_, err = g.panic.Trigger(ctx, nurseID, in)
	return err
}

// sendError writes an error frame to the sender's connection only.
func (g *Gateway) sendError(conn *realtime.Connection, err error) {
	payload := map[string]string{
		"kind":    string(apperror.KindOf(err)),
		"message": err.Error(),
	}
	data, mErr := json.Marshal(realtime.Frame{Event: realtime.EventError, Data: payload, Timestamp: time.Now()})
	if mErr != nil {
		return
	}
	select {
	case conn.Send <- data:
	default:
	}
}
