// Package realtime implements presence tracking and room-scoped event
// broadcast: the connection registry, the room hub, the per-sender message
// limiter, and the typed room keys shared with the domain services.
package realtime

import (
	"strings"

	"github.com/google/uuid"
)

// RoomID is a typed logical broadcast scope. Membership is connection-scoped
// and never persisted.
type RoomID string

// RoomKind discriminates the four room families.
type RoomKind string

const (
	KindActor    RoomKind = "actor"
	KindTracking RoomKind = "tracking"
	KindChat     RoomKind = "chat"
	KindAdmins   RoomKind = "admins"
)

// RoomAdmins is the single global channel for admin operators.
const RoomAdmins RoomID = "admins"

// ActorRoom is the per-actor personal channel. Every connection joins its own
// actor room at registration.
func ActorRoom(actorID string) RoomID {
	return RoomID("actor:" + actorID)
}

// TrackingRoom scopes live updates for one service request.
func TrackingRoom(requestID uuid.UUID) RoomID {
	return RoomID("tracking:" + requestID.String())
}

// ChatRoom scopes message delivery for one chat room.
func ChatRoom(chatRoomID uuid.UUID) RoomID {
	return RoomID("chat:" + chatRoomID.String())
}

// Kind returns the room family, or "" if the key is malformed.
func (r RoomID) Kind() RoomKind {
	if r == RoomAdmins {
		return KindAdmins
	}
	prefix, _, ok := strings.Cut(string(r), ":")
	if !ok {
		return ""
	}
	switch RoomKind(prefix) {
	case KindActor, KindTracking, KindChat:
		return RoomKind(prefix)
	}
	return ""
}

// Suffix returns the identifier after the kind prefix ("" for admins).
func (r RoomID) Suffix() string {
	_, rest, _ := strings.Cut(string(r), ":")
	return rest
}

// EntityID parses the suffix as a UUID, for tracking and chat rooms.
func (r RoomID) EntityID() (uuid.UUID, error) {
	return uuid.Parse(r.Suffix())
}

// Valid reports whether the key belongs to a known room family.
func (r RoomID) Valid() bool {
	return r.Kind() != ""
}
