package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Frame is the envelope written to client connections.
type Frame struct {
	Event     string      `json:"event"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub maps rooms to member connections and implements Publisher. Joining the
// same room twice is idempotent; delivery is non-blocking and drops frames
// for connections whose send buffer is full.
type Hub struct {
	registry *Registry
	logger   zerolog.Logger
	now      func() time.Time

	mu     sync.RWMutex
	rooms  map[RoomID]map[string]*Connection
	joined map[string]map[RoomID]struct{}
}

func NewHub(registry *Registry, logger zerolog.Logger) *Hub {
	return &Hub{
		registry: registry,
		logger:   logger.With().Str("component", "hub").Logger(),
		now:      time.Now,
		rooms:    make(map[RoomID]map[string]*Connection),
		joined:   make(map[string]map[RoomID]struct{}),
	}
}

// Attach registers the connection and subscribes it to its own personal
// channel, so PublishToActor reaches it without an explicit join.
func (h *Hub) Attach(conn *Connection) {
	h.registry.Register(conn)
	h.Join(conn, ActorRoom(conn.ActorID))
}

// Detach removes the connection from every room and from the registry, and
// closes its send channel. After Detach no further frames are delivered.
func (h *Hub) Detach(connID string) {
	conn := h.registry.Get(connID)

	h.mu.Lock()
	for room := range h.joined[connID] {
		if members, ok := h.rooms[room]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	delete(h.joined, connID)
	h.mu.Unlock()

	if h.registry.Unregister(connID) && conn != nil {
		h.logger.Debug().Str("actor_id", conn.ActorID).Msg("actor went offline")
	}
	if conn != nil {
		close(conn.Send)
	}
}

// Join subscribes the connection to the room. Authorization is the caller's
// responsibility and must be checked on every attempt.
func (h *Hub) Join(conn *Connection, room RoomID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*Connection)
	}
	h.rooms[room][conn.ID] = conn
	if h.joined[conn.ID] == nil {
		h.joined[conn.ID] = make(map[RoomID]struct{})
	}
	h.joined[conn.ID][room] = struct{}{}
}

// Leave unsubscribes the connection from the room.
func (h *Hub) Leave(connID string, room RoomID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(h.joined[connID], room)
}

// Publish delivers the event to every member of the room. An empty room is a
// no-op. The frame is marshalled once and fanned out without blocking.
func (h *Hub) Publish(room RoomID, event string, payload interface{}) {
	data, ok := h.marshal(event, payload)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conn := range h.rooms[room] {
		h.send(conn, data)
	}
}

// PublishToActor delivers the event on the actor's personal channel.
func (h *Hub) PublishToActor(actorID string, event string, payload interface{}) {
	h.Publish(ActorRoom(actorID), event, payload)
}

// Fanout delivers to the room, then to the personal channel of each listed
// actor that has no connection in the room. No connection receives the frame
// twice.
func (h *Hub) Fanout(room RoomID, actorIDs []string, event string, payload interface{}) {
	data, ok := h.marshal(event, payload)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	inRoom := make(map[string]struct{})
	for _, conn := range h.rooms[room] {
		h.send(conn, data)
		inRoom[conn.ActorID] = struct{}{}
	}
	for _, actorID := range actorIDs {
		if _, ok := inRoom[actorID]; ok {
			continue
		}
		for _, conn := range h.rooms[ActorRoom(actorID)] {
			h.send(conn, data)
		}
	}
}

func (h *Hub) marshal(event string, payload interface{}) ([]byte, bool) {
	data, err := json.Marshal(Frame{Event: event, Data: payload, Timestamp: h.now()})
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("marshalling frame failed")
		return nil, false
	}
	return data, true
}

func (h *Hub) send(conn *Connection, data []byte) {
	select {
	case conn.Send <- data:
	default:
		// Buffer full; drop rather than block the broadcast path.
		h.logger.Warn().Str("conn_id", conn.ID).Str("actor_id", conn.ActorID).Msg("send buffer full, frame dropped")
	}
}

// Rooms returns the connection's current room memberships.
func (h *Hub) Rooms(connID string) []RoomID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]RoomID, 0, len(h.joined[connID]))
	for room := range h.joined[connID] {
		out = append(out, room)
	}
	return out
}

// MemberCount returns the number of connections in the room.
func (h *Hub) MemberCount(room RoomID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// RoomCount returns the number of non-empty rooms.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
