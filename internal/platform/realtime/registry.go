package realtime

import (
	"sync"

	"github.com/homecare/homecare/internal/platform/auth"
)

// Connection is one live transport attachment for an actor. An actor may hold
// several concurrent connections (phone plus tablet); presence is derived
// from the set, not from any single connection.
type Connection struct {
	ID      string
	ActorID string
	Role    auth.Role
	Send    chan []byte
}

// PresenceFunc is invoked when an actor's presence flips. Online fires on the
// first connection, offline on the last disconnect.
type PresenceFunc func(actorID string, role auth.Role)

// Registry tracks every live connection grouped by actor. All methods are
// safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	byActor map[string]map[string]*Connection
	byConn  map[string]*Connection

	onOnline  []PresenceFunc
	onOffline []PresenceFunc
}

func NewRegistry() *Registry {
	return &Registry{
		byActor: make(map[string]map[string]*Connection),
		byConn:  make(map[string]*Connection),
	}
}

// OnOnline registers a callback fired when an actor gains its first
// connection. Must be called before the registry starts receiving traffic.
func (r *Registry) OnOnline(fn PresenceFunc) {
	r.onOnline = append(r.onOnline, fn)
}

// OnOffline registers a callback fired when an actor's last connection is
// removed.
func (r *Registry) OnOffline(fn PresenceFunc) {
	r.onOffline = append(r.onOffline, fn)
}

// Register adds the connection. A connection id already present is replaced,
// which keeps a fast reconnect from double-counting presence. Returns true if
// the actor just came online.
func (r *Registry) Register(conn *Connection) bool {
	r.mu.Lock()
	if old, ok := r.byConn[conn.ID]; ok {
		r.removeLocked(old)
	}
	conns, ok := r.byActor[conn.ActorID]
	if !ok {
		conns = make(map[string]*Connection)
		r.byActor[conn.ActorID] = conns
	}
	wasOffline := len(conns) == 0
	conns[conn.ID] = conn
	r.byConn[conn.ID] = conn
	r.mu.Unlock()

	if wasOffline {
		for _, fn := range r.onOnline {
			fn(conn.ActorID, conn.Role)
		}
	}
	return wasOffline
}

// Unregister removes the connection by id. Returns true if the actor went
// offline as a result. Unknown ids are a no-op.
func (r *Registry) Unregister(connID string) bool {
	r.mu.Lock()
	conn, ok := r.byConn[connID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	r.removeLocked(conn)
	nowOffline := len(r.byActor[conn.ActorID]) == 0
	if nowOffline {
		delete(r.byActor, conn.ActorID)
	}
	r.mu.Unlock()

	if nowOffline {
		for _, fn := range r.onOffline {
			fn(conn.ActorID, conn.Role)
		}
	}
	return nowOffline
}

func (r *Registry) removeLocked(conn *Connection) {
	delete(r.byConn, conn.ID)
	if conns, ok := r.byActor[conn.ActorID]; ok {
		delete(conns, conn.ID)
	}
}

// IsOnline reports whether the actor has at least one live connection.
func (r *Registry) IsOnline(actorID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byActor[actorID]) > 0
}

// ConnectionsOf returns the actor's live connections.
func (r *Registry) ConnectionsOf(actorID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Connection, 0, len(r.byActor[actorID]))
	for _, c := range r.byActor[actorID] {
		conns = append(conns, c)
	}
	return conns
}

// Get returns the connection by id, or nil.
func (r *Registry) Get(connID string) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byConn[connID]
}

// OnlineActorsByRole returns the ids of every actor with the given role and
// at least one live connection.
func (r *Registry) OnlineActorsByRole(role auth.Role) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for actorID, conns := range r.byActor {
		for _, c := range conns {
			if c.Role == role {
				out = append(out, actorID)
				break
			}
		}
	}
	return out
}

// Size returns the number of live connections.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// OnlineActors returns the number of distinct actors currently online.
func (r *Registry) OnlineActors() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byActor)
}
