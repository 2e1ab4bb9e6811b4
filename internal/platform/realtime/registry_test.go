package realtime

import (
	"sort"
	"testing"

	"github.com/homecare/homecare/internal/platform/auth"
)

func conn(id, actorID string, role auth.Role) *Connection {
	return &Connection{ID: id, ActorID: actorID, Role: role, Send: make(chan []byte, 8)}
}

func TestRegistry_PresenceFlipsOnFirstAndLastConnection(t *testing.T) {
	r := NewRegistry()
	var online, offline []string
	r.OnOnline(func(actorID string, _ auth.Role) { online = append(online, actorID) })
	r.OnOffline(func(actorID string, _ auth.Role) { offline = append(offline, actorID) })

	if !r.Register(conn("c1", "nurse-1", auth.RoleNurse)) {
		t.Error("first connection must report the actor coming online")
	}
	if r.Register(conn("c2", "nurse-1", auth.RoleNurse)) {
		t.Error("second connection must not report a presence change")
	}
	if len(online) != 1 {
		t.Errorf("expected 1 online callback, got %d", len(online))
	}

	if r.Unregister("c1") {
		t.Error("actor still has a connection, must not go offline")
	}
	if !r.IsOnline("nurse-1") {
		t.Error("actor must remain online with one connection left")
	}
	if !r.Unregister("c2") {
		t.Error("last disconnect must report the actor going offline")
	}
	if r.IsOnline("nurse-1") {
		t.Error("actor must be offline after last disconnect")
	}
	if len(offline) != 1 || offline[0] != "nurse-1" {
		t.Errorf("expected 1 offline callback for nurse-1, got %v", offline)
	}
}

func TestRegistry_ReplaceKnownConnectionID(t *testing.T) {
	r := NewRegistry()
	r.Register(conn("c1", "nurse-1", auth.RoleNurse))
	r.Register(conn("c1", "nurse-1", auth.RoleNurse))

	if r.Size() != 1 {
		t.Errorf("expected 1 connection after replacement, got %d", r.Size())
	}
	if !r.Unregister("c1") {
		t.Error("replacement must not leave a phantom connection holding presence")
	}
}

func TestRegistry_UnregisterUnknownIsNoOp(t *testing.T) {
	r := NewRegistry()
	if r.Unregister("ghost") {
		t.Error("unknown connection id must not report a presence change")
	}
}

func TestRegistry_OnlineActorsByRole(t *testing.T) {
	r := NewRegistry()
	r.Register(conn("a1", "admin-1", auth.RoleAdmin))
	r.Register(conn("a2", "admin-2", auth.RoleAdmin))
	r.Register(conn("n1", "nurse-1", auth.RoleNurse))
	r.Register(conn("p1", "patient-1", auth.RolePatient))

	admins := r.OnlineActorsByRole(auth.RoleAdmin)
	sort.Strings(admins)
	if len(admins) != 2 || admins[0] != "admin-1" || admins[1] != "admin-2" {
		t.Errorf("expected [admin-1 admin-2], got %v", admins)
	}

	r.Unregister("a2")
	if got := r.OnlineActorsByRole(auth.RoleAdmin); len(got) != 1 || got[0] != "admin-1" {
		t.Errorf("expected [admin-1] after disconnect, got %v", got)
	}
}

func TestRegistry_ConnectionsOf(t *testing.T) {
	r := NewRegistry()
	r.Register(conn("c1", "nurse-1", auth.RoleNurse))
	r.Register(conn("c2", "nurse-1", auth.RoleNurse))

	if got := len(r.ConnectionsOf("nurse-1")); got != 2 {
		t.Errorf("expected 2 connections, got %d", got)
	}
	if got := len(r.ConnectionsOf("nurse-9")); got != 0 {
		t.Errorf("expected no connections for unknown actor, got %d", got)
	}
}
