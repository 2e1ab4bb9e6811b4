package panicalert

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/homecare/homecare/internal/domain/nurse"
	"github.com/homecare/homecare/internal/platform/apperror"
	"github.com/homecare/homecare/internal/platform/auth"
	"github.com/homecare/homecare/internal/platform/geo"
	"github.com/homecare/homecare/internal/platform/realtime"
)

type mockRepo struct {
	mu       sync.Mutex
	alerts   map[uuid.UUID]*PanicAlert
	timeline []*TimelineEntry

	failCreate bool
}

func newMockRepo() *mockRepo {
	return &mockRepo{alerts: map[uuid.UUID]*PanicAlert{}}
}

func (m *mockRepo) Create(_ context.Context, a *PanicAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate {
		return errors.New("connection refused")
	}
	cp := *a
	m.alerts[a.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*PanicAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, errors.New("no rows")
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepo) Transition(_ context.Context, id uuid.UUID, from, to Status, resolvedBy *string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok || a.Status != from {
		return false, nil
	}
	if to.Terminal() {
		if a.ResolvedAt != nil {
			return false, nil
		}
		a.ResolvedAt = &at
		a.ResolvedBy = resolvedBy
	}
	a.Status = to
	a.UpdatedAt = at
	return true, nil
}

func (m *mockRepo) AppendTimeline(_ context.Context, e *TimelineEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.timeline = append(m.timeline, &cp)
	return nil
}

func (m *mockRepo) Timeline(_ context.Context, alertID uuid.UUID) ([]*TimelineEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*TimelineEntry
	for _, e := range m.timeline {
		if e.AlertID == alertID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) List(_ context.Context, status *Status, limit, offset int) ([]*PanicAlert, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*PanicAlert
	for _, a := range m.alerts {
		if status != nil && a.Status != *status {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		ei, ej := out[i].Level == LevelEmergency, out[j].Level == LevelEmergency
		if ei != ej {
			return ei
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	total := len(out)
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

type mockNurses struct {
	byID map[uuid.UUID]*nurse.Nurse
}

func (m *mockNurses) Get(_ context.Context, id uuid.UUID) (*nurse.Nurse, error) {
	n, ok := m.byID[id]
	if !ok {
		return nil, apperror.NotFoundf("nurse %s not found", id)
	}
	return n, nil
}

type mockRoster struct {
	admins []string
}

func (m *mockRoster) OnlineActorsByRole(role auth.Role) []string {
	if role != auth.RoleAdmin {
		return nil
	}
	return m.admins
}

type published struct {
	room    realtime.RoomID
	actorID string
	event   string
	payload interface{}
}

type mockPublisher struct {
	mu     sync.Mutex
	events []published
}

func (m *mockPublisher) Publish(room realtime.RoomID, event string, payload interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, published{room: room, event: event, payload: payload})
}

func (m *mockPublisher) PublishToActor(actorID, event string, payload interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, published{actorID: actorID, event: event, payload: payload})
}

func (m *mockPublisher) Fanout(room realtime.RoomID, actorIDs []string, event string, payload interface{}) {
	m.Publish(room, event, payload)
	for _, id := range actorIDs {
		m.PublishToActor(id, event, payload)
	}
}

func (m *mockPublisher) roomCount(room realtime.RoomID, event string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.room == room && e.event == event {
			n++
		}
	}
	return n
}

func (m *mockPublisher) actorCount(actorID, event string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.actorID == actorID && e.event == event {
			n++
		}
	}
	return n
}

type mockNotifier struct {
	mu    sync.Mutex
	sent  int
	byTpl map[string]int
}

func (m *mockNotifier) Notify(_ context.Context, _, template string, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent++
	if m.byTpl == nil {
		m.byTpl = map[string]int{}
	}
	m.byTpl[template]++
}

type fixture struct {
	svc       *Service
	repo      *mockRepo
	roster    *mockRoster
	publisher *mockPublisher
	notifier  *mockNotifier
	nurseID   uuid.UUID
}

func newFixture(t *testing.T, admins ...string) *fixture {
	t.Helper()
	nurseID := uuid.New()
	repo := newMockRepo()
	roster := &mockRoster{admins: admins}
	pub := &mockPublisher{}
	notif := &mockNotifier{}
	nurses := &mockNurses{byID: map[uuid.UUID]*nurse.Nurse{
		nurseID: {ID: nurseID, DisplayName: "Rosa Quispe"},
	}}
	svc := NewService(repo, nurses, roster, pub, notif, zerolog.Nop())
	return &fixture{svc: svc, repo: repo, roster: roster, publisher: pub, notifier: notif, nurseID: nurseID}
}

func limaPoint() geo.Point {
	return geo.Point{Latitude: -12.0464, Longitude: -77.0428}
}

func TestTrigger_DualDeliveryToAdmins(t *testing.T) {
	f := newFixture(t, "admin-1", "admin-2")

	alert, err := f.svc.Trigger(context.Background(), f.nurseID, TriggerInput{
		Level:    LevelEmergency,
		Location: limaPoint(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alert.Status != StatusActive {
		t.Errorf("expected active alert, got %s", alert.Status)
	}
	if alert.NurseName != "Rosa Quispe" {
		t.Errorf("expected nurse name snapshot, got %q", alert.NurseName)
	}

	if n := f.publisher.roomCount(realtime.RoomAdmins, realtime.EventPanicAlert); n != 1 {
		t.Errorf("expected exactly 1 admins room publish, got %d", n)
	}
	for _, adminID := range []string{"admin-1", "admin-2"} {
		if n := f.publisher.actorCount(adminID, realtime.EventPanicAlert); n != 1 {
			t.Errorf("expected exactly 1 personal delivery for %s, got %d", adminID, n)
		}
	}
	if f.notifier.byTpl["panic-alert"] != 2 {
		t.Errorf("expected 2 panic-alert notifications, got %d", f.notifier.byTpl["panic-alert"])
	}
}

func TestTrigger_PersistFailureStillBroadcasts(t *testing.T) {
	f := newFixture(t, "admin-1")
	f.repo.failCreate = true

	alert, err := f.svc.Trigger(context.Background(), f.nurseID, TriggerInput{
		Level:    LevelHelpNeeded,
		Location: limaPoint(),
	})
	if err != nil {
		t.Fatalf("trigger must not fail on storage errors, got %v", err)
	}
	if alert == nil {
		t.Fatal("expected alert despite storage failure")
	}
	if n := f.publisher.roomCount(realtime.RoomAdmins, realtime.EventPanicAlert); n != 1 {
		t.Errorf("expected broadcast despite storage failure, got %d publishes", n)
	}
	if n := f.publisher.actorCount("admin-1", realtime.EventPanicAlert); n != 1 {
		t.Errorf("expected personal delivery despite storage failure, got %d", n)
	}
	if len(f.repo.timeline) != 0 {
		t.Errorf("timeline must not be written when the alert itself was not persisted")
	}
}

func TestTrigger_RejectsBadInput(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.Trigger(context.Background(), f.nurseID, TriggerInput{
		Level:    Level("meltdown"),
		Location: limaPoint(),
	}); !apperror.IsKind(err, apperror.KindInvalid) {
		t.Errorf("expected invalid error for unknown level, got %v", err)
	}

	if _, err := f.svc.Trigger(context.Background(), f.nurseID, TriggerInput{
		Level:    LevelEmergency,
		Location: geo.Point{Latitude: 120, Longitude: -77},
	}); !apperror.IsKind(err, apperror.KindInvalid) {
		t.Errorf("expected invalid error for bad coordinates, got %v", err)
	}

	if n := f.publisher.roomCount(realtime.RoomAdmins, realtime.EventPanicAlert); n != 0 {
		t.Errorf("rejected triggers must not broadcast, got %d publishes", n)
	}
}

func TestTrigger_NurseLookupFailureDowngradesToEmptyName(t *testing.T) {
	f := newFixture(t, "admin-1")
	unknownNurse := uuid.New()

	alert, err := f.svc.Trigger(context.Background(), unknownNurse, TriggerInput{
		Level:    LevelEmergency,
		Location: limaPoint(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alert.NurseName != "" {
		t.Errorf("expected empty name snapshot, got %q", alert.NurseName)
	}
	if n := f.publisher.roomCount(realtime.RoomAdmins, realtime.EventPanicAlert); n != 1 {
		t.Errorf("lookup failure must not block escalation, got %d publishes", n)
	}
}

func TestAcknowledgeAndResolve(t *testing.T) {
	f := newFixture(t, "admin-1")
	alert, _ := f.svc.Trigger(context.Background(), f.nurseID, TriggerInput{
		Level:    LevelEmergency,
		Location: limaPoint(),
	})

	acked, err := f.svc.Acknowledge(context.Background(), alert.ID, "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acked.Status != StatusAcknowledged {
		t.Errorf("expected acknowledged, got %s", acked.Status)
	}

	identity := auth.Identity{ActorID: "admin-1", Role: auth.RoleAdmin}
	resolved, err := f.svc.UpdateStatus(context.Background(), alert.ID, identity, StatusResolved, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.ResolvedAt == nil || resolved.ResolvedBy == nil || *resolved.ResolvedBy != "admin-1" {
		t.Errorf("expected resolved stamp, got %+v", resolved)
	}

	// Terminal alerts accept no further moves.
	if _, err := f.svc.UpdateStatus(context.Background(), alert.ID, identity, StatusResponding, nil); !apperror.IsKind(err, apperror.KindConflict) {
		t.Errorf("expected conflict on transition out of resolved, got %v", err)
	}

	timeline, _ := f.svc.Timeline(context.Background(), alert.ID)
	if len(timeline) != 3 {
		t.Fatalf("expected 3 timeline entries, got %d", len(timeline))
	}
	want := []Status{StatusActive, StatusAcknowledged, StatusResolved}
	for i, e := range timeline {
		if e.Status != want[i] {
			t.Errorf("timeline[%d]: expected %s, got %s", i, want[i], e.Status)
		}
	}
}

func TestUpdateStatus_Permissions(t *testing.T) {
	f := newFixture(t)
	alert, _ := f.svc.Trigger(context.Background(), f.nurseID, TriggerInput{
		Level:    LevelHelpNeeded,
		Location: limaPoint(),
	})

	nurseIdentity := auth.Identity{ActorID: f.nurseID.String(), Role: auth.RoleNurse}
	if _, err := f.svc.UpdateStatus(context.Background(), alert.ID, nurseIdentity, StatusResolved, nil); !apperror.IsKind(err, apperror.KindAuthorization) {
		t.Errorf("expected authorization error for nurse, got %v", err)
	}

	admin := auth.Identity{ActorID: "admin-1", Role: auth.RoleAdmin}
	if _, err := f.svc.UpdateStatus(context.Background(), alert.ID, admin, Status("escalated"), nil); !apperror.IsKind(err, apperror.KindInvalid) {
		t.Errorf("expected invalid error for unknown status, got %v", err)
	}
	if _, err := f.svc.UpdateStatus(context.Background(), alert.ID, admin, StatusActive, nil); !apperror.IsKind(err, apperror.KindInvalid) {
		t.Errorf("expected invalid error for active target, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	alert, _ := f.svc.Trigger(context.Background(), f.nurseID, TriggerInput{
		Level:    LevelHelpNeeded,
		Location: limaPoint(),
	})

	// Someone else's cancel is rejected.
	if _, err := f.svc.Cancel(context.Background(), alert.ID, uuid.New()); !apperror.IsKind(err, apperror.KindAuthorization) {
		t.Errorf("expected authorization error, got %v", err)
	}

	cancelled, err := f.svc.Cancel(context.Background(), alert.ID, f.nurseID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.Status != StatusFalseAlarm {
		t.Errorf("expected false_alarm, got %s", cancelled.Status)
	}
	if cancelled.ResolvedAt == nil {
		t.Error("cancel must stamp resolution")
	}

	if _, err := f.svc.Cancel(context.Background(), alert.ID, f.nurseID); !apperror.IsKind(err, apperror.KindConflict) {
		t.Errorf("expected conflict cancelling a closed alert, got %v", err)
	}
}

func TestCancel_TooLateOnceResponding(t *testing.T) {
	f := newFixture(t)
	alert, _ := f.svc.Trigger(context.Background(), f.nurseID, TriggerInput{
		Level:    LevelEmergency,
		Location: limaPoint(),
	})
	admin := auth.Identity{ActorID: "admin-1", Role: auth.RoleAdmin}
	if _, err := f.svc.UpdateStatus(context.Background(), alert.ID, admin, StatusResponding, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := f.svc.Cancel(context.Background(), alert.ID, f.nurseID); !apperror.IsKind(err, apperror.KindConflict) {
		t.Errorf("expected conflict once responders are dispatched, got %v", err)
	}
}

func TestList_EmergencyFirst(t *testing.T) {
	f := newFixture(t)

	help, _ := f.svc.Trigger(context.Background(), f.nurseID, TriggerInput{
		Level:    LevelHelpNeeded,
		Location: limaPoint(),
	})
	_ = help
	emergency, err := f.svc.Trigger(context.Background(), f.nurseID, TriggerInput{
		Level:    LevelEmergency,
		Location: limaPoint(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items, total, err := f.svc.List(context.Background(), nil, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("expected 2 alerts, got total=%d len=%d", total, len(items))
	}
	if items[0].ID != emergency.ID {
		t.Errorf("expected the emergency alert first, got level %s", items[0].Level)
	}

	active := StatusActive
	items, _, err = f.svc.List(context.Background(), &active, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("expected both active alerts, got %d", len(items))
	}
}

func TestTransitionBroadcastsToAdminsRoom(t *testing.T) {
	f := newFixture(t, "admin-1")
	alert, _ := f.svc.Trigger(context.Background(), f.nurseID, TriggerInput{
		Level:    LevelEmergency,
		Location: limaPoint(),
	})
	before := f.publisher.roomCount(realtime.RoomAdmins, realtime.EventPanicAlert)

	if _, err := f.svc.Acknowledge(context.Background(), alert.ID, "admin-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after := f.publisher.roomCount(realtime.RoomAdmins, realtime.EventPanicAlert)
	if after != before+1 {
		t.Errorf("expected one status broadcast, got %d new publishes", after-before)
	}
}
