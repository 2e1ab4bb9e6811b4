package panicalert

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/homecare/homecare/internal/domain/nurse"
	"github.com/homecare/homecare/internal/platform/apperror"
	"github.com/homecare/homecare/internal/platform/auth"
	"github.com/homecare/homecare/internal/platform/geo"
	"github.com/homecare/homecare/internal/platform/realtime"
)

// NurseDirectory resolves the triggering nurse's profile for the name
// snapshot. Satisfied by *nurse.Service.
type NurseDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*nurse.Nurse, error)
}

// AdminRoster lists the actor ids of currently connected admins, so the
// escalation can reach each admin's personal channel in addition to the
// admins room. Satisfied by *realtime.Registry.
type AdminRoster interface {
	OnlineActorsByRole(role auth.Role) []string
}

// Notifier is the fire-and-forget push/SMS dispatch surface.
type Notifier interface {
	Notify(ctx context.Context, actorID, template string, data map[string]string)
}

// Service implements the highest-priority event path: panic alert creation,
// escalation to every admin operator, and the acknowledgement state machine.
type Service struct {
	repo      Repository
	nurses    NurseDirectory
	roster    AdminRoster
	publisher realtime.Publisher
	notifier  Notifier
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(repo Repository, nurses NurseDirectory, roster AdminRoster, publisher realtime.Publisher, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		nurses:    nurses,
		roster:    roster,
		publisher: publisher,
		notifier:  notifier,
		logger:    logger.With().Str("component", "panicalert").Logger(),
		now:       time.Now,
	}
}

// TriggerInput is the nurse-supplied part of an alert.
type TriggerInput struct {
	Level    Level     `json:"level"`
	Location geo.Point `json:"location"`
	Address  *string   `json:"address,omitempty"`
	Message  *string   `json:"message,omitempty"`
}

// Trigger creates an active alert and escalates it to the admins room and to
// every connected admin's personal channel. Delivery is deliberately dual:
// room membership is not guaranteed at the moment of a rare, critical event.
// A persistence failure is logged at high severity but never suppresses the
// broadcast; human response must not be gated on storage success.
func (s *Service) Trigger(ctx context.Context, nurseID uuid.UUID, in TriggerInput) (*PanicAlert, error) {
	if !in.Level.Valid() {
		return nil, apperror.Invalid("unknown alert level")
	}
	if !in.Location.Valid() {
		return nil, apperror.Invalid("invalid coordinates")
	}

	nurseName := ""
	if n, err := s.nurses.Get(ctx, nurseID); err == nil {
		nurseName = n.DisplayName
	} else {
		s.logger.Warn().Err(err).Str("nurse_id", nurseID.String()).Msg("nurse lookup failed on panic trigger")
	}

	now := s.now()
	alert := &PanicAlert{
		ID:        uuid.New(),
		NurseID:   nurseID,
		NurseName: nurseName,
		Level:     in.Level,
		Status:    StatusActive,
		Latitude:  in.Location.Latitude,
		Longitude: in.Location.Longitude,
		Address:   in.Address,
		Message:   in.Message,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, alert); err != nil {
		s.logger.Error().Err(err).Str("alert_id", alert.ID.String()).Str("level", string(in.Level)).
			Msg("persisting panic alert failed; broadcasting anyway")
	} else {
		s.appendTimeline(ctx, alert.ID, StatusActive, nurseID.String(), in.Message)
	}

	s.escalate(ctx, alert)
	return alert, nil
}

// escalate performs the dual delivery: one publish to the admins room, one
// publish per connected admin's personal channel, plus push notifications.
func (s *Service) escalate(ctx context.Context, alert *PanicAlert) {
	s.publisher.Publish(realtime.RoomAdmins, realtime.EventPanicAlert, alert)
	for _, adminID := range s.roster.OnlineActorsByRole(auth.RoleAdmin) {
		s.publisher.PublishToActor(adminID, realtime.EventPanicAlert, alert)
		s.notifier.Notify(ctx, adminID, "panic-alert", map[string]string{
			"alert_id":   alert.ID.String(),
			"level":      string(alert.Level),
			"nurse_name": alert.NurseName,
		})
	}
}

// Acknowledge marks the alert as seen by an admin operator.
func (s *Service) Acknowledge(ctx context.Context, alertID uuid.UUID, adminID string) (*PanicAlert, error) {
	return s.transition(ctx, alertID, StatusAcknowledged, adminID, nil)
}

// UpdateStatus moves the alert through the escalation states on behalf of an
// admin. Terminal states stamp resolvedAt/resolvedBy exactly once.
func (s *Service) UpdateStatus(ctx context.Context, alertID uuid.UUID, identity auth.Identity, to Status, note *string) (*PanicAlert, error) {
	if identity.Role != auth.RoleAdmin {
		return nil, apperror.Authorization("only admins may update alert status")
	}
	if !to.Valid() || to == StatusActive {
		return nil, apperror.Invalid("unknown target status")
	}
	return s.transition(ctx, alertID, to, identity.ActorID, note)
}

// Cancel lets the triggering nurse withdraw their own alert, only while it is
// still active or acknowledged. The alert closes as a false alarm.
func (s *Service) Cancel(ctx context.Context, alertID, nurseID uuid.UUID) (*PanicAlert, error) {
	alert, err := s.repo.GetByID(ctx, alertID)
	if err != nil {
		return nil, apperror.NotFoundf("alert %s not found", alertID)
	}
	if alert.NurseID != nurseID {
		return nil, apperror.Authorization("only the triggering nurse may cancel")
	}
	if alert.Status != StatusActive && alert.Status != StatusAcknowledged {
		return nil, apperror.Conflictf("alert is %s, too late to cancel", alert.Status)
	}
	return s.transition(ctx, alertID, StatusFalseAlarm, nurseID.String(), nil)
}

func (s *Service) transition(ctx context.Context, alertID uuid.UUID, to Status, actorID string, note *string) (*PanicAlert, error) {
	alert, err := s.repo.GetByID(ctx, alertID)
	if err != nil {
		return nil, apperror.NotFoundf("alert %s not found", alertID)
	}
	if !alert.Status.CanTransitionTo(to) {
		return nil, apperror.Conflictf("cannot move from %s to %s", alert.Status, to)
	}

	now := s.now()
	var resolvedBy *string
	if to.Terminal() {
		resolvedBy = &actorID
	}
	ok, err := s.repo.Transition(ctx, alertID, alert.Status, to, resolvedBy, now)
	if err != nil {
		return nil, apperror.Internal("transition alert", err)
	}
	if !ok {
		return nil, apperror.Conflict("alert status changed concurrently")
	}

	s.appendTimeline(ctx, alertID, to, actorID, note)

	alert.Status = to
	alert.UpdatedAt = now
	if to.Terminal() {
		alert.ResolvedAt = &now
		alert.ResolvedBy = &actorID
	}
	s.publisher.Publish(realtime.RoomAdmins, realtime.EventPanicAlert, alert)
	return alert, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*PanicAlert, error) {
	alert, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.NotFoundf("alert %s not found", id)
	}
	return alert, nil
}

// List returns alerts with emergency level first.
func (s *Service) List(ctx context.Context, status *Status, limit, offset int) ([]*PanicAlert, int, error) {
	return s.repo.List(ctx, status, limit, offset)
}

func (s *Service) Timeline(ctx context.Context, alertID uuid.UUID) ([]*TimelineEntry, error) {
	return s.repo.Timeline(ctx, alertID)
}

func (s *Service) appendTimeline(ctx context.Context, alertID uuid.UUID, status Status, changedBy string, note *string) {
	e := &TimelineEntry{
		AlertID:   alertID,
		Status:    status,
		ChangedAt: s.now(),
		ChangedBy: &changedBy,
		Note:      note,
	}
	if err := s.repo.AppendTimeline(ctx, e); err != nil {
		s.logger.Error().Err(err).Str("alert_id", alertID.String()).Msg("appending alert timeline failed")
	}
}
