package dispatch

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

// NurseDirectory is the slice of the nurse domain the dispatcher needs:
// profile lookups for snapshots, the rating aggregate, and proximity search.
// Satisfied by *nurse.Service.
type NurseDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*nurse.Nurse, error)
	ApplyRating(ctx context.Context, id uuid.UUID, rating int) error
	UpdateLocation(ctx context.Context, id uuid.UUID, p geo.Point) error
	FindNearby(ctx context.Context, origin geo.Point, radiusKm float64, f nurse.SearchFilters, limit int) ([]*nurse.NearbyNurse, error)
}

// Notifier is the fire-and-forget push/SMS dispatch surface. Implementations
// log failures and never block the caller.
type Notifier interface {
	Notify(ctx context.Context, actorID, template string, data map[string]string)
}

// RoomCloser closes the chat room tied to a request when the request reaches
// a terminal state. Satisfied by the chat service.
type RoomCloser interface {
	CloseForRequest(ctx context.Context, requestID uuid.UUID) error
}

// Service drives the request lifecycle and the matching queries.
type Service struct {
	repo       Repository
	nurses     NurseDirectory
	publisher  realtime.Publisher
	notifier   Notifier
	roomCloser RoomCloser
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(repo Repository, nurses NurseDirectory, publisher realtime.Publisher, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		nurses:    nurses,
		publisher: publisher,
		notifier:  notifier,
		logger:    logger.With().Str("component", "dispatch").Logger(),
		now:       time.Now,
	}
}

// SetRoomCloser attaches an optional chat-room hook invoked on terminal
// transitions.
func (s *Service) SetRoomCloser(rc RoomCloser) { s.roomCloser = rc }

// CreateInput is the patient-side request payload.
type CreateInput struct {
	Service  ServiceSnapshot `json:"service"`
	Address  string          `json:"address"`
	Location geo.Point       `json:"location"`
	Note     *string         `json:"note,omitempty"`
}

// StatusEvent is the payload broadcast on every lifecycle change.
type StatusEvent struct {
	RequestID uuid.UUID  `json:"request_id"`
	Status    Status     `json:"status"`
	NurseID   *uuid.UUID `json:"nurse_id,omitempty"`
	NurseName *string    `json:"nurse_name,omitempty"`
	ChangedBy string     `json:"changed_by"`
	ChangedAt time.Time  `json:"changed_at"`
	Note      *string    `json:"note,omitempty"`
}

// LocationEvent is the payload broadcast on nurse position updates.
type LocationEvent struct {
	RequestID uuid.UUID `json:"request_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Heading   *float64  `json:"heading,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	At        time.Time `json:"at"`
}

// Create opens a new pending request owned by the patient and announces it to
// the admin channel and to nearby available nurses.
func (s *Service) Create(ctx context.Context, patientID uuid.UUID, in CreateInput) (*ServiceRequest, error) {
	if in.Service.Name == "" {
		return nil, apperror.Invalid("service name is required")
	}
	if in.Service.Price < 0 {
		return nil, apperror.Invalid("service price must not be negative")
	}
	if in.Address == "" {
		return nil, apperror.Invalid("address is required")
	}
	if !in.Location.Valid() {
		return nil, apperror.Invalid("invalid coordinates")
	}

	sr := &ServiceRequest{
		PatientID: patientID,
		Service:   in.Service,
		Address:   in.Address,
		Latitude:  in.Location.Latitude,
		Longitude: in.Location.Longitude,
		Status:    StatusPending,
		Note:      in.Note,
	}
	if err := s.repo.Create(ctx, sr); err != nil {
		return nil, apperror.Internal("create request", err)
	}
	s.appendHistory(ctx, sr.ID, StatusPending, patientID.String(), nil)

	s.publisher.Publish(realtime.RoomAdmins, realtime.EventRequestNew, sr)
	s.announceToNearbyNurses(ctx, sr)
	return sr, nil
}

// announceToNearbyNurses is best-effort: matching or notification failures
// are logged and never fail the create.
func (s *Service) announceToNearbyNurses(ctx context.Context, sr *ServiceRequest) {
	origin := geo.Point{Latitude: sr.Latitude, Longitude: sr.Longitude}
	filters := nurse.SearchFilters{Category: sr.Service.Category}
	candidates, err := s.nurses.FindNearby(ctx, origin, 5, filters, 25)
	if err != nil {
		s.logger.Warn().Err(err).Str("request_id", sr.ID.String()).Msg("nearby nurse lookup failed")
		return
	}
	for _, c := range candidates {
		s.publisher.PublishToActor(c.ID.String(), realtime.EventRequestNew, sr)
		s.notifier.Notify(ctx, c.ID.String(), "request-new", map[string]string{
			"request_id": sr.ID.String(),
			"service":    sr.Service.Name,
		})
	}
}

// Get returns the request if the identity is allowed to see it: the owning
// patient, the assigned nurse, or an admin.
func (s *Service) Get(ctx context.Context, id uuid.UUID, identity auth.Identity) (*ServiceRequest, error) {
	sr, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.NotFoundf("request %s not found", id)
	}
	if !canView(sr, identity) {
		return nil, apperror.Authorization("not a participant of this request")
	}
	return sr, nil
}

// Lookup returns the request without a permission check. Used by internal
// wiring such as chat room seeding, never exposed on a route.
func (s *Service) Lookup(ctx context.Context, id uuid.UUID) (*ServiceRequest, error) {
	sr, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.NotFoundf("request %s not found", id)
	}
	return sr, nil
}

// CanTrack reports whether the identity may join the request's tracking room.
// It re-reads the request on every call so a reassigned nurse loses access.
func (s *Service) CanTrack(ctx context.Context, requestID uuid.UUID, identity auth.Identity) bool {
	sr, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return false
	}
	return canView(sr, identity)
}

func canView(sr *ServiceRequest, identity auth.Identity) bool {
	if identity.Role == auth.RoleAdmin {
		return true
	}
	if sr.PatientID.String() == identity.ActorID {
		return true
	}
	return sr.NurseID != nil && sr.NurseID.String() == identity.ActorID
}

// Accept claims a pending request for the nurse. Of two concurrent acceptors
// exactly one wins; the loser gets a conflict error.
func (s *Service) Accept(ctx context.Context, requestID, nurseID uuid.UUID) (*ServiceRequest, error) {
	n, err := s.nurses.Get(ctx, nurseID)
	if err != nil {
		return nil, err
	}

	sr, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, apperror.NotFoundf("request %s not found", requestID)
	}
	if sr.Status != StatusPending {
		return nil, apperror.Conflictf("request is %s, not pending", sr.Status)
	}

	now := s.now()
	ok, err := s.repo.Accept(ctx, requestID, nurseID, n.DisplayName, now)
	if err != nil {
		return nil, apperror.Internal("accept request", err)
	}
	if !ok {
		return nil, apperror.Conflict("request already accepted by another nurse")
	}

	s.appendHistory(ctx, requestID, StatusAccepted, nurseID.String(), nil)

	sr.NurseID = &nurseID
	sr.NurseName = &n.DisplayName
	sr.Status = StatusAccepted
	sr.AcceptedAt = &now

	event := StatusEvent{
		RequestID: requestID,
		Status:    StatusAccepted,
		NurseID:   &nurseID,
		NurseName: &n.DisplayName,
		ChangedBy: nurseID.String(),
		ChangedAt: now,
	}
	s.publisher.Publish(realtime.TrackingRoom(requestID), realtime.EventRequestStatus, event)
	s.publisher.PublishToActor(sr.PatientID.String(), realtime.EventRequestStatus, event)
	s.notifier.Notify(ctx, sr.PatientID.String(), "request-accepted", map[string]string{
		"request_id": requestID.String(),
		"nurse_name": n.DisplayName,
	})
	return sr, nil
}

// TransitionInput carries the actor-supplied parts of a lifecycle move.
type TransitionInput struct {
	To     Status  `json:"to"`
	Note   *string `json:"note,omitempty"`
	Reason *string `json:"reason,omitempty"`
}

// Transition applies a lifecycle move on behalf of the identity. Legality is
// checked against the transition table, permission against the actor's
// relationship to the request, and the write is conditional on the status
// still being what was read.
func (s *Service) Transition(ctx context.Context, requestID uuid.UUID, identity auth.Identity, in TransitionInput) (*ServiceRequest, error) {
	if !in.To.Valid() {
		return nil, apperror.Invalid("unknown status")
	}
	if in.To == StatusAccepted {
		return nil, apperror.Invalid("use accept to claim a request")
	}

	sr, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, apperror.NotFoundf("request %s not found", requestID)
	}
	if !sr.Status.CanTransitionTo(in.To) {
		return nil, apperror.Conflictf("cannot move from %s to %s", sr.Status, in.To)
	}
	if err := checkTransitionPermission(sr, identity, in.To); err != nil {
		return nil, err
	}
	if in.To == StatusCancelled && (in.Reason == nil || *in.Reason == "") {
		return nil, apperror.Invalid("cancellation requires a reason")
	}

	now := s.now()
	ok, err := s.repo.Transition(ctx, requestID, sr.Status, in.To, now, in.Reason)
	if err != nil {
		return nil, apperror.Internal("transition request", err)
	}
	if !ok {
		return nil, apperror.Conflictf("request status changed concurrently")
	}

	s.appendHistory(ctx, requestID, in.To, identity.ActorID, in.Note)

	prevStatus := sr.Status
	sr.Status = in.To
	switch in.To {
	case StatusCompleted:
		sr.CompletedAt = &now
	case StatusCancelled:
		sr.CancelledAt = &now
		sr.CancelReason = in.Reason
	}

	s.broadcastTransition(ctx, sr, identity, now, in.Note)
	if in.To.Terminal() && prevStatus != StatusPending && s.roomCloser != nil {
		if err := s.roomCloser.CloseForRequest(ctx, requestID); err != nil {
			s.logger.Warn().Err(err).Str("request_id", requestID.String()).Msg("closing chat room failed")
		}
	}
	return sr, nil
}

// checkTransitionPermission encodes who may move a request where: the
// assigned nurse advances the visit, patient/nurse/admin may cancel, and
// nurses or admins may reject a pending request.
func checkTransitionPermission(sr *ServiceRequest, identity auth.Identity, to Status) error {
	isPatient := sr.PatientID.String() == identity.ActorID
	isAssignedNurse := sr.NurseID != nil && sr.NurseID.String() == identity.ActorID
	isAdmin := identity.Role == auth.RoleAdmin

	switch to {
	case StatusCancelled:
		if isPatient || isAssignedNurse || isAdmin {
			return nil
		}
	case StatusRejected:
		if identity.Role == auth.RoleNurse || isAdmin {
			return nil
		}
	case StatusOnTheWay, StatusArrived, StatusInProgress, StatusCompleted:
		if isAssignedNurse {
			return nil
		}
	}
	return apperror.Authorization("not allowed to perform this transition")
}

func (s *Service) broadcastTransition(ctx context.Context, sr *ServiceRequest, identity auth.Identity, at time.Time, note *string) {
	event := StatusEvent{
		RequestID: sr.ID,
		Status:    sr.Status,
		NurseID:   sr.NurseID,
		NurseName: sr.NurseName,
		ChangedBy: identity.ActorID,
		ChangedAt: at,
		Note:      note,
	}
	room := realtime.TrackingRoom(sr.ID)
	s.publisher.Publish(room, realtime.EventRequestStatus, event)

	switch sr.Status {
	case StatusArrived:
		s.publisher.Publish(room, realtime.EventNurseArrived, event)
		s.notifier.Notify(ctx, sr.PatientID.String(), "nurse-arrived", map[string]string{"request_id": sr.ID.String()})
	case StatusInProgress:
		s.publisher.Publish(room, realtime.EventServiceStarted, event)
	case StatusCompleted:
		s.publisher.Publish(room, realtime.EventServiceCompleted, event)
		s.notifier.Notify(ctx, sr.PatientID.String(), "service-completed", map[string]string{"request_id": sr.ID.String()})
	}

	// The party that did not act learns about the change on their personal
	// channel even if they are not in the tracking room.
	if identity.ActorID != sr.PatientID.String() {
		s.publisher.PublishToActor(sr.PatientID.String(), realtime.EventRequestStatus, event)
	}
	if sr.NurseID != nil && identity.ActorID != sr.NurseID.String() {
		s.publisher.PublishToActor(sr.NurseID.String(), realtime.EventRequestStatus, event)
	}
}

// Rate records the patient's one-time rating of a completed visit and folds
// it into the nurse's aggregate.
func (s *Service) Rate(ctx context.Context, requestID, patientID uuid.UUID, rating int, review *string) error {
	if rating < 1 || rating > 5 {
		return apperror.Invalid("rating must be between 1 and 5")
	}

	sr, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return apperror.NotFoundf("request %s not found", requestID)
	}
	if sr.PatientID != patientID {
		return apperror.Authorization("only the requesting patient may rate")
	}
	if sr.Status != StatusCompleted {
		return apperror.Conflictf("request is %s, only completed requests can be rated", sr.Status)
	}

	ok, err := s.repo.SetRating(ctx, requestID, rating, review, s.now())
	if err != nil {
		return apperror.Internal("set rating", err)
	}
	if !ok {
		return apperror.Conflict("request already rated")
	}

	if sr.NurseID != nil {
		if err := s.nurses.ApplyRating(ctx, *sr.NurseID, rating); err != nil {
			s.logger.Error().Err(err).Str("nurse_id", sr.NurseID.String()).Msg("applying rating aggregate failed")
		}
	}
	return nil
}

// UpdateNurseLocation relays a position update from the assigned nurse to the
// request's tracking room and records the nurse's last known position.
func (s *Service) UpdateNurseLocation(ctx context.Context, requestID, nurseID uuid.UUID, p geo.Point, heading, speed *float64) error {
	if !p.Valid() {
		return apperror.Invalid("invalid coordinates")
	}
	sr, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return apperror.NotFoundf("request %s not found", requestID)
	}
	if sr.NurseID == nil || *sr.NurseID != nurseID {
		return apperror.Authorization("not the assigned nurse")
	}
	if sr.Status.Terminal() {
		return apperror.Conflictf("request is %s", sr.Status)
	}

	s.publisher.Publish(realtime.TrackingRoom(requestID), realtime.EventNurseLocation, LocationEvent{
		RequestID: requestID,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Heading:   heading,
		Speed:     speed,
		At:        s.now(),
	})
	if err := s.nurses.UpdateLocation(ctx, nurseID, p); err != nil {
		s.logger.Warn().Err(err).Str("nurse_id", nurseID.String()).Msg("persisting nurse location failed")
	}
	return nil
}

// History returns the append-only status log.
func (s *Service) History(ctx context.Context, requestID uuid.UUID, identity auth.Identity) ([]*StatusChange, error) {
	if _, err := s.Get(ctx, requestID, identity); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, requestID)
}

// FindNearbyNurses is the patient-side matching query.
func (s *Service) FindNearbyNurses(ctx context.Context, origin geo.Point, radiusKm float64, f nurse.SearchFilters, limit int) ([]*nurse.NearbyNurse, error) {
	return s.nurses.FindNearby(ctx, origin, radiusKm, f, limit)
}

// FindPendingNearby is the nurse-side pull query: unclaimed pending requests
// around the nurse's position.
func (s *Service) FindPendingNearby(ctx context.Context, origin geo.Point, radiusKm float64, limit int) ([]*PendingNearby, error) {
	if !origin.Valid() {
		return nil, apperror.Invalid("invalid coordinates")
	}
	if radiusKm <= 0 {
		return nil, apperror.Invalid("radius must be positive")
	}
	if limit <= 0 {
		limit = 50
	}
	return s.repo.FindPendingNearby(ctx, origin, radiusKm, limit)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*ServiceRequest, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListByNurse(ctx context.Context, nurseID uuid.UUID, limit, offset int) ([]*ServiceRequest, int, error) {
	return s.repo.ListByNurse(ctx, nurseID, limit, offset)
}

// appendHistory records a transition in the status log. A failed append is
// logged but does not undo the already-committed transition.
func (s *Service) appendHistory(ctx context.Context, requestID uuid.UUID, status Status, changedBy string, note *string) {
	h := &StatusChange{
		RequestID: requestID,
		Status:    status,
		ChangedAt: s.now(),
		ChangedBy: &changedBy,
		Note:      note,
	}
	if err := s.repo.AppendHistory(ctx, h); err != nil {
		s.logger.Error().Err(err).Str("request_id", requestID.String()).Str("status", string(status)).
			Msg("appending status history failed")
	}
}
