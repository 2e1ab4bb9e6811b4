package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/homecare/homecare/internal/platform/geo"
)

// Repository defines persistence operations for service requests. The
// conditional mutations (Accept, Transition, SetRating) return false when the
// precondition did not hold at write time, so racing writers can never
// overwrite each other.
type Repository interface {
	Create(ctx context.Context, r *ServiceRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*ServiceRequest, error)

	// Accept assigns the nurse and moves pending -> accepted in one
	// conditional statement. Returns false if the request is no longer
	// pending or already has a nurse.
	Accept(ctx context.Context, requestID, nurseID uuid.UUID, nurseName string, at time.Time) (bool, error)

	// Transition moves from -> to only if the stored status still equals
	// from. cancelReason is stored when to is cancelled.
	Transition(ctx context.Context, requestID uuid.UUID, from, to Status, at time.Time, cancelReason *string) (bool, error)

	// SetRating stores the rating only if the request is completed and not
	// yet rated.
	SetRating(ctx context.Context, requestID uuid.UUID, rating int, review *string, at time.Time) (bool, error)

	AppendHistory(ctx context.Context, h *StatusChange) error
	History(ctx context.Context, requestID uuid.UUID) ([]*StatusChange, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*ServiceRequest, int, error)
	ListByNurse(ctx context.Context, nurseID uuid.UUID, limit, offset int) ([]*ServiceRequest, int, error)

	// FindPendingNearby returns unclaimed pending requests within radiusKm
	// of origin, nearest first.
	FindPendingNearby(ctx context.Context, origin geo.Point, radiusKm float64, limit int) ([]*PendingNearby, error)
}
