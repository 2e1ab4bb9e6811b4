package nurse

import (
	"context"

	"github.com/google/uuid"

	"github.com/homecare/homecare/internal/platform/geo"
)

// Repository defines persistence operations for nurse profiles.
type Repository interface {
	Create(ctx context.Context, n *Nurse) error
	GetByID(ctx context.Context, id uuid.UUID) (*Nurse, error)
	Update(ctx context.Context, n *Nurse) error
	SetAvailability(ctx context.Context, id uuid.UUID, available bool) error
	UpdateLocation(ctx context.Context, id uuid.UUID, p geo.Point) error

	// ApplyRating folds a new rating into the running average in a single
	// statement so concurrent ratings never lose updates.
	ApplyRating(ctx context.Context, id uuid.UUID, rating int) error

	// FindNearby returns available nurses within radiusKm of origin matching
	// the filters, ordered by ascending distance.
	FindNearby(ctx context.Context, origin geo.Point, radiusKm float64, f SearchFilters, limit int) ([]*NearbyNurse, error)

	List(ctx context.Context, limit, offset int) ([]*Nurse, int, error)
}
