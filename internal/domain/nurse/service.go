package nurse

import (
	"context"

	"github.com/google/uuid"

	"github.com/homecare/homecare/internal/platform/apperror"
	"github.com/homecare/homecare/internal/platform/geo"
)

// Service implements nurse profile management and proximity search.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, n *Nurse) error {
	if n.DisplayName == "" {
		return apperror.Invalid("display_name is required")
	}
	if n.HourlyPrice < 0 {
		return apperror.Invalid("hourly_price must not be negative")
	}
	if len(n.Categories) == 0 {
		return apperror.Invalid("at least one category is required")
	}
	return s.repo.Create(ctx, n)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Nurse, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.NotFoundf("nurse %s not found", id)
	}
	return n, nil
}

func (s *Service) Update(ctx context.Context, n *Nurse) error {
	if n.DisplayName == "" {
		return apperror.Invalid("display_name is required")
	}
	if n.HourlyPrice < 0 {
		return apperror.Invalid("hourly_price must not be negative")
	}
	return s.repo.Update(ctx, n)
}

// SetAvailability toggles whether the nurse appears in matching results.
func (s *Service) SetAvailability(ctx context.Context, id uuid.UUID, available bool) error {
	return s.repo.SetAvailability(ctx, id, available)
}

// UpdateLocation records the nurse's last known position.
func (s *Service) UpdateLocation(ctx context.Context, id uuid.UUID, p geo.Point) error {
	if !p.Valid() {
		return apperror.Invalid("invalid coordinates")
	}
	return s.repo.UpdateLocation(ctx, id, p)
}

// ApplyRating folds a completed-service rating into the nurse's running
// average.
func (s *Service) ApplyRating(ctx context.Context, id uuid.UUID, rating int) error {
	if rating < 1 || rating > 5 {
		return apperror.Invalid("rating must be between 1 and 5")
	}
	return s.repo.ApplyRating(ctx, id, rating)
}

// FindNearby returns available nurses within radiusKm of origin, nearest
// first.
func (s *Service) FindNearby(ctx context.Context, origin geo.Point, radiusKm float64, f SearchFilters, limit int) ([]*NearbyNurse, error) {
	if !origin.Valid() {
		return nil, apperror.Invalid("invalid coordinates")
	}
	if radiusKm <= 0 {
		return nil, apperror.Invalid("radius must be positive")
	}
	if limit <= 0 {
		limit = 50
	}
	return s.repo.FindNearby(ctx, origin, radiusKm, f, limit)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Nurse, int, error) {
	return s.repo.List(ctx, limit, offset)
}
