package panicalert

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence operations for panic alerts. Transition is
// conditional on the stored status so racing operators cannot double-resolve
// an alert; resolvedAt/resolvedBy are written at most once.
type Repository interface {
	Create(ctx context.Context, a *PanicAlert) error
	GetByID(ctx context.Context, id uuid.UUID) (*PanicAlert, error)

	// Transition moves from -> to only if the stored status still equals
	// from. For terminal targets it additionally stamps resolved_at and
	// resolved_by, guarded so they are set exactly once.
	Transition(ctx context.Context, id uuid.UUID, from, to Status, resolvedBy *string, at time.Time) (bool, error)

	AppendTimeline(ctx context.Context, e *TimelineEntry) error
	Timeline(ctx context.Context, alertID uuid.UUID) ([]*TimelineEntry, error)

	// List returns alerts with emergency-level entries first, newest first
	// within each level.
	List(ctx context.Context, status *Status, limit, offset int) ([]*PanicAlert, int, error)
}
