package dispatch

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a service request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusOnTheWay   Status = "on_the_way"
	StatusArrived    Status = "arrived"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRejected   Status = "rejected"
)

// transitions is the only source of truth for legal lifecycle moves.
// Terminal states have no outgoing edges.
var transitions = map[Status][]Status{
	StatusPending:    {StatusAccepted, StatusRejected, StatusCancelled},
	StatusAccepted:   {StatusOnTheWay, StatusCancelled},
	StatusOnTheWay:   {StatusArrived, StatusCancelled},
	StatusArrived:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
	StatusRejected:   {},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// CanTransitionTo reports whether s -> to is a legal move.
func (s Status) CanTransitionTo(to Status) bool {
	for _, n := range transitions[s] {
		if n == to {
			return true
		}
	}
	return false
}

// ServiceSnapshot is the requested service copied at creation time, so later
// catalog edits never change an in-flight request.
type ServiceSnapshot struct {
	Name     string  `db:"service_name" json:"name"`
	Category string  `db:"service_category" json:"category"`
	Price    float64 `db:"service_price" json:"price"`
}

// ServiceRequest maps to the service_request table.
type ServiceRequest struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	PatientID    uuid.UUID       `db:"patient_id" json:"patient_id"`
	NurseID      *uuid.UUID      `db:"nurse_id" json:"nurse_id,omitempty"`
	NurseName    *string         `db:"nurse_name" json:"nurse_name,omitempty"`
	Service      ServiceSnapshot `json:"service"`
	Address      string          `db:"address" json:"address"`
	Latitude     float64         `db:"latitude" json:"latitude"`
	Longitude    float64         `db:"longitude" json:"longitude"`
	Status       Status          `db:"status" json:"status"`
	Note         *string         `db:"note" json:"note,omitempty"`
	Rating       *int            `db:"rating" json:"rating,omitempty"`
	Review       *string         `db:"review" json:"review,omitempty"`
	RatedAt      *time.Time      `db:"rated_at" json:"rated_at,omitempty"`
	AcceptedAt   *time.Time      `db:"accepted_at" json:"accepted_at,omitempty"`
	CompletedAt  *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt  *time.Time      `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelReason *string         `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// StatusChange maps to the request_status_history table. The log is
// append-only; entries are never updated or removed.
type StatusChange struct {
	ID        uuid.UUID `db:"id" json:"id"`
	RequestID uuid.UUID `db:"request_id" json:"request_id"`
	Status    Status    `db:"status" json:"status"`
	ChangedAt time.Time `db:"changed_at" json:"changed_at"`
	ChangedBy *string   `db:"changed_by" json:"changed_by,omitempty"`
	Note      *string   `db:"note" json:"note,omitempty"`
}

// PendingNearby is a pull-model matching result: an unclaimed pending request
// plus its distance from the nurse's position.
type PendingNearby struct {
	ServiceRequest
	DistanceKm float64 `json:"distance_km"`
}
