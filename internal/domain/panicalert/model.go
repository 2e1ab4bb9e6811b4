package panicalert

import (
	"time"

	"github.com/google/uuid"
)

// Level is the severity of a panic alert. Emergency alerts sort ahead of
// help-needed alerts in every listing.
type Level string

const (
	LevelHelpNeeded Level = "help_needed"
	LevelEmergency  Level = "emergency"
)

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	return l == LevelHelpNeeded || l == LevelEmergency
}

// Status is the escalation state of an alert.
type Status string

const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusResponding   Status = "responding"
	StatusResolved     Status = "resolved"
	StatusFalseAlarm   Status = "false_alarm"
)

var transitions = map[Status][]Status{
	StatusActive:       {StatusAcknowledged, StatusResponding, StatusResolved, StatusFalseAlarm},
	StatusAcknowledged: {StatusResponding, StatusResolved, StatusFalseAlarm},
	StatusResponding:   {StatusResolved, StatusFalseAlarm},
	StatusResolved:     {},
	StatusFalseAlarm:   {},
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

// PanicAlert maps to the panic_alert table. NurseName is a value copy taken
// at trigger time.
type PanicAlert struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	NurseID    uuid.UUID  `db:"nurse_id" json:"nurse_id"`
	NurseName  string     `db:"nurse_name" json:"nurse_name"`
	Level      Level      `db:"level" json:"level"`
	Status     Status     `db:"status" json:"status"`
	Latitude   float64    `db:"latitude" json:"latitude"`
	Longitude  float64    `db:"longitude" json:"longitude"`
	Address    *string    `db:"address" json:"address,omitempty"`
	Message    *string    `db:"message" json:"message,omitempty"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy *string    `db:"resolved_by" json:"resolved_by,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// TimelineEntry maps to the panic_timeline table. The timeline is
// append-only with actor attribution.
type TimelineEntry struct {
	ID        uuid.UUID `db:"id" json:"id"`
	AlertID   uuid.UUID `db:"alert_id" json:"alert_id"`
	Status    Status    `db:"status" json:"status"`
	ChangedAt time.Time `db:"changed_at" json:"changed_at"`
	ChangedBy *string   `db:"changed_by" json:"changed_by,omitempty"`
	Note      *string   `db:"note" json:"note,omitempty"`
}
