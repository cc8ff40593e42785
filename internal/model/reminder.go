package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a reminder.
type State string

const (
	StatePending   State = "pending"   // waiting for its fire time
	StateFiring    State = "firing"    // claimed by the scheduler, delivery in progress
	StateFired     State = "fired"     // once-only reminder completed
	StateCancelled State = "cancelled" // cancelled by the owner before firing
)

// Recurrence describes how often a reminder repeats.
type Recurrence string

const (
	RecurrenceOnce    Recurrence = "once"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// Valid reports whether r is one of the supported recurrence values.
func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceOnce, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

// Next returns the fire time one recurrence period after prev.
//
// The next occurrence is always computed from the previous scheduled time,
// never from the wall clock, so a late delivery does not shift the schedule.
func (r Recurrence) Next(prev time.Time) time.Time {
	switch r {
	case RecurrenceDaily:
		return prev.AddDate(0, 0, 1)
	case RecurrenceWeekly:
		return prev.AddDate(0, 0, 7)
	case RecurrenceMonthly:
		return prev.AddDate(0, 1, 0)
	default:
		return prev
	}
}

// Reminder represents a scheduled plant-care reminder.
type Reminder struct {
	ID              uuid.UUID  `json:"id"`               // unique identifier for the reminder
	Owner           string     `json:"owner"`            // user the reminder belongs to
	Task            string     `json:"task"`             // care action, e.g. "water"
	Plant           string     `json:"plant"`            // plant or crop label, e.g. "basil"
	FireAt          time.Time  `json:"fire_at"`          // time of the next occurrence
	Recurrence      Recurrence `json:"recurrence"`       // once, daily, weekly or monthly
	State           State      `json:"state"`            // current lifecycle state
	Channel         string     `json:"channel"`          // delivery channel, e.g. "desktop", "email", "telegram"
	Contact         string     `json:"contact"`          // channel-specific recipient, may be empty for desktop
	OccurrenceCount int        `json:"occurrence_count"` // number of times this reminder has fired
	CreatedAt       time.Time  `json:"created_at"`       // timestamp when the reminder was created
	UpdatedAt       time.Time  `json:"updated_at"`       // timestamp when the reminder was last updated
}

// Message returns the notification text for one occurrence.
func (r Reminder) Message() string {
	return fmt.Sprintf("Time to %s your %s plant", r.Task, r.Plant)
}
