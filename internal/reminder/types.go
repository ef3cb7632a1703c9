// Package reminder holds the data model shared by the store, the timer
// backends and the scheduling engine.
package reminder

import (
	"slices"
	"time"

	"github.com/shantoshdurai/ClassNow-app/internal/weekly"
)

// RecurringEvent is one weekly reminder definition as read from the event store.
//
// Day is zero and HasStart is false when the stored record lacks them; such
// events are not schedulable. Invalid carries the parse error of a record whose
// day or time was present but malformed.
type RecurringEvent struct {
	ID       string
	Title    string
	Location string
	Day      weekly.Day
	Start    weekly.Clock
	HasStart bool

	// LeadTimeMinutes overrides Preferences.DefaultLeadTimeMinutes when set.
	LeadTimeMinutes *int

	Invalid error
}

// Schedulable reports whether the event has a valid day and start time.
func (e RecurringEvent) Schedulable() bool {
	return e.Invalid == nil && e.Day.Valid() && e.HasStart
}

// LeadTime returns the event's lead time, falling back to def.
func (e RecurringEvent) LeadTime(def int) int {
	if e.LeadTimeMinutes != nil {
		return *e.LeadTimeMinutes
	}
	return def
}

// Preferences is the user-level scheduling policy, read once per pass.
type Preferences struct {
	Enabled                bool
	AllSubjectsSelected    bool
	SelectedSubjects       []string
	DefaultLeadTimeMinutes int
}

// DefaultPreferences mirrors the values the app assumes when nothing is stored.
func DefaultPreferences() Preferences {
	return Preferences{
		Enabled:                true,
		AllSubjectsSelected:    true,
		SelectedSubjects:       nil,
		DefaultLeadTimeMinutes: 15,
	}
}

// Selects reports whether title passes the subject filter.
func (p Preferences) Selects(title string) bool {
	if p.AllSubjectsSelected {
		return true
	}
	return slices.Contains(p.SelectedSubjects, title)
}

// Precision is how a timer was actually armed.
type Precision string

const (
	Exact   Precision = "exact"
	Inexact Precision = "inexact"
)

// Payload travels with an armed timer and is handed back verbatim when it fires.
type Payload struct {
	EventID         string    `json:"event_id,omitempty"`
	Title           string    `json:"title"`
	Location        string    `json:"location,omitempty"`
	LeadTimeMinutes int       `json:"lead_time_minutes"`
	DayOfWeek       string    `json:"day_of_week"`
	StartTime       string    `json:"start_time"`
	TriggerAt       time.Time `json:"trigger_at,omitempty"`
	CorrelationID   int32     `json:"correlation_id"`
	ArmID           string    `json:"arm_id,omitempty"`
}

// ArmedTimer describes a live registration owned by a timer backend.
type ArmedTimer struct {
	CorrelationID int32     `json:"correlation_id"`
	TriggerAt     time.Time `json:"trigger_at"`
	Precision     Precision `json:"precision"`
	Payload       Payload   `json:"payload"`
}

// Report summarizes one full scheduling pass.
type Report struct {
	Armed     int  `json:"armed"`
	Degraded  int  `json:"degraded"`
	Skipped   int  `json:"skipped"`
	Filtered  int  `json:"filtered"`
	Failed    int  `json:"failed"`
	Cancelled int  `json:"cancelled"`
	Exact     bool `json:"exact"`
	Disabled  bool `json:"disabled"`
}
