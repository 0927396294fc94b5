package models

import "time"

// EventType distinguishes in-person happenings from virtual ones.
type EventType string

const (
	EventTypeInPerson EventType = "in-person"
	EventTypeVirtual  EventType = "virtual"
)

// Event is a schedulable happening. Only events with a future start and no
// archive/delete marker accept new registrations.
type Event struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	StartsAt   time.Time  `json:"starts_at"`
	Category   string     `json:"category"`
	Type       EventType  `json:"type"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Eligible reports whether the event accepts new registrations at now.
func (e *Event) Eligible(now time.Time) bool {
	return e.StartsAt.After(now) && e.ArchivedAt == nil && e.DeletedAt == nil
}
