package models

import "time"

// Sighting is one row of the append-only attendance audit log.
type Sighting struct {
	ID             int64     `json:"id" db:"id"`
	PersonID       string    `json:"person_id" db:"person_id"`
	Name           string    `json:"name" db:"name"`
	EventTimestamp time.Time `json:"event_timestamp" db:"event_timestamp"`
	Confidence     float64   `json:"confidence" db:"confidence"` // advisory, never validated
	CameraID       string    `json:"camera_id" db:"camera_id"`
	ReceivedAt     time.Time `json:"received_at" db:"received_at"`
}

// SightingInput is a sighting as reported by an edge camera, before the fog
// node stamps it with a receipt time.
type SightingInput struct {
	PersonID       string    `json:"person_id"`
	Name           string    `json:"name"`
	EventTimestamp time.Time `json:"timestamp"`
	Confidence     float64   `json:"confidence"`
	CameraID       string    `json:"camera_id"`
}

// EventFilter narrows an audit log query. Zero values mean "any".
type EventFilter struct {
	PersonID string
	CameraID string
	From     *time.Time
	To       *time.Time
	// Before keeps only events that sort after the cursor, newest first.
	Before *EventCursor
	Limit  int
	Offset int
}

// EventCursor marks a position in the newest-first audit log order.
type EventCursor struct {
	EventTimestamp time.Time
	ID             int64
}

// CursorOf returns the position of ev.
func CursorOf(ev Sighting) *EventCursor {
	return &EventCursor{EventTimestamp: ev.EventTimestamp, ID: ev.ID}
}

// Admits reports whether ev comes after the cursor.
func (c *EventCursor) Admits(ev Sighting) bool {
	if ev.EventTimestamp.Equal(c.EventTimestamp) {
		return ev.ID < c.ID
	}
	return ev.EventTimestamp.Before(c.EventTimestamp)
}
