package models

import "time"

type PresenceStatus struct {
	PersonID  string    `json:"person_id" db:"person_id"`
	Name      string    `json:"name" db:"name"`
	FirstSeen time.Time `json:"first_seen" db:"first_seen"`
	LastSeen  time.Time `json:"last_seen" db:"last_seen"`
	Present   bool      `json:"present" db:"present"`
}

type ChangeKind string

const (
	ChangeArrived ChangeKind = "arrived" // first sighting, or absent -> present
	ChangeSeen    ChangeKind = "seen"    // accepted sighting of someone already present
	ChangeLeft    ChangeKind = "left"    // swept to absent after inactivity
)

// PresenceChange is published whenever a presence row is written.
type PresenceChange struct {
	Kind      ChangeKind `json:"kind"`
	PersonID  string     `json:"person_id"`
	Name      string     `json:"name"`
	CameraID  string     `json:"camera_id,omitempty"`
	FirstSeen time.Time  `json:"first_seen"`
	LastSeen  time.Time  `json:"last_seen"`
	Present   bool       `json:"present"`
	At        time.Time  `json:"at"`
}
