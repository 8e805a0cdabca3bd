package dto

import (
	"fmt"
	"strings"
	"time"

	"github.com/your-org/attendsense/internal/models"
)

// SightingRequest is the body of POST /event and POST /v1/sightings.
type SightingRequest struct {
	PersonID   string  `json:"person_id" binding:"required"`
	Name       string  `json:"name" binding:"required"`
	Timestamp  string  `json:"timestamp" binding:"required"`
	Confidence float64 `json:"confidence"`
	CameraID   string  `json:"camera_id"`
}

type SightingResponse struct {
	Status   string `json:"status"`
	Accepted bool   `json:"accepted"`
}

// timestampLayouts accepts RFC 3339 and the zone-less ISO form some edge
// nodes send; the latter is read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q: want RFC 3339", s)
}

func (r SightingRequest) ToInput() (models.SightingInput, error) {
	ts, err := ParseTimestamp(r.Timestamp)
	if err != nil {
		return models.SightingInput{}, err
	}
	return models.SightingInput{
		PersonID:       r.PersonID,
		Name:           r.Name,
		EventTimestamp: ts,
		Confidence:     r.Confidence,
		CameraID:       r.CameraID,
	}, nil
}

type EventResponse struct {
	ID         int64   `json:"id"`
	PersonID   string  `json:"person_id"`
	Name       string  `json:"name"`
	Timestamp  string  `json:"timestamp"`
	Confidence float64 `json:"confidence"`
	CameraID   string  `json:"camera_id"`
	ReceivedAt string  `json:"received_at"`
}

type EventListResponse struct {
	Events []EventResponse `json:"events"`
	Total  int             `json:"total"`
}

func NewEventResponse(ev models.Sighting) EventResponse {
	return EventResponse{
		ID:         ev.ID,
		PersonID:   ev.PersonID,
		Name:       ev.Name,
		Timestamp:  FormatTime(ev.EventTimestamp),
		Confidence: ev.Confidence,
		CameraID:   ev.CameraID,
		ReceivedAt: FormatTime(ev.ReceivedAt),
	}
}
