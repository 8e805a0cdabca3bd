package dto

import "github.com/your-org/attendsense/internal/models"

type PresenceResponse struct {
	PersonID  string `json:"person_id"`
	Name      string `json:"name"`
	FirstSeen string `json:"first_seen"`
	LastSeen  string `json:"last_seen"`
	Present   bool   `json:"present"`
}

func NewPresenceResponse(st models.PresenceStatus) PresenceResponse {
	return PresenceResponse{
		PersonID:  st.PersonID,
		Name:      st.Name,
		FirstSeen: FormatTime(st.FirstSeen),
		LastSeen:  FormatTime(st.LastSeen),
		Present:   st.Present,
	}
}

type ReportResponse struct {
	Key          string `json:"key"`
	Size         int64  `json:"size"`
	LastModified string `json:"last_modified"`
}

// WSEvent is a WebSocket message for real-time presence delivery.
type WSEvent struct {
	Type string                `json:"type"` // presence
	Data models.PresenceChange `json:"data"`
}
