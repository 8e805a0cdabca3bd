package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/your-org/attendsense/internal/models"
)

// Flag is a boolean that also accepts 0 and 1, which older edge firmware sends.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true", "1":
		*f = true
	case "false", "0":
		*f = false
	default:
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return fmt.Errorf("invalid flag %s", data)
		}
		*f = Flag(b)
	}
	return nil
}

type HeartbeatRequest struct {
	DeviceID string   `json:"device_id" binding:"required"`
	FPS      *float64 `json:"fps"`
	CameraOK *Flag    `json:"camera_ok"`
}

func (r HeartbeatRequest) ToInput() models.HeartbeatInput {
	in := models.HeartbeatInput{DeviceID: r.DeviceID, FPS: r.FPS}
	if r.CameraOK != nil {
		ok := bool(*r.CameraOK)
		in.CameraOK = &ok
	}
	return in
}

type DeviceResponse struct {
	DeviceID      string  `json:"device_id"`
	LastHeartbeat string  `json:"last_heartbeat"`
	FPS           float64 `json:"fps"`
	CameraOK      bool    `json:"camera_ok"`
	Online        bool    `json:"online"`
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
