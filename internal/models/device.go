package models

import "time"

type DeviceStatus struct {
	DeviceID      string    `json:"device_id" db:"device_id"`
	LastHeartbeat time.Time `json:"last_heartbeat" db:"last_heartbeat"`
	FPS           float64   `json:"fps" db:"fps"`
	CameraOK      bool      `json:"camera_ok" db:"camera_ok"`
}

// HeartbeatInput is a device heartbeat as sent by an edge node.
// Nil fields fall back to fps=0 and camera_ok=true.
type HeartbeatInput struct {
	DeviceID string   `json:"device_id"`
	FPS      *float64 `json:"fps,omitempty"`
	CameraOK *bool    `json:"camera_ok,omitempty"`
}
