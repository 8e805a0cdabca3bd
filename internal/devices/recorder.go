package devices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/your-org/attendsense/internal/models"
	"github.com/your-org/attendsense/internal/observability"
)

var ErrMissingDeviceID = errors.New("device_id is required")

type Store interface {
	UpsertDevice(ctx context.Context, d models.DeviceStatus) error
	ListDevices(ctx context.Context) ([]models.DeviceStatus, error)
}

type Clock interface {
	Now() time.Time
}

// Health is a device row plus whether it has reported recently.
type Health struct {
	models.DeviceStatus
	Online bool `json:"online"`
}

// Recorder is the only writer of device_status. Each heartbeat replaces the
// previous row for that device.
type Recorder struct {
	store        Store
	clock        Clock
	offlineAfter time.Duration
}

func NewRecorder(store Store, clock Clock, offlineAfter time.Duration) *Recorder {
	return &Recorder{store: store, clock: clock, offlineAfter: offlineAfter}
}

// Record stamps the heartbeat with server time and stores it. Device clocks
// are not trusted.
func (r *Recorder) Record(ctx context.Context, in models.HeartbeatInput) (models.DeviceStatus, error) {
	if strings.TrimSpace(in.DeviceID) == "" {
		return models.DeviceStatus{}, ErrMissingDeviceID
	}

	d := models.DeviceStatus{
		DeviceID:      in.DeviceID,
		LastHeartbeat: r.clock.Now(),
		FPS:           0,
		CameraOK:      true,
	}
	if in.FPS != nil {
		d.FPS = *in.FPS
	}
	if in.CameraOK != nil {
		d.CameraOK = *in.CameraOK
	}

	if err := r.store.UpsertDevice(ctx, d); err != nil {
		return models.DeviceStatus{}, fmt.Errorf("record heartbeat %s: %w", in.DeviceID, err)
	}
	observability.Heartbeats.WithLabelValues(d.DeviceID).Inc()
	return d, nil
}

// List returns all known devices with their online flag.
func (r *Recorder) List(ctx context.Context) ([]Health, error) {
	rows, err := r.store.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	now := r.clock.Now()
	out := make([]Health, 0, len(rows))
	offline := 0
	for _, d := range rows {
		online := now.Sub(d.LastHeartbeat) <= r.offlineAfter
		if !online {
			offline++
		}
		out = append(out, Health{DeviceStatus: d, Online: online})
	}
	observability.DevicesOffline.Set(float64(offline))
	return out, nil
}
