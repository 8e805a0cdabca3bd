package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/your-org/attendsense/internal/models"
	"github.com/your-org/attendsense/pkg/dto"
)

var ErrBadTopic = errors.New("topic has no device segment")

// DeviceFromTopic returns the device segment of "<prefix>/<device>/<kind>".
func DeviceFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[1] == "" {
		return "", fmt.Errorf("%w: %q", ErrBadTopic, topic)
	}
	return parts[1], nil
}

// ParseSighting decodes a sighting payload. The camera id defaults to the
// topic's device segment when the payload does not carry one.
func ParseSighting(topic string, payload []byte) (models.SightingInput, error) {
	var req dto.SightingRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return models.SightingInput{}, fmt.Errorf("decode sighting: %w", err)
	}
	in, err := req.ToInput()
	if err != nil {
		return in, err
	}
	if in.CameraID == "" {
		device, err := DeviceFromTopic(topic)
		if err != nil {
			return in, err
		}
		in.CameraID = device
	}
	return in, nil
}

// ParseHeartbeat decodes a heartbeat. The topic's device segment always wins
// over a device id in the payload.
func ParseHeartbeat(topic string, payload []byte) (models.HeartbeatInput, error) {
	var req dto.HeartbeatRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return models.HeartbeatInput{}, fmt.Errorf("decode heartbeat: %w", err)
		}
	}
	device, err := DeviceFromTopic(topic)
	if err != nil {
		return models.HeartbeatInput{}, err
	}
	req.DeviceID = device
	return req.ToInput(), nil
}

// SightingTopic builds the topic an edge camera publishes sightings to.
func SightingTopic(prefix, cameraID string) string {
	return fmt.Sprintf("%s/%s/sighting", prefix, cameraID)
}

func HeartbeatTopic(prefix, deviceID string) string {
	return fmt.Sprintf("%s/%s/heartbeat", prefix, deviceID)
}
