package mqtt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceFromTopic(t *testing.T) {
	id, err := DeviceFromTopic("attendsense/cam-lobby/sighting")
	require.NoError(t, err)
	assert.Equal(t, "cam-lobby", id)

	_, err = DeviceFromTopic("attendsense")
	assert.ErrorIs(t, err, ErrBadTopic)

	_, err = DeviceFromTopic("attendsense//heartbeat")
	assert.ErrorIs(t, err, ErrBadTopic)
}

func TestParseSighting(t *testing.T) {
	payload := []byte(`{"person_id":"p1","name":"Alice","timestamp":"2026-02-09T08:00:00Z","confidence":0.93}`)

	in, err := ParseSighting("attendsense/cam1/sighting", payload)
	require.NoError(t, err)
	assert.Equal(t, "p1", in.PersonID)
	assert.Equal(t, "Alice", in.Name)
	assert.Equal(t, "cam1", in.CameraID)
	assert.InDelta(t, 0.93, in.Confidence, 1e-9)
	assert.True(t, in.EventTimestamp.Equal(time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC)))
}

func TestParseSightingKeepsPayloadCamera(t *testing.T) {
	payload := []byte(`{"person_id":"p1","name":"Alice","timestamp":"2026-02-09T08:00:00Z","camera_id":"cam9"}`)

	in, err := ParseSighting("attendsense/cam1/sighting", payload)
	require.NoError(t, err)
	assert.Equal(t, "cam9", in.CameraID)
}

func TestParseSightingRejectsGarbage(t *testing.T) {
	_, err := ParseSighting("attendsense/cam1/sighting", []byte(`not json`))
	assert.Error(t, err)

	_, err = ParseSighting("attendsense/cam1/sighting", []byte(`{"person_id":"p1","timestamp":"yesterday"}`))
	assert.Error(t, err)
}

func TestParseHeartbeat(t *testing.T) {
	in, err := ParseHeartbeat("attendsense/cam1/heartbeat", []byte(`{"device_id":"spoofed","fps":12.5}`))
	require.NoError(t, err)
	assert.Equal(t, "cam1", in.DeviceID)
	require.NotNil(t, in.FPS)
	assert.Equal(t, 12.5, *in.FPS)
	assert.Nil(t, in.CameraOK)

	in, err = ParseHeartbeat("attendsense/cam2/heartbeat", nil)
	require.NoError(t, err)
	assert.Equal(t, "cam2", in.DeviceID)
	assert.Nil(t, in.FPS)
}

func TestTopicBuilders(t *testing.T) {
	assert.Equal(t, "attendsense/cam1/sighting", SightingTopic("attendsense", "cam1"))
	assert.Equal(t, "attendsense/cam1/heartbeat", HeartbeatTopic("attendsense", "cam1"))
}

func TestParseHeartbeatNumericCameraFlag(t *testing.T) {
	in, err := ParseHeartbeat("attendsense/cam1/heartbeat", []byte(`{"camera_ok":0}`))
	require.NoError(t, err)
	require.NotNil(t, in.CameraOK)
	assert.False(t, *in.CameraOK)
}
