package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/your-org/attendsense/internal/config"
	"github.com/your-org/attendsense/internal/mqtt"
	"github.com/your-org/attendsense/pkg/dto"
)

var sightingCmd = &cobra.Command{
	Use:   "sighting",
	Short: "Send a sighting as an edge camera would",
	Long: `Sends one sighting to the fog node. With --mqtt the sighting is published
to the broker from the config file instead of posted over HTTP; the MQTT path
is asynchronous, so the dedup outcome is not reported.`,
	RunE: runSighting,
}

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat",
	Short: "Send a device heartbeat",
	RunE:  runHeartbeat,
}

func init() {
	rootCmd.AddCommand(sightingCmd)
	rootCmd.AddCommand(heartbeatCmd)

	sightingCmd.Flags().String("person", "", "Person id (required)")
	sightingCmd.Flags().String("name", "", "Display name (required)")
	sightingCmd.Flags().String("camera", "cli", "Camera id")
	sightingCmd.Flags().Float64("confidence", 1, "Recognition confidence")
	sightingCmd.Flags().String("at", "", "Event time, RFC 3339 (default now)")
	sightingCmd.Flags().Bool("mqtt", false, "Publish over MQTT instead of HTTP")
	sightingCmd.Flags().String("topic-prefix", "attendsense", "MQTT topic prefix")
	_ = sightingCmd.MarkFlagRequired("person")
	_ = sightingCmd.MarkFlagRequired("name")

	heartbeatCmd.Flags().String("device", "", "Device id (required)")
	heartbeatCmd.Flags().Float64("fps", 0, "Frames per second the device is processing")
	heartbeatCmd.Flags().Bool("camera-ok", true, "Whether the camera is healthy")
	heartbeatCmd.Flags().Bool("mqtt", false, "Publish over MQTT instead of HTTP")
	heartbeatCmd.Flags().String("topic-prefix", "attendsense", "MQTT topic prefix")
	_ = heartbeatCmd.MarkFlagRequired("device")
}

func runSighting(cmd *cobra.Command, args []string) error {
	at := time.Now().UTC()
	if s := mustGetString(cmd, "at"); s != "" {
		t, err := dto.ParseTimestamp(s)
		if err != nil {
			return err
		}
		at = t
	}

	req := dto.SightingRequest{
		PersonID:   mustGetString(cmd, "person"),
		Name:       mustGetString(cmd, "name"),
		Timestamp:  dto.FormatTime(at),
		Confidence: mustGetFloat64(cmd, "confidence"),
		CameraID:   mustGetString(cmd, "camera"),
	}

	if mustGetBool(cmd, "mqtt") {
		topic := mqtt.SightingTopic(mustGetString(cmd, "topic-prefix"), req.CameraID)
		if err := publishMQTT(topic, req); err != nil {
			return err
		}
		fmt.Printf("Published sighting of %s to %s\n", req.PersonID, topic)
		return nil
	}

	resp, err := apiClient().PostSighting(cmd.Context(), req)
	if err != nil {
		return err
	}
	if resp.Accepted {
		fmt.Printf("Accepted: %s at %s\n", req.PersonID, req.Timestamp)
	} else {
		fmt.Printf("Duplicate: %s was seen less than a window ago\n", req.PersonID)
	}
	return nil
}

func runHeartbeat(cmd *cobra.Command, args []string) error {
	fps := mustGetFloat64(cmd, "fps")
	ok := dto.Flag(mustGetBool(cmd, "camera-ok"))
	req := dto.HeartbeatRequest{
		DeviceID: mustGetString(cmd, "device"),
		FPS:      &fps,
		CameraOK: &ok,
	}

	if mustGetBool(cmd, "mqtt") {
		topic := mqtt.HeartbeatTopic(mustGetString(cmd, "topic-prefix"), req.DeviceID)
		if err := publishMQTT(topic, req); err != nil {
			return err
		}
		fmt.Printf("Published heartbeat to %s\n", topic)
		return nil
	}

	if err := apiClient().PostHeartbeat(cmd.Context(), req); err != nil {
		return err
	}
	fmt.Printf("Heartbeat recorded for %s\n", req.DeviceID)
	return nil
}

func publishMQTT(topic string, body interface{}) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	mqttCfg := cfg.MQTT
	mqttCfg.ClientID = "attendctl-" + uuid.NewString()[:8]
	c, err := mqtt.NewClient(mqttCfg, mqtt.Handlers{})
	if err != nil {
		return err
	}
	defer c.Close()

	return c.Publish(topic, payload)
}
