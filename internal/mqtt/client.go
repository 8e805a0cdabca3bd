package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/your-org/attendsense/internal/config"
	"github.com/your-org/attendsense/internal/models"
)

// Handlers are invoked for each decoded message. A returned error is logged;
// MQTT has no negative ack, so the message is not redelivered.
type Handlers struct {
	OnSighting  func(ctx context.Context, in models.SightingInput) error
	OnHeartbeat func(ctx context.Context, in models.HeartbeatInput) error
}

type Client struct {
	client         paho.Client
	handlers       Handlers
	sightingTopic  string
	heartbeatTopic string
	timeout        time.Duration
}

func NewClient(cfg config.MQTTConfig, handlers Handlers) (*Client, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		slog.Warn("mqtt connection lost", "error", err)
	})

	c := &Client{
		handlers:       handlers,
		sightingTopic:  cfg.SightingTopic,
		heartbeatTopic: cfg.HeartbeatTopic,
		timeout:        10 * time.Second,
	}

	// Subscriptions are made in the connect handler so they survive reconnects.
	opts.SetOnConnectHandler(func(pc paho.Client) {
		slog.Info("connected to mqtt broker", "broker", cfg.Broker)
		if err := c.subscribeAll(pc); err != nil {
			slog.Error("mqtt subscribe", "error", err)
		}
	})

	c.client = paho.NewClient(opts)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker: %w", token.Error())
	}
	return c, nil
}

func (c *Client) subscribeAll(pc paho.Client) error {
	if c.sightingTopic != "" && c.handlers.OnSighting != nil {
		if token := pc.Subscribe(c.sightingTopic, 1, c.handleSighting); token.Wait() && token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", c.sightingTopic, token.Error())
		}
		slog.Info("subscribed to mqtt topic", "topic", c.sightingTopic)
	}
	if c.heartbeatTopic != "" && c.handlers.OnHeartbeat != nil {
		if token := pc.Subscribe(c.heartbeatTopic, 1, c.handleHeartbeat); token.Wait() && token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", c.heartbeatTopic, token.Error())
		}
		slog.Info("subscribed to mqtt topic", "topic", c.heartbeatTopic)
	}
	return nil
}

func (c *Client) handleSighting(_ paho.Client, msg paho.Message) {
	in, err := ParseSighting(msg.Topic(), msg.Payload())
	if err != nil {
		slog.Warn("drop sighting", "topic", msg.Topic(), "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.handlers.OnSighting(ctx, in); err != nil {
		slog.Error("handle sighting", "topic", msg.Topic(), "person_id", in.PersonID, "error", err)
	}
}

func (c *Client) handleHeartbeat(_ paho.Client, msg paho.Message) {
	in, err := ParseHeartbeat(msg.Topic(), msg.Payload())
	if err != nil {
		slog.Warn("drop heartbeat", "topic", msg.Topic(), "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.handlers.OnHeartbeat(ctx, in); err != nil {
		slog.Error("handle heartbeat", "topic", msg.Topic(), "device_id", in.DeviceID, "error", err)
	}
}

// Publish sends a raw payload, used by edge simulators and the CLI.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.client.Publish(topic, 1, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish %s: %w", topic, token.Error())
	}
	return nil
}

func (c *Client) Ping() error {
	if !c.client.IsConnectionOpen() {
		return fmt.Errorf("mqtt not connected")
	}
	return nil
}

func (c *Client) Close() {
	c.client.Disconnect(250)
	slog.Info("mqtt client disconnected")
}
