package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/attendsense/internal/models"
)

const (
	SightingsStreamName  = "SIGHTINGS"
	SightingsSubjectBase = "sightings"
	PresenceStreamName   = "PRESENCE"
	PresenceSubjectBase  = "presence"
)

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Producer{nc: nc, js: js}, nil
}

// EnsureStreams creates JetStream streams if they don't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	streams := []jetstream.StreamConfig{
		{
			Name:        SightingsStreamName,
			Subjects:    []string{SightingsSubjectBase + ".>"},
			Retention:   jetstream.WorkQueuePolicy,
			MaxAge:      time.Hour,
			MaxMsgs:     1000000,
			Storage:     jetstream.FileStorage,
			Discard:     jetstream.DiscardOld,
			Duplicates:  2 * time.Minute,
			Description: "Sightings reported by edge cameras, awaiting dedup",
		},
		{
			Name:        PresenceStreamName,
			Subjects:    []string{PresenceSubjectBase + ".>"},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      24 * time.Hour,
			MaxMsgs:     1000000,
			Storage:     jetstream.FileStorage,
			Description: "Committed presence changes",
		},
	}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		allOK := true
		for _, cfg := range streams {
			opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
			cancel()
			if err != nil {
				allOK = false
				if attempt == maxAttempts {
					return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
				}
				slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)
				break
			}
			slog.Info("ensured NATS stream", "name", cfg.Name)
		}
		if allOK {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// PublishSighting queues a sighting for the worker pool. The message id is
// derived from the sighting itself so a camera retry within the stream's
// duplicate window is dropped by JetStream.
func (p *Producer) PublishSighting(ctx context.Context, in models.SightingInput) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal sighting: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", SightingsSubjectBase, SubjectToken(in.CameraID))
	_, err = p.js.Publish(ctx, subject, payload, jetstream.WithMsgID(SightingMsgID(in)))
	if err != nil {
		return fmt.Errorf("publish sighting: %w", err)
	}
	return nil
}

// PublishPresence implements attendance.Publisher.
func (p *Producer) PublishPresence(ctx context.Context, change models.PresenceChange) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal presence change: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", PresenceSubjectBase, SubjectToken(change.PersonID))
	if _, err := p.js.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("publish presence change: %w", err)
	}
	return nil
}

// QueueDepth returns the number of pending messages in the SIGHTINGS stream.
func (p *Producer) QueueDepth(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, SightingsStreamName)
	if err != nil {
		return 0, err
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.State.Msgs, nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}

// SubjectToken makes an id safe to use as a single NATS subject token.
func SubjectToken(id string) string {
	if id == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, id)
}

func SightingMsgID(in models.SightingInput) string {
	return fmt.Sprintf("%s|%s|%s", in.PersonID, in.CameraID, in.EventTimestamp.UTC().Format(time.RFC3339Nano))
}
