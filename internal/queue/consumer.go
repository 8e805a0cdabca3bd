package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// MessageHandler processes one message. A nil return acks it, an error naks
// it for redelivery.
type MessageHandler func(ctx context.Context, msg jetstream.Msg) error

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
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

	return &Consumer{nc: nc, js: js}, nil
}

// ConsumeSightings starts a durable pull consumer on the SIGHTINGS work
// queue with workerCount handlers. Sightings of one person may be handled
// concurrently; the processor serializes them.
func (c *Consumer) ConsumeSightings(ctx context.Context, consumerName string, handler MessageHandler, workerCount int) error {
	return c.consume(ctx, SightingsStreamName, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		FilterSubject: SightingsSubjectBase + ".>",
	}, handler, workerCount)
}

// ConsumePresence delivers presence changes committed after the consumer
// was created, one at a time.
func (c *Consumer) ConsumePresence(ctx context.Context, consumerName string, handler MessageHandler) error {
	return c.consume(ctx, PresenceStreamName, jetstream.ConsumerConfig{
		Name:              consumerName,
		Durable:           consumerName,
		AckPolicy:         jetstream.AckExplicitPolicy,
		AckWait:           10 * time.Second,
		MaxDeliver:        3,
		FilterSubject:     PresenceSubjectBase + ".>",
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		InactiveThreshold: time.Hour,
	}, handler, 1)
}

func (c *Consumer) consume(ctx context.Context, streamName string, cfg jetstream.ConsumerConfig, handler MessageHandler, workers int) error {
	if workers < 1 {
		workers = 1
	}

	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", streamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", cfg.Name, err)
	}

	msgCh := make(chan jetstream.Msg, workers*2)
	go fetchLoop(ctx, cons, workers, msgCh)

	for i := 0; i < workers; i++ {
		go func(workerID int) {
			for msg := range msgCh {
				if err := handler(ctx, msg); err != nil {
					slog.Error("handle message", "stream", streamName, "worker", workerID, "subject", msg.Subject(), "error", err)
					_ = msg.Nak()
					continue
				}
				_ = msg.Ack()
			}
		}(i)
	}

	slog.Info("consumer started", "stream", streamName, "consumer", cfg.Name, "workers", workers)
	return nil
}

// fetchLoop pulls batches into out until ctx is done, then closes out.
func fetchLoop(ctx context.Context, cons jetstream.Consumer, batch int, out chan<- jetstream.Msg) {
	defer close(out)
	for ctx.Err() == nil {
		msgs, err := cons.Fetch(batch, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("fetch messages", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for msg := range msgs.Messages() {
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Consumer) Close() {
	c.nc.Close()
}
