package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"homework-bot/internal/config"
	"homework-bot/pkg/logger"

	"github.com/nats-io/nats.go"
)

const (
	StatusSubject = "homework.status.changed"
	ConsumerGroup = "homework-bot"
)

type NATS struct {
	conn      *nats.Conn
	jetstream nats.JetStreamContext
	cfg       config.NATSConfig
}

func New(cfg config.NATSConfig) (*NATS, error) {
	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to get JetStream: %w", err)
	}

	n := &NATS{
		conn:      conn,
		jetstream: js,
		cfg:       cfg,
	}

	if err := n.ensureStream(); err != nil {
		conn.Close()
		return nil, err
	}

	return n, nil
}

func (n *NATS) ensureStream() error {
	_, err := n.jetstream.StreamInfo(n.cfg.StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream %s: %w", n.cfg.StreamName, err)
	}

	_, err = n.jetstream.AddStream(&nats.StreamConfig{
		Name:     n.cfg.StreamName,
		Subjects: []string{StatusSubject},
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", n.cfg.StreamName, err)
	}

	logger.Info("Created JetStream stream", logger.String("stream", n.cfg.StreamName))
	return nil
}

func (n *NATS) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}

// StatusEvent is published after a status change notification has been
// delivered to the chat.
type StatusEvent struct {
	HomeworkName string    `json:"homework_name"`
	Status       string    `json:"status"`
	Message      string    `json:"message"`
	ChangedAt    time.Time `json:"changed_at"`
}

func (n *NATS) PublishStatusEvent(ctx context.Context, event *StatusEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal status event: %w", err)
	}

	_, err = n.jetstream.Publish(StatusSubject, data, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to publish status event: %w", err)
	}

	logger.Debug("Status event published to queue",
		logger.String("homework", event.HomeworkName),
		logger.String("status", event.Status),
	)

	return nil
}

func (n *NATS) ConsumeStatusEvents(ctx context.Context, handler func(*StatusEvent) error) error {
	sub, err := n.jetstream.PullSubscribe(
		StatusSubject,
		ConsumerGroup,
		nats.BindStream(n.cfg.StreamName),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to status events: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msgs, err := sub.Fetch(10, nats.MaxWait(500*time.Millisecond))
			if err != nil {
				if errors.Is(err, nats.ErrTimeout) {
					continue
				}
				return fmt.Errorf("failed to fetch messages: %w", err)
			}

			for _, msg := range msgs {
				var event StatusEvent
				if err := json.Unmarshal(msg.Data, &event); err != nil {
					logger.Error("Failed to unmarshal status event",
						logger.Err(err),
					)
					msg.Nak()
					continue
				}

				if err := handler(&event); err != nil {
					logger.Error("Failed to process status event",
						logger.Err(err),
					)
					msg.Nak()
					continue
				}

				msg.Ack()
			}
		}
	}
}
