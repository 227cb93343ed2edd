package stream

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vietddude/redeliver/internal/core/domain"
)

// Publisher appends events to streams.
type Publisher struct {
	client *redis.Client
	now    func() time.Time
	log    *slog.Logger
}

// NewPublisher creates a publisher on the shared connection.
func NewPublisher(client *redis.Client, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{
		client: client,
		now:    time.Now,
		log:    log.With("component", "stream.publisher"),
	}
}

// Publish appends event to topic and returns the stream entry id. A missing
// correlation id or timestamp is filled in; event itself is not modified.
func (p *Publisher) Publish(ctx context.Context, topic string, event *domain.Event) (string, error) {
	if topic == "" {
		return "", fmt.Errorf("topic is required")
	}

	out := *event
	if out.Context.EventID == "" {
		out.Context.EventID = uuid.NewString()
	}
	if out.Timestamp == "" {
		out.Timestamp = domain.FormatTimestamp(p.now())
	}

	values, err := encodeEvent(&out)
	if err != nil {
		return "", err
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	p.log.Info("Published event",
		"topic", topic,
		"message_id", id,
		"event_id", out.Context.EventID,
	)
	return id, nil
}
