package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/redeliver/internal/core/domain"
	"github.com/vietddude/redeliver/internal/handling/invoker"
	"github.com/vietddude/redeliver/internal/handling/metrics"
)

// Invoker runs one event function.
type Invoker interface {
	Name() string
	Invoke(ctx context.Context, event *domain.Event) invoker.Result
}

// Config describes one stream subscription.
type Config struct {
	Stream          string
	Group           string
	Consumer        string
	BatchSize       int64
	Block           time.Duration // must be > 0, a zero BLOCK waits forever
	MinIdle         time.Duration
	ReclaimInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.Block <= 0 {
		c.Block = 2 * time.Second
	}
	if c.MinIdle <= 0 {
		c.MinIdle = 5 * time.Second
	}
	if c.ReclaimInterval <= 0 {
		c.ReclaimInterval = 5 * time.Second
	}
}

// Consumer reads a stream through a consumer group and hands each message to
// an Invoker. Every result except a propagated failure is acknowledged; a
// propagated message stays pending until the reclaimer redelivers it.
type Consumer struct {
	client  *redis.Client
	cfg     Config
	invoker Invoker
	log     *slog.Logger
}

// NewConsumer creates a consumer. Call EnsureGroup before Run.
func NewConsumer(client *redis.Client, cfg Config, inv Invoker, log *slog.Logger) *Consumer {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{
		client:  client,
		cfg:     cfg,
		invoker: inv,
		log: log.With(
			"component", "stream.consumer",
			"stream", cfg.Stream,
			"group", cfg.Group,
			"function", inv.Name(),
		),
	}
}

// EnsureGroup creates the consumer group, reading from the start of the
// stream so entries written before the first run are not skipped.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Run reads and reclaims until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("Stream consumer started",
		"batch_size", c.cfg.BatchSize,
		"min_idle", c.cfg.MinIdle,
		"reclaim_interval", c.cfg.ReclaimInterval,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for ctx.Err() == nil {
			if _, err := c.ReadOnce(ctx); err != nil {
				if ctx.Err() != nil {
					break
				}
				c.log.Error("Stream read failed", "error", err)
				sleep(ctx, time.Second)
			}
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(c.cfg.ReclaimInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if _, err := c.ReclaimOnce(ctx); err != nil && ctx.Err() == nil {
					c.log.Error("Reclaim cycle failed", "error", err)
				}
			}
		}
	})

	err := g.Wait()
	c.log.Info("Stream consumer stopped")
	return err
}

// ReadOnce reads one batch of new messages and handles them. It returns the
// number of messages handled.
func (c *Consumer) ReadOnce(ctx context.Context) (int, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.BatchSize,
		Block:    c.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read from stream: %w", err)
	}

	handled := 0
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			c.handle(ctx, msg, 1)
			handled++
		}
	}
	return handled, nil
}

// ReclaimOnce claims messages left pending longer than MinIdle, by a crashed
// consumer or by a propagated failure, and handles them again.
func (c *Consumer) ReclaimOnce(ctx context.Context) (int, error) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.cfg.Stream,
		Group:  c.cfg.Group,
		Idle:   c.cfg.MinIdle,
		Start:  "-",
		End:    "+",
		Count:  c.cfg.BatchSize,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("xpending failed: %w", err)
	}

	handled := 0
	for _, p := range pending {
		msgs, err := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   c.cfg.Stream,
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			MinIdle:  c.cfg.MinIdle,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			c.log.Error("Failed to claim message", "message_id", p.ID, "error", err)
			continue
		}
		if len(msgs) == 0 {
			// Claimed by another consumer first.
			continue
		}

		metrics.StreamMessages.WithLabelValues(c.cfg.Stream, "reclaimed").Inc()
		// XCLAIM counts as one more delivery.
		c.handle(ctx, msgs[0], p.RetryCount+1)
		handled++
	}
	return handled, nil
}

func (c *Consumer) handle(ctx context.Context, msg redis.XMessage, deliveries int64) {
	event, err := DecodeMessage(msg, deliveries)
	if err != nil {
		c.log.Error("Dropping undecodable message", "message_id", msg.ID, "error", err)
		metrics.StreamMessages.WithLabelValues(c.cfg.Stream, "undecodable").Inc()
		c.ack(ctx, msg.ID)
		return
	}

	res := c.invoker.Invoke(ctx, event)
	metrics.StreamMessages.WithLabelValues(c.cfg.Stream, string(res.Outcome)).Inc()

	if !res.Acked() {
		c.log.Warn("Leaving message pending for redelivery",
			"message_id", msg.ID,
			"event_id", event.CorrelationID(),
			"attempt", event.Context.Attempt,
			"error", res.Err(),
		)
		return
	}
	c.ack(ctx, msg.ID)
}

func (c *Consumer) ack(ctx context.Context, id string) {
	// Acks must land even while shutting down.
	ctx = context.WithoutCancel(ctx)
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, id).Err(); err != nil {
		c.log.Error("Failed to ack message", "message_id", id, "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
