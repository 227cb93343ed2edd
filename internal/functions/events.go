// Package functions holds the functions this service hosts.
package functions

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vietddude/redeliver/internal/core/domain"
	"github.com/vietddude/redeliver/internal/handling/invoker"
)

// Function names.
const (
	AvoidInfiniteRetries = "avoid_infinite_retries"
	RetryOrNot           = "retry_or_not"
	LazyGlobals          = "lazy_globals"
	ConnectionPooling    = "connection_pooling"
	Publish              = "publish"
	LogEntries           = "log_entries"
)

// ErrFailedYou is the failure retry_or_not always produces.
var ErrFailedYou = errors.New("I failed you")

// EventHandlers returns the event functions by name.
func EventHandlers(log *slog.Logger) map[string]invoker.Handler {
	if log == nil {
		log = slog.Default()
	}
	return map[string]invoker.Handler{
		AvoidInfiniteRetries: avoidInfiniteRetries(log.With("function", AvoidInfiniteRetries)),
		RetryOrNot:           retryOrNot,
	}
}

// avoidInfiniteRetries does its work only for events the admission filter let
// through, so a poisoned event stops being redelivered once it is stale.
func avoidInfiniteRetries(log *slog.Logger) invoker.Handler {
	return func(ctx context.Context, event *domain.Event) error {
		attrs := []any{"event_id", event.CorrelationID()}
		if ts, err := domain.ParseTimestamp(event.Timestamp); err == nil {
			attrs = append(attrs, "age_ms", time.Since(ts).Milliseconds())
		}
		log.InfoContext(ctx, "Processed event", attrs...)
		return nil
	}
}

// retryOrNot always fails. Whether the event comes back is up to the retry
// flag on its payload.
func retryOrNot(ctx context.Context, event *domain.Event) error {
	return ErrFailedYou
}
