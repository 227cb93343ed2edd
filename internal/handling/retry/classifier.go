// Package retry decides, after a handler failure, whether the delivery system
// should redeliver the event.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/redeliver/internal/core/domain"
	"github.com/vietddude/redeliver/internal/handling/metrics"
)

// DefaultReportTimeout bounds a failure sink call when none is configured.
const DefaultReportTimeout = 2 * time.Second

// Action is the terminal decision for a failed event.
type Action int

const (
	// Suppress swallows the failure and acknowledges the event.
	Suppress Action = iota
	// Propagate re-signals the failure so the event is redelivered.
	Propagate
)

func (a Action) String() string {
	switch a {
	case Suppress:
		return "suppress"
	case Propagate:
		return "propagate"
	default:
		return "unknown"
	}
}

// Reporter is the failure sink. Report is best-effort.
type Reporter interface {
	Report(ctx context.Context, failure *domain.Failure) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, failure *domain.Failure) error

func (f ReporterFunc) Report(ctx context.Context, failure *domain.Failure) error {
	return f(ctx, failure)
}

// Verdict is the full result of a classification.
type Verdict struct {
	Action    Action
	State     State
	ReportErr error
}

// Classifier reports a failure exactly once and then decides from the retry flag.
// It holds no per-event state and is safe for concurrent use.
type Classifier struct {
	reporter Reporter
	timeout  time.Duration
	log      *slog.Logger
}

// NewClassifier creates a classifier. A nil reporter disables reporting.
func NewClassifier(reporter Reporter, timeout time.Duration, log *slog.Logger) *Classifier {
	if timeout <= 0 {
		timeout = DefaultReportTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Classifier{
		reporter: reporter,
		timeout:  timeout,
		log:      log,
	}
}

// Classify returns the action for a failed event.
func (c *Classifier) Classify(ctx context.Context, failure *domain.Failure, retryRequested bool) Action {
	return c.Decide(ctx, failure, retryRequested).Action
}

// Decide walks Running -> Failed -> Reported -> Decided for one failure.
// retryRequested must be read from the event before the handler ran.
func (c *Classifier) Decide(ctx context.Context, failure *domain.Failure, retryRequested bool) Verdict {
	if failure == nil {
		failure = domain.NewFailure(nil, nil)
	}
	m := &machine{state: Running}
	mustAdvance(m.advance(Failed))

	reportErr := c.report(ctx, failure)
	if reportErr != nil {
		metrics.SinkReportFailures.WithLabelValues("classifier").Inc()
		c.log.Warn("Failure sink report failed",
			"function", failure.Function,
			"event_id", failure.EventID,
			"error", reportErr,
		)
	}
	mustAdvance(m.advance(Reported))
	mustAdvance(m.decide(retryRequested))

	metrics.ClassifierActions.WithLabelValues(failure.Function, m.action.String()).Inc()
	c.log.Info("Handler failure classified",
		"function", failure.Function,
		"event_id", failure.EventID,
		"action", m.action.String(),
		"retry", retryRequested,
		"error", failure.Message,
	)

	return Verdict{Action: m.action, State: m.state, ReportErr: reportErr}
}

// report calls the sink once, bounded by the timeout and detached from the
// caller's cancellation. Errors and panics are returned, never raised.
func (c *Classifier) report(ctx context.Context, failure *domain.Failure) error {
	if c.reporter == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%w: panic: %v", domain.ErrSinkReport, r)
			}
		}()
		done <- c.reporter.Report(ctx, failure)
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, domain.ErrSinkReport) {
			return fmt.Errorf("%w: %w", domain.ErrSinkReport, err)
		}
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", domain.ErrSinkReport, ctx.Err())
	}
}

func mustAdvance(err error) {
	if err != nil {
		panic(err)
	}
}
