// Package reporting implements failure sinks for the retry classifier.
package reporting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/vietddude/redeliver/internal/core/domain"
	"github.com/vietddude/redeliver/internal/handling/metrics"
	"github.com/vietddude/redeliver/internal/handling/retry"
	"github.com/vietddude/redeliver/internal/infra/storage"
)

// LogReporter writes each failure as one structured error record.
type LogReporter struct {
	log *slog.Logger
}

func NewLogReporter(log *slog.Logger) *LogReporter {
	if log == nil {
		log = slog.Default()
	}
	return &LogReporter{log: log.With("component", "failure_sink")}
}

func (r *LogReporter) Report(ctx context.Context, f *domain.Failure) error {
	r.log.ErrorContext(ctx, "Handler failed",
		"function", f.Function,
		"event_id", f.EventID,
		"error", f.Message,
		"error_type", f.Type,
		"causes", f.Causes,
		"retry", f.Retry,
		"attempt", f.Attempt,
		"stack", f.Stack,
	)
	return nil
}

// StoreReporter persists failures to a FailureRepository.
type StoreReporter struct {
	repo storage.FailureRepository
	now  func() time.Time
}

func NewStoreReporter(repo storage.FailureRepository) *StoreReporter {
	return &StoreReporter{repo: repo, now: time.Now}
}

func (r *StoreReporter) Report(ctx context.Context, f *domain.Failure) error {
	report := &domain.FailureReport{
		ID:         uuid.NewString(),
		Failure:    *f,
		ReportedAt: r.now().UTC(),
	}
	if err := r.repo.Add(ctx, report); err != nil {
		return fmt.Errorf("failed to store failure report: %w", err)
	}
	return nil
}

// BreakerConfig configures a BreakerReporter.
type BreakerConfig struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// BreakerReporter stops calling a sink that keeps failing, so a dead store
// costs each failed event nothing instead of a full report timeout.
type BreakerReporter struct {
	next    retry.Reporter
	breaker *gobreaker.CircuitBreaker
}

func NewBreakerReporter(next retry.Reporter, cfg BreakerConfig, log *slog.Logger) *BreakerReporter {
	if cfg.Name == "" {
		cfg.Name = "failure_store"
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("Failure sink breaker changed state",
				"sink", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &BreakerReporter{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (r *BreakerReporter) Report(ctx context.Context, f *domain.Failure) error {
	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.next.Report(ctx, f)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.SinkReportFailures.WithLabelValues(r.breaker.Name()).Inc()
		return fmt.Errorf("sink %s unavailable: %w", r.breaker.Name(), err)
	}
	return err
}

// State returns the breaker state name.
func (r *BreakerReporter) State() string {
	return r.breaker.State().String()
}

// Multi fans a failure out to every sink. One sink failing or panicking does
// not stop the others; their errors are joined.
type Multi []retry.Reporter

func (m Multi) Report(ctx context.Context, f *domain.Failure) error {
	var errs []error
	for _, r := range m {
		if err := reportSafely(ctx, r, f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func reportSafely(ctx context.Context, r retry.Reporter, f *domain.Failure) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("sink panic: %v", p)
		}
	}()
	return r.Report(ctx, f)
}
