// Package admission decides whether an inbound event is fresh enough to process.
package admission

import (
	"context"
	"time"

	"github.com/vietddude/redeliver/internal/core/domain"
)

// DefaultMaxAge is the drop threshold used when none is configured.
const DefaultMaxAge = 10 * time.Second

// Decision is the admission verdict.
type Decision int

const (
	Process Decision = iota
	Drop
)

func (d Decision) String() string {
	switch d {
	case Process:
		return "process"
	case Drop:
		return "drop"
	default:
		return "unknown"
	}
}

// Result is the outcome of evaluating one event.
type Result struct {
	Decision Decision
	Age      time.Duration
}

// AgeMs returns the age in whole milliseconds.
func (r Result) AgeMs() int64 {
	return r.Age.Milliseconds()
}

// Evaluate is the pure admission rule: events older than maxAge are dropped.
// Events stamped in the future (clock skew) are processed.
func Evaluate(event *domain.Event, now time.Time, maxAge time.Duration) (Result, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	ts, err := domain.ParseTimestamp(event.Timestamp)
	if err != nil {
		return Result{}, err
	}

	age := now.Sub(ts)
	if age > maxAge {
		return Result{Decision: Drop, Age: age}, nil
	}
	return Result{Decision: Process, Age: age}, nil
}

// Record is one observability record emitted per admission call.
type Record struct {
	Function string
	Outcome  domain.Outcome
	EventID  string
	Age      time.Duration
}

// Observer receives admission records. Implementations are best-effort and
// must not block the caller for long.
type Observer interface {
	Record(ctx context.Context, rec Record)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, rec Record)

func (f ObserverFunc) Record(ctx context.Context, rec Record) {
	f(ctx, rec)
}

// Filter applies Evaluate for one function with an injected clock.
type Filter struct {
	function string
	maxAge   time.Duration
	observer Observer
	now      func() time.Time
}

// Option configures a Filter.
type Option func(*Filter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *Filter) {
		f.now = now
	}
}

// NewFilter creates a filter for the named function.
func NewFilter(function string, maxAge time.Duration, observer Observer, opts ...Option) *Filter {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if observer == nil {
		observer = ObserverFunc(func(context.Context, Record) {})
	}
	f := &Filter{
		function: function,
		maxAge:   maxAge,
		observer: observer,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// MaxAge returns the configured threshold.
func (f *Filter) MaxAge() time.Duration {
	return f.maxAge
}

// Admit evaluates event against the current time and emits exactly one record.
// A malformed timestamp is returned as an error; callers drop such events.
func (f *Filter) Admit(ctx context.Context, event *domain.Event) (Result, error) {
	res, err := Evaluate(event, f.now(), f.maxAge)

	rec := Record{
		Function: f.function,
		EventID:  event.CorrelationID(),
		Age:      res.Age,
	}
	switch {
	case err != nil:
		rec.Outcome = domain.OutcomeRejected
	case res.Decision == Drop:
		rec.Outcome = domain.OutcomeDropped
	default:
		rec.Outcome = domain.OutcomeProcessed
	}
	f.observer.Record(ctx, rec)

	return res, err
}
