// Package invoker runs one event function under the at-least-once caller contract:
// admission first, retry flag captured before the handler, failures classified.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/vietddude/redeliver/internal/core/domain"
	"github.com/vietddude/redeliver/internal/handling/admission"
	"github.com/vietddude/redeliver/internal/handling/metrics"
	"github.com/vietddude/redeliver/internal/handling/retry"
)

// Handler is the body of an event function.
type Handler func(ctx context.Context, event *domain.Event) error

// RedeliveryError is the only failure an Invoker lets escape to the delivery system.
type RedeliveryError struct {
	Function string
	EventID  string
	Err      error
}

func (e *RedeliveryError) Error() string {
	return fmt.Sprintf("function %s failed for event %s, requesting redelivery: %v", e.Function, e.EventID, e.Err)
}

func (e *RedeliveryError) Unwrap() error {
	return e.Err
}

// IsRedelivery reports whether err asks the delivery system to redeliver.
func IsRedelivery(err error) bool {
	var re *RedeliveryError
	return errors.As(err, &re)
}

// Result describes what happened to one delivery.
type Result struct {
	Outcome domain.Outcome
	Age     time.Duration
	Failure *domain.Failure
	err     error
}

// Err returns a *RedeliveryError for propagated failures and nil otherwise.
// Dropped, rejected and suppressed events are all acknowledged as success.
func (r Result) Err() error {
	return r.err
}

// Acked reports whether the delivery should be acknowledged.
func (r Result) Acked() bool {
	return r.err == nil
}

// Invoker binds a handler to its admission filter and retry classifier.
type Invoker struct {
	name       string
	handler    Handler
	filter     *admission.Filter
	classifier *retry.Classifier
	log        *slog.Logger
}

// New creates an Invoker for the named function.
func New(
	name string,
	handler Handler,
	filter *admission.Filter,
	classifier *retry.Classifier,
	log *slog.Logger,
) *Invoker {
	if log == nil {
		log = slog.Default()
	}
	return &Invoker{
		name:       name,
		handler:    handler,
		filter:     filter,
		classifier: classifier,
		log:        log.With("function", name),
	}
}

// Name returns the function name.
func (i *Invoker) Name() string {
	return i.name
}

// Invoke handles one delivery of event.
func (i *Invoker) Invoke(ctx context.Context, event *domain.Event) Result {
	adm, err := i.filter.Admit(ctx, event)
	if err != nil {
		i.log.Warn("Rejected event with malformed timestamp",
			"event_id", event.CorrelationID(),
			"timestamp", event.Timestamp,
			"error", err,
		)
		return Result{Outcome: domain.OutcomeRejected}
	}
	if adm.Decision == admission.Drop {
		return Result{Outcome: domain.OutcomeDropped, Age: adm.Age}
	}

	// The handler may fail before it could read the payload, so read it now.
	retryRequested := event.RetryRequested()

	start := time.Now()
	stack, handlerErr := i.run(ctx, event)
	if handlerErr == nil {
		metrics.InvocationDuration.WithLabelValues(i.name, string(domain.OutcomeProcessed)).
			Observe(time.Since(start).Seconds())
		return Result{Outcome: domain.OutcomeProcessed, Age: adm.Age}
	}

	failure := domain.NewFailure(handlerErr, stack)
	failure.Function = i.name
	failure.EventID = event.CorrelationID()
	failure.Retry = retryRequested
	failure.Attempt = event.Context.Attempt

	res := Result{Age: adm.Age, Failure: failure}
	switch i.classifier.Classify(ctx, failure, retryRequested) {
	case retry.Propagate:
		res.Outcome = domain.OutcomePropagated
		res.err = &RedeliveryError{Function: i.name, EventID: failure.EventID, Err: handlerErr}
	default:
		res.Outcome = domain.OutcomeSuppressed
	}

	metrics.InvocationDuration.WithLabelValues(i.name, string(res.Outcome)).
		Observe(time.Since(start).Seconds())
	return res
}

// run executes the handler, turning a panic into an error with its stack.
func (i *Invoker) run(ctx context.Context, event *domain.Event) (stack []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack = debug.Stack()
			if e, ok := r.(error); ok {
				err = fmt.Errorf("handler panic: %w", e)
			} else {
				err = fmt.Errorf("handler panic: %v", r)
			}
		}
	}()
	return nil, i.handler(ctx, event)
}

// Registry maps function names to invokers.
type Registry struct {
	invokers map[string]*Invoker
}

// NewRegistry creates a registry from invokers.
func NewRegistry(invokers ...*Invoker) *Registry {
	r := &Registry{invokers: make(map[string]*Invoker, len(invokers))}
	for _, inv := range invokers {
		r.invokers[inv.Name()] = inv
	}
	return r
}

// Get returns the invoker for name.
func (r *Registry) Get(name string) (*Invoker, bool) {
	inv, ok := r.invokers[name]
	return inv, ok
}

// Names returns the registered function names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.invokers))
	for name := range r.invokers {
		names = append(names, name)
	}
	return names
}
