package invoker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/redeliver/internal/core/domain"
	"github.com/vietddude/redeliver/internal/handling/admission"
	"github.com/vietddude/redeliver/internal/handling/retry"
)

type mockReporter struct {
	mu       sync.Mutex
	failures []*domain.Failure
}

func (r *mockReporter) Report(ctx context.Context, f *domain.Failure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, f)
	return nil
}

var now = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func newInvoker(h Handler, rep retry.Reporter) *Invoker {
	filter := admission.NewFilter("fn", 10*time.Second, nil, admission.WithClock(func() time.Time { return now }))
	return New("fn", h, filter, retry.NewClassifier(rep, time.Second, nil), nil)
}

func event(age time.Duration, retry bool) *domain.Event {
	return &domain.Event{
		ID:        "delivery-1",
		Timestamp: domain.FormatTimestamp(now.Add(-age)),
		Data:      map[string]any{"retry": retry},
		Context:   domain.EventContext{EventID: "evt-1", Attempt: 3},
	}
}

func TestInvoke_Processed(t *testing.T) {
	called := false
	inv := newInvoker(func(ctx context.Context, e *domain.Event) error {
		called = true
		return nil
	}, &mockReporter{})

	res := inv.Invoke(context.Background(), event(2*time.Second, false))
	if !called {
		t.Error("handler should run for a fresh event")
	}
	if res.Outcome != domain.OutcomeProcessed || res.Err() != nil || !res.Acked() {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Age != 2*time.Second {
		t.Errorf("expected age 2s, got %v", res.Age)
	}
}

func TestInvoke_StaleEventSkipsHandler(t *testing.T) {
	rep := &mockReporter{}
	inv := newInvoker(func(ctx context.Context, e *domain.Event) error {
		t.Error("handler must not run for a stale event")
		return errors.New("unreachable")
	}, rep)

	res := inv.Invoke(context.Background(), event(15*time.Second, true))
	if res.Outcome != domain.OutcomeDropped || res.Err() != nil {
		t.Errorf("expected acked drop, got %+v", res)
	}
	if len(rep.failures) != 0 {
		t.Error("dropped events are not failures")
	}
}

func TestInvoke_MalformedTimestampRejected(t *testing.T) {
	inv := newInvoker(func(ctx context.Context, e *domain.Event) error {
		t.Error("handler must not run for a malformed event")
		return nil
	}, &mockReporter{})

	res := inv.Invoke(context.Background(), &domain.Event{ID: "x", Timestamp: "garbage", Data: map[string]any{"retry": true}})
	if res.Outcome != domain.OutcomeRejected || res.Err() != nil {
		t.Errorf("malformed timestamps are dropped without retry, got %+v", res)
	}
}

func TestInvoke_FailureWithRetry(t *testing.T) {
	rep := &mockReporter{}
	inv := newInvoker(func(ctx context.Context, e *domain.Event) error {
		return errors.New("I failed you")
	}, rep)

	res := inv.Invoke(context.Background(), event(time.Second, true))
	if res.Outcome != domain.OutcomePropagated {
		t.Fatalf("expected propagated, got %s", res.Outcome)
	}
	if !IsRedelivery(res.Err()) || res.Acked() {
		t.Errorf("expected redelivery error, got %v", res.Err())
	}
	if !strings.Contains(res.Err().Error(), "I failed you") {
		t.Errorf("redelivery error should wrap the handler error: %v", res.Err())
	}

	if len(rep.failures) != 1 {
		t.Fatalf("expected one report, got %d", len(rep.failures))
	}
	f := rep.failures[0]
	if f.Function != "fn" || f.EventID != "evt-1" || !f.Retry || f.Attempt != 3 {
		t.Errorf("failure missing event metadata: %+v", f)
	}
}

func TestInvoke_FailureWithoutRetry(t *testing.T) {
	rep := &mockReporter{}
	inv := newInvoker(func(ctx context.Context, e *domain.Event) error {
		return errors.New("I failed you")
	}, rep)

	res := inv.Invoke(context.Background(), event(time.Second, false))
	if res.Outcome != domain.OutcomeSuppressed || res.Err() != nil {
		t.Errorf("expected suppressed, got %+v", res)
	}
	if res.Failure == nil || res.Failure.Message != "I failed you" {
		t.Errorf("result should carry the failure: %+v", res.Failure)
	}
	if len(rep.failures) != 1 {
		t.Errorf("expected one report, got %d", len(rep.failures))
	}
}

func TestInvoke_RetryFlagCapturedBeforeHandler(t *testing.T) {
	inv := newInvoker(func(ctx context.Context, e *domain.Event) error {
		// A misbehaving handler clearing the flag must not change the decision.
		e.Data["retry"] = false
		return errors.New("failed after clearing flag")
	}, &mockReporter{})

	res := inv.Invoke(context.Background(), event(time.Second, true))
	if res.Outcome != domain.OutcomePropagated {
		t.Errorf("expected propagated, got %s", res.Outcome)
	}
}

func TestInvoke_PanicIsAFailure(t *testing.T) {
	rep := &mockReporter{}
	inv := newInvoker(func(ctx context.Context, e *domain.Event) error {
		panic("nil map write")
	}, rep)

	res := inv.Invoke(context.Background(), event(time.Second, false))
	if res.Outcome != domain.OutcomeSuppressed {
		t.Fatalf("expected suppressed, got %s", res.Outcome)
	}
	if len(rep.failures) != 1 {
		t.Fatalf("expected one report, got %d", len(rep.failures))
	}
	if !strings.Contains(rep.failures[0].Message, "nil map write") || rep.failures[0].Stack == "" {
		t.Errorf("panic failure should carry message and stack: %+v", rep.failures[0])
	}
}

func TestRegistry(t *testing.T) {
	a := newInvoker(func(context.Context, *domain.Event) error { return nil }, nil)
	reg := NewRegistry(a)

	if got, ok := reg.Get("fn"); !ok || got != a {
		t.Error("expected to find fn")
	}
	if _, ok := reg.Get("missing"); ok {
		t.Error("unexpected function")
	}
	if names := reg.Names(); len(names) != 1 || names[0] != "fn" {
		t.Errorf("unexpected names %v", names)
	}
}
