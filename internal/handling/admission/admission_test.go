package admission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/redeliver/internal/core/domain"
)

type recordingObserver struct {
	mu      sync.Mutex
	records []Record
}

func (o *recordingObserver) Record(ctx context.Context, rec Record) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, rec)
}

func (o *recordingObserver) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.records)
}

var now = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func eventAt(t time.Time) *domain.Event {
	return &domain.Event{
		ID:        "delivery-1",
		Timestamp: domain.FormatTimestamp(t),
		Context:   domain.EventContext{EventID: "evt-1"},
	}
}

func TestEvaluate_Scenarios(t *testing.T) {
	tests := []struct {
		name   string
		offset time.Duration
		want   Decision
	}{
		{"stale 15s", -15 * time.Second, Drop},
		{"fresh 2s", -2 * time.Second, Process},
		{"exactly max age", -10 * time.Second, Process},
		{"just over max age", -10*time.Second - time.Millisecond, Drop},
		{"same instant", 0, Process},
		{"future (clock skew)", 5 * time.Second, Process},
		{"far future", 24 * time.Hour, Process},
	}

	for _, tt := range tests {
		res, err := Evaluate(eventAt(now.Add(tt.offset)), now, 10*time.Second)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
			continue
		}
		if res.Decision != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, res.Decision, tt.want)
		}
	}
}

func TestEvaluate_AgeMs(t *testing.T) {
	res, err := Evaluate(eventAt(now.Add(-15*time.Second)), now, 10*time.Second)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res.AgeMs() != 15000 {
		t.Errorf("expected age 15000ms, got %d", res.AgeMs())
	}

	res, _ = Evaluate(eventAt(now.Add(3*time.Second)), now, 10*time.Second)
	if res.AgeMs() != -3000 {
		t.Errorf("expected age -3000ms, got %d", res.AgeMs())
	}
}

func TestEvaluate_DefaultMaxAge(t *testing.T) {
	res, err := Evaluate(eventAt(now.Add(-9*time.Second)), now, 0)
	if err != nil || res.Decision != Process {
		t.Errorf("9s old event should be processed with default max age, got %v %v", res.Decision, err)
	}
	res, err = Evaluate(eventAt(now.Add(-11*time.Second)), now, -1)
	if err != nil || res.Decision != Drop {
		t.Errorf("11s old event should be dropped with default max age, got %v %v", res.Decision, err)
	}
}

func TestEvaluate_Malformed(t *testing.T) {
	_, err := Evaluate(&domain.Event{Timestamp: "not a time"}, now, time.Second)
	if !errors.Is(err, domain.ErrMalformedTimestamp) {
		t.Errorf("expected ErrMalformedTimestamp, got %v", err)
	}
}

func TestEvaluate_Property(t *testing.T) {
	maxAge := 10 * time.Second
	for ms := -20000; ms <= 20000; ms += 250 {
		age := time.Duration(ms) * time.Millisecond
		res, err := Evaluate(eventAt(now.Add(-age)), now, maxAge)
		if err != nil {
			t.Fatalf("age %v: %v", age, err)
		}

		want := Process
		if age > maxAge {
			want = Drop
		}
		if res.Decision != want {
			t.Errorf("age %v: got %v, want %v", age, res.Decision, want)
		}
	}
}

func TestFilter_EmitsOneRecordPerCall(t *testing.T) {
	obs := &recordingObserver{}
	f := NewFilter("avoid_infinite_retries", 10*time.Second, obs, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	if res, err := f.Admit(ctx, eventAt(now.Add(-2*time.Second))); err != nil || res.Decision != Process {
		t.Fatalf("expected Process, got %v %v", res.Decision, err)
	}
	if res, err := f.Admit(ctx, eventAt(now.Add(-15*time.Second))); err != nil || res.Decision != Drop {
		t.Fatalf("expected Drop, got %v %v", res.Decision, err)
	}
	if _, err := f.Admit(ctx, &domain.Event{ID: "bad", Timestamp: "??"}); err == nil {
		t.Fatal("expected malformed timestamp error")
	}

	if obs.count() != 3 {
		t.Fatalf("expected 3 records, got %d", obs.count())
	}

	want := []domain.Outcome{domain.OutcomeProcessed, domain.OutcomeDropped, domain.OutcomeRejected}
	for i, rec := range obs.records {
		if rec.Outcome != want[i] {
			t.Errorf("record %d: outcome %s, want %s", i, rec.Outcome, want[i])
		}
		if rec.Function != "avoid_infinite_retries" {
			t.Errorf("record %d: unexpected function %s", i, rec.Function)
		}
	}
	if obs.records[0].EventID != "evt-1" || obs.records[2].EventID != "bad" {
		t.Errorf("records should carry correlation ids: %+v", obs.records)
	}
	if obs.records[1].Age != 15*time.Second {
		t.Errorf("expected dropped age 15s, got %v", obs.records[1].Age)
	}
}

func TestFilter_Idempotent(t *testing.T) {
	obs := &recordingObserver{}
	f := NewFilter("fn", 10*time.Second, obs, WithClock(func() time.Time { return now }))
	ev := eventAt(now.Add(-12 * time.Second))

	first, err1 := f.Admit(context.Background(), ev)
	second, err2 := f.Admit(context.Background(), ev)

	if first != second || err1 != nil || err2 != nil {
		t.Errorf("identical inputs gave different results: %+v/%v vs %+v/%v", first, err1, second, err2)
	}
	if obs.count() != 2 {
		t.Errorf("expected one record per call, got %d", obs.count())
	}
}

func TestFilter_DoesNotMutateEvent(t *testing.T) {
	ev := eventAt(now.Add(-time.Second))
	ev.Data = map[string]any{"retry": true}
	before := *ev

	f := NewFilter("fn", 0, nil, WithClock(func() time.Time { return now }))
	if _, err := f.Admit(context.Background(), ev); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}

	if ev.Timestamp != before.Timestamp || ev.ID != before.ID || ev.Data["retry"] != true {
		t.Error("Admit must not mutate the event")
	}
	if f.MaxAge() != DefaultMaxAge {
		t.Errorf("expected default max age, got %v", f.MaxAge())
	}
}

func TestFilter_ConcurrentRedelivery(t *testing.T) {
	obs := &recordingObserver{}
	f := NewFilter("fn", 10*time.Second, obs, WithClock(func() time.Time { return now }))
	ev := eventAt(now.Add(-3 * time.Second))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.Admit(context.Background(), ev)
			if err != nil || res.Decision != Process {
				t.Errorf("unexpected result %v %v", res.Decision, err)
			}
		}()
	}
	wg.Wait()

	if obs.count() != 20 {
		t.Errorf("expected 20 records, got %d", obs.count())
	}
}
