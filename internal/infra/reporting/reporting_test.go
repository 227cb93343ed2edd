package reporting

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vietddude/redeliver/internal/core/domain"
	"github.com/vietddude/redeliver/internal/handling/retry"
	"github.com/vietddude/redeliver/internal/infra/storage/memory"
)

type countingReporter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *countingReporter) Report(ctx context.Context, f *domain.Failure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.err
}

func (r *countingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func failure() *domain.Failure {
	return &domain.Failure{Function: "retry_or_not", EventID: "evt-1", Message: "I failed you", Retry: true}
}

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewLogReporter(slog.New(slog.NewTextHandler(&buf, nil)))

	if err := r.Report(context.Background(), failure()); err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "evt-1") || !strings.Contains(out, "I failed you") {
		t.Errorf("log record missing failure details: %s", out)
	}
}

func TestStoreReporter(t *testing.T) {
	repo := memory.NewFailureRepo(memory.NewMemoryStorage(10))
	r := NewStoreReporter(repo)
	fixed := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	if err := r.Report(context.Background(), failure()); err != nil {
		t.Fatalf("Report failed: %v", err)
	}

	reports, _ := repo.Recent(context.Background(), 10)
	if len(reports) != 1 {
		t.Fatalf("expected 1 stored report, got %d", len(reports))
	}
	if reports[0].ID == "" {
		t.Error("report should get an id")
	}
	if !reports[0].ReportedAt.Equal(fixed) || reports[0].Failure.EventID != "evt-1" {
		t.Errorf("unexpected report %+v", reports[0])
	}
}

func TestBreakerReporter_OpensAfterConsecutiveFailures(t *testing.T) {
	next := &countingReporter{err: errors.New("store down")}
	r := NewBreakerReporter(next, BreakerConfig{ConsecutiveFailures: 2, OpenTimeout: time.Minute}, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := r.Report(ctx, failure()); err == nil {
			t.Fatal("expected sink error")
		}
	}
	if r.State() != gobreaker.StateOpen.String() {
		t.Fatalf("expected open breaker, got %s", r.State())
	}

	err := r.Report(ctx, failure())
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState, got %v", err)
	}
	if next.count() != 2 {
		t.Errorf("open breaker must not call the sink, calls=%d", next.count())
	}
}

func TestBreakerReporter_PassesThroughSuccess(t *testing.T) {
	next := &countingReporter{}
	r := NewBreakerReporter(next, BreakerConfig{}, nil)

	if err := r.Report(context.Background(), failure()); err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if next.count() != 1 {
		t.Errorf("expected 1 call, got %d", next.count())
	}
}

func TestMulti_ContinuesPastFailingSinks(t *testing.T) {
	a := &countingReporter{err: errors.New("a down")}
	panicking := retry.ReporterFunc(func(ctx context.Context, f *domain.Failure) error {
		panic("sink bug")
	})
	c := &countingReporter{}

	err := Multi{a, panicking, c}.Report(context.Background(), failure())
	if err == nil {
		t.Fatal("expected joined error")
	}
	if !strings.Contains(err.Error(), "a down") || !strings.Contains(err.Error(), "sink bug") {
		t.Errorf("joined error should carry both failures: %v", err)
	}
	if a.count() != 1 || c.count() != 1 {
		t.Errorf("every sink should be called once, a=%d c=%d", a.count(), c.count())
	}
}

func TestMulti_Empty(t *testing.T) {
	if err := (Multi{}).Report(context.Background(), failure()); err != nil {
		t.Errorf("empty fan-out should succeed, got %v", err)
	}
}
