// Package observe turns admission records into logs, metrics and the
// persisted decision trail.
package observe

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/redeliver/internal/core/domain"
	"github.com/vietddude/redeliver/internal/handling/admission"
	"github.com/vietddude/redeliver/internal/handling/metrics"
	"github.com/vietddude/redeliver/internal/infra/storage"
)

// DefaultAppendTimeout bounds one write to the log repository.
const DefaultAppendTimeout = 250 * time.Millisecond

// Recorder implements admission.Observer.
type Recorder struct {
	log     *slog.Logger
	logs    storage.LogRepository // nil = logs and metrics only
	timeout time.Duration
	now     func() time.Time
}

// NewRecorder creates a recorder.
func NewRecorder(log *slog.Logger, logs storage.LogRepository, timeout time.Duration) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultAppendTimeout
	}
	return &Recorder{
		log:     log.With("component", "admission"),
		logs:    logs,
		timeout: timeout,
		now:     time.Now,
	}
}

// Record emits one log record and updates metrics. The repository write is
// best-effort: a failure is logged and otherwise ignored.
func (r *Recorder) Record(ctx context.Context, rec admission.Record) {
	ageMs := rec.Age.Milliseconds()

	switch rec.Outcome {
	case domain.OutcomeDropped:
		r.log.InfoContext(ctx, "Dropped stale event",
			"function", rec.Function, "event_id", rec.EventID, "age_ms", ageMs)
	case domain.OutcomeRejected:
		r.log.WarnContext(ctx, "Rejected event with malformed timestamp",
			"function", rec.Function, "event_id", rec.EventID)
	default:
		r.log.InfoContext(ctx, "Processing event",
			"function", rec.Function, "event_id", rec.EventID, "age_ms", ageMs)
	}

	metrics.AdmissionTotal.WithLabelValues(rec.Function, string(rec.Outcome)).Inc()
	if rec.Outcome != domain.OutcomeRejected {
		metrics.EventAge.WithLabelValues(rec.Function).Observe(rec.Age.Seconds())
	}

	if r.logs == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	err := r.logs.Append(ctx, &domain.LogEntry{
		Function:   rec.Function,
		Outcome:    rec.Outcome,
		EventID:    rec.EventID,
		AgeMs:      ageMs,
		RecordedAt: r.now().UTC(),
	})
	if err != nil {
		metrics.SinkReportFailures.WithLabelValues("log_repository").Inc()
		r.log.Warn("Failed to append log entry", "event_id", rec.EventID, "error", err)
	}
}
