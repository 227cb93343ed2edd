package domain

import "time"

// Outcome tags an admission or invocation result in the log trail.
type Outcome string

const (
	OutcomeProcessed  Outcome = "processed"
	OutcomeDropped    Outcome = "dropped"
	OutcomeRejected   Outcome = "rejected"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomePropagated Outcome = "propagated"
)

// LogEntry is one observability record.
type LogEntry struct {
	ID         int64     `json:"id"`
	Function   string    `json:"function"`
	Outcome    Outcome   `json:"outcome"`
	EventID    string    `json:"event_id"`
	AgeMs      int64     `json:"age_ms"`
	RecordedAt time.Time `json:"recorded_at"`
}
