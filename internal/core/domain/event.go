package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// RetryKey is the payload attribute a producer sets to ask for redelivery on failure.
const RetryKey = "retry"

// Event is a single delivery from an at-least-once delivery system.
// It is passed around by pointer but never mutated after decoding.
type Event struct {
	ID        string         `json:"id"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
	Context   EventContext   `json:"context"`
}

// EventContext carries delivery metadata.
type EventContext struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type,omitempty"`
	Resource  string `json:"resource,omitempty"`
	Attempt   int    `json:"attempt,omitempty"` // 0 = unknown
}

// CorrelationID returns the id used in logs, falling back to the delivery id
// when the event was not re-wrapped.
func (e *Event) CorrelationID() string {
	if e.Context.EventID != "" {
		return e.Context.EventID
	}
	return e.ID
}

// RetryRequested reports whether the producer set the retry flag.
func (e *Event) RetryRequested() bool {
	if e.Data == nil {
		return false
	}
	return truthy(e.Data[RetryKey])
}

func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		return err == nil && b
	case float64:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	case json.Number:
		f, err := val.Float64()
		return err == nil && f != 0
	default:
		return false
	}
}

// timestampLayouts are tried in order by ParseTimestamp.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	time.RFC1123Z,
	time.RFC1123,
}

// ParseTimestamp parses an absolute event timestamp. Timestamps without a zone
// are read as UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, &MalformedTimestampError{Raw: raw}
	}

	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, &MalformedTimestampError{Raw: raw, Err: lastErr}
}

// FormatTimestamp renders t the way producers in this service stamp events.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
