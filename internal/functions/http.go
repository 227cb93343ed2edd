package functions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vietddude/redeliver/internal/core/domain"
	"github.com/vietddude/redeliver/internal/core/lazy"
	"github.com/vietddude/redeliver/internal/infra/httpclient"
	"github.com/vietddude/redeliver/internal/infra/storage"
)

// TestMessage is the payload the publish function sends.
const TestMessage = "Test message"

// Publisher publishes an event to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *domain.Event) (string, error)
}

// HTTPDeps are the shared clients the HTTP functions use. They are created
// once per process and reused by every invocation.
type HTTPDeps struct {
	Pool       *httpclient.Client
	PoolingURL string
	Publisher  Publisher             // nil = publish answers 503
	Logs       storage.LogRepository // nil = log_entries answers 503
}

// HTTP serves the HTTP-triggered functions.
type HTTP struct {
	deps HTTPDeps
	log  *slog.Logger

	nonLazy int
	lazy    *lazy.Value[int]
}

// NewHTTP creates the HTTP functions. The non-lazy value is computed here,
// the lazy one on the first lazy_globals request.
func NewHTTP(deps HTTPDeps, log *slog.Logger) *HTTP {
	if deps.Pool == nil {
		deps.Pool = httpclient.New(0)
	}
	if deps.PoolingURL == "" {
		deps.PoolingURL = "http://example.com"
	}
	if log == nil {
		log = slog.Default()
	}
	return &HTTP{
		deps:    deps,
		log:     log,
		nonLazy: fileWideComputation(),
		lazy: lazy.New(func() (int, error) {
			return functionSpecificComputation(), nil
		}),
	}
}

// Routes maps function names to handlers.
func (h *HTTP) Routes() map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		LazyGlobals:       h.LazyGlobals,
		ConnectionPooling: h.ConnectionPooling,
		Publish:           h.Publish,
		LogEntries:        h.LogEntries,
	}
}

func fileWideComputation() int {
	return sumRange(10)
}

func functionSpecificComputation() int {
	return sumRange(10)
}

func sumRange(n int) int {
	total := 0
	for i := 0; i < n; i++ {
		total += i
	}
	return total
}

// LazyGlobals reports both values.
func (h *HTTP) LazyGlobals(w http.ResponseWriter, r *http.Request) {
	v, err := h.lazy.Get()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(w, "Lazy: %d, non-lazy: %d.", v, h.nonLazy)
}

// ConnectionPooling fetches the configured URL through the shared client.
func (h *HTTP) ConnectionPooling(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Pool.Get(r.Context(), h.deps.PoolingURL); err != nil {
		h.log.Error("Connection pooling request failed", "url", h.deps.PoolingURL, "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	fmt.Fprint(w, "Success!")
}

type publishRequest struct {
	Topic string `json:"topic"`
	Retry bool   `json:"retry"`
}

// Publish sends one test message to the topic named in the JSON body.
func (h *HTTP) Publish(w http.ResponseWriter, r *http.Request) {
	if h.deps.Publisher == nil {
		http.Error(w, "publishing is not configured", http.StatusServiceUnavailable)
		return
	}

	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Topic == "" {
		http.Error(w, "topic is required", http.StatusBadRequest)
		return
	}

	event := &domain.Event{Data: map[string]any{"message": TestMessage}}
	if req.Retry {
		event.Data[domain.RetryKey] = true
	}
	if _, err := h.deps.Publisher.Publish(r.Context(), req.Topic, event); err != nil {
		h.log.Error("Publish failed", "topic", req.Topic, "error", err)
		http.Error(w, "publish failed", http.StatusInternalServerError)
		return
	}
	fmt.Fprint(w, "1 message published")
}

// LogEntries prints the newest log entries, one per line.
func (h *HTTP) LogEntries(w http.ResponseWriter, r *http.Request) {
	if h.deps.Logs == nil {
		http.Error(w, "log store is not configured", http.StatusServiceUnavailable)
		return
	}

	entries, err := h.deps.Logs.Recent(r.Context(), storage.DefaultListLimit)
	if err != nil {
		h.log.Error("Failed to list log entries", "error", err)
		http.Error(w, "failed to list log entries", http.StatusInternalServerError)
		return
	}

	for _, e := range entries {
		fmt.Fprintf(w, "%s\n", FormatLogEntry(e))
	}
	fmt.Fprint(w, "Done!")
}

// FormatLogEntry renders "* <timestamp>: <payload>".
func FormatLogEntry(e *domain.LogEntry) string {
	return fmt.Sprintf("* %s: %s %s event=%s age_ms=%d",
		domain.FormatTimestamp(e.RecordedAt), e.Function, e.Outcome, e.EventID, e.AgeMs)
}
