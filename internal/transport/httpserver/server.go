// Package httpserver exposes push delivery, HTTP functions, health and
// metrics over HTTP.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/redeliver/internal/core/domain"
	"github.com/vietddude/redeliver/internal/handling/invoker"
	"github.com/vietddude/redeliver/internal/handling/metrics"
	"github.com/vietddude/redeliver/internal/health"
)

// maxEventBody caps a pushed event body.
const maxEventBody = 1 << 20

// Server provides the HTTP endpoints.
type Server struct {
	monitor   *health.Monitor
	registry  *invoker.Registry
	functions map[string]http.HandlerFunc
	server    *http.Server
	log       *slog.Logger
}

// NewServer creates a new HTTP server. registry and functions may be nil.
func NewServer(
	port int,
	monitor *health.Monitor,
	registry *invoker.Registry,
	functions map[string]http.HandlerFunc,
	log *slog.Logger,
) *Server {
	if registry == nil {
		registry = invoker.NewRegistry()
	}
	if log == nil {
		log = slog.Default()
	}

	mux := http.NewServeMux()
	s := &Server{
		monitor:   monitor,
		registry:  registry,
		functions: functions,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log.With("component", "http"),
	}

	mux.HandleFunc("POST /events/{function}", s.handleEvent)
	mux.HandleFunc("/functions/{function}", s.handleFunction)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type eventResponse struct {
	Function string         `json:"function"`
	EventID  string         `json:"event_id,omitempty"`
	Outcome  domain.Outcome `json:"outcome"`
	AgeMs    int64          `json:"age_ms"`
	Error    string         `json:"error,omitempty"`
}

// handleEvent is the push delivery endpoint. Only a propagated failure answers
// with a 5xx, which tells the pusher to redeliver.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("function")
	inv, ok := s.registry.Get(name)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown function %q", name), http.StatusNotFound)
		return
	}

	var event domain.Event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody)).Decode(&event); err != nil {
		// Redelivering the same bytes will not decode any better.
		s.log.Warn("Rejected undecodable event", "function", name, "error", err)
		writeJSON(w, http.StatusOK, eventResponse{Function: name, Outcome: domain.OutcomeRejected, Error: err.Error()})
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Context.Attempt == 0 {
		if n, err := strconv.Atoi(r.Header.Get("X-Delivery-Attempt")); err == nil {
			event.Context.Attempt = n
		}
	}

	res := inv.Invoke(r.Context(), &event)
	resp := eventResponse{
		Function: name,
		EventID:  event.CorrelationID(),
		Outcome:  res.Outcome,
		AgeMs:    res.Age.Milliseconds(),
	}

	status := http.StatusOK
	if err := res.Err(); err != nil {
		status = http.StatusInternalServerError
		resp.Error = err.Error()
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleFunction(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("function")
	fn, ok := s.functions[name]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown function %q", name), http.StatusNotFound)
		return
	}

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	fn(rec, r)
	metrics.HTTPFunctionCalls.WithLabelValues(name, strconv.Itoa(rec.status)).Inc()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := health.StatusHealthy
	if s.monitor != nil {
		status = s.monitor.CheckHealth(r.Context()).SystemStatus
	}

	code := http.StatusOK
	if status == health.StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": string(status)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	report := health.HealthReport{SystemStatus: health.StatusHealthy}
	if s.monitor != nil {
		report = s.monitor.CheckHealth(r.Context())
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
