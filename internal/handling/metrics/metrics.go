package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AdmissionTotal tracks admission outcomes per function
	AdmissionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redeliver_admission_total",
			Help: "Total number of admission decisions",
		},
		[]string{"function", "outcome"},
	)

	// EventAge tracks the age of events at admission time
	EventAge = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redeliver_event_age_seconds",
			Help:    "Event age at admission in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"function"},
	)

	// ClassifierActions tracks retry decisions taken after handler failures
	ClassifierActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redeliver_classifier_actions_total",
			Help: "Total number of retry classifier decisions",
		},
		[]string{"function", "action"},
	)

	// SinkReportFailures tracks failures while reporting to a failure sink
	SinkReportFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redeliver_sink_report_failures_total",
			Help: "Total number of failed failure-sink reports",
		},
		[]string{"sink"},
	)

	// InvocationDuration tracks handler run time
	InvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redeliver_invocation_duration_seconds",
			Help:    "Event handler duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"function", "outcome"},
	)

	// StreamMessages tracks messages consumed from Redis streams
	StreamMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redeliver_stream_messages_total",
			Help: "Total number of stream messages handled",
		},
		[]string{"stream", "result"},
	)

	// HTTPFunctionCalls tracks HTTP function invocations
	HTTPFunctionCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redeliver_http_function_calls_total",
			Help: "Total number of HTTP function invocations",
		},
		[]string{"function", "code"},
	)

	// DBConnectionPoolUsage tracks database pool usage percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "redeliver_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
