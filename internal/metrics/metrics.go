package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine, store, and RPC instruments, partitioned by network name where the
// chain id is known.

var (
	// Engine
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inscriber",
		Subsystem: "engine",
		Name:      "submissions_total",
		Help:      "Terminal submission outcomes per loop iteration",
	}, []string{"network", "outcome"})

	SubmissionRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inscriber",
		Subsystem: "engine",
		Name:      "submission_retries_total",
		Help:      "Transient submission failures that were retried",
	}, []string{"network"})

	SubmissionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "inscriber",
		Subsystem: "engine",
		Name:      "submission_duration_seconds",
		Help:      "Duration of one loop iteration (sign, submit, record)",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"network"})

	NonceReleases = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inscriber",
		Subsystem: "engine",
		Name:      "nonce_releases_total",
		Help:      "Nonces returned to the sequencer after pre-broadcast rejections",
	}, []string{"network"})

	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inscriber",
		Subsystem: "engine",
		Name:      "runs_total",
		Help:      "Finished runs by terminal state",
	}, []string{"network", "state"})

	// Store
	RecordsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inscriber",
		Subsystem: "store",
		Name:      "records_written_total",
		Help:      "Inscription records appended to the store",
	}, []string{"network"})

	RecordWriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inscriber",
		Subsystem: "store",
		Name:      "record_write_failures_total",
		Help:      "Store writes that failed after an accepted submission",
	}, []string{"network"})

	// RPC client
	RPCRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inscriber",
		Subsystem: "rpc",
		Name:      "requests_total",
		Help:      "JSON-RPC requests by method and status class",
	}, []string{"method", "status"})

	RPCRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "inscriber",
		Subsystem: "rpc",
		Name:      "request_duration_seconds",
		Help:      "JSON-RPC request duration",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method"})

	RPCRateLimitWaits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "inscriber",
		Subsystem: "rpc",
		Name:      "rate_limit_waits_total",
		Help:      "RPC calls that waited for the client-side rate limiter",
	})

	RPCBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "inscriber",
		Subsystem: "rpc",
		Name:      "circuit_breaker_state",
		Help:      "RPC circuit breaker state (0=closed, 1=open, 2=half-open)",
	})

	// Alerting
	AlertsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inscriber",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Alerts delivered per channel",
	}, []string{"channel", "alert_type"})

	AlertsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inscriber",
		Subsystem: "alert",
		Name:      "suppressed_total",
		Help:      "Alerts suppressed by the cooldown window",
	}, []string{"channel", "alert_type"})
)
