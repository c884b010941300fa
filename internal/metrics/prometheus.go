package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExecutionsTotal counts finished executions by language and terminal status.
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codr_executions_total",
			Help: "Total number of code executions",
		},
		[]string{"language", "status"},
	)

	// ExecutionDuration tracks wall time of the executor call in seconds.
	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codr_execution_duration_seconds",
			Help:    "Duration of code executions in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"language"},
	)

	// WorkersActive tracks the number of workers currently running a job.
	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "codr_workers_active",
			Help: "Number of currently active worker goroutines",
		},
	)

	// SandboxFailures counts sandbox infrastructure failures (not user code errors).
	SandboxFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codr_sandbox_failures_total",
			Help: "Total number of sandbox infrastructure failures",
		},
	)

	// ValidationRejections counts submissions refused by the security validator.
	ValidationRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codr_validation_rejections_total",
			Help: "Total number of submissions rejected by the validator",
		},
		[]string{"language", "rule"},
	)

	// SubmissionsTotal counts accepted submissions by language.
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codr_submissions_total",
			Help: "Total number of jobs accepted for execution",
		},
		[]string{"language"},
	)

	// StreamSubscribers tracks open event subscriptions.
	StreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "codr_stream_subscribers",
			Help: "Number of open job event subscriptions",
		},
	)

	// EventsPublished counts events handed to the publisher by type.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codr_events_published_total",
			Help: "Total number of job events published",
		},
		[]string{"type"},
	)

	// SubscribersEvicted counts subscribers dropped for falling behind.
	SubscribersEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codr_subscribers_evicted_total",
			Help: "Total number of slow subscribers evicted",
		},
	)

	// InputBytes counts bytes injected into running jobs.
	InputBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codr_input_bytes_total",
			Help: "Total number of stdin bytes delivered to running jobs",
		},
	)
)
