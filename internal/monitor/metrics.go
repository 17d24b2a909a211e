package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchesTotal tracks fetch attempts per source host and outcome.
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_fetches_total",
			Help: "Total number of fetch attempts",
		},
		[]string{"source", "outcome"},
	)

	// FetchErrorsTotal tracks classified fetch errors per source host.
	FetchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_fetch_errors_total",
			Help: "Total number of classified fetch errors",
		},
		[]string{"source", "category"},
	)

	// RetriesTotal tracks retry attempts per source host.
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_retries_total",
			Help: "Total number of retried fetches",
		},
		[]string{"source"},
	)

	// FetchLatency tracks fetch latency per source host.
	FetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scout_fetch_latency_seconds",
			Help:    "Fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// BreakerState tracks circuit breaker state per resource
	// (0=closed, 1=open, 2=half-open).
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scout_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
		},
		[]string{"resource"},
	)

	// LimiterRate tracks the current adaptive rate per domain.
	LimiterRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scout_limiter_rate",
			Help: "Current adaptive rate limit in requests per second",
		},
		[]string{"domain"},
	)

	// ProxiesAvailable tracks how many proxies are currently usable.
	ProxiesAvailable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scout_proxies_available",
			Help: "Number of proxies currently available",
		},
	)

	// ProxiesTotal tracks the pool size.
	ProxiesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scout_proxies_total",
			Help: "Total number of proxies in the pool",
		},
	)

	// CheckpointProgress tracks per-job completion percentage.
	CheckpointProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scout_checkpoint_progress_percent",
			Help: "Job completion percentage from the last checkpoint",
		},
		[]string{"job"},
	)

	// AlertsTotal tracks alerts raised per component and severity.
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_alerts_total",
			Help: "Total number of alerts raised",
		},
		[]string{"component", "severity"},
	)
)
