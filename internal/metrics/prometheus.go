package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal counts finished jobs by type and terminal status.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadscope_jobs_total",
			Help: "Total number of finished jobs",
		},
		[]string{"type", "status"},
	)

	// JobDuration tracks per-attempt processing duration in seconds.
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadscope_job_duration_seconds",
			Help:    "Duration of job processing attempts in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~2.5m
		},
		[]string{"type"},
	)

	// WorkersActive tracks the number of jobs currently processing.
	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "leadscope_workers_active",
			Help: "Number of jobs currently being processed",
		},
	)

	// CacheHits counts cache hits per cache category.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadscope_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"category"},
	)

	// CacheMisses counts cache misses per cache category.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadscope_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"category"},
	)

	// CircuitTransitions counts circuit state transitions by target state.
	CircuitTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadscope_circuit_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"state"},
	)

	// RateLimitDenials counts denied rate-limit checks per category.
	RateLimitDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadscope_rate_limit_denials_total",
			Help: "Total rate-limited operations",
		},
		[]string{"category"},
	)

	// FetchesTotal counts external domain fetches by outcome category.
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadscope_fetches_total",
			Help: "Total external domain fetch attempts",
		},
		[]string{"outcome"},
	)
)
