package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cart synchronizer metrics
	CartMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_mutations_total",
			Help: "Total number of cart mutation attempts",
		},
		[]string{"operation", "outcome"},
	)

	CartLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_loads_total",
			Help: "Total number of cart mirror loads",
		},
		[]string{"outcome"},
	)

	// Fetch dedup metrics
	DedupAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_attempts_total",
			Help: "Fetch attempts seen by the dedup guard",
		},
		[]string{"resource", "decision"},
	)

	// Search debounce metrics
	DebounceFlushesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "search_debounce_flushes_total",
			Help: "Debounced search queries actually issued",
		},
	)

	DebounceSuppressedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "search_debounce_suppressed_total",
			Help: "Input events coalesced away by the debouncer",
		},
	)

	// Session metrics
	SessionExpiriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_expiries_total",
			Help: "Session transitions to expired",
		},
		[]string{"trigger"},
	)

	// Abandonment metrics
	AbandonSignalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abandon_signals_total",
			Help: "Abandonment signals sent",
		},
		[]string{"reason", "transport"},
	)

	// Collaborator HTTP metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_api_request_duration_seconds",
			Help:    "Storefront API request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation", "status"},
	)

	// Stub server HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)
