package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Prometheus panics on duplicate registration.
	once sync.Once

	// HTTPRequestsTotal is labelled by route template, never the raw path.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPInflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// CacheOperations counts lookups per tier: l1, l2.
	// result is one of hit, hit_negative, miss, error.
	CacheOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "link_cache_operations_total",
			Help: "Link cache lookups by tier and result.",
		},
		[]string{"tier", "result"},
	)

	// Resolutions counts resolve outcomes: ok, not_found, locked, error.
	Resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "link_resolutions_total",
			Help: "Short code resolutions by outcome.",
		},
		[]string{"outcome"},
	)

	LinksCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "links_created_total",
			Help: "Created short links by code source.",
		},
		[]string{"source"},
	)

	// CodeCollisions counts generated codes rejected by the store.
	CodeCollisions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "link_code_collisions_total",
			Help: "Generated short codes that collided with an existing code.",
		},
	)

	ClicksRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "link_clicks_recorded_total",
			Help: "Click events persisted to the store.",
		},
	)

	// ClicksDropped counts events lost to a full buffer or a failed flush.
	ClicksDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "link_clicks_dropped_total",
			Help: "Click events dropped before persistence.",
		},
		[]string{"reason"},
	)
)

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			HTTPInflightRequests,
			CacheOperations,
			Resolutions,
			LinksCreated,
			CodeCollisions,
			ClicksRecorded,
			ClicksDropped,
		)
	})
}
