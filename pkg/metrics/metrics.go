// Package metrics defines the Prometheus metric collectors used across the
// quote search engine and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the engine.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	BuildsTotal          *prometheus.CounterVec
	BuildDuration        prometheus.Histogram
	VideosIndexedTotal   prometheus.Counter
	TranscriptErrors     prometheus.Counter
	QuotesIndexed        prometheus.Gauge
	StaleResultsDropped  prometheus.Counter
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        prometheus.Histogram
	SearchResultsCount   prometheus.Histogram
	SnapshotCacheHits    prometheus.Counter
	SnapshotCacheMisses  prometheus.Counter
	SnapshotWriteFailure prometheus.Counter
}

// New creates all collectors and registers them on reg. A nil reg registers
// on the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		BuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quote_index_builds_total",
				Help: "Index generations finished, by outcome (built, cached).",
			},
			[]string{"outcome"},
		),
		BuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quote_index_build_duration_seconds",
				Help:    "Time from init to ready for one index generation.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		VideosIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quote_index_videos_indexed_total",
				Help: "Videos whose transcripts were fetched and indexed.",
			},
		),
		TranscriptErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quote_index_transcript_errors_total",
				Help: "Transcript fetches that failed.",
			},
		),
		QuotesIndexed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "quote_index_quotes",
				Help: "Quotes in the active index generation.",
			},
		),
		StaleResultsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quote_index_stale_results_dropped_total",
				Help: "Async results discarded because their build token was superseded.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, not_ready).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
			},
		),
		SnapshotCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "snapshot_cache_hits_total",
				Help: "Index snapshots restored from the blob store.",
			},
		),
		SnapshotCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "snapshot_cache_misses_total",
				Help: "Snapshot loads that found nothing usable.",
			},
		),
		SnapshotWriteFailure: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "snapshot_cache_write_failures_total",
				Help: "Snapshot persists that failed.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.BuildsTotal,
		m.BuildDuration,
		m.VideosIndexedTotal,
		m.TranscriptErrors,
		m.QuotesIndexed,
		m.StaleResultsDropped,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.SnapshotCacheHits,
		m.SnapshotCacheMisses,
		m.SnapshotWriteFailure,
	)

	return m
}

// NewNop returns collectors registered on a private registry, for callers
// that do not export metrics.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler returns the Prometheus scrape HTTP handler for the default
// registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a scrape handler for g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
