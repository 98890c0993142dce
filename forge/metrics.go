package forge

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the engine.
type Metrics struct {
	// Ingestion
	EventsIngested prometheus.Counter
	EventsRejected *prometheus.CounterVec
	QueueDepth     prometheus.Gauge

	// Processing
	EventsProcessed    prometheus.Counter
	ProcessingDuration prometheus.Histogram

	// Rewards
	RewardsApplied *prometheus.CounterVec

	// Leaderboards
	LeaderboardCacheHits   prometheus.Counter
	LeaderboardCacheMisses prometheus.Counter

	// HTTP
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a Metrics instance registered on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a Metrics instance with a custom registry.
func NewMetricsWithRegistry(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forge_events_ingested_total",
			Help: "Total number of events accepted into the queue",
		}),
		EventsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forge_events_rejected_total",
			Help: "Total number of events rejected at ingestion",
		}, []string{"reason"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forge_queue_depth",
			Help: "Number of events waiting in the queue",
		}),
		EventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forge_events_processed_total",
			Help: "Total number of events drained from the queue",
		}),
		ProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "forge_event_processing_duration_seconds",
			Help:    "Per-event processing duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		RewardsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forge_rewards_applied_total",
			Help: "Total number of reward applications by type and outcome",
		}, []string{"type", "success"}),
		LeaderboardCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forge_leaderboard_cache_hits_total",
			Help: "Leaderboard cache hits",
		}),
		LeaderboardCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forge_leaderboard_cache_misses_total",
			Help: "Leaderboard cache misses",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forge_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "forge_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "path"}),
	}

	for _, collector := range []prometheus.Collector{
		m.EventsIngested, m.EventsRejected, m.QueueDepth,
		m.EventsProcessed, m.ProcessingDuration,
		m.RewardsApplied,
		m.LeaderboardCacheHits, m.LeaderboardCacheMisses,
		m.RequestsTotal, m.RequestDuration,
	} {
		registerer.MustRegister(collector)
	}
	return m
}
