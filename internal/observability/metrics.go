package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// geobase cache, the street resolver, and the status poller.
type Metrics struct {
	// Geobase refreshes.
	GeobaseRefreshes       *prometheus.CounterVec // labels: outcome={success,not_modified,error}
	GeobaseSegments        prometheus.Gauge
	GeobaseSnapshotAge     prometheus.Gauge
	GeobaseRefreshDuration prometheus.Histogram

	// Resolver lookups.
	SearchRequests *prometheus.CounterVec // labels: outcome={hit,miss,error}
	SearchDuration prometheus.Histogram

	// Status polling.
	Polls           *prometheus.CounterVec // labels: outcome={success,skipped,error}
	StatusesTracked prometheus.Gauge
	FeedAvailable   prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus
// registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.GeobaseRefreshes,
		m.GeobaseSegments,
		m.GeobaseSnapshotAge,
		m.GeobaseRefreshDuration,
		m.SearchRequests,
		m.SearchDuration,
		m.Polls,
		m.StatusesTracked,
		m.FeedAvailable,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests
// can construct as many as they like without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		GeobaseRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neige",
			Name:      "geobase_refreshes_total",
			Help:      "Geobase refresh attempts by outcome.",
		}, []string{"outcome"}),
		GeobaseSegments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "neige",
			Name:      "geobase_segments",
			Help:      "Street segments in the current snapshot.",
		}),
		GeobaseSnapshotAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "neige",
			Name:      "geobase_snapshot_age_seconds",
			Help:      "Age of the current snapshot at last observation.",
		}),
		GeobaseRefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "neige",
			Name:      "geobase_refresh_duration_seconds",
			Help:      "Duration of a geobase download and parse.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		SearchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neige",
			Name:      "search_requests_total",
			Help:      "Street searches by outcome.",
		}, []string{"outcome"}),
		SearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "neige",
			Name:      "search_duration_seconds",
			Help:      "Duration of a ranked street search.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neige",
			Name:      "status_polls_total",
			Help:      "Planif-Neige poll ticks by outcome.",
		}, []string{"outcome"}),
		StatusesTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "neige",
			Name:      "statuses_tracked",
			Help:      "Tracked streets with a known status.",
		}),
		FeedAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "neige",
			Name:      "feed_available",
			Help:      "1 when the last Planif-Neige poll succeeded, 0 otherwise.",
		}),
	}
}
