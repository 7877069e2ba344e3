package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and histograms for the record service.
type Metrics struct {
	RecordsCreated prometheus.Counter
	RecordsUpdated *prometheus.CounterVec // labels: outcome={updated,denied}
	Searches       *prometheus.CounterVec // labels: outcome={ok,invalid,error}
	AuthFailures   prometheus.Counter

	// Enrichment metrics.
	WeatherLookups  *prometheus.CounterVec // labels: outcome={success,empty,error}
	WeatherCache    *prometheus.CounterVec // labels: result={hit,miss}
	WeatherDuration prometheus.Histogram
	Summaries       *prometheus.CounterVec // labels: outcome={success,unavailable}

	StorageDuration *prometheus.HistogramVec // labels: operation
}

const namespace = "datarecord"

func newMetrics() *Metrics {
	return &Metrics{
		RecordsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_created_total",
			Help:      "Total observation records stored.",
		}),
		RecordsUpdated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_updates_total",
			Help:      "Record update attempts by outcome.",
		}, []string{"outcome"}),
		Searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Record searches by outcome.",
		}, []string{"outcome"}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected credential checks.",
		}),
		WeatherLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_lookups_total",
			Help:      "Weather service requests by outcome.",
		}, []string{"outcome"}),
		WeatherCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_cache_total",
			Help:      "Weather cache lookups by result.",
		}, []string{"result"}),
		WeatherDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "weather_request_duration_seconds",
			Help:      "Weather service request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		Summaries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_total",
			Help:      "Description summaries by outcome.",
		}, []string{"outcome"}),
		StorageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_duration_seconds",
			Help:      "Duration of record storage operations.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RecordsCreated,
		m.RecordsUpdated,
		m.Searches,
		m.AuthFailures,
		m.WeatherLookups,
		m.WeatherCache,
		m.WeatherDuration,
		m.Summaries,
		m.StorageDuration,
	}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() (*Metrics, *prometheus.Registry) {
	m := newMetrics()
	reg := prometheus.NewRegistry()
	reg.MustRegister(m.collectors()...)
	return m, reg
}
