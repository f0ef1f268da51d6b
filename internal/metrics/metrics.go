package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics groups the collectors exported at /metrics. Each component receives
// the same instance so tests can build an isolated registry.
type Metrics struct {
	Registry *prometheus.Registry

	ReportsTotal       *prometheus.CounterVec
	CacheRequests      *prometheus.CounterVec
	PredictionsTotal   *prometheus.CounterVec
	PredictionDuration prometheus.Histogram
	Subscribers        prometheus.Gauge
	BroadcastsTotal    *prometheus.CounterVec
	RateLimitedTotal   prometheus.Counter
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ReportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parkir_reports_total",
			Help: "Status reports by outcome.",
		}, []string{"outcome"}),
		CacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parkir_cache_requests_total",
			Help: "Listing cache lookups by result.",
		}, []string{"result"}),
		PredictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parkir_predictions_total",
			Help: "Prediction requests by outcome.",
		}, []string{"outcome"}),
		PredictionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "parkir_prediction_duration_seconds",
			Help:    "Wall time of scorer invocations.",
			Buckets: prometheus.DefBuckets,
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "parkir_live_subscribers",
			Help: "Currently connected live subscribers.",
		}),
		BroadcastsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parkir_broadcasts_total",
			Help: "Published live events by kind.",
		}, []string{"kind"}),
		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parkir_rate_limited_total",
			Help: "Requests rejected by admission control.",
		}),
	}

	m.Registry.MustRegister(
		m.ReportsTotal,
		m.CacheRequests,
		m.PredictionsTotal,
		m.PredictionDuration,
		m.Subscribers,
		m.BroadcastsTotal,
		m.RateLimitedTotal,
		collectors.NewGoCollector(),
	)
	return m
}
