package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ecoaudit"

// Metrics are the run counters. Each instance owns its registry so tests and
// multiple runners never collide on global registration.
type Metrics struct {
	registry          *prometheus.Registry
	RunsTotal         *prometheus.CounterVec
	RunDuration       prometheus.Histogram
	CollectorsTotal   *prometheus.CounterVec
	CollectorDuration *prometheus.HistogramVec
	AuditsTotal       *prometheus.CounterVec
	CollectionGaps    prometheus.Counter
	LastScore         *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Audit runs by outcome",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of complete audit runs",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
		}),
		CollectorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collector_runs_total",
			Help:      "Collector executions by status",
		}, []string{"collector", "status"}),
		CollectorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collector_duration_seconds",
			Help:      "Collector wall time",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"collector"}),
		AuditsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_results_total",
			Help:      "Audit results by outcome",
		}, []string{"audit", "outcome"}),
		CollectionGaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collection_gaps_total",
			Help:      "Requests discarded incomplete at session end",
		}),
		LastScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_score",
			Help:      "Score of the most recent run per category; category=\"overall\" for the total",
		}, []string{"category"}),
	}
	r.MustRegister(m.RunsTotal, m.RunDuration, m.CollectorsTotal, m.CollectorDuration, m.AuditsTotal, m.CollectionGaps, m.LastScore)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
