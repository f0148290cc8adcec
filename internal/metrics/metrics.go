// Package metrics exposes Prometheus instruments for scrape cycles and the catalog.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// MetricsNamespace is the namespace for all service metrics.
	MetricsNamespace = "production_scout"
)

// Cycle outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds all Prometheus metrics for the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	ScrapeCyclesTotal    *prometheus.CounterVec
	ScrapeDuration       *prometheus.HistogramVec
	PostingsRetrieved    *prometheus.CounterVec
	PostingsAdded        *prometheus.CounterVec
	CatalogSize          prometheus.Gauge
	PersistenceFailures  *prometheus.CounterVec
	NotificationsSent    prometheus.Counter
	NotificationFailures prometheus.Counter
}

// NewMetrics creates and registers all metrics with reg, or with the default
// registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ScrapeCyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: "scrape",
				Name:      "cycles_total",
				Help:      "Scrape cycles by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		ScrapeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: MetricsNamespace,
				Subsystem: "scrape",
				Name:      "duration_seconds",
				Help:      "Scrape cycle duration by source",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"source"},
		),
		PostingsRetrieved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: "scrape",
				Name:      "postings_retrieved_total",
				Help:      "Raw postings returned by source adapters",
			},
			[]string{"source"},
		),
		PostingsAdded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: "catalog",
				Name:      "postings_added_total",
				Help:      "Postings merged into the catalog by source",
			},
			[]string{"source"},
		),
		CatalogSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: "catalog",
			Name:      "postings",
			Help:      "Postings currently in the catalog",
		}),
		PersistenceFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: "storage",
				Name:      "failures_total",
				Help:      "Failed catalog or status saves by key",
			},
			[]string{"key"},
		),
		NotificationsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "notifier",
			Name:      "sent_total",
			Help:      "Discord notifications delivered",
		}),
		NotificationFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "notifier",
			Name:      "failures_total",
			Help:      "Discord notification batches that failed",
		}),
	}
}

// ObserveCycle records one finished scrape cycle.
func (m *Metrics) ObserveCycle(source string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.ScrapeCyclesTotal.WithLabelValues(source, outcome).Inc()
	m.ScrapeDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// ObserveMerge records adapter yield, merge additions and the resulting catalog size.
func (m *Metrics) ObserveMerge(source string, retrieved, added, catalogSize int) {
	if m == nil {
		return
	}
	m.PostingsRetrieved.WithLabelValues(source).Add(float64(retrieved))
	m.PostingsAdded.WithLabelValues(source).Add(float64(added))
	m.CatalogSize.Set(float64(catalogSize))
}

func (m *Metrics) PersistenceFailed(key string) {
	if m == nil {
		return
	}
	m.PersistenceFailures.WithLabelValues(key).Inc()
}

func (m *Metrics) NotificationsDelivered(sent int, err error) {
	if m == nil {
		return
	}
	m.NotificationsSent.Add(float64(sent))
	if err != nil {
		m.NotificationFailures.Inc()
	}
}
