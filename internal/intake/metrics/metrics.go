// Package metrics exposes Prometheus instrumentation for the intake
// pipeline. All methods are nil-safe so tests can run without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the intake core.
type Metrics struct {
	SubmissionsTotal      prometheus.Counter
	QuotaRejectedTotal    prometheus.Counter
	TransitionsTotal      *prometheus.CounterVec
	SequenceFallbackTotal prometheus.Counter
	SelectionRunSeconds   prometheus.Histogram
	EventsPublishedTotal  *prometheus.CounterVec
}

// New creates and registers all intake metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		SubmissionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ppdb_intake_submissions_total",
			Help: "Total number of accepted application submissions",
		}),
		QuotaRejectedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ppdb_intake_quota_rejected_total",
			Help: "Total number of submissions rejected because a quota was full",
		}),
		TransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ppdb_intake_transitions_total",
			Help: "Total number of applied status transitions, by event",
		}, []string{"event"}),
		SequenceFallbackTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ppdb_intake_sequence_fallback_total",
			Help: "Times the sequence allocator exhausted its retry budget and synthesized a clock-derived identifier; should stay at zero",
		}),
		SelectionRunSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ppdb_intake_selection_run_seconds",
			Help:    "Duration of batch selection runs",
			Buckets: prometheus.DefBuckets,
		}),
		EventsPublishedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ppdb_intake_events_published_total",
			Help: "Domain events handed to the publisher, by type",
		}, []string{"type"}),
	}
}

func (m *Metrics) IncSubmissions() {
	if m != nil {
		m.SubmissionsTotal.Inc()
	}
}

func (m *Metrics) IncQuotaRejected() {
	if m != nil {
		m.QuotaRejectedTotal.Inc()
	}
}

func (m *Metrics) IncTransition(event string) {
	if m != nil {
		m.TransitionsTotal.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) IncSequenceFallback() {
	if m != nil {
		m.SequenceFallbackTotal.Inc()
	}
}

func (m *Metrics) ObserveSelectionRun(d time.Duration) {
	if m != nil {
		m.SelectionRunSeconds.Observe(d.Seconds())
	}
}

func (m *Metrics) IncEventPublished(eventType string) {
	if m != nil {
		m.EventsPublishedTotal.WithLabelValues(eventType).Inc()
	}
}
