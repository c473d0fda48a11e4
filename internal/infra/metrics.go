package infra

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eliteGoblin/focusd/kidlock/internal/domain"
)

// PromMetrics implements domain.Metrics on a Prometheus registry.
type PromMetrics struct {
	registry *prometheus.Registry

	decisions          *prometheus.CounterVec
	locks              prometheus.Counter
	notifications      prometheus.Counter
	evaluationDuration prometheus.Histogram
	eventsCollected    prometheus.Counter
	eventsInserted     prometheus.Counter
	collectionsDenied  prometheus.Counter
	collectionDuration prometheus.Histogram
	dropped            prometheus.Counter
}

// NewMetrics returns Prometheus metrics when enabled, otherwise a no-op.
func NewMetrics(enabled bool) domain.Metrics {
	if !enabled {
		return NoopMetrics{}
	}
	return NewPromMetrics(prometheus.NewRegistry())
}

// NewPromMetrics registers the kidlock collectors on reg.
func NewPromMetrics(reg *prometheus.Registry) *PromMetrics {
	f := promauto.With(reg)
	return &PromMetrics{
		registry: reg,

		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kidlock_decisions_total",
			Help: "Foreground evaluations by decision reason",
		}, []string{"reason"}),

		locks: f.NewCounter(prometheus.CounterOpts{
			Name: "kidlock_locks_total",
			Help: "Lock screens presented",
		}),

		notifications: f.NewCounter(prometheus.CounterOpts{
			Name: "kidlock_notifications_total",
			Help: "Schedule alerts posted",
		}),

		evaluationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kidlock_evaluation_duration_seconds",
			Help:    "Duration of foreground evaluations in seconds",
			Buckets: prometheus.DefBuckets,
		}),

		eventsCollected: f.NewCounter(prometheus.CounterOpts{
			Name: "kidlock_events_collected_total",
			Help: "Usage events sampled from the event source",
		}),

		eventsInserted: f.NewCounter(prometheus.CounterOpts{
			Name: "kidlock_events_inserted_total",
			Help: "Usage events newly stored",
		}),

		collectionsDenied: f.NewCounter(prometheus.CounterOpts{
			Name: "kidlock_collections_denied_total",
			Help: "Collections skipped because usage access was denied",
		}),

		collectionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kidlock_collection_duration_seconds",
			Help:    "Duration of usage collections in seconds",
			Buckets: prometheus.DefBuckets,
		}),

		dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "kidlock_foreground_dropped_total",
			Help: "Foreground notifications dropped because the queue was full",
		}),
	}
}

func (m *PromMetrics) ObserveDecision(r domain.EnforcementResult) {
	if r.SelfExcluded {
		m.decisions.WithLabelValues("SELF").Inc()
	} else {
		m.decisions.WithLabelValues(string(r.Decision.Reason)).Inc()
	}
	if r.Locked {
		m.locks.Inc()
	}
	if r.Notified {
		m.notifications.Inc()
	}
	m.evaluationDuration.Observe((time.Duration(r.DurationMs) * time.Millisecond).Seconds())
}

func (m *PromMetrics) ObserveCollection(r domain.CollectionResult) {
	if r.Denied {
		m.collectionsDenied.Inc()
	}
	m.eventsCollected.Add(float64(r.Sampled))
	m.eventsInserted.Add(float64(r.Inserted))
	m.collectionDuration.Observe((time.Duration(r.DurationMs) * time.Millisecond).Seconds())
}

func (m *PromMetrics) IncDropped() {
	m.dropped.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PromMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// NoopMetrics is used when metrics are disabled.
type NoopMetrics struct{}

func (NoopMetrics) ObserveDecision(_ domain.EnforcementResult)   {}
func (NoopMetrics) ObserveCollection(_ domain.CollectionResult) {}
func (NoopMetrics) IncDropped()                                 {}

var (
	_ domain.Metrics = (*PromMetrics)(nil)
	_ domain.Metrics = NoopMetrics{}
)
