package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "companion_relay"

// Failure stages, one per recovered error category.
const (
	StageEntitlement = "entitlement"
	StageCompletion  = "completion"
	StageDispatch    = "dispatch"
	StagePanic       = "panic"
)

type Metrics struct {
	EventsTotal   *prometheus.CounterVec
	RepliesTotal  *prometheus.CounterVec
	FailuresTotal *prometheus.CounterVec
	BatchSize     prometheus.Histogram
}

// New registers the relay collectors on reg. Tests pass a fresh
// prometheus.NewRegistry so repeated construction does not collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Webhook events received, by handling outcome",
			},
			[]string{"outcome"},
		),
		RepliesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "replies_total",
				Help:      "Composed replies, by rule that produced them",
			},
			[]string{"rule"},
		),
		FailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failures_total",
				Help:      "Locally recovered failures, by pipeline stage",
			},
			[]string{"stage"},
		),
		BatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "webhook_batch_size",
				Help:      "Number of events per webhook request",
				Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
			},
		),
	}
}

// The helpers below are nil-safe so callers can run without metrics.

func (m *Metrics) Event(outcome string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Reply(rule string) {
	if m == nil {
		return
	}
	m.RepliesTotal.WithLabelValues(rule).Inc()
}

func (m *Metrics) Failure(stage string) {
	if m == nil {
		return
	}
	m.FailuresTotal.WithLabelValues(stage).Inc()
}

func (m *Metrics) Batch(n int) {
	if m == nil {
		return
	}
	m.BatchSize.Observe(float64(n))
}
