package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics covers the publisher loop. A nil receiver is a no-op.
type OutboxMetrics struct {
	dispatched *prometheus.CounterVec
	publish    prometheus.Histogram
	batches    prometheus.Counter
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return nil
	}
	m := &OutboxMetrics{
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "outbox",
			Name:      "events_total",
			Help:      "Outbox rows handled, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		publish: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "outbox",
			Name:      "publish_seconds",
			Help:      "Time from publish call to broker ack.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "outbox",
			Name:      "batches_total",
			Help:      "Non-empty batches claimed from outbox_events.",
		}),
	}
	reg.MustRegister(m.dispatched, m.publish, m.batches)
	return m
}

func (m *OutboxMetrics) Dispatched(eventType, outcome string) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(eventType, outcome).Inc()
}

func (m *OutboxMetrics) ObservePublish(took time.Duration) {
	if m == nil {
		return
	}
	m.publish.Observe(took.Seconds())
}

func (m *OutboxMetrics) Batch() {
	if m == nil {
		return
	}
	m.batches.Inc()
}
