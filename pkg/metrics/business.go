package metrics

import "github.com/prometheus/client_golang/prometheus"

// BusinessMetrics counts marketplace outcomes. A nil receiver is a no-op.
type BusinessMetrics struct {
	holdsCreated       prometheus.Counter
	ordersCreated      *prometheus.CounterVec
	inventoryRejected  *prometheus.CounterVec
	paymentTransitions *prometheus.CounterVec
	holdsReclaimed     prometheus.Counter
}

// NewBusinessMetrics registers the marketplace counters on reg.
func NewBusinessMetrics(reg prometheus.Registerer) *BusinessMetrics {
	if reg == nil {
		return &BusinessMetrics{}
	}
	m := &BusinessMetrics{
		holdsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "holds_created_total",
			Help:      "Holds placed against credit lots.",
		}),
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "orders_created_total",
			Help:      "Purchase orders created, by initial payment status.",
		}, []string{"payment_status"}),
		inventoryRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "inventory_rejections_total",
			Help:      "Hold or order attempts rejected by inventory rules.",
		}, []string{"operation", "reason"}),
		paymentTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "payment_transitions_total",
			Help:      "Applied payment status transitions.",
		}, []string{"from", "to", "source"}),
		holdsReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "holds_reclaimed_total",
			Help:      "Expired holds whose inventory was re-credited.",
		}),
	}
	reg.MustRegister(m.holdsCreated, m.ordersCreated, m.inventoryRejected, m.paymentTransitions, m.holdsReclaimed)
	return m
}

func (m *BusinessMetrics) IncHoldsCreated() {
	if m == nil || m.holdsCreated == nil {
		return
	}
	m.holdsCreated.Inc()
}

func (m *BusinessMetrics) IncOrdersCreated(paymentStatus string) {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.WithLabelValues(normalizeLabel(paymentStatus)).Inc()
}

func (m *BusinessMetrics) IncInventoryRejected(operation, reason string) {
	if m == nil || m.inventoryRejected == nil {
		return
	}
	m.inventoryRejected.WithLabelValues(normalizeLabel(operation), normalizeLabel(reason)).Inc()
}

func (m *BusinessMetrics) IncPaymentTransition(from, to, source string) {
	if m == nil || m.paymentTransitions == nil {
		return
	}
	m.paymentTransitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to), normalizeLabel(source)).Inc()
}

func (m *BusinessMetrics) AddHoldsReclaimed(n int) {
	if m == nil || m.holdsReclaimed == nil || n <= 0 {
		return
	}
	m.holdsReclaimed.Add(float64(n))
}
