package metrics

import "github.com/prometheus/client_golang/prometheus"

// OrderMetrics tracks order submissions and integrity rejections.
type OrderMetrics struct {
	created  prometheus.Counter
	rejected *prometheus.CounterVec
}

func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_created_total",
		Help:      "Orders that passed integrity validation and were stored.",
	})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_rejected_total",
		Help:      "Order submissions rejected by integrity validation.",
	}, []string{"reason"})
	reg.MustRegister(created, rejected)
	return &OrderMetrics{created: created, rejected: rejected}
}

func (o *OrderMetrics) IncCreated() {
	if o == nil || o.created == nil {
		return
	}
	o.created.Inc()
}

// IncRejected counts a rejection under reason (e.g. "total_mismatch").
func (o *OrderMetrics) IncRejected(reason string) {
	if o == nil || o.rejected == nil {
		return
	}
	o.rejected.WithLabelValues(normalizeLabel(reason)).Inc()
}
