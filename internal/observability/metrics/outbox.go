package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics tracks event delivery from the outbox table.
type OutboxMetrics struct {
	deliveredTotal *prometheus.CounterVec
	pending        prometheus.Gauge
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	m := &OutboxMetrics{
		deliveredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "outbox",
			Name:      "deliveries_total",
			Help:      "Outbox events handed to the event queue",
		}, []string{"event_type", "status"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "marketplace",
			Subsystem: "outbox",
			Name:      "last_batch_size",
			Help:      "Number of events fetched in the most recent poll",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.deliveredTotal, m.pending)
	return m
}

func (m *OutboxMetrics) ObserveDelivery(eventType string, err error) {
	if m == nil {
		return
	}
	status := "delivered"
	if err != nil {
		status = "failed"
	}
	m.deliveredTotal.WithLabelValues(eventType, status).Inc()
}

func (m *OutboxMetrics) ObserveBatch(size int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(size))
}
