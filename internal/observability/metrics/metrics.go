package metrics

import "github.com/prometheus/client_golang/prometheus"

// ProposalMetrics exposes counters/histograms for the proposal workflow.
type ProposalMetrics struct {
	transitionsTotal  *prometheus.CounterVec
	notificationTotal *prometheus.CounterVec
	commandLatency    *prometheus.HistogramVec
}

func NewProposalMetrics(reg prometheus.Registerer) *ProposalMetrics {
	m := &ProposalMetrics{
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "proposals",
			Name:      "transitions_total",
			Help:      "Proposal and negotiation transitions by outcome",
		}, []string{"transition", "outcome"}),
		notificationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "proposals",
			Name:      "notifications_total",
			Help:      "Notifications dispatched after proposal transitions",
		}, []string{"reference_type", "status"}),
		commandLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "marketplace",
			Subsystem: "proposals",
			Name:      "command_latency_seconds",
			Help:      "Latency of proposal commands including persistence",
			Buckets:   prometheus.DefBuckets,
		}, []string{"transition"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitionsTotal, m.notificationTotal, m.commandLatency)
	return m
}

// ObserveTransition records one command attempt. outcome is "ok", "conflict",
// "invalid", "not_found" or "error".
func (m *ProposalMetrics) ObserveTransition(transition, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(transition, outcome).Inc()
	m.commandLatency.WithLabelValues(transition).Observe(seconds)
}

func (m *ProposalMetrics) ObserveNotification(referenceType string, delivered bool) {
	if m == nil {
		return
	}
	status := "sent"
	if !delivered {
		status = "failed"
	}
	m.notificationTotal.WithLabelValues(referenceType, status).Inc()
}
