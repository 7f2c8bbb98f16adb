package ledger

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts ledger outcomes. A nil *Metrics records nothing.
type Metrics struct {
	events *prometheus.CounterVec
	grants *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streak",
			Name:      "ledger_events_total",
			Help:      "Completion events received by the ledger",
		}, []string{"result"}),
		grants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streak",
			Name:      "ledger_badge_grants_total",
			Help:      "Badge grant requests handled by the ledger",
		}, []string{"result"}),
	}
	reg.MustRegister(m.events, m.grants)
	return m
}

func (m *Metrics) observeEvent(applied bool) {
	if m == nil {
		return
	}
	result := "ignored"
	if applied {
		result = "applied"
	}
	m.events.WithLabelValues(result).Inc()
}

func (m *Metrics) observeGrant(granted bool) {
	if m == nil {
		return
	}
	result := "owned"
	if granted {
		result = "granted"
	}
	m.grants.WithLabelValues(result).Inc()
}
