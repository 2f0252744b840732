package classify

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks classifier calls on a dedicated registry.
type Metrics struct {
	Registry *prometheus.Registry

	CallsTotal   *prometheus.CounterVec
	RetriesTotal prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		CallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nichescout_classifier_calls_total",
			Help: "Classifier calls by outcome.",
		}, []string{"outcome"}),
		RetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nichescout_classifier_retries_total",
			Help: "Classifier call retries after throttling.",
		}),
	}

	registry.MustRegister(m.CallsTotal, m.RetriesTotal)
	return m
}

func (m *Metrics) IncCall(outcome string) {
	if m == nil {
		return
	}
	m.CallsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncRetry() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}
