package harvester

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks pipeline outcomes on a dedicated registry.
type Metrics struct {
	Registry *prometheus.Registry

	RunsTotal     *prometheus.CounterVec
	RemovalsTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nichescout_runs_total",
			Help: "Keyword pipeline runs by outcome.",
		}, []string{"outcome"}),
		RemovalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nichescout_filter_removals_total",
			Help: "Records removed by each filter stage.",
		}, []string{"stage"}),
	}

	registry.MustRegister(m.RunsTotal, m.RemovalsTotal)
	return m
}

func (m *Metrics) IncRun(outcome string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AddRemovals(stage string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.RemovalsTotal.WithLabelValues(stage).Add(float64(n))
}
