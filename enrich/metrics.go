package enrich

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks cache effectiveness on a dedicated registry.
type Metrics struct {
	Registry *prometheus.Registry

	LookupsTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		LookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nichescout_enrichment_lookups_total",
			Help: "Enrichment cache lookups by payload kind and result.",
		}, []string{"kind", "result"}),
	}

	registry.MustRegister(m.LookupsTotal)
	return m
}

func (m *Metrics) AddLookups(kind, result string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.LookupsTotal.WithLabelValues(kind, result).Add(float64(n))
}
