package search

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the search provider.
type Metrics struct {
	Registry          *prometheus.Registry
	PagesFetchedTotal *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	ListingsTotal     prometheus.Counter
	RetriesTotal      prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_pages_fetched_total",
			Help: "Total search result pages fetched, by outcome.",
		},
		[]string{"outcome"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "search_request_duration_seconds",
			Help:    "Latency of marketplace search page requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	listings := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "search_listings_extracted_total",
			Help: "Total product listings extracted from result pages.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "search_retries_total",
			Help: "Total page fetch retry attempts.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_errors_total",
			Help: "Total search errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(pages, requestDuration, listings, retries, errorsTotal)

	return &Metrics{
		Registry:          registry,
		PagesFetchedTotal: pages,
		RequestDuration:   requestDuration,
		ListingsTotal:     listings,
		RetriesTotal:      retries,
		ErrorsTotal:       errorsTotal,
	}
}

// IncPage increments the fetched pages counter for an outcome label.
func (m *Metrics) IncPage(outcome string) {
	if m == nil {
		return
	}
	m.PagesFetchedTotal.WithLabelValues(outcome).Inc()
}

// ObserveDuration records one page fetch duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// AddListings counts listings extracted from a page.
func (m *Metrics) AddListings(n int) {
	if m == nil {
		return
	}
	m.ListingsTotal.Add(float64(n))
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
