// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build as many as they like
// without tripping duplicate-registration panics on the global one.
//
// All methods are safe on a nil *Metrics, which turns them into no-ops.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	ListingMutations *prometheus.CounterVec
}

// New creates and registers all collectors under namespace.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route pattern and status code.",
	}, []string{"method", "route", "status"})

	httpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	listingMutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "listing_mutations_total",
		Help:      "Successful listing writes by operation.",
	}, []string{"op"})

	registry.MustRegister(
		httpRequests,
		httpDuration,
		listingMutations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		Registry:         registry,
		HTTPRequests:     httpRequests,
		HTTPDuration:     httpDuration,
		ListingMutations: listingMutations,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ListingCreated() { m.listing("create") }
func (m *Metrics) ListingUpdated() { m.listing("update") }
func (m *Metrics) ListingDeleted() { m.listing("delete") }

func (m *Metrics) listing(op string) {
	if m == nil {
		return
	}
	m.ListingMutations.WithLabelValues(op).Inc()
}
