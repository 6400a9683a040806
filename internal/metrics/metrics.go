// Package metrics exposes Prometheus collectors on a dedicated registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhouzirui/drafting/backend/internal/model/document"
)

const namespace = "drafting"

// Collector holds the service metrics.
type Collector struct {
	registry *prometheus.Registry

	generationRequests *prometheus.CounterVec
	generationLatency  *prometheus.HistogramVec
	generationErrors   *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	streamConnections prometheus.Gauge
}

// New registers all collectors on a fresh registry, plus the Go and process collectors.
func New() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.generationRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_total",
			Help:      "Document generation requests by type and outcome",
		},
		[]string{"doc_type", "outcome"},
	)

	c.generationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_latency_seconds",
			Help:      "Latency of generation backend calls",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"doc_type"},
	)

	c.generationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_errors_total",
			Help:      "Classified generation failures",
		},
		[]string{"category"},
	)

	c.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	c.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	c.streamConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audit_stream_connections",
			Help:      "Open admin audit stream connections",
		},
	)

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.generationRequests,
		c.generationLatency,
		c.generationErrors,
		c.httpRequestsTotal,
		c.httpRequestDuration,
		c.streamConnections,
	)

	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveGeneration records one generation attempt.
func (c *Collector) ObserveGeneration(docType document.DocType, outcome string, elapsed time.Duration) {
	c.generationRequests.WithLabelValues(string(docType), outcome).Inc()
	c.generationLatency.WithLabelValues(string(docType)).Observe(elapsed.Seconds())
}

// IncGenerationError counts a classified failure.
func (c *Collector) IncGenerationError(category string) {
	c.generationErrors.WithLabelValues(category).Inc()
}

// ObserveHTTP records one served request. route is the chi route pattern.
func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// StreamOpened and StreamClosed track live audit stream connections.
func (c *Collector) StreamOpened() { c.streamConnections.Inc() }
func (c *Collector) StreamClosed() { c.streamConnections.Dec() }
