// Package metrics exposes Prometheus instrumentation for the registry.
//
// Every Metrics value owns its own registry, so tests can build as many as
// they need without colliding on the default one.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "transform_registry"

// Write outcomes that are not an error kind.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Resolve results.
const (
	ResolveMatched    = "matched"
	ResolveNotMatched = "not_matched"
	ResolveFailed     = "failed"
)

// Metrics holds the registry's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	// WritesTotal counts define, delete and mark-processed calls.
	// Labels: operation, outcome (success or the rejecting error kind)
	WritesTotal *prometheus.CounterVec

	// ResolveDuration measures update-pipeline resolution.
	// Labels: result (matched, not_matched, failed)
	ResolveDuration *prometheus.HistogramVec

	// PlanSize observes how many transformations a resolved pipeline holds.
	PlanSize prometheus.Histogram

	// HTTPRequestsTotal counts served requests.
	// Labels: method, status
	HTTPRequestsTotal *prometheus.CounterVec
}

// New creates and registers all collectors on a fresh registry, along with
// the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		WritesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Registry write operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		ResolveDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolve_duration_seconds",
			Help:      "Duration of update-pipeline resolution",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"result"}),
		PlanSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolve_plan_transformations",
			Help:      "Transformations across all plans of a resolved pipeline",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served by method and status code",
		}, []string{"method", "status"}),
	}
}

// RecordWrite counts one write. outcome is OutcomeSuccess, an error kind, or
// OutcomeError for untyped failures.
func (m *Metrics) RecordWrite(operation, outcome string) {
	if m == nil {
		return
	}
	m.WritesTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveResolve records one resolution and, when matched, its size.
func (m *Metrics) ObserveResolve(result string, d time.Duration, transformations int) {
	if m == nil {
		return
	}
	m.ResolveDuration.WithLabelValues(result).Observe(d.Seconds())
	if result == ResolveMatched {
		m.PlanSize.Observe(float64(transformations))
	}
}

// RecordHTTP counts one served request.
func (m *Metrics) RecordHTTP(method, status string) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, status).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
