// Package metrics exposes Prometheus collectors for the HTTP surface.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sagarc03/strongbox"
)

const namespace = "strongbox"

// Capability verification outcomes.
const (
	OutcomeAuthorized = "authorized"
	OutcomeMalformed  = "malformed"
	OutcomeInvalid    = "invalid"
	OutcomeExpired    = "expired"
	OutcomeError      = "error"
)

// Metrics owns a private registry so tests and multiple servers in one
// process never collide on the global one.
type Metrics struct {
	registry     *prometheus.Registry
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	capabilities *prometheus.CounterVec
	uploadBytes  prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		capabilities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_verifications_total",
			Help:      "Presigned URL verifications by outcome.",
		}, []string{"outcome"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_bytes_total",
			Help:      "Bytes accepted by successful uploads.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.duration,
		m.capabilities,
		m.uploadBytes,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Register attaches the metrics endpoint to the router.
func Register(r chi.Router, path string, m *Metrics) {
	r.Method(http.MethodGet, path, m.Handler())
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveCapability records the outcome of one capability verification.
func (m *Metrics) ObserveCapability(err error) {
	m.capabilities.WithLabelValues(CapabilityOutcome(err)).Inc()
}

func (m *Metrics) ObserveUpload(size int64) {
	m.uploadBytes.Add(float64(size))
}

// CapabilityOutcome classifies a verification result into a label value.
func CapabilityOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeAuthorized
	case errors.Is(err, strongbox.ErrCapabilityMalformed):
		return OutcomeMalformed
	case errors.Is(err, strongbox.ErrCapabilityExpired):
		return OutcomeExpired
	case errors.Is(err, strongbox.ErrCapabilityInvalid):
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}
