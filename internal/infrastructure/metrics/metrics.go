package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/doeshing/preauth-guard/internal/domain"
	"github.com/doeshing/preauth-guard/internal/ports"
)

// Metrics provides observability for gates, verifications and the HTTP API.
// Each instance owns its registry so tests can build as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	GatesFired           *prometheus.CounterVec
	Verifications        *prometheus.CounterVec
	CollaboratorFailures *prometheus.CounterVec
	HTTPRequests         *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
}

// New creates a Metrics instance with every metric registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		GatesFired: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pguard_gates_fired_total",
			Help: "Total number of guardrail gates that fired, by pipeline and gate",
		}, []string{"pipeline", "gate"}),
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pguard_verifications_total",
			Help: "Total number of policy verifications, by outcome status",
		}, []string{"status"}),
		CollaboratorFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pguard_collaborator_failures_total",
			Help: "Total number of failed collaborator calls",
		}, []string{"collaborator"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pguard_http_requests_total",
			Help: "Total number of HTTP API requests, by route and status code",
		}, []string{"route", "code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pguard_http_request_duration_seconds",
			Help:    "Duration of HTTP API requests",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
		}, []string{"route"}),
	}
}

// GateFired implements ports.GateRecorder.
func (m *Metrics) GateFired(pipeline, gate string) {
	m.GatesFired.WithLabelValues(pipeline, gate).Inc()
}

// VerificationCompleted implements ports.GateRecorder.
func (m *Metrics) VerificationCompleted(status domain.VerificationStatus) {
	m.Verifications.WithLabelValues(string(status)).Inc()
}

// CollaboratorFailed implements ports.GateRecorder.
func (m *Metrics) CollaboratorFailed(collaborator string) {
	m.CollaboratorFailures.WithLabelValues(collaborator).Inc()
}

// ObserveRequest records one HTTP request. Call with time.Now() at the start.
func (m *Metrics) ObserveRequest(route string, code int, start time.Time) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

var _ ports.GateRecorder = (*Metrics)(nil)
