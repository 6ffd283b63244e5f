package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label values shared by the auth metrics.
const (
	ResultSuccess       = "success"
	ResultFailure       = "failure"
	ResultStale         = "stale"
	ResultKeyNotFound   = "key_not_found"
	ResultInvalid       = "invalid"
	ResultKeyFetchError = "key_fetch_error"
)

// Metrics holds the gateway's Prometheus collectors on a private registry.
// All record methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	keyFetchTotal      *prometheus.CounterVec
	verificationsTotal *prometheus.CounterVec
	authorizationTotal *prometheus.CounterVec
}

// NewMetrics creates and registers every collector.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_gateway_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "identity_gateway_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		keyFetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_gateway_jwks_fetch_total",
				Help: "Signing key set fetches by result",
			},
			[]string{"result"},
		),
		verificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_gateway_token_verifications_total",
				Help: "Bearer token verifications by result",
			},
			[]string{"result"},
		),
		authorizationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_gateway_role_checks_total",
				Help: "Role gate decisions by role and outcome",
			},
			[]string{"role", "allowed"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestsTotal,
		m.requestDuration,
		m.keyFetchTotal,
		m.verificationsTotal,
		m.authorizationTotal,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records a served HTTP request.
func (m *Metrics) RecordRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordKeyFetch records the outcome of a signing key set fetch.
func (m *Metrics) RecordKeyFetch(result string) {
	if m == nil {
		return
	}
	m.keyFetchTotal.WithLabelValues(result).Inc()
}

// RecordVerification records the outcome of a bearer token verification.
func (m *Metrics) RecordVerification(result string) {
	if m == nil {
		return
	}
	m.verificationsTotal.WithLabelValues(result).Inc()
}

// RecordRoleCheck records a role gate decision.
func (m *Metrics) RecordRoleCheck(role string, allowed bool) {
	if m == nil {
		return
	}
	m.authorizationTotal.WithLabelValues(role, strconv.FormatBool(allowed)).Inc()
}
