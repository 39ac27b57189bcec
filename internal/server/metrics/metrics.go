// Package metrics holds the Prometheus collectors of the server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so that tests and several servers in one
// process do not collide on the default one.
type Metrics struct {
	registry     *prometheus.Registry
	sessionOps   *prometheus.CounterVec
	httpInFlight prometheus.Gauge
	httpDuration *prometheus.HistogramVec
	grpcRequests *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authkeeper",
			Name:      "session_operations_total",
			Help:      "Session operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "authkeeper",
			Name:      "http_in_flight_requests",
			Help:      "In-flight HTTP requests.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "authkeeper",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		grpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authkeeper",
			Name:      "grpc_requests_total",
			Help:      "gRPC requests by method and status code.",
		}, []string{"method", "code"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sessionOps,
		m.httpInFlight,
		m.httpDuration,
		m.grpcRequests,
	)

	return m
}

// Observe counts one session operation.
func (m *Metrics) Observe(op, outcome string) {
	m.sessionOps.WithLabelValues(op, outcome).Inc()
}

// HTTPStarted marks a request in flight and returns the function that
// records its completion.
func (m *Metrics) HTTPStarted() func(method, route, status string) {
	m.httpInFlight.Inc()
	start := time.Now()
	return func(method, route, status string) {
		m.httpInFlight.Dec()
		m.httpDuration.WithLabelValues(method, route, status).Observe(time.Since(start).Seconds())
	}
}

// GRPCHandled counts one finished gRPC call.
func (m *Metrics) GRPCHandled(method, code string) {
	m.grpcRequests.WithLabelValues(method, code).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
