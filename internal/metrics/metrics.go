// Package metrics provides Prometheus collectors for the gateway and the chat relay.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector and the registry they are registered on.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	httpInFlight    prometheus.Gauge
	relayConns      prometheus.Gauge
	relayFrames     *prometheus.CounterVec
	storeCircuit    prometheus.Gauge
	webhookEvents   *prometheus.CounterVec
	sagaCompensated *prometheus.CounterVec
}

// New creates the collectors on a fresh registry. namespace prefixes every metric.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by service, method, route and status.",
		}, []string{"service", "method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "method", "path"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Requests currently being served.",
		}),
		relayConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_connections",
			Help:      "Live chat relay connections.",
		}),
		relayFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_frames_total",
			Help:      "Outbound relay frames by result (delivered, dropped, offline).",
		}, []string{"result"}),
		storeCircuit: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_circuit_state",
			Help:      "Store circuit breaker state (0 closed, 1 open, 2 half-open).",
		}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Payment webhook events by type and outcome.",
		}, []string{"type", "outcome"}),
		sagaCompensated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saga_compensations_total",
			Help:      "Multi-step writes rolled back by compensation.",
		}, []string{"saga"}),
	}

	m.registry.MustRegister(
		m.httpRequests, m.httpDuration, m.httpInFlight,
		m.relayConns, m.relayFrames, m.storeCircuit,
		m.webhookEvents, m.sagaCompensated,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncrementInFlight marks a request as started.
func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }

// DecrementInFlight marks a request as finished.
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

// RecordHTTPRequest records one completed request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.httpRequests.WithLabelValues(service, method, path, status).Inc()
	m.httpDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// SetRelayConnections sets the live connection gauge.
func (m *Metrics) SetRelayConnections(n int) { m.relayConns.Set(float64(n)) }

// RecordRelayFrame counts an outbound frame by result.
func (m *Metrics) RecordRelayFrame(result string) { m.relayFrames.WithLabelValues(result).Inc() }

// SetStoreCircuitState records the breaker state.
func (m *Metrics) SetStoreCircuitState(state int) { m.storeCircuit.Set(float64(state)) }

// RecordWebhookEvent counts a webhook delivery by event type and outcome.
func (m *Metrics) RecordWebhookEvent(eventType, outcome string) {
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordSagaCompensation counts a rolled back saga.
func (m *Metrics) RecordSagaCompensation(saga string) {
	m.sagaCompensated.WithLabelValues(saga).Inc()
}
