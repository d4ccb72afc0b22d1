// Package monitoring - metrics.go exposes gateway metrics to Prometheus.
//
// DESIGN: Metrics owns its own registry so tests can build isolated
// instances. All methods are safe on a nil receiver, which is how callers
// run with metrics disabled.
//
//   - gateway_requests_total{route,stream,status}
//   - gateway_request_duration_seconds{route,stream}
//   - gateway_tokens_total{kind}
//   - gateway_inflight_requests
//   - gateway_usage_events_dropped_total
//   - gateway_usage_publish_failures_total{sink}
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gateway"

// Metrics collects operational metrics.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	tokens          *prometheus.CounterVec
	inFlight        prometheus.Gauge
	eventsDropped   prometheus.Counter
	publishFailures *prometheus.CounterVec
}

// NewMetrics registers the gateway metrics on a fresh registry, along with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests handled, by route, stream mode and final status.",
		}, []string{"route", "stream", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from request receipt to the last byte sent to the client.",
			// LLM calls run from sub-second to several minutes.
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"route", "stream"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens reported by upstream, by kind.",
		}, []string{"kind"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_requests",
			Help:      "Requests currently being relayed.",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_events_dropped_total",
			Help:      "Usage events dropped because the emitter queue was full.",
		}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_publish_failures_total",
			Help:      "Usage event publish failures, by sink.",
		}, []string{"sink"}),
	}
	reg.MustRegister(
		m.requests, m.duration, m.tokens, m.inFlight, m.eventsDropped, m.publishFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one finished request.
func (m *Metrics) ObserveRequest(route string, stream bool, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	s := strconv.FormatBool(stream)
	m.requests.WithLabelValues(route, s, status).Inc()
	m.duration.WithLabelValues(route, s).Observe(elapsed.Seconds())
}

// AddTokens adds upstream token counts.
func (m *Metrics) AddTokens(input, output, cacheCreation, cacheRead int) {
	if m == nil {
		return
	}
	add := func(kind string, n int) {
		if n > 0 {
			m.tokens.WithLabelValues(kind).Add(float64(n))
		}
	}
	add("input", input)
	add("output", output)
	add("cache_creation", cacheCreation)
	add("cache_read", cacheRead)
}

// InFlightInc marks a request as started.
func (m *Metrics) InFlightInc() {
	if m != nil {
		m.inFlight.Inc()
	}
}

// InFlightDec marks a request as finished.
func (m *Metrics) InFlightDec() {
	if m != nil {
		m.inFlight.Dec()
	}
}

// EventDropped counts a usage event dropped on a full queue.
func (m *Metrics) EventDropped() {
	if m != nil {
		m.eventsDropped.Inc()
	}
}

// PublishFailed counts a failed publish to the named sink.
func (m *Metrics) PublishFailed(sink string) {
	if m != nil {
		m.publishFailures.WithLabelValues(sink).Inc()
	}
}
