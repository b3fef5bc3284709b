package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "flarecast"
	subsystem = "insight"
)

// InsightCollector records analysis request lifecycle metrics. It satisfies
// insight.Observer.
type InsightCollector struct {
	registry *prometheus.Registry

	requests  *prometheus.CounterVec
	inFlight  prometheus.Gauge
	durations *prometheus.HistogramVec
}

// NewInsightCollector builds a collector on its own registry, together with
// the Go runtime and process collectors.
func NewInsightCollector() *InsightCollector {
	c := &InsightCollector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "Analysis requests by outcome (issued, skipped, success, failure, superseded, encoding_failure).",
		}, []string{"outcome"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "inflight",
			Help:      "Analysis requests currently awaiting the backend, superseded ones included.",
		}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "transport_duration_seconds",
			Help:      "Time from issuing an analysis request to its outcome.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"outcome"}),
	}
	c.registry.MustRegister(
		c.requests,
		c.inFlight,
		c.durations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// RequestIssued counts a request handed to the transport.
func (c *InsightCollector) RequestIssued() {
	c.requests.WithLabelValues("issued").Inc()
	c.inFlight.Inc()
}

// RequestSkipped counts a refresh the change detector suppressed.
func (c *InsightCollector) RequestSkipped() {
	c.requests.WithLabelValues("skipped").Inc()
}

// RequestFinished records a resolved request.
func (c *InsightCollector) RequestFinished(outcome string, elapsed time.Duration) {
	c.requests.WithLabelValues(outcome).Inc()
	// Encoding failures never reach the transport.
	if outcome == "encoding_failure" {
		return
	}
	c.inFlight.Dec()
	c.durations.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (c *InsightCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (c *InsightCollector) Registry() *prometheus.Registry {
	return c.registry
}
