// Package telemetry exposes Prometheus metrics and OpenTelemetry tracing
// for the bot. Metrics live in a private registry so tests can create as
// many instances as they need.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flemzord/membot/internal/memory"
)

const namespace = "membot"

// Message outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	messages    *prometheus.CounterVec
	memoryOps   *prometheus.CounterVec
	evictions   *prometheus.CounterVec
	completion  prometheus.Histogram
	promptSize  prometheus.Histogram
	running     prometheus.Gauge
	extractions *prometheus.CounterVec
}

var _ memory.Observer = (*Metrics)(nil)

// NewMetrics registers the collectors in a fresh registry, together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages handled by the responder, by outcome.",
		}, []string{"outcome"}),
		memoryOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_ops_total",
			Help:      "Memory store operations, by operation and outcome.",
		}, []string{"op", "outcome"}),
		evictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_evictions_total",
			Help:      "Rows removed by retention caps and sweeps, by kind.",
		}, []string{"kind"}),
		completion: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_seconds",
			Help:      "Latency of completion provider calls.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		promptSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prompt_tokens",
			Help:      "Estimated size of built prompts in tokens.",
			Buckets:   prometheus.ExponentialBuckets(64, 2, 10),
		}),
		running: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bot_running",
			Help:      "1 when the bot runtime accepts messages.",
		}),
		extractions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "facts_extracted_total",
			Help:      "Facts recorded by automatic extraction, by outcome.",
		}, []string{"outcome"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveMessage counts one handled message.
func (m *Metrics) ObserveMessage(outcome string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(outcome).Inc()
}

// ObserveMemoryOp implements memory.Observer.
func (m *Metrics) ObserveMemoryOp(op string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.memoryOps.WithLabelValues(op, outcome).Inc()
}

// ObserveEviction implements memory.Observer.
func (m *Metrics) ObserveEviction(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evictions.WithLabelValues(kind).Add(float64(n))
}

// ObserveCompletion records the latency of one provider call.
func (m *Metrics) ObserveCompletion(d time.Duration) {
	if m == nil {
		return
	}
	m.completion.Observe(d.Seconds())
}

// ObservePromptTokens records the estimated size of a built prompt.
func (m *Metrics) ObservePromptTokens(n int) {
	if m == nil {
		return
	}
	m.promptSize.Observe(float64(n))
}

// ObserveExtraction counts facts recorded (or rejected) by extraction.
func (m *Metrics) ObserveExtraction(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.extractions.WithLabelValues(outcome).Add(float64(n))
}

// SetRunning reports whether the bot runtime accepts messages.
func (m *Metrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.running.Set(1)
		return
	}
	m.running.Set(0)
}
