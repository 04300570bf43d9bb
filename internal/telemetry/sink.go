// Package telemetry is the process-wide Prometheus-backed counters and
// histograms the Telemetry Sink component describes in spec.md §2: step
// success/failure, fallback rate, latency, LLM-unavailable ratio, ending
// distribution. Grounded on the Prometheus wiring pattern in
// dshills-langgraph-go/graph/metrics.go — a struct of promauto-registered
// metrics plus thin increment/observe methods.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sink holds every metric the engine exposes at GET /metrics.
type Sink struct {
	stepsTotal     *prometheus.CounterVec
	stepLatency    *prometheus.HistogramVec
	fallbacksTotal *prometheus.CounterVec
	llmUnavailable prometheus.Counter
	llmCalls       prometheus.Counter
	endingsTotal   *prometheus.CounterVec
}

// NewSink registers all engine metrics with registry (pass
// prometheus.DefaultRegisterer for the global registry, or a fresh
// prometheus.NewRegistry() for test isolation).
func NewSink(registry prometheus.Registerer) *Sink {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Sink{
		stepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storyengine",
			Name:      "steps_total",
			Help:      "Completed steps by outcome (success, error code)",
		}, []string{"outcome"}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storyengine",
			Name:      "step_latency_ms",
			Help:      "Step execution duration in milliseconds, from idempotency prepare to finalize",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"outcome"}),
		fallbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storyengine",
			Name:      "fallbacks_total",
			Help:      "Steps resolved via a fallback, by reason code",
		}, []string{"reason_code"}),
		llmUnavailable: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "storyengine",
			Name:      "llm_unavailable_total",
			Help:      "LLM Boundary calls that exhausted retries without a usable response",
		}),
		llmCalls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "storyengine",
			Name:      "llm_calls_total",
			Help:      "Total LLM Boundary calls attempted, successful or not",
		}),
		endingsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storyengine",
			Name:      "endings_total",
			Help:      "Runs that resolved an ending, by outcome and camp",
		}, []string{"outcome", "camp"}),
	}
}

// RecordStep records one completed (or failed) step's outcome and latency.
// outcome is "success" or a domain error code (e.g. "LLM_UNAVAILABLE",
// "SESSION_STEP_CONFLICT").
func (s *Sink) RecordStep(outcome string, latency time.Duration) {
	s.stepsTotal.WithLabelValues(outcome).Inc()
	s.stepLatency.WithLabelValues(outcome).Observe(float64(latency.Milliseconds()))
}

// RecordFallback records one fallback-resolved step.
func (s *Sink) RecordFallback(reasonCode string) {
	s.fallbacksTotal.WithLabelValues(reasonCode).Inc()
}

// RecordLLMCall records one LLM Boundary attempt and, if it failed
// terminally, one unavailable event.
func (s *Sink) RecordLLMCall(unavailable bool) {
	s.llmCalls.Inc()
	if unavailable {
		s.llmUnavailable.Inc()
	}
}

// RecordEnding records one resolved run ending.
func (s *Sink) RecordEnding(outcome, camp string) {
	s.endingsTotal.WithLabelValues(outcome, camp).Inc()
}
