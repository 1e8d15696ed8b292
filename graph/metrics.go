package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects workflow execution metrics.
//
// Metrics (namespace "litreview"):
//   - step_latency_ms{node_id,status}: node execution time
//   - retries_total{operation,reason}: retry attempts made by Retry callers
//   - inflight_workers: fan-out workers currently busy
//   - item_outcomes_total{stage,outcome}: per-item fan-out results
//   - llm_tokens_total{model,direction}: tokens consumed by LLM calls
//
// All methods are safe on a nil receiver so callers can treat metrics as
// optional.
//
// Expose via HTTP:
//
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type PrometheusMetrics struct {
	inflight     prometheus.Gauge
	stepLatency  *prometheus.HistogramVec
	retries      *prometheus.CounterVec
	itemOutcomes *prometheus.CounterVec
	llmTokens    *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers all metrics with registry.
// A nil registry means prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &PrometheusMetrics{
		enabled: true,

		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "litreview",
			Name:      "inflight_workers",
			Help:      "Fan-out workers currently processing an item",
		}),

		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "litreview",
			Name:      "step_latency_ms",
			Help:      "Node execution duration in milliseconds",
			Buckets:   []float64{1, 10, 100, 500, 1000, 5000, 15000, 60000, 300000},
		}, []string{"node_id", "status"}), // status: success, error, timeout

		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "litreview",
			Name:      "retries_total",
			Help:      "Retry attempts made for external calls",
		}, []string{"operation", "reason"}),

		itemOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "litreview",
			Name:      "item_outcomes_total",
			Help:      "Per-item fan-out results by stage",
		}, []string{"stage", "outcome"}), // outcome: ok, failed

		llmTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "litreview",
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed by LLM calls",
		}, []string{"model", "direction"}), // direction: input, output
	}
}

func (pm *PrometheusMetrics) active() bool {
	if pm == nil {
		return false
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// RecordStepLatency observes one node execution.
func (pm *PrometheusMetrics) RecordStepLatency(nodeID string, latency time.Duration, status string) {
	if !pm.active() {
		return
	}
	pm.stepLatency.WithLabelValues(nodeID, status).Observe(float64(latency.Milliseconds()))
}

// IncrementRetries counts one retry of operation.
func (pm *PrometheusMetrics) IncrementRetries(operation, reason string) {
	if !pm.active() {
		return
	}
	pm.retries.WithLabelValues(operation, reason).Inc()
}

// RecordItemOutcome counts one fan-out item result for stage.
func (pm *PrometheusMetrics) RecordItemOutcome(stage string, ok bool) {
	if !pm.active() {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	pm.itemOutcomes.WithLabelValues(stage, outcome).Inc()
}

// RecordTokens adds LLM token usage for model.
func (pm *PrometheusMetrics) RecordTokens(model string, input, output int) {
	if !pm.active() {
		return
	}
	pm.llmTokens.WithLabelValues(model, "input").Add(float64(input))
	pm.llmTokens.WithLabelValues(model, "output").Add(float64(output))
}

func (pm *PrometheusMetrics) addInflight(delta float64) {
	if !pm.active() {
		return
	}
	pm.inflight.Add(delta)
}

// Disable stops recording. Registered metrics keep their values.
func (pm *PrometheusMetrics) Disable() {
	if pm == nil {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable resumes recording.
func (pm *PrometheusMetrics) Enable() {
	if pm == nil {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

// Reset clears every recorded value.
func (pm *PrometheusMetrics) Reset() {
	if pm == nil {
		return
	}
	pm.inflight.Set(0)
	pm.stepLatency.Reset()
	pm.retries.Reset()
	pm.itemOutcomes.Reset()
	pm.llmTokens.Reset()
}
