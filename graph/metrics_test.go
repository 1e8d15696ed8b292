package graph

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dshills/litreview/graph/store"
)

func TestPrometheusMetrics(t *testing.T) {
	t.Run("nil metrics are a no-op", func(t *testing.T) {
		var m *PrometheusMetrics
		m.RecordStepLatency("n", time.Millisecond, "success")
		m.IncrementRetries("search", "error")
		m.RecordItemOutcome("download", true)
		m.RecordTokens("model", 1, 2)
		m.Disable()
		m.Enable()
		m.Reset()
	})

	t.Run("records counters", func(t *testing.T) {
		m := NewPrometheusMetrics(prometheus.NewRegistry())

		m.IncrementRetries("search", "rate_limited")
		m.IncrementRetries("search", "rate_limited")
		m.RecordTokens("gemini-2.0-flash", 100, 40)

		if got := testutil.ToFloat64(m.retries.WithLabelValues("search", "rate_limited")); got != 2 {
			t.Errorf("expected 2 retries, got %v", got)
		}
		if got := testutil.ToFloat64(m.llmTokens.WithLabelValues("gemini-2.0-flash", "output")); got != 40 {
			t.Errorf("expected 40 output tokens, got %v", got)
		}
	})

	t.Run("disable stops recording", func(t *testing.T) {
		m := NewPrometheusMetrics(prometheus.NewRegistry())
		m.Disable()
		m.IncrementRetries("search", "error")
		m.Enable()
		m.IncrementRetries("search", "error")

		if got := testutil.ToFloat64(m.retries.WithLabelValues("search", "error")); got != 1 {
			t.Errorf("expected 1 retry, got %v", got)
		}

		m.Reset()
		if got := testutil.CollectAndCount(m.retries); got != 0 {
			t.Errorf("expected reset to clear series, got %d", got)
		}
	})

	t.Run("engine records step latency", func(t *testing.T) {
		m := NewPrometheusMetrics(prometheus.NewRegistry())
		eng := newLinearEngine(t, store.NewMemStore[TestState](), nil, WithMetrics(m))

		if _, err := eng.Run(context.Background(), "r", TestState{}); err != nil {
			t.Fatalf("Run: %v", err)
		}
		if got := testutil.CollectAndCount(m.stepLatency); got != 3 {
			t.Errorf("expected 3 latency series, got %d", got)
		}
	})
}
