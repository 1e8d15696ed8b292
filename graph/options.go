package graph

import (
	"fmt"
	"time"
)

// Option is a functional option for configuring an Engine.
//
// Example:
//
//	eng, err := graph.New(reducer, st, emitter,
//	    graph.WithMaxSteps(60),
//	    graph.WithDefaultNodeTimeout(5*time.Minute),
//	    graph.WithMetrics(metrics),
//	)
type Option func(*engineConfig) error

// engineConfig collects options before they are applied to an Engine.
type engineConfig struct {
	opts Options
}

// WithOptions applies a whole Options struct. Later options override it.
func WithOptions(o Options) Option {
	return func(cfg *engineConfig) error {
		cfg.opts = o
		return nil
	}
}

// WithMaxSteps limits the number of nodes a single Run executes.
//
// Graphs with loops should set this to roughly depth x max iterations; when
// it is exceeded Run returns an EngineError with code MAX_STEPS_EXCEEDED.
func WithMaxSteps(n int) Option {
	return func(cfg *engineConfig) error {
		if n < 0 {
			return fmt.Errorf("max steps must be >= 0, got %d", n)
		}
		cfg.opts.MaxSteps = n
		return nil
	}
}

// WithDefaultNodeTimeout bounds every node that has no NodePolicy.Timeout.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if d < 0 {
			return fmt.Errorf("default node timeout must be >= 0, got %v", d)
		}
		cfg.opts.DefaultNodeTimeout = d
		return nil
	}
}

// WithMetrics records step latency into m.
func WithMetrics(m *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.Metrics = m
		return nil
	}
}
