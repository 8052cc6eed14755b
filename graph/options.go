package graph

import (
	"errors"
	"time"
)

// Options configures Engine execution behavior.
//
// Zero values are valid: no step limit and no node timeout.
type Options struct {
	// MaxSteps limits the number of node executions per run. Graphs with a
	// cycle should always set it. If 0, no limit is enforced.
	MaxSteps int

	// DefaultNodeTimeout bounds every node without its own NodePolicy.Timeout.
	// If 0, nodes run until they return or the run context ends.
	DefaultNodeTimeout time.Duration
}

// Option is a functional option for configuring an Engine.
//
// Example:
//
//	engine, err := graph.New(g, st, emitter,
//	    graph.WithMaxSteps(50),
//	    graph.WithDefaultNodeTimeout(30*time.Second),
//	    graph.WithMetrics(metrics),
//	)
type Option func(*engineConfig) error

// engineConfig is an internal struct used to collect options before applying them to an Engine.
type engineConfig struct {
	opts    Options
	metrics *PrometheusMetrics
}

// WithOptions replaces the whole Options value. Later options still apply on top.
func WithOptions(opts Options) Option {
	return func(cfg *engineConfig) error {
		cfg.opts = opts
		return nil
	}
}

// WithMaxSteps limits workflow execution to prevent infinite loops.
//
// When MaxSteps is exceeded, Run returns an EngineError with code
// "MAX_STEPS_EXCEEDED" that matches ErrMaxStepsExceeded.
func WithMaxSteps(n int) Option {
	return func(cfg *engineConfig) error {
		if n < 0 {
			return errors.New("max steps must be >= 0")
		}
		cfg.opts.MaxSteps = n
		return nil
	}
}

// WithDefaultNodeTimeout sets the timeout applied to nodes without a policy.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if d < 0 {
			return errors.New("default node timeout must be >= 0")
		}
		cfg.opts.DefaultNodeTimeout = d
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection.
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.metrics = metrics
		return nil
	}
}
