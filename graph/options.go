package graph

import (
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Option configures an Engine. Options are applied in order by New; the first
// option that returns an error makes New fail.
//
// Example:
//
//	engine, err := graph.New(reducer, st, emitter,
//	    graph.WithMaxSteps(20),
//	    graph.WithDefaultNodeTimeout(5*time.Minute),
//	    graph.WithCheckpointAfter("fetch"),
//	)
type Option func(*engineConfig) error

type engineConfig struct {
	maxSteps           int
	defaultNodeTimeout time.Duration
	runBudget          time.Duration
	policies           map[string]NodePolicy
	checkpointAfter    map[string]bool
	metrics            *PrometheusMetrics
	rng                *rand.Rand
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		policies:        make(map[string]NodePolicy),
		checkpointAfter: make(map[string]bool),
	}
}

// WithMaxSteps bounds the number of node executions in a run. Zero means no
// limit. Exceeding it fails the run with MAX_STEPS_EXCEEDED.
func WithMaxSteps(n int) Option {
	return func(cfg *engineConfig) error {
		if n < 0 {
			return errors.New("max steps must be >= 0")
		}
		cfg.maxSteps = n
		return nil
	}
}

// WithDefaultNodeTimeout applies a timeout to every node without its own
// NodePolicy.Timeout.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if d < 0 {
			return errors.New("default node timeout must be >= 0")
		}
		cfg.defaultNodeTimeout = d
		return nil
	}
}

// WithRunWallClockBudget bounds the duration of a whole Run.
func WithRunWallClockBudget(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if d < 0 {
			return errors.New("run wall clock budget must be >= 0")
		}
		cfg.runBudget = d
		return nil
	}
}

// WithNodePolicy sets the timeout and retry behavior of one node.
func WithNodePolicy(nodeID string, policy NodePolicy) Option {
	return func(cfg *engineConfig) error {
		if nodeID == "" {
			return errors.New("node policy requires a node ID")
		}
		if policy.RetryPolicy != nil {
			if err := policy.RetryPolicy.Validate(); err != nil {
				return fmt.Errorf("node %s: %w", nodeID, err)
			}
		}
		cfg.policies[nodeID] = policy
		return nil
	}
}

// WithCheckpointAfter saves a checkpoint named "<runID>@<nodeID>" after each
// listed node completes. See CheckpointID.
func WithCheckpointAfter(nodeIDs ...string) Option {
	return func(cfg *engineConfig) error {
		for _, id := range nodeIDs {
			cfg.checkpointAfter[id] = true
		}
		return nil
	}
}

// WithMetrics records step latency, retries and inflight nodes.
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.metrics = metrics
		return nil
	}
}

// WithRandSource fixes the jitter source used for retry backoff. Tests use it
// to make delays reproducible.
func WithRandSource(rng *rand.Rand) Option {
	return func(cfg *engineConfig) error {
		cfg.rng = rng
		return nil
	}
}
