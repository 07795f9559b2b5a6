package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects engine execution metrics.
//
// Metrics exposed (namespace "reviewgraph"):
//   - inflight_nodes: gauge of nodes currently executing
//   - step_latency_ms: histogram of node durations by node_id and status
//   - retries_total: counter of node retries by node_id and reason
//   - runs_total: counter of finished runs by status
type PrometheusMetrics struct {
	inflightNodes prometheus.Gauge
	stepLatency   *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	runs          *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics registers the engine metrics with registry, or with the
// default registerer when registry is nil.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		enabled: true,
		inflightNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "reviewgraph",
			Name:      "inflight_nodes",
			Help:      "Number of workflow nodes currently executing",
		}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reviewgraph",
			Name:      "step_latency_ms",
			Help:      "Workflow node execution duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000, 300000},
		}, []string{"node_id", "status"}), // status: success, error, timeout
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reviewgraph",
			Name:      "retries_total",
			Help:      "Workflow node retry attempts",
		}, []string{"node_id", "reason"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reviewgraph",
			Name:      "runs_total",
			Help:      "Finished workflow runs",
		}, []string{"status"}), // status: success, error
	}
}

func (pm *PrometheusMetrics) isEnabled() bool {
	if pm == nil {
		return false
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// RecordStepLatency observes one node execution.
func (pm *PrometheusMetrics) RecordStepLatency(nodeID string, latency time.Duration, status string) {
	if !pm.isEnabled() {
		return
	}
	pm.stepLatency.WithLabelValues(nodeID, status).Observe(float64(latency.Milliseconds()))
}

// IncrementRetries counts one retry of nodeID.
func (pm *PrometheusMetrics) IncrementRetries(nodeID, reason string) {
	if !pm.isEnabled() {
		return
	}
	pm.retries.WithLabelValues(nodeID, reason).Inc()
}

// AddInflight adjusts the inflight node gauge by delta.
func (pm *PrometheusMetrics) AddInflight(delta int) {
	if !pm.isEnabled() {
		return
	}
	pm.inflightNodes.Add(float64(delta))
}

// RecordRun counts a finished run.
func (pm *PrometheusMetrics) RecordRun(status string) {
	if !pm.isEnabled() {
		return
	}
	pm.runs.WithLabelValues(status).Inc()
}

// Disable stops recording. Registered collectors keep their values.
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable resumes recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}
