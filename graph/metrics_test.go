package graph

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kushal45/reviewgraph/graph/store"
)

func TestPrometheusMetrics_RecordsRuns(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	engine, err := New(reduceTest, store.NewMemStore[testState](), nil, WithMetrics(metrics))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	mustAdd(t, engine, "a", visit("a", Goto("b")))
	mustAdd(t, engine, "b", visit("b", Stop()))
	_ = engine.StartAt("a")

	if _, err := engine.Run(context.Background(), "run", testState{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := testutil.ToFloat64(metrics.runs.WithLabelValues("success")); got != 1 {
		t.Errorf("runs_total{success} = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(metrics.stepLatency); got != 2 {
		t.Errorf("step_latency series = %d, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.inflightNodes); got != 0 {
		t.Errorf("inflight_nodes = %v, want 0", got)
	}
}

func TestPrometheusMetrics_Disable(t *testing.T) {
	metrics := NewPrometheusMetrics(prometheus.NewRegistry())
	metrics.Disable()
	metrics.RecordRun("success")
	if got := testutil.ToFloat64(metrics.runs.WithLabelValues("success")); got != 0 {
		t.Errorf("runs_total while disabled = %v, want 0", got)
	}

	metrics.Enable()
	metrics.RecordRun("success")
	if got := testutil.ToFloat64(metrics.runs.WithLabelValues("success")); got != 1 {
		t.Errorf("runs_total after Enable = %v, want 1", got)
	}

	var nilMetrics *PrometheusMetrics
	nilMetrics.RecordRun("success")
}
