package graph

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kushal45/reviewgraph/graph/emit"
	"github.com/kushal45/reviewgraph/graph/store"
)

type testState struct {
	Path    []string `json:"path"`
	Counter int      `json:"counter"`
	Failed  bool     `json:"failed"`
}

func reduceTest(prev, delta testState) testState {
	prev.Path = append(prev.Path, delta.Path...)
	prev.Counter += delta.Counter
	if delta.Failed {
		prev.Failed = true
	}
	return prev
}

func visit(name string, route Next) Node[testState] {
	return NodeFunc[testState](func(_ context.Context, _ testState) NodeResult[testState] {
		return NodeResult[testState]{Delta: testState{Path: []string{name}, Counter: 1}, Route: route}
	})
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine[testState], *store.MemStore[testState], *emit.BufferedEmitter) {
	t.Helper()
	st := store.NewMemStore[testState]()
	emitter := emit.NewBufferedEmitter()
	engine, err := New(reduceTest, st, emitter, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return engine, st, emitter
}

func mustAdd(t *testing.T, engine *Engine[testState], id string, node Node[testState]) {
	t.Helper()
	if err := engine.Add(id, node); err != nil {
		t.Fatalf("Add(%q) failed: %v", id, err)
	}
}

func TestNew_Validation(t *testing.T) {
	st := store.NewMemStore[testState]()

	if _, err := New[testState](nil, st, nil); ErrorCode(err) != "MISSING_REDUCER" {
		t.Errorf("nil reducer code = %q, want MISSING_REDUCER", ErrorCode(err))
	}
	if _, err := New[testState](reduceTest, nil, nil); ErrorCode(err) != "MISSING_STORE" {
		t.Errorf("nil store code = %q, want MISSING_STORE", ErrorCode(err))
	}
	if _, err := New(reduceTest, st, nil, WithMaxSteps(-1)); ErrorCode(err) != "INVALID_OPTION" {
		t.Errorf("negative max steps code = %q, want INVALID_OPTION", ErrorCode(err))
	}
	bad := NodePolicy{RetryPolicy: &RetryPolicy{MaxAttempts: 0}}
	if _, err := New(reduceTest, st, nil, WithNodePolicy("n", bad)); !errors.Is(err, ErrInvalidRetryPolicy) {
		t.Errorf("invalid retry policy error = %v, want ErrInvalidRetryPolicy", err)
	}
}

func TestEngine_AddAndStart(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	if err := engine.Add("", visit("x", Stop())); err == nil {
		t.Error("expected error for empty node ID")
	}
	mustAdd(t, engine, "a", visit("a", Stop()))
	if err := engine.Add("a", visit("a", Stop())); ErrorCode(err) != "DUPLICATE_NODE" {
		t.Errorf("duplicate Add code = %q, want DUPLICATE_NODE", ErrorCode(err))
	}
	if err := engine.StartAt("missing"); ErrorCode(err) != "NODE_NOT_FOUND" {
		t.Errorf("StartAt(missing) code = %q, want NODE_NOT_FOUND", ErrorCode(err))
	}
	if _, err := engine.Run(context.Background(), "run", testState{}); ErrorCode(err) != "NO_START_NODE" {
		t.Errorf("Run without start code = %q, want NO_START_NODE", ErrorCode(err))
	}
}

func TestEngine_RunFollowsRoutesAndEdges(t *testing.T) {
	engine, st, emitter := newTestEngine(t)

	mustAdd(t, engine, "fetch", visit("fetch", Next{}))
	mustAdd(t, engine, "analyze", visit("analyze", Goto("report")))
	mustAdd(t, engine, "report", visit("report", Stop()))
	mustAdd(t, engine, "handle_error", visit("handle_error", Stop()))

	_ = engine.Connect("fetch", "handle_error", func(s testState) bool { return s.Failed })
	_ = engine.Connect("fetch", "analyze", nil)
	_ = engine.StartAt("fetch")

	final, err := engine.Run(context.Background(), "run-1", testState{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{"fetch", "analyze", "report"}
	if len(final.Path) != len(want) {
		t.Fatalf("Path = %v, want %v", final.Path, want)
	}
	for i := range want {
		if final.Path[i] != want[i] {
			t.Errorf("Path[%d] = %q, want %q", i, final.Path[i], want[i])
		}
	}

	if got := st.Steps("run-1"); len(got) != 3 {
		t.Errorf("persisted steps = %v, want 3 entries", got)
	}
	if got := emitter.GetHistoryWithFilter("run-1", emit.HistoryFilter{Msg: "run_complete"}); len(got) != 1 {
		t.Errorf("run_complete events = %d, want 1", len(got))
	}
}

func TestEngine_PredicateRoutesToErrorHandler(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	mustAdd(t, engine, "fetch", NodeFunc[testState](func(_ context.Context, _ testState) NodeResult[testState] {
		return NodeResult[testState]{Delta: testState{Path: []string{"fetch"}, Failed: true}}
	}))
	mustAdd(t, engine, "analyze", visit("analyze", Stop()))
	mustAdd(t, engine, "handle_error", visit("handle_error", Stop()))
	failed := Predicate[testState](func(s testState) bool { return s.Failed })
	_ = engine.Connect("fetch", "handle_error", failed)
	_ = engine.Connect("fetch", "analyze", Not(failed))
	_ = engine.StartAt("fetch")

	final, err := engine.Run(context.Background(), "run", testState{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := final.Path[len(final.Path)-1]; got != "handle_error" {
		t.Errorf("last node = %q, want handle_error", got)
	}
}

func TestEngine_NoRoute(t *testing.T) {
	engine, _, emitter := newTestEngine(t)
	mustAdd(t, engine, "a", visit("a", Next{}))
	_ = engine.StartAt("a")

	final, err := engine.Run(context.Background(), "run", testState{})
	if ErrorCode(err) != "NO_ROUTE" {
		t.Fatalf("code = %q, want NO_ROUTE (err = %v)", ErrorCode(err), err)
	}
	if len(final.Path) != 1 {
		t.Errorf("partial state Path = %v, want [a]", final.Path)
	}
	if got := emitter.GetHistoryWithFilter("run", emit.HistoryFilter{Msg: "node_error"}); len(got) != 1 {
		t.Errorf("node_error events = %d, want 1", len(got))
	}
}

func TestEngine_MaxSteps(t *testing.T) {
	engine, _, _ := newTestEngine(t, WithMaxSteps(5))
	mustAdd(t, engine, "loop", visit("loop", Goto("loop")))
	_ = engine.StartAt("loop")

	final, err := engine.Run(context.Background(), "run", testState{})
	if !errors.Is(err, ErrMaxStepsExceeded) {
		t.Fatalf("error = %v, want ErrMaxStepsExceeded", err)
	}
	if final.Counter != 5 {
		t.Errorf("Counter = %d, want 5", final.Counter)
	}
}

func TestEngine_NodeErrorIsWrapped(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	boom := errors.New("boom")
	mustAdd(t, engine, "bad", NodeFunc[testState](func(_ context.Context, _ testState) NodeResult[testState] {
		return NodeResult[testState]{Err: boom}
	}))
	_ = engine.StartAt("bad")

	_, err := engine.Run(context.Background(), "run", testState{})
	var nodeErr *NodeError
	if !errors.As(err, &nodeErr) {
		t.Fatalf("error = %T, want *NodeError", err)
	}
	if nodeErr.NodeID != "bad" {
		t.Errorf("NodeID = %q, want bad", nodeErr.NodeID)
	}
	if !errors.Is(err, boom) {
		t.Error("expected error chain to contain the node's error")
	}
}

func TestEngine_NodeTimeout(t *testing.T) {
	engine, _, _ := newTestEngine(t, WithDefaultNodeTimeout(20*time.Millisecond))
	mustAdd(t, engine, "slow", NodeFunc[testState](func(ctx context.Context, _ testState) NodeResult[testState] {
		<-ctx.Done()
		return NodeResult[testState]{Err: ctx.Err()}
	}))
	_ = engine.StartAt("slow")

	_, err := engine.Run(context.Background(), "run", testState{})
	if ErrorCode(err) != "NODE_TIMEOUT" {
		t.Errorf("code = %q, want NODE_TIMEOUT (err = %v)", ErrorCode(err), err)
	}
}

func TestEngine_RetryPolicy(t *testing.T) {
	transient := errors.New("transient")
	var calls atomic.Int32

	engine, _, emitter := newTestEngine(t,
		WithRandSource(rand.New(rand.NewSource(1))),
		WithNodePolicy("flaky", NodePolicy{RetryPolicy: &RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
			Retryable:   func(err error) bool { return errors.Is(err, transient) },
		}}),
	)
	mustAdd(t, engine, "flaky", NodeFunc[testState](func(_ context.Context, _ testState) NodeResult[testState] {
		if calls.Add(1) < 3 {
			return NodeResult[testState]{Err: transient}
		}
		return NodeResult[testState]{Delta: testState{Counter: 1}, Route: Stop()}
	}))
	_ = engine.StartAt("flaky")

	final, err := engine.Run(context.Background(), "run", testState{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if final.Counter != 1 {
		t.Errorf("Counter = %d, want 1", final.Counter)
	}
	if got := emitter.GetHistoryWithFilter("run", emit.HistoryFilter{Msg: "node_retry"}); len(got) != 2 {
		t.Errorf("node_retry events = %d, want 2", len(got))
	}
}

func TestEngine_RetryStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("permanent")
	var calls atomic.Int32

	engine, _, _ := newTestEngine(t, WithNodePolicy("n", NodePolicy{RetryPolicy: &RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		Retryable:   func(error) bool { return false },
	}}))
	mustAdd(t, engine, "n", NodeFunc[testState](func(_ context.Context, _ testState) NodeResult[testState] {
		calls.Add(1)
		return NodeResult[testState]{Err: permanent}
	}))
	_ = engine.StartAt("n")

	if _, err := engine.Run(context.Background(), "run", testState{}); !errors.Is(err, permanent) {
		t.Errorf("error = %v, want permanent", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestEngine_ContextCanceled(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	mustAdd(t, engine, "a", visit("a", Stop()))
	_ = engine.StartAt("a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.Run(ctx, "run", testState{}); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestEngine_CheckpointAndResume(t *testing.T) {
	engine, _, emitter := newTestEngine(t, WithCheckpointAfter("fetch"))

	var analyzeRuns atomic.Int32
	mustAdd(t, engine, "fetch", visit("fetch", Goto("analyze")))
	mustAdd(t, engine, "analyze", NodeFunc[testState](func(_ context.Context, _ testState) NodeResult[testState] {
		analyzeRuns.Add(1)
		return NodeResult[testState]{Delta: testState{Path: []string{"analyze"}}, Route: Stop()}
	}))
	_ = engine.StartAt("fetch")

	ctx := context.Background()
	if _, err := engine.Run(ctx, "run-1", testState{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := emitter.GetHistoryWithFilter("run-1", emit.HistoryFilter{Msg: "checkpoint_saved"}); len(got) != 1 {
		t.Fatalf("checkpoint_saved events = %d, want 1", len(got))
	}

	final, err := engine.ResumeFromCheckpoint(ctx, CheckpointID("run-1", "fetch"), "run-2", "analyze")
	if err != nil {
		t.Fatalf("ResumeFromCheckpoint failed: %v", err)
	}
	if len(final.Path) != 2 || final.Path[0] != "fetch" || final.Path[1] != "analyze" {
		t.Errorf("Path = %v, want [fetch analyze]", final.Path)
	}
	if analyzeRuns.Load() != 2 {
		t.Errorf("analyze runs = %d, want 2", analyzeRuns.Load())
	}

	if _, err := engine.ResumeFromCheckpoint(ctx, "missing", "run-3", "analyze"); ErrorCode(err) != "STORE_ERROR" {
		t.Errorf("missing checkpoint code = %q, want STORE_ERROR", ErrorCode(err))
	}

	if _, err := engine.ResumeFromCheckpoint(ctx, CheckpointID("run-1", "fetch"), "run-4", "nope"); ErrorCode(err) != "NODE_NOT_FOUND" {
		t.Errorf("unknown resume node code = %q, want NODE_NOT_FOUND", ErrorCode(err))
	}
}
