package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kushal45/reviewgraph/graph/emit"
	"github.com/kushal45/reviewgraph/graph/store"
)

// Engine executes a workflow graph over a state type S.
//
// The engine runs one node at a time: it executes the current node under its
// timeout and retry policy, merges the node's Delta through the reducer,
// persists the merged state, emits events and picks the next node from the
// node's explicit Route or, failing that, from the first matching edge.
//
// Example:
//
//	engine, err := graph.New(reduce, store.NewMemStore[State](), emitter, graph.WithMaxSteps(20))
//	_ = engine.Add("fetch", fetchNode)
//	_ = engine.Add("analyze", analyzeNode)
//	_ = engine.Connect("fetch", "analyze", nil)
//	_ = engine.StartAt("fetch")
//	final, err := engine.Run(ctx, runID, State{})
type Engine[S any] struct {
	mu        sync.RWMutex
	reducer   Reducer[S]
	nodes     map[string]Node[S]
	edges     []Edge[S]
	startNode string

	store   store.Store[S]
	emitter emit.Emitter
	cfg     engineConfig
}

// New creates an engine. The emitter may be nil.
func New[S any](reducer Reducer[S], st store.Store[S], emitter emit.Emitter, opts ...Option) (*Engine[S], error) {
	if reducer == nil {
		return nil, &EngineError{Message: "reducer is required", Code: "MISSING_REDUCER"}
	}
	if st == nil {
		return nil, &EngineError{Message: "store is required", Code: "MISSING_STORE"}
	}
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}

	cfg := defaultEngineConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, &EngineError{Message: err.Error(), Code: "INVALID_OPTION", Cause: err}
		}
	}

	return &Engine[S]{
		reducer: reducer,
		nodes:   make(map[string]Node[S]),
		store:   st,
		emitter: emitter,
		cfg:     cfg,
	}, nil
}

// Add registers a node under a unique id.
func (e *Engine[S]) Add(nodeID string, node Node[S]) error {
	if nodeID == "" {
		return &EngineError{Message: "node ID cannot be empty"}
	}
	if node == nil {
		return &EngineError{Message: "node cannot be nil"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; exists {
		return &EngineError{Message: "duplicate node ID: " + nodeID, Code: "DUPLICATE_NODE"}
	}
	e.nodes[nodeID] = node
	return nil
}

// StartAt sets the entry node. The node must already be registered.
func (e *Engine[S]) StartAt(nodeID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; !exists {
		return &EngineError{Message: "start node does not exist: " + nodeID, Code: "NODE_NOT_FOUND"}
	}
	e.startNode = nodeID
	return nil
}

// Connect adds an edge from one node to another. Edges are evaluated in the
// order they were added and only when the source node returned no Route.
// A nil predicate always matches.
func (e *Engine[S]) Connect(from, to string, when Predicate[S]) error {
	if from == "" || to == "" {
		return &EngineError{Message: "edge endpoints cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.edges = append(e.edges, Edge[S]{From: from, To: to, When: when})
	return nil
}

// Run executes the workflow from the start node.
//
// On failure Run returns the state accumulated so far together with the
// error, so callers can still inspect what completed.
func (e *Engine[S]) Run(ctx context.Context, runID string, initial S) (S, error) {
	e.mu.RLock()
	start := e.startNode
	e.mu.RUnlock()

	if start == "" {
		return initial, &EngineError{Message: "start node not set (call StartAt before Run)", Code: "NO_START_NODE"}
	}
	return e.execute(ctx, runID, initial, start, 0)
}

// ResumeFromCheckpoint loads checkpoint cpID and continues execution at
// startNode under newRunID. Step numbering continues from the checkpoint.
func (e *Engine[S]) ResumeFromCheckpoint(ctx context.Context, cpID, newRunID, startNode string) (S, error) {
	state, step, err := e.store.LoadCheckpoint(ctx, cpID)
	if err != nil {
		var zero S
		return zero, &EngineError{Message: "load checkpoint " + cpID + ": " + err.Error(), Code: "STORE_ERROR", Cause: err}
	}

	e.mu.RLock()
	_, exists := e.nodes[startNode]
	e.mu.RUnlock()
	if !exists {
		return state, &EngineError{Message: "resume node does not exist: " + startNode, Code: "NODE_NOT_FOUND"}
	}

	e.emitter.Emit(emit.Event{
		RunID:  newRunID,
		Step:   step,
		NodeID: startNode,
		Msg:    "run_resumed",
		Meta:   map[string]interface{}{"checkpoint_id": cpID},
	})
	return e.execute(ctx, newRunID, state, startNode, step)
}

// CheckpointID is the id WithCheckpointAfter uses for nodeID in runID.
func CheckpointID(runID, nodeID string) string {
	return runID + "@" + nodeID
}

func (e *Engine[S]) execute(ctx context.Context, runID string, state S, current string, step int) (S, error) {
	if e.cfg.runBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.runBudget)
		defer cancel()
	}

	executed := 0
	for {
		executed++
		step++

		if e.cfg.maxSteps > 0 && executed > e.cfg.maxSteps {
			return state, e.fail(runID, step, current, &EngineError{
				Message: fmt.Sprintf("workflow exceeded MaxSteps limit of %d", e.cfg.maxSteps),
				Code:    "MAX_STEPS_EXCEEDED",
				Cause:   ErrMaxStepsExceeded,
			})
		}
		if err := ctx.Err(); err != nil {
			return state, e.fail(runID, step, current, err)
		}

		e.mu.RLock()
		node, exists := e.nodes[current]
		e.mu.RUnlock()
		if !exists {
			return state, e.fail(runID, step, current, &EngineError{
				Message: "node not found during execution: " + current,
				Code:    "NODE_NOT_FOUND",
			})
		}

		result := e.runNode(ctx, runID, step, current, node, state)
		if result.Err != nil {
			return state, e.fail(runID, step, current, wrapNodeError(current, result.Err))
		}

		state = e.reducer(state, result.Delta)

		if err := e.store.SaveStep(ctx, runID, step, current, state); err != nil {
			return state, e.fail(runID, step, current, &EngineError{
				Message: "failed to save step: " + err.Error(),
				Code:    "STORE_ERROR",
				Cause:   err,
			})
		}

		if e.cfg.checkpointAfter[current] {
			cpID := CheckpointID(runID, current)
			if err := e.store.SaveCheckpoint(ctx, cpID, state, step); err != nil {
				return state, e.fail(runID, step, current, &EngineError{
					Message: "failed to save checkpoint: " + err.Error(),
					Code:    "STORE_ERROR",
					Cause:   err,
				})
			}
			e.emitter.Emit(emit.Event{
				RunID: runID, Step: step, NodeID: current, Msg: "checkpoint_saved",
				Meta: map[string]interface{}{"checkpoint_id": cpID},
			})
		}

		if result.Route.Terminal {
			e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: current, Msg: "run_complete"})
			e.cfg.metrics.RecordRun("success")
			return state, nil
		}

		next := result.Route.To
		if next == "" {
			next = e.evaluateEdges(current, state)
		}
		if next == "" {
			return state, e.fail(runID, step, current, &EngineError{
				Message: "no valid route from node: " + current,
				Code:    "NO_ROUTE",
			})
		}
		current = next
	}
}

// runNode executes one node, retrying according to its policy.
func (e *Engine[S]) runNode(ctx context.Context, runID string, step int, nodeID string, node Node[S], state S) NodeResult[S] {
	var policy *NodePolicy
	if p, ok := e.cfg.policies[nodeID]; ok {
		policy = &p
	}
	timeout := nodeTimeout(policy, e.cfg.defaultNodeTimeout)

	for attempt := 0; ; attempt++ {
		e.emitter.Emit(emit.Event{
			RunID: runID, Step: step, NodeID: nodeID, Msg: "node_start",
			Meta: map[string]interface{}{"attempt": attempt},
		})

		e.cfg.metrics.AddInflight(1)
		started := time.Now()
		result := runWithTimeout(ctx, node, nodeID, state, timeout)
		elapsed := time.Since(started)
		e.cfg.metrics.AddInflight(-1)

		if result.Err == nil {
			e.cfg.metrics.RecordStepLatency(nodeID, elapsed, "success")
			e.emitter.Emit(emit.Event{
				RunID: runID, Step: step, NodeID: nodeID, Msg: "node_end",
				Meta: map[string]interface{}{"latency_ms": elapsed.Milliseconds(), "attempt": attempt},
			})
			return result
		}

		status := "error"
		if ErrorCode(result.Err) == "NODE_TIMEOUT" {
			status = "timeout"
		}
		e.cfg.metrics.RecordStepLatency(nodeID, elapsed, status)

		var retry *RetryPolicy
		if policy != nil {
			retry = policy.RetryPolicy
		}
		if ctx.Err() != nil || !retry.shouldRetry(attempt, result.Err) {
			return result
		}

		delay := computeBackoff(attempt, retry.BaseDelay, retry.MaxDelay, e.cfg.rng)
		e.cfg.metrics.IncrementRetries(nodeID, status)
		e.emitter.Emit(emit.Event{
			RunID: runID, Step: step, NodeID: nodeID, Msg: "node_retry",
			Meta: map[string]interface{}{
				"attempt":  attempt + 1,
				"delay_ms": delay.Milliseconds(),
				"error":    result.Err.Error(),
			},
		})

		select {
		case <-ctx.Done():
			result.Err = ctx.Err()
			return result
		case <-time.After(delay):
		}
	}
}

func (e *Engine[S]) evaluateEdges(from string, state S) string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, edge := range e.edges {
		if edge.From != from {
			continue
		}
		if edge.When == nil || edge.When(state) {
			return edge.To
		}
	}
	return ""
}

func (e *Engine[S]) fail(runID string, step int, nodeID string, err error) error {
	e.emitter.Emit(emit.Event{
		RunID: runID, Step: step, NodeID: nodeID, Msg: "node_error",
		Meta: map[string]interface{}{"error": err.Error()},
	})
	e.cfg.metrics.RecordRun("error")
	return err
}

func wrapNodeError(nodeID string, err error) error {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return err
	}
	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		if nodeErr.NodeID == "" {
			nodeErr.NodeID = nodeID
		}
		return nodeErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &NodeError{Message: err.Error(), NodeID: nodeID, Cause: err}
}
