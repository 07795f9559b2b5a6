package graph

import "context"

// Node is a single processing step in a workflow graph.
//
// A node receives the current state and returns a NodeResult with a partial
// state update (Delta), an optional routing decision and an optional error.
// Nodes should be idempotent where possible: the engine may retry them
// according to their NodePolicy.
type Node[S any] interface {
	Run(ctx context.Context, state S) NodeResult[S]
}

// NodeResult is the output of a node execution.
type NodeResult[S any] struct {
	// Delta is merged into the accumulated state by the reducer.
	Delta S

	// Route selects the next node. A zero Route falls back to edge evaluation.
	Route Next

	// Err aborts the run unless the engine retries the node.
	Err error
}

// Next is a routing decision.
type Next struct {
	// To is the id of the next node.
	To string

	// Terminal ends the run after this node.
	Terminal bool
}

// Stop ends the workflow after the current node.
func Stop() Next {
	return Next{Terminal: true}
}

// Goto routes to nodeID, bypassing edge evaluation.
func Goto(nodeID string) Next {
	return Next{To: nodeID}
}

// IsZero reports whether the node left routing to the edges.
func (n Next) IsZero() bool {
	return n.To == "" && !n.Terminal
}

// NodeFunc adapts a plain function to the Node interface.
type NodeFunc[S any] func(ctx context.Context, state S) NodeResult[S]

// Run implements Node.
func (f NodeFunc[S]) Run(ctx context.Context, state S) NodeResult[S] {
	return f(ctx, state)
}

// NodeError is returned by nodes that want to attach a code to a failure.
type NodeError struct {
	Message string
	Code    string
	NodeID  string
	Cause   error
}

func (e *NodeError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

func (e *NodeError) Unwrap() error {
	return e.Cause
}
