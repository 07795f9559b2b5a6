package graph

// Reducer merges a node's partial update into the accumulated state.
// It must be deterministic: the same (prev, delta) always yields the same state.
type Reducer[S any] func(prev, delta S) S

// Edge is a possible transition between two nodes. A nil When always matches.
type Edge[S any] struct {
	From string
	To   string
	When Predicate[S]
}

// Predicate decides whether an edge is traversed for the given state.
type Predicate[S any] func(state S) bool

// Not negates a predicate.
func Not[S any](p Predicate[S]) Predicate[S] {
	return func(s S) bool { return !p(s) }
}
