// Package store persists workflow state between steps and across runs.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a run or checkpoint does not exist.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Store persists the state of workflow runs.
//
// SaveStep is called by the engine after every node; LoadLatest returns the
// state with the highest step number for a run. Checkpoints are named
// snapshots used to resume a workflow under a new run id.
//
// States are serialized as JSON by every implementation, so S must round-trip
// through encoding/json.
type Store[S any] interface {
	SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error
	LoadLatest(ctx context.Context, runID string) (state S, step int, err error)
	SaveCheckpoint(ctx context.Context, cpID string, state S, step int) error
	LoadCheckpoint(ctx context.Context, cpID string) (state S, step int, err error)
}
