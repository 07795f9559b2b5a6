package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

type memRecord struct {
	step   int
	nodeID string
	state  []byte
}

// MemStore keeps runs in process memory. States are stored JSON encoded so a
// caller mutating a state after saving it cannot change the stored copy.
type MemStore[S any] struct {
	mu          sync.RWMutex
	steps       map[string][]memRecord
	checkpoints map[string]memRecord
}

func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{
		steps:       make(map[string][]memRecord),
		checkpoints: make(map[string]memRecord),
	}
}

func (m *MemStore[S]) SaveStep(_ context.Context, runID string, step int, nodeID string, state S) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	records := m.steps[runID]
	for i := range records {
		if records[i].step == step {
			records[i] = memRecord{step: step, nodeID: nodeID, state: data}
			return nil
		}
	}
	m.steps[runID] = append(records, memRecord{step: step, nodeID: nodeID, state: data})
	return nil
}

func (m *MemStore[S]) LoadLatest(_ context.Context, runID string) (state S, step int, err error) {
	m.mu.RLock()
	records := m.steps[runID]
	if len(records) == 0 {
		m.mu.RUnlock()
		return state, 0, ErrNotFound
	}
	latest := records[0]
	for _, r := range records[1:] {
		if r.step > latest.step {
			latest = r
		}
	}
	m.mu.RUnlock()

	if err := json.Unmarshal(latest.state, &state); err != nil {
		return state, 0, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return state, latest.step, nil
}

func (m *MemStore[S]) SaveCheckpoint(_ context.Context, cpID string, state S, step int) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[cpID] = memRecord{step: step, state: data}
	return nil
}

func (m *MemStore[S]) LoadCheckpoint(_ context.Context, cpID string) (state S, step int, err error) {
	m.mu.RLock()
	record, ok := m.checkpoints[cpID]
	m.mu.RUnlock()
	if !ok {
		return state, 0, ErrNotFound
	}

	if err := json.Unmarshal(record.state, &state); err != nil {
		return state, 0, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return state, record.step, nil
}

// Steps returns the node ids of runID in step order. Used by tests and the
// show command to display the path a run took.
func (m *MemStore[S]) Steps(runID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := append([]memRecord(nil), m.steps[runID]...)
	sort.Slice(records, func(i, j int) bool { return records[i].step < records[j].step })
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.nodeID
	}
	return ids
}
