package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// dialect holds the statements that differ between database engines.
type dialect struct {
	name           string
	schema         []string
	saveStep       string
	loadLatest     string
	saveCheckpoint string
	loadCheckpoint string
}

// sqlStore implements Store on database/sql. The engine-specific stores
// embed it and contribute a dialect and connection settings.
type sqlStore[S any] struct {
	db      *sql.DB
	dialect dialect

	mu     sync.RWMutex
	closed bool
}

func newSQLStore[S any](ctx context.Context, db *sql.DB, d dialect) (*sqlStore[S], error) {
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("%s: create schema: %w", d.name, err)
		}
	}
	return &sqlStore[S]{db: db, dialect: d}, nil
}

func (s *sqlStore[S]) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *sqlStore[S]) SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.saveStep, runID, step, nodeID, string(data)); err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

func (s *sqlStore[S]) LoadLatest(ctx context.Context, runID string) (state S, step int, err error) {
	if err := s.checkOpen(); err != nil {
		return state, 0, err
	}

	var data []byte
	err = s.db.QueryRowContext(ctx, s.dialect.loadLatest, runID).Scan(&step, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return state, 0, ErrNotFound
	}
	if err != nil {
		return state, 0, fmt.Errorf("failed to load latest step: %w", err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, 0, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return state, step, nil
}

func (s *sqlStore[S]) SaveCheckpoint(ctx context.Context, cpID string, state S, step int) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.saveCheckpoint, cpID, string(data), step); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (s *sqlStore[S]) LoadCheckpoint(ctx context.Context, cpID string) (state S, step int, err error) {
	if err := s.checkOpen(); err != nil {
		return state, 0, err
	}

	var data []byte
	err = s.db.QueryRowContext(ctx, s.dialect.loadCheckpoint, cpID).Scan(&data, &step)
	if errors.Is(err, sql.ErrNoRows) {
		return state, 0, ErrNotFound
	}
	if err != nil {
		return state, 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, 0, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return state, step, nil
}

// Ping verifies the database connection is alive.
func (s *sqlStore[S]) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Close closes the connection pool. Further calls return ErrClosed.
func (s *sqlStore[S]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
