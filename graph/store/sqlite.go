package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS workflow_steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			node_id TEXT NOT NULL,
			state TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(run_id, step)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_steps_run_id ON workflow_steps(run_id)`,
		`CREATE TABLE IF NOT EXISTS workflow_checkpoints (
			checkpoint_id TEXT NOT NULL PRIMARY KEY,
			state TEXT NOT NULL,
			step INTEGER NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	},
	saveStep: `INSERT INTO workflow_steps (run_id, step, node_id, state)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, step) DO UPDATE SET
			node_id = excluded.node_id,
			state = excluded.state`,
	loadLatest: `SELECT step, state FROM workflow_steps
		WHERE run_id = ? ORDER BY step DESC LIMIT 1`,
	saveCheckpoint: `INSERT INTO workflow_checkpoints (checkpoint_id, state, step)
		VALUES (?, ?, ?)
		ON CONFLICT(checkpoint_id) DO UPDATE SET
			state = excluded.state,
			step = excluded.step,
			updated_at = CURRENT_TIMESTAMP`,
	loadCheckpoint: `SELECT state, step FROM workflow_checkpoints WHERE checkpoint_id = ?`,
}

// SQLiteStore persists runs in a SQLite database file using the pure Go
// modernc.org/sqlite driver. Use ":memory:" for a throwaway database.
type SQLiteStore[S any] struct {
	*sqlStore[S]
	path string
}

// NewSQLiteStore opens (creating if needed) the database at path.
// The pool is limited to one connection since SQLite has a single writer;
// WAL mode and a busy timeout let readers proceed during writes.
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	inner, err := newSQLStore[S](ctx, db, sqliteDialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore[S]{sqlStore: inner, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore[S]) Path() string {
	return s.path
}
