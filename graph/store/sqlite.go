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
			next_node TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE(run_id, step)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_steps_run_id ON workflow_steps(run_id)`,
		`CREATE TABLE IF NOT EXISTS workflow_checkpoints (
			checkpoint_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			next_node TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_run_id ON workflow_checkpoints(run_id)`,
	},
	upsertStep: `
		INSERT INTO workflow_steps (run_id, step, node_id, next_node, state, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, step) DO UPDATE SET
			node_id = excluded.node_id,
			next_node = excluded.next_node,
			state = excluded.state,
			created_at = excluded.created_at
	`,
	upsertCheckpoint: `
		INSERT INTO workflow_checkpoints (checkpoint_id, run_id, step, next_node, state, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(checkpoint_id) DO UPDATE SET
			run_id = excluded.run_id,
			step = excluded.step,
			next_node = excluded.next_node,
			state = excluded.state,
			created_at = excluded.created_at
	`,
}

// SQLiteStore is a SQLite implementation of Store[S].
//
// It keeps every run in a single database file and is the default store of
// the CLI, so a search run can be continued by a later generate command.
// WAL mode is enabled so readers do not block the writer.
type SQLiteStore[S any] struct {
	b    *sqlBackend
	path string
}

// NewSQLiteStore opens (and if needed creates) a SQLite database at path.
// Use ":memory:" for a throwaway database.
//
// Example:
//
//	st, err := NewSQLiteStore[review.State]("./data/runs.db")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time.
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

	b, err := newSQLBackend(ctx, db, sqliteDialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore[S]{b: b, path: path}, nil
}

// SaveStep implements Store.
func (s *SQLiteStore[S]) SaveStep(ctx context.Context, runID string, rec StepRecord[S]) error {
	return sqlSaveStep(ctx, s.b, runID, rec)
}

// LoadLatest implements Store.
func (s *SQLiteStore[S]) LoadLatest(ctx context.Context, runID string) (StepRecord[S], error) {
	return sqlLoadLatest[S](ctx, s.b, runID)
}

// SaveCheckpoint implements Store.
func (s *SQLiteStore[S]) SaveCheckpoint(ctx context.Context, cp Checkpoint[S]) error {
	return sqlSaveCheckpoint(ctx, s.b, cp)
}

// LoadCheckpoint implements Store.
func (s *SQLiteStore[S]) LoadCheckpoint(ctx context.Context, cpID string) (Checkpoint[S], error) {
	return sqlLoadCheckpoint[S](ctx, s.b, cpID)
}

// ListRuns implements Store.
func (s *SQLiteStore[S]) ListRuns(ctx context.Context) ([]RunSummary, error) {
	return s.b.listRuns(ctx)
}

// DeleteRun implements Store.
func (s *SQLiteStore[S]) DeleteRun(ctx context.Context, runID string) error {
	return s.b.deleteRun(ctx, runID)
}

// Close closes the database. Calling Close more than once is safe.
func (s *SQLiteStore[S]) Close() error {
	return s.b.close()
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore[S]) Ping(ctx context.Context) error {
	return s.b.ping(ctx)
}

// Path returns the database file path.
func (s *SQLiteStore[S]) Path() string {
	return s.path
}
