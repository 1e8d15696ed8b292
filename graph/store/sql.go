package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// dialect holds the statements that differ between SQL backends.
type dialect struct {
	name             string
	schema           []string
	upsertStep       string
	upsertCheckpoint string
}

// sqlBackend implements the shared parts of the SQL stores. State is stored
// as JSON text and timestamps as unix nanoseconds so both drivers scan them
// the same way.
type sqlBackend struct {
	db      *sql.DB
	dialect dialect

	mu     sync.RWMutex
	closed bool
}

func newSQLBackend(ctx context.Context, db *sql.DB, d dialect) (*sqlBackend, error) {
	b := &sqlBackend{db: db, dialect: d}
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create %s schema: %w", d.name, err)
		}
	}
	return b, nil
}

func (b *sqlBackend) checkOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

func (b *sqlBackend) close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

func (b *sqlBackend) ping(ctx context.Context) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	return b.db.PingContext(ctx)
}

func sqlSaveStep[S any](ctx context.Context, b *sqlBackend, runID string, rec StepRecord[S]) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	stateJSON, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	_, err = b.db.ExecContext(ctx, b.dialect.upsertStep,
		runID, rec.Step, rec.NodeID, rec.Next, string(stateJSON), time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

func sqlLoadLatest[S any](ctx context.Context, b *sqlBackend, runID string) (StepRecord[S], error) {
	var rec StepRecord[S]
	if err := b.checkOpen(); err != nil {
		return rec, err
	}

	query := `
		SELECT step, node_id, next_node, state, created_at
		FROM workflow_steps
		WHERE run_id = ?
		ORDER BY step DESC
		LIMIT 1
	`

	var stateJSON string
	var created int64
	err := b.db.QueryRowContext(ctx, query, runID).Scan(&rec.Step, &rec.NodeID, &rec.Next, &stateJSON, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return StepRecord[S]{}, ErrNotFound
	}
	if err != nil {
		return StepRecord[S]{}, fmt.Errorf("failed to load latest step: %w", err)
	}

	if err := json.Unmarshal([]byte(stateJSON), &rec.State); err != nil {
		return StepRecord[S]{}, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	rec.CreatedAt = time.Unix(0, created).UTC()
	return rec, nil
}

func sqlSaveCheckpoint[S any](ctx context.Context, b *sqlBackend, cp Checkpoint[S]) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	_, err = b.db.ExecContext(ctx, b.dialect.upsertCheckpoint,
		cp.ID, cp.RunID, cp.Step, cp.Next, string(stateJSON), time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func sqlLoadCheckpoint[S any](ctx context.Context, b *sqlBackend, cpID string) (Checkpoint[S], error) {
	cp := Checkpoint[S]{ID: cpID}
	if err := b.checkOpen(); err != nil {
		return cp, err
	}

	query := `
		SELECT run_id, step, next_node, state, created_at
		FROM workflow_checkpoints
		WHERE checkpoint_id = ?
	`

	var stateJSON string
	var created int64
	err := b.db.QueryRowContext(ctx, query, cpID).Scan(&cp.RunID, &cp.Step, &cp.Next, &stateJSON, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint[S]{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	cp.CreatedAt = time.Unix(0, created).UTC()
	return cp, nil
}

func (b *sqlBackend) listRuns(ctx context.Context) ([]RunSummary, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	query := `
		SELECT s.run_id, s.node_id, s.next_node, s.created_at, m.cnt
		FROM workflow_steps s
		JOIN (
			SELECT run_id, MAX(step) AS max_step, COUNT(*) AS cnt
			FROM workflow_steps
			GROUP BY run_id
		) m ON s.run_id = m.run_id AND s.step = m.max_step
	`

	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var r RunSummary
		var created int64
		if err := rows.Scan(&r.RunID, &r.LastNode, &r.Next, &created, &r.Steps); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.UpdatedAt = time.Unix(0, created).UTC()
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	sortSummaries(runs)
	return runs, nil
}

func (b *sqlBackend) deleteRun(ctx context.Context, runID string) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM workflow_steps WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete steps: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete steps: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM workflow_checkpoints WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete checkpoints: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}
