package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

var mysqlDialect = dialect{
	name: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS workflow_steps (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(255) NOT NULL,
			step INT NOT NULL,
			node_id VARCHAR(255) NOT NULL,
			next_node VARCHAR(255) NOT NULL DEFAULT '',
			state LONGTEXT NOT NULL,
			created_at BIGINT NOT NULL,
			INDEX idx_run_id (run_id),
			UNIQUE KEY unique_run_step (run_id, step)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS workflow_checkpoints (
			checkpoint_id VARCHAR(255) NOT NULL PRIMARY KEY,
			run_id VARCHAR(255) NOT NULL,
			step INT NOT NULL,
			next_node VARCHAR(255) NOT NULL DEFAULT '',
			state LONGTEXT NOT NULL,
			created_at BIGINT NOT NULL,
			INDEX idx_cp_run_id (run_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	},
	upsertStep: `
		INSERT INTO workflow_steps (run_id, step, node_id, next_node, state, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			node_id = VALUES(node_id),
			next_node = VALUES(next_node),
			state = VALUES(state),
			created_at = VALUES(created_at)
	`,
	upsertCheckpoint: `
		INSERT INTO workflow_checkpoints (checkpoint_id, run_id, step, next_node, state, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			run_id = VALUES(run_id),
			step = VALUES(step),
			next_node = VALUES(next_node),
			state = VALUES(state),
			created_at = VALUES(created_at)
	`,
}

// MySQLStore is a MySQL implementation of Store[S], for deployments where
// several API servers share one run history.
type MySQLStore[S any] struct {
	b *sqlBackend
}

// NewMySQLStore connects to MySQL, verifies the connection and creates the
// schema if needed.
//
// Example:
//
//	st, err := NewMySQLStore[review.State]("user:pass@tcp(localhost:3306)/litreview")
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	b, err := newSQLBackend(ctx, db, mysqlDialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &MySQLStore[S]{b: b}, nil
}

// SaveStep implements Store.
func (m *MySQLStore[S]) SaveStep(ctx context.Context, runID string, rec StepRecord[S]) error {
	return sqlSaveStep(ctx, m.b, runID, rec)
}

// LoadLatest implements Store.
func (m *MySQLStore[S]) LoadLatest(ctx context.Context, runID string) (StepRecord[S], error) {
	return sqlLoadLatest[S](ctx, m.b, runID)
}

// SaveCheckpoint implements Store.
func (m *MySQLStore[S]) SaveCheckpoint(ctx context.Context, cp Checkpoint[S]) error {
	return sqlSaveCheckpoint(ctx, m.b, cp)
}

// LoadCheckpoint implements Store.
func (m *MySQLStore[S]) LoadCheckpoint(ctx context.Context, cpID string) (Checkpoint[S], error) {
	return sqlLoadCheckpoint[S](ctx, m.b, cpID)
}

// ListRuns implements Store.
func (m *MySQLStore[S]) ListRuns(ctx context.Context) ([]RunSummary, error) {
	return m.b.listRuns(ctx)
}

// DeleteRun implements Store.
func (m *MySQLStore[S]) DeleteRun(ctx context.Context, runID string) error {
	return m.b.deleteRun(ctx, runID)
}

// Close closes the connection pool. Calling Close more than once is safe.
func (m *MySQLStore[S]) Close() error {
	return m.b.close()
}

// Ping verifies the database connection is alive.
func (m *MySQLStore[S]) Ping(ctx context.Context) error {
	return m.b.ping(ctx)
}

// Stats returns connection pool statistics.
func (m *MySQLStore[S]) Stats() sql.DBStats {
	return m.b.db.Stats()
}
