// Package store persists workflow runs: one record per executed step plus
// named checkpoints. All implementations serialize state as JSON.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested run ID or checkpoint ID does not exist.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// StepRecord is the persisted outcome of one executed node.
type StepRecord[S any] struct {
	// Step is the 1-based sequence number within the run.
	Step int `json:"step"`

	// NodeID is the node that produced State.
	NodeID string `json:"node_id"`

	// Next is the node the engine would run after this one. Empty when the
	// run reached a terminal node.
	Next string `json:"next,omitempty"`

	// State is the accumulated state after merging the node's delta.
	State S `json:"state"`

	// CreatedAt is set by the store when the record is written.
	CreatedAt time.Time `json:"created_at"`
}

// Checkpoint is a named snapshot of a run, used for milestones.
type Checkpoint[S any] struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Step      int       `json:"step"`
	Next      string    `json:"next,omitempty"`
	State     S         `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// RunSummary describes a persisted run without loading its state.
type RunSummary struct {
	RunID     string    `json:"run_id"`
	Steps     int       `json:"steps"`
	LastNode  string    `json:"last_node"`
	Next      string    `json:"next,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store provides persistence for workflow state and checkpoints.
//
// Implementations in this package:
//   - MemStore: in-memory, for tests and one-shot runs
//   - SQLiteStore: single file, the CLI default
//   - MySQLStore: shared relational backend
//   - RedisStore: shared key-value backend
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type Store[S any] interface {
	// SaveStep persists the state after a node execution step. Saving a
	// step number that already exists for the run replaces it.
	SaveStep(ctx context.Context, runID string, rec StepRecord[S]) error

	// LoadLatest returns the record with the highest step number for the
	// run, or ErrNotFound.
	LoadLatest(ctx context.Context, runID string) (StepRecord[S], error)

	// SaveCheckpoint creates or replaces a named checkpoint.
	SaveCheckpoint(ctx context.Context, cp Checkpoint[S]) error

	// LoadCheckpoint returns a named checkpoint, or ErrNotFound.
	LoadCheckpoint(ctx context.Context, cpID string) (Checkpoint[S], error)

	// ListRuns summarizes every persisted run, most recently updated first.
	ListRuns(ctx context.Context) ([]RunSummary, error)

	// DeleteRun removes a run's steps and checkpoints. Deleting an unknown
	// run returns ErrNotFound.
	DeleteRun(ctx context.Context, runID string) error

	// Close releases the store's resources.
	Close() error
}
