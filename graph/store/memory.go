package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory implementation of Store[S].
//
// Records are stored as JSON so that callers never share maps or slices
// with the store; a loaded state is always an independent copy.
//
// MemStore is thread-safe. Data is lost when the process exits.
type MemStore[S any] struct {
	mu          sync.RWMutex
	steps       map[string][]memStep  // runID -> steps
	checkpoints map[string]memCheckpt // checkpointID -> checkpoint
}

type memStep struct {
	step      int
	nodeID    string
	next      string
	state     []byte
	createdAt time.Time
}

type memCheckpt struct {
	runID     string
	step      int
	next      string
	state     []byte
	createdAt time.Time
}

// NewMemStore creates a new in-memory store.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{
		steps:       make(map[string][]memStep),
		checkpoints: make(map[string]memCheckpt),
	}
}

// SaveStep persists a workflow execution step.
func (m *MemStore[S]) SaveStep(_ context.Context, runID string, rec StepRecord[S]) error {
	data, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := memStep{step: rec.Step, nodeID: rec.NodeID, next: rec.Next, state: data, createdAt: time.Now().UTC()}
	records := m.steps[runID]
	for i := range records {
		if records[i].step == rec.Step {
			records[i] = s
			return nil
		}
	}
	m.steps[runID] = append(records, s)
	return nil
}

// LoadLatest retrieves the step with the highest step number for a run.
func (m *MemStore[S]) LoadLatest(_ context.Context, runID string) (StepRecord[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.steps[runID]
	if len(records) == 0 {
		return StepRecord[S]{}, ErrNotFound
	}

	latest := records[0]
	for _, r := range records[1:] {
		if r.step > latest.step {
			latest = r
		}
	}

	var state S
	if err := json.Unmarshal(latest.state, &state); err != nil {
		return StepRecord[S]{}, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return StepRecord[S]{
		Step:      latest.step,
		NodeID:    latest.nodeID,
		Next:      latest.next,
		State:     state,
		CreatedAt: latest.createdAt,
	}, nil
}

// SaveCheckpoint creates or overwrites a named checkpoint.
func (m *MemStore[S]) SaveCheckpoint(_ context.Context, cp Checkpoint[S]) error {
	data, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkpoints[cp.ID] = memCheckpt{
		runID:     cp.RunID,
		step:      cp.Step,
		next:      cp.Next,
		state:     data,
		createdAt: time.Now().UTC(),
	}
	return nil
}

// LoadCheckpoint retrieves a named checkpoint.
func (m *MemStore[S]) LoadCheckpoint(_ context.Context, cpID string) (Checkpoint[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.checkpoints[cpID]
	if !ok {
		return Checkpoint[S]{}, ErrNotFound
	}

	var state S
	if err := json.Unmarshal(c.state, &state); err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return Checkpoint[S]{
		ID:        cpID,
		RunID:     c.runID,
		Step:      c.step,
		Next:      c.next,
		State:     state,
		CreatedAt: c.createdAt,
	}, nil
}

// ListRuns summarizes all runs, most recently updated first.
func (m *MemStore[S]) ListRuns(_ context.Context) ([]RunSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]RunSummary, 0, len(m.steps))
	for runID, records := range m.steps {
		if len(records) == 0 {
			continue
		}
		latest := records[0]
		for _, r := range records[1:] {
			if r.step > latest.step {
				latest = r
			}
		}
		out = append(out, RunSummary{
			RunID:     runID,
			Steps:     len(records),
			LastNode:  latest.nodeID,
			Next:      latest.next,
			UpdatedAt: latest.createdAt,
		})
	}
	sortSummaries(out)
	return out, nil
}

// DeleteRun removes a run's steps and every checkpoint belonging to it.
func (m *MemStore[S]) DeleteRun(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.steps[runID]; !ok {
		return ErrNotFound
	}
	delete(m.steps, runID)
	for id, c := range m.checkpoints {
		if c.runID == runID {
			delete(m.checkpoints, id)
		}
	}
	return nil
}

// Close is a no-op for MemStore.
func (m *MemStore[S]) Close() error { return nil }

// sortSummaries orders runs newest first, breaking ties by run ID.
func sortSummaries(runs []RunSummary) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].UpdatedAt.Equal(runs[j].UpdatedAt) {
			return runs[i].UpdatedAt.After(runs[j].UpdatedAt)
		}
		return runs[i].RunID < runs[j].RunID
	})
}
