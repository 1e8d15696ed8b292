package graph

import (
	"context"
	"errors"
	"time"

	"github.com/dshills/litreview/graph/emit"
	"github.com/dshills/litreview/graph/store"
)

// CheckpointID builds the conventional checkpoint identifier for a labelled
// point in a run, e.g. "3f2a.../search-complete".
func CheckpointID(runID, label string) string {
	return runID + "/" + label
}

// Resume continues runID from its latest persisted step.
//
// If the run already reached a terminal node, Resume returns the stored
// state with an empty Next and runs nothing. Additional options (for
// example StopAfter, or From to override the resume point) apply as in Run.
func (e *Engine[S]) Resume(ctx context.Context, runID string, opts ...RunOption) (Result[S], error) {
	if e.store == nil {
		return Result[S]{}, &EngineError{Message: "store is required", Code: "MISSING_STORE"}
	}

	latest, err := e.store.LoadLatest(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Result[S]{}, &EngineError{Message: "run not found: " + runID, Code: "RUN_NOT_FOUND", Cause: err}
		}
		return Result[S]{}, &EngineError{Message: "failed to load run: " + err.Error(), Code: "STORE_ERROR", Cause: err}
	}

	cfg := runConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if latest.Next == "" && cfg.from == "" {
		return Result[S]{State: latest.State, LastNode: latest.NodeID}, nil
	}

	return e.Run(ctx, runID, latest.State, append([]RunOption{From(latest.Next)}, opts...)...)
}

// SaveCheckpoint snapshots the latest persisted step of runID under cpID.
func (e *Engine[S]) SaveCheckpoint(ctx context.Context, runID string, cpID string) error {
	latest, err := e.store.LoadLatest(ctx, runID)
	if err != nil {
		return &EngineError{
			Message: "cannot create checkpoint: run state not found: " + err.Error(),
			Code:    "RUN_NOT_FOUND",
			Cause:   err,
		}
	}

	cp := store.Checkpoint[S]{
		ID:    cpID,
		RunID: runID,
		Step:  latest.Step,
		Next:  latest.Next,
		State: latest.State,
	}
	if err := e.store.SaveCheckpoint(ctx, cp); err != nil {
		return &EngineError{
			Message: "failed to save checkpoint: " + err.Error(),
			Code:    "CHECKPOINT_SAVE_FAILED",
			Cause:   err,
		}
	}

	e.emitter.Emit(emit.Event{
		RunID: runID,
		Step:  latest.Step,
		Msg:   emit.MsgCheckpoint,
		Time:  time.Now().UTC(),
		Meta:  map[string]interface{}{"checkpoint_id": cpID},
	})
	return nil
}

// LoadCheckpoint returns a previously saved checkpoint.
func (e *Engine[S]) LoadCheckpoint(ctx context.Context, cpID string) (store.Checkpoint[S], error) {
	cp, err := e.store.LoadCheckpoint(ctx, cpID)
	if err != nil {
		return cp, &EngineError{
			Message: "checkpoint not found: " + cpID,
			Code:    "CHECKPOINT_NOT_FOUND",
			Cause:   err,
		}
	}
	return cp, nil
}
