package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/litreview/graph/store"
)

type testState struct {
	Value   string         `json:"value"`
	Counter int            `json:"counter"`
	Tags    map[string]int `json:"tags,omitempty"`
}

// runStoreContract exercises the behavior every Store implementation must
// share. newStore must return an empty store.
func runStoreContract(t *testing.T, newStore func(t *testing.T) store.Store[testState]) {
	ctx := context.Background()

	t.Run("load latest of unknown run", func(t *testing.T) {
		st := newStore(t)
		_, err := st.LoadLatest(ctx, "missing")
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("latest step wins", func(t *testing.T) {
		st := newStore(t)
		steps := []store.StepRecord[testState]{
			{Step: 1, NodeID: "process_input", Next: "planner", State: testState{Value: "a", Counter: 1}},
			{Step: 2, NodeID: "planner", Next: "search_articles", State: testState{Value: "b", Counter: 2}},
		}
		for _, rec := range steps {
			if err := st.SaveStep(ctx, "run-1", rec); err != nil {
				t.Fatalf("SaveStep: %v", err)
			}
		}

		got, err := st.LoadLatest(ctx, "run-1")
		if err != nil {
			t.Fatalf("LoadLatest: %v", err)
		}
		if got.Step != 2 || got.NodeID != "planner" || got.Next != "search_articles" {
			t.Errorf("expected step 2 planner->search_articles, got %d %s->%s", got.Step, got.NodeID, got.Next)
		}
		if got.State.Value != "b" || got.State.Counter != 2 {
			t.Errorf("expected state {b 2}, got %+v", got.State)
		}
		if got.CreatedAt.IsZero() {
			t.Error("expected CreatedAt to be set")
		}
	})

	t.Run("saving an existing step replaces it", func(t *testing.T) {
		st := newStore(t)
		_ = st.SaveStep(ctx, "run-1", store.StepRecord[testState]{Step: 1, NodeID: "a", State: testState{Value: "old"}})
		if err := st.SaveStep(ctx, "run-1", store.StepRecord[testState]{Step: 1, NodeID: "b", State: testState{Value: "new"}}); err != nil {
			t.Fatalf("SaveStep: %v", err)
		}

		got, err := st.LoadLatest(ctx, "run-1")
		if err != nil {
			t.Fatalf("LoadLatest: %v", err)
		}
		if got.NodeID != "b" || got.State.Value != "new" {
			t.Errorf("expected replaced record, got %s %+v", got.NodeID, got.State)
		}

		runs, err := st.ListRuns(ctx)
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if len(runs) != 1 || runs[0].Steps != 1 {
			t.Errorf("expected one run with one step, got %+v", runs)
		}
	})

	t.Run("loaded state is independent of stored state", func(t *testing.T) {
		st := newStore(t)
		tags := map[string]int{"x": 1}
		_ = st.SaveStep(ctx, "run-1", store.StepRecord[testState]{Step: 1, NodeID: "a", State: testState{Tags: tags}})
		tags["x"] = 99

		got, err := st.LoadLatest(ctx, "run-1")
		if err != nil {
			t.Fatalf("LoadLatest: %v", err)
		}
		if got.State.Tags["x"] != 1 {
			t.Errorf("expected stored tag 1, got %d", got.State.Tags["x"])
		}
	})

	t.Run("checkpoints round trip and overwrite", func(t *testing.T) {
		st := newStore(t)

		if _, err := st.LoadCheckpoint(ctx, "run-1/search-complete"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}

		cp := store.Checkpoint[testState]{ID: "run-1/search-complete", RunID: "run-1", Step: 5, Next: "extract_text", State: testState{Value: "v1"}}
		if err := st.SaveCheckpoint(ctx, cp); err != nil {
			t.Fatalf("SaveCheckpoint: %v", err)
		}
		cp.State.Value = "v2"
		cp.Step = 6
		if err := st.SaveCheckpoint(ctx, cp); err != nil {
			t.Fatalf("SaveCheckpoint: %v", err)
		}

		got, err := st.LoadCheckpoint(ctx, "run-1/search-complete")
		if err != nil {
			t.Fatalf("LoadCheckpoint: %v", err)
		}
		if got.RunID != "run-1" || got.Step != 6 || got.Next != "extract_text" || got.State.Value != "v2" {
			t.Errorf("unexpected checkpoint %+v", got)
		}
	})

	t.Run("list runs summarizes each run", func(t *testing.T) {
		st := newStore(t)
		_ = st.SaveStep(ctx, "run-a", store.StepRecord[testState]{Step: 1, NodeID: "process_input", Next: "planner"})
		_ = st.SaveStep(ctx, "run-a", store.StepRecord[testState]{Step: 2, NodeID: "planner", Next: "search_articles"})
		_ = st.SaveStep(ctx, "run-b", store.StepRecord[testState]{Step: 1, NodeID: "final_draft"})

		runs, err := st.ListRuns(ctx)
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(runs))
		}

		byID := map[string]store.RunSummary{}
		for _, r := range runs {
			byID[r.RunID] = r
		}
		if a := byID["run-a"]; a.Steps != 2 || a.LastNode != "planner" || a.Next != "search_articles" {
			t.Errorf("unexpected summary for run-a: %+v", a)
		}
		if b := byID["run-b"]; b.Steps != 1 || b.LastNode != "final_draft" || b.Next != "" {
			t.Errorf("unexpected summary for run-b: %+v", b)
		}
	})

	t.Run("empty store lists no runs", func(t *testing.T) {
		st := newStore(t)
		runs, err := st.ListRuns(ctx)
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if len(runs) != 0 {
			t.Errorf("expected no runs, got %+v", runs)
		}
	})

	t.Run("delete run removes steps and checkpoints", func(t *testing.T) {
		st := newStore(t)
		_ = st.SaveStep(ctx, "run-a", store.StepRecord[testState]{Step: 1, NodeID: "n"})
		_ = st.SaveStep(ctx, "run-b", store.StepRecord[testState]{Step: 1, NodeID: "n"})
		_ = st.SaveCheckpoint(ctx, store.Checkpoint[testState]{ID: "run-a/m1", RunID: "run-a", Step: 1})
		_ = st.SaveCheckpoint(ctx, store.Checkpoint[testState]{ID: "run-b/m1", RunID: "run-b", Step: 1})

		if err := st.DeleteRun(ctx, "run-a"); err != nil {
			t.Fatalf("DeleteRun: %v", err)
		}

		if _, err := st.LoadLatest(ctx, "run-a"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected steps to be deleted, got %v", err)
		}
		if _, err := st.LoadCheckpoint(ctx, "run-a/m1"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected checkpoint to be deleted, got %v", err)
		}
		if _, err := st.LoadCheckpoint(ctx, "run-b/m1"); err != nil {
			t.Errorf("expected other run's checkpoint to survive, got %v", err)
		}
		if err := st.DeleteRun(ctx, "run-a"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
	})
}
