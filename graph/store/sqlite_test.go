package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/dshills/litreview/graph/store"
)

func newTestSQLiteStore(t *testing.T) *store.SQLiteStore[testState] {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runs.db")
	st, err := store.NewSQLiteStore[testState](path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) store.Store[testState] {
		return newTestSQLiteStore(t)
	})
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	st, err := store.NewSQLiteStore[testState](path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := st.SaveStep(ctx, "run-1", store.StepRecord[testState]{Step: 3, NodeID: "download_articles", Next: "extract_text", State: testState{Value: "kept"}}); err != nil {
		t.Fatalf("SaveStep: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := store.NewSQLiteStore[testState](path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.LoadLatest(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if got.Next != "extract_text" || got.State.Value != "kept" {
		t.Errorf("expected persisted record, got %+v", got)
	}
	if reopened.Path() != path {
		t.Errorf("expected path %s, got %s", path, reopened.Path())
	}
}

func TestSQLiteStore_Closed(t *testing.T) {
	st := newTestSQLiteStore(t)
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Errorf("expected double close to be a no-op, got %v", err)
	}

	ctx := context.Background()
	if err := st.SaveStep(ctx, "r", store.StepRecord[testState]{Step: 1}); !errors.Is(err, store.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := st.LoadLatest(ctx, "r"); !errors.Is(err, store.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := st.Ping(ctx); !errors.Is(err, store.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
