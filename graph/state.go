package graph

import (
	"encoding/json"
	"fmt"
)

// Reducer merges a node's partial update into the accumulated state.
//
// Reducers must be pure and must not mutate prev; the engine relies on this
// to hand a stable snapshot to the next node and to the store.
type Reducer[S any] func(prev, delta S) S

// deepCopy creates an independent copy of state S using a JSON round trip.
//
// Only exported, JSON-serializable fields survive the copy. The engine uses
// it to detach the caller's initial state from the run so that maps held by
// the caller are never shared with node goroutines.
func deepCopy[S any](state S) (S, error) {
	var zero S

	data, err := json.Marshal(state)
	if err != nil {
		return zero, fmt.Errorf("failed to marshal state: %w", err)
	}

	var copied S
	if err := json.Unmarshal(data, &copied); err != nil {
		return zero, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return copied, nil
}
