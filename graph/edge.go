// Package graph provides a small generic workflow engine: nodes that return
// partial state updates, a reducer that merges them, conditional edges,
// per-step persistence, bounded fan-out, and retry with backoff.
package graph

// Edge is a possible transition between two nodes.
//
// Unconditional edges (When == nil) always match. Conditional edges match
// when When(state) returns true. Edges are evaluated in registration order
// and the first match wins, so a conditional edge should be registered
// before an unconditional fallback from the same node.
type Edge[S any] struct {
	From string
	To   string
	When Predicate[S]
}

// Predicate decides whether an edge is taken. Predicates must be pure:
// the same state always yields the same answer.
type Predicate[S any] func(state S) bool
