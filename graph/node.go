package graph

import (
	"context"
	"fmt"
)

// Node is one step of a workflow graph.
//
// A node reads the current state and returns a NodeResult describing the
// fields it wants to change. Nodes never mutate the state they receive; the
// engine merges Delta into the accumulated state with the configured reducer.
//
// Type parameter S is the state type shared across the workflow.
type Node[S any] interface {
	// Run executes the node against a snapshot of the current state.
	Run(ctx context.Context, state S) NodeResult[S]
}

// NodeResult is the output of a single node execution.
type NodeResult[S any] struct {
	// Delta is the partial state update produced by this node. Only the
	// fields the node owns should be set.
	Delta S

	// Route overrides edge-based routing when set. Use Stop() to end the
	// run or Goto(id) to jump to a specific node. The zero value defers to
	// the edges registered with Engine.Connect.
	Route Next

	// Err is a fatal node failure. The engine stops and reports the partial
	// state accumulated so far.
	Err error
}

// Next specifies what runs after a node completes.
type Next struct {
	// To names the next node.
	To string

	// Terminal ends the run.
	Terminal bool
}

// IsZero reports whether the route defers to edge evaluation.
func (n Next) IsZero() bool {
	return n.To == "" && !n.Terminal
}

// Stop returns a Next that terminates workflow execution.
func Stop() Next {
	return Next{Terminal: true}
}

// Goto returns a Next that routes to the specified node.
func Goto(nodeID string) Next {
	return Next{To: nodeID}
}

// NodeFunc adapts a plain function to the Node interface.
//
// Example:
//
//	trim := NodeFunc[MyState](func(ctx context.Context, s MyState) NodeResult[MyState] {
//	    return NodeResult[MyState]{Delta: MyState{Topic: strings.TrimSpace(s.Topic)}}
//	})
type NodeFunc[S any] func(ctx context.Context, state S) NodeResult[S]

// Run implements the Node interface for NodeFunc.
func (f NodeFunc[S]) Run(ctx context.Context, state S) NodeResult[S] {
	return f(ctx, state)
}

// NodeError is returned by Engine.Run when a node reports a failure.
// Code is NODE_FAILED, or NODE_TIMEOUT when the node ran out of time.
type NodeError struct {
	Message string
	Code    string
	NodeID  string
	Cause   error
}

func (e *NodeError) Error() string {
	if e.NodeID == "" {
		return e.Message
	}
	return fmt.Sprintf("node %s: %s", e.NodeID, e.Message)
}

func (e *NodeError) Unwrap() error { return e.Cause }
