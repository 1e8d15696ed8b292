package graph

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dshills/litreview/graph/emit"
	"github.com/dshills/litreview/graph/store"
)

// Engine executes a workflow graph over a state type S.
//
// The Engine:
//   - runs one node at a time, starting at the start node or a resume point
//   - merges each node's Delta with the reducer
//   - routes by the node's explicit Route, falling back to edges
//   - persists every step so a run can be resumed later
//   - emits start/end/error events and records step latency
//   - checks for cancellation between steps only
//
// Example:
//
//	eng, err := graph.New(reducer, store.NewMemStore[MyState](), emitter, graph.WithMaxSteps(100))
//	_ = eng.Add("trim", trimNode)
//	_ = eng.Add("plan", planNode)
//	_ = eng.StartAt("trim")
//	_ = eng.Connect("trim", "plan", nil)
//
//	res, err := eng.Run(ctx, "run-001", MyState{Topic: "  graphs "})
type Engine[S any] struct {
	mu sync.RWMutex

	reducer   Reducer[S]
	nodes     map[string]Node[S]
	policies  map[string]NodePolicy
	edges     []Edge[S]
	startNode string

	store   store.Store[S]
	emitter emit.Emitter
	opts    Options
}

// Options configures Engine execution behavior. Zero values are valid.
type Options struct {
	// MaxSteps limits the number of nodes executed by a single Run call.
	// If 0, no limit is enforced.
	MaxSteps int

	// DefaultNodeTimeout bounds each node unless its NodePolicy overrides
	// it. If 0, nodes run without a deadline.
	DefaultNodeTimeout time.Duration

	// Metrics receives step latency observations. Optional.
	Metrics *PrometheusMetrics
}

// Result is the outcome of a Run call.
type Result[S any] struct {
	// State is the accumulated state. On failure it holds everything merged
	// before the failing node.
	State S

	// Next is the node that would run next. Empty when the run reached a
	// terminal node. On failure it names the failing node, so passing it to
	// From retries that node.
	Next string

	// LastNode is the last node that completed successfully.
	LastNode string

	// Steps is the number of nodes completed by this call.
	Steps int
}

// Done reports whether the run reached a terminal node.
func (r Result[S]) Done() bool {
	return r.Next == ""
}

// New creates an Engine.
//
// The reducer and store are required at Run time; emitter may be nil.
func New[S any](reducer Reducer[S], st store.Store[S], emitter emit.Emitter, options ...Option) (*Engine[S], error) {
	cfg := engineConfig{}
	for _, opt := range options {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}

	return &Engine[S]{
		reducer:  reducer,
		nodes:    make(map[string]Node[S]),
		policies: make(map[string]NodePolicy),
		store:    st,
		emitter:  emitter,
		opts:     cfg.opts,
	}, nil
}

// Add registers a node. Node IDs must be unique.
func (e *Engine[S]) Add(nodeID string, node Node[S]) error {
	if nodeID == "" {
		return &EngineError{Message: "node ID cannot be empty"}
	}
	if node == nil {
		return &EngineError{Message: "node cannot be nil"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; exists {
		return &EngineError{
			Message: "duplicate node ID: " + nodeID,
			Code:    "DUPLICATE_NODE",
		}
	}

	e.nodes[nodeID] = node
	return nil
}

// AddWithPolicy registers a node together with its execution policy.
func (e *Engine[S]) AddWithPolicy(nodeID string, node Node[S], policy NodePolicy) error {
	if err := e.Add(nodeID, node); err != nil {
		return err
	}
	e.mu.Lock()
	e.policies[nodeID] = policy
	e.mu.Unlock()
	return nil
}

// StartAt sets the node a fresh run starts at. The node must already be
// registered.
func (e *Engine[S]) StartAt(nodeID string) error {
	if nodeID == "" {
		return &EngineError{Message: "start node ID cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; !exists {
		return &EngineError{
			Message: "start node does not exist: " + nodeID,
			Code:    "NODE_NOT_FOUND",
		}
	}

	e.startNode = nodeID
	return nil
}

// Connect adds an edge. A nil predicate makes the edge unconditional.
// Edges are evaluated in the order they were added; the first match wins.
// Node existence is checked lazily at Run time.
func (e *Engine[S]) Connect(from, to string, predicate Predicate[S]) error {
	if from == "" {
		return &EngineError{Message: "from node ID cannot be empty"}
	}
	if to == "" {
		return &EngineError{Message: "to node ID cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.edges = append(e.edges, Edge[S]{From: from, To: to, When: predicate})
	return nil
}

// HasNode reports whether nodeID is registered.
func (e *Engine[S]) HasNode(nodeID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.nodes[nodeID]
	return ok
}

// RunOption customizes a single Run call.
type RunOption func(*runConfig)

type runConfig struct {
	from      string
	stopAfter map[string]bool
}

// From starts the run at nodeID instead of the start node. Used to resume.
func From(nodeID string) RunOption {
	return func(c *runConfig) { c.from = nodeID }
}

// StopAfter ends the run successfully once any of the given nodes has
// completed. Result.Next then names the node that would have run next.
func StopAfter(nodeIDs ...string) RunOption {
	return func(c *runConfig) {
		if c.stopAfter == nil {
			c.stopAfter = make(map[string]bool)
		}
		for _, id := range nodeIDs {
			c.stopAfter[id] = true
		}
	}
}

// Run executes the workflow for runID, starting from initial.
//
// Step numbers continue after any steps already persisted for runID, so
// resuming a run keeps a single ordered history.
//
// On failure Run returns the partial Result alongside the error:
//   - *NodeError when a node fails or times out (Result.Next is that node)
//   - ctx.Err() when the context is cancelled between steps
//   - *EngineError for configuration, routing, limit and store failures
func (e *Engine[S]) Run(ctx context.Context, runID string, initial S, opts ...RunOption) (Result[S], error) {
	res := Result[S]{State: initial}

	cfg := runConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	if e.reducer == nil {
		return res, &EngineError{Message: "reducer is required", Code: "MISSING_REDUCER"}
	}
	if e.store == nil {
		return res, &EngineError{Message: "store is required", Code: "MISSING_STORE"}
	}

	current := cfg.from
	if current == "" {
		e.mu.RLock()
		current = e.startNode
		e.mu.RUnlock()
	}
	if current == "" {
		return res, &EngineError{
			Message: "start node not set (call StartAt before Run)",
			Code:    "NO_START_NODE",
		}
	}
	res.Next = current

	if !e.HasNode(current) {
		return res, &EngineError{Message: "start node does not exist: " + current, Code: "NODE_NOT_FOUND"}
	}

	state, err := deepCopy(initial)
	if err != nil {
		return res, &EngineError{Message: "cannot copy initial state: " + err.Error(), Code: "INVALID_STATE", Cause: err}
	}
	res.State = state

	step := 0
	latest, err := e.store.LoadLatest(ctx, runID)
	switch {
	case err == nil:
		step = latest.Step
	case !errors.Is(err, store.ErrNotFound):
		return res, &EngineError{Message: "failed to load run: " + err.Error(), Code: "STORE_ERROR", Cause: err}
	}

	for {
		if e.opts.MaxSteps > 0 && res.Steps >= e.opts.MaxSteps {
			return res, &EngineError{
				Message: "workflow exceeded MaxSteps limit",
				Code:    "MAX_STEPS_EXCEEDED",
				Cause:   ErrMaxStepsExceeded,
			}
		}

		if err := ctx.Err(); err != nil {
			return res, err
		}

		e.mu.RLock()
		node, exists := e.nodes[current]
		policy, hasPolicy := e.policies[current]
		e.mu.RUnlock()

		if !exists {
			return res, &EngineError{Message: "node not found during execution: " + current, Code: "NODE_NOT_FOUND"}
		}

		var pol *NodePolicy
		if hasPolicy {
			pol = &policy
		}

		step++
		e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: current, Msg: emit.MsgNodeStart, Time: time.Now().UTC()})

		started := time.Now()
		result, timeoutErr := runNode(ctx, node, current, res.State, nodeTimeout(pol, e.opts.DefaultNodeTimeout))
		latency := time.Since(started)

		if timeoutErr != nil || result.Err != nil {
			status, code, cause := "error", "NODE_FAILED", result.Err
			if timeoutErr != nil {
				status, code, cause = "timeout", "NODE_TIMEOUT", timeoutErr
			}
			e.opts.Metrics.RecordStepLatency(current, latency, status)
			e.emitter.Emit(emit.Event{
				RunID:  runID,
				Step:   step,
				NodeID: current,
				Msg:    emit.MsgNodeError,
				Time:   time.Now().UTC(),
				Meta:   map[string]interface{}{"error": cause.Error(), "latency_ms": latency.Milliseconds()},
			})
			return res, &NodeError{Message: cause.Error(), Code: code, NodeID: current, Cause: cause}
		}

		merged := e.reducer(res.State, result.Delta)

		next := ""
		switch {
		case result.Route.Terminal:
		case result.Route.To != "":
			next = result.Route.To
		default:
			next = e.evaluateEdges(current, merged)
			if next == "" {
				return res, &EngineError{Message: "no valid route from node: " + current, Code: "NO_ROUTE"}
			}
		}

		// A completed step is persisted even if the caller cancelled meanwhile.
		rec := store.StepRecord[S]{Step: step, NodeID: current, Next: next, State: merged}
		if err := e.store.SaveStep(context.WithoutCancel(ctx), runID, rec); err != nil {
			return res, &EngineError{Message: "failed to save step: " + err.Error(), Code: "STORE_ERROR", Cause: err}
		}

		e.opts.Metrics.RecordStepLatency(current, latency, "success")
		e.emitter.Emit(emit.Event{
			RunID:  runID,
			Step:   step,
			NodeID: current,
			Msg:    emit.MsgNodeEnd,
			Time:   time.Now().UTC(),
			Meta:   map[string]interface{}{"latency_ms": latency.Milliseconds(), "next": next},
		})

		res.State = merged
		res.LastNode = current
		res.Next = next
		res.Steps++

		if next == "" || cfg.stopAfter[current] {
			return res, nil
		}
		current = next
	}
}

// evaluateEdges returns the target of the first matching edge leaving
// fromNode, or "" if none matches.
func (e *Engine[S]) evaluateEdges(fromNode string, state S) string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, edge := range e.edges {
		if edge.From != fromNode {
			continue
		}
		if edge.When == nil || edge.When(state) {
			return edge.To
		}
	}
	return ""
}
