package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dshills/litreview/graph"
	"github.com/dshills/litreview/graph/emit"
	"github.com/dshills/litreview/graph/store"
)

// ErrRunNotFound is returned for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Runner drives the review graph through its milestones and persists every
// run in a store.
//
// A run can be executed in pieces: Search stops once papers are downloaded,
// Generate continues a stored run to the end, and Revise sends a finished
// draft through the critique loop again.
type Runner struct {
	engine  *graph.Engine[State]
	steps   *Steps
	store   store.Store[State]
	emitter emit.Emitter
	cost    *graph.CostTracker
	logger  zerolog.Logger
}

// RunInfo summarizes a stored run.
type RunInfo struct {
	store.RunSummary
	Topic     string `json:"topic"`
	Milestone string `json:"milestone,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Done      bool   `json:"done"`
}

// NewRunner builds the review graph over deps and persists runs in st.
// emitter may be nil.
func NewRunner(deps Deps, st store.Store[State], emitter emit.Emitter) (*Runner, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("review: store is required")
	}
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}

	eng, err := graph.New(Reduce, st, emitter,
		graph.WithMaxSteps(deps.Settings.MaxSteps),
		graph.WithDefaultNodeTimeout(deps.Settings.NodeTimeout),
		graph.WithMetrics(deps.Metrics),
	)
	if err != nil {
		return nil, err
	}

	steps := newSteps(deps)
	if err := steps.Register(eng); err != nil {
		return nil, err
	}

	return &Runner{
		engine:  eng,
		steps:   steps,
		store:   st,
		emitter: emitter,
		cost:    deps.Cost,
		logger:  deps.Logger.With().Str("component", "runner").Logger(),
	}, nil
}

// Run executes the graph from initial.Cursor (or the first step) until the
// run ends or stopAfter completes. A new run ID is assigned when
// initial.RunID is empty.
//
// Each milestone reached is saved as checkpoint "<runID>/<milestone>". A
// fatal step failure returns a *PipelineError carrying the partial state,
// whose Cursor names the failed step so the run can be retried.
func (r *Runner) Run(ctx context.Context, initial State, stopAfter string) (State, error) {
	state := initial
	if state.RunID == "" {
		state.RunID = uuid.NewString()
	}
	from := state.Cursor
	if from == "" {
		from = StepProcessInput
	}
	if stopAfter != "" && !r.engine.HasNode(stopAfter) {
		return state, fmt.Errorf("unknown step %q", stopAfter)
	}

	logger := r.logger.With().Str("run_id", state.RunID).Logger()
	logger.Info().Str("topic", state.Topic).Str("from", from).Str("stop_after", stopAfter).Msg("run started")
	started := time.Now()

	stops := make([]string, 0, len(milestoneAfter)+1)
	for step := range milestoneAfter {
		stops = append(stops, step)
	}
	if stopAfter != "" {
		stops = append(stops, stopAfter)
	}

	for {
		res, err := r.engine.Run(ctx, state.RunID, state, graph.From(from), graph.StopAfter(stops...))
		state = res.State
		state.Cursor = res.Next
		if err != nil {
			return state, r.fail(state, res, err, logger)
		}

		if m, ok := milestoneAfter[res.LastNode]; ok {
			state.Milestone = m
		}
		if res.Done() {
			state.Done = true
			if state.Outcome == "" {
				state.Outcome = OutcomeCompleted
			}
		}
		if err := r.stamp(ctx, state); err != nil {
			return state, err
		}
		if m, ok := milestoneAfter[res.LastNode]; ok {
			if err := r.engine.SaveCheckpoint(context.WithoutCancel(ctx), state.RunID, graph.CheckpointID(state.RunID, m)); err != nil {
				logger.Warn().Err(err).Str("milestone", m).Msg("failed to save milestone checkpoint")
			}
		}

		if state.Done || res.LastNode == stopAfter {
			break
		}
		if err := ctx.Err(); err != nil {
			return state, &PipelineError{Step: res.Next, State: state, Err: err}
		}
		from = res.Next
	}

	summary := r.cost.Summary(state.RunID)
	r.emitter.Emit(emit.Event{
		RunID:  state.RunID,
		NodeID: state.Cursor,
		Msg:    emit.MsgRunEnd,
		Meta: map[string]interface{}{
			"milestone":  state.Milestone,
			"outcome":    state.Outcome,
			"done":       state.Done,
			"cost_usd":   summary.TotalUSD,
			"llm_calls":  summary.Calls,
			"latency_ms": time.Since(started).Milliseconds(),
		},
	})
	logger.Info().
		Str("milestone", state.Milestone).
		Str("outcome", state.Outcome).
		Bool("done", state.Done).
		Int("errors", len(state.Errors)).
		Str("cost", summary.String()).
		Msg("run stopped")
	return state, nil
}

// fail converts an engine failure into a PipelineError.
func (r *Runner) fail(state State, res graph.Result[State], err error, logger zerolog.Logger) error {
	step := res.Next
	var nodeErr *graph.NodeError
	if errors.As(err, &nodeErr) {
		step = nodeErr.NodeID
	}
	logger.Error().Err(err).Str("step", step).Msg("run failed")
	r.emitter.Emit(emit.Event{
		RunID:  state.RunID,
		NodeID: step,
		Msg:    emit.MsgRunEnd,
		Meta:   map[string]interface{}{"error": err.Error()},
	})
	return &PipelineError{Step: step, State: state, Err: err}
}

// stamp writes the Runner-owned fields onto the latest persisted step.
func (r *Runner) stamp(ctx context.Context, state State) error {
	ctx = context.WithoutCancel(ctx)
	latest, err := r.store.LoadLatest(ctx, state.RunID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", state.RunID, err)
	}
	latest.State = state
	if err := r.store.SaveStep(ctx, state.RunID, latest); err != nil {
		return fmt.Errorf("save run %s: %w", state.RunID, err)
	}
	return nil
}

// Search starts a new run and stops once papers are downloaded.
func (r *Runner) Search(ctx context.Context, topic string) (State, error) {
	return r.Run(ctx, State{Topic: topic}, StepDownloadArticles)
}

// Full runs a new topic to the end.
func (r *Runner) Full(ctx context.Context, topic string) (State, error) {
	return r.Run(ctx, State{Topic: topic}, "")
}

// Generate continues a stored run to the end. A finished run is returned
// unchanged.
func (r *Runner) Generate(ctx context.Context, runID string) (State, error) {
	state, err := r.Load(ctx, runID)
	if err != nil {
		return State{}, err
	}
	if state.Done {
		return state, nil
	}
	return r.Run(ctx, state, "")
}

// Revise sends the draft of a stored run through another critique and
// revision cycle with a fresh revision budget.
func (r *Runner) Revise(ctx context.Context, runID string) (State, error) {
	state, err := r.Load(ctx, runID)
	if err != nil {
		return State{}, err
	}
	if state.CurrentDraft() == "" {
		return state, fmt.Errorf("%w: %s", ErrNoDraft, runID)
	}
	state.RevisionCount = 0
	state.Done = false
	state.Outcome = ""
	state.Cursor = StepCritiquePaper
	return r.Run(ctx, state, "")
}

// Load returns the latest state of a run. Cursor and Done reflect the
// persisted position even if the run failed between milestones.
func (r *Runner) Load(ctx context.Context, runID string) (State, error) {
	latest, err := r.store.LoadLatest(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return State{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return State{}, err
	}
	state := latest.State
	state.RunID = runID
	state.Cursor = latest.Next
	state.Done = latest.Next == ""
	return state, nil
}

// LoadMilestone returns the state saved when a run reached milestone.
func (r *Runner) LoadMilestone(ctx context.Context, runID, milestone string) (State, error) {
	cp, err := r.engine.LoadCheckpoint(ctx, graph.CheckpointID(runID, milestone))
	if err != nil {
		return State{}, fmt.Errorf("%w: %s at %s", ErrRunNotFound, runID, milestone)
	}
	return cp.State, nil
}

// List summarizes every stored run, most recent first.
func (r *Runner) List(ctx context.Context) ([]RunInfo, error) {
	runs, err := r.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RunInfo, 0, len(runs))
	for _, s := range runs {
		info := RunInfo{RunSummary: s, Done: s.Next == ""}
		if latest, err := r.store.LoadLatest(ctx, s.RunID); err == nil {
			info.Topic = latest.State.Topic
			info.Milestone = latest.State.Milestone
			info.Outcome = latest.State.Outcome
		}
		out = append(out, info)
	}
	return out, nil
}

// Delete removes a run and its cost records.
func (r *Runner) Delete(ctx context.Context, runID string) error {
	if err := r.store.DeleteRun(ctx, runID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return err
	}
	if r.cost != nil {
		r.cost.Forget(runID)
	}
	return nil
}

// Cost summarizes the LLM usage recorded for a run in this process.
func (r *Runner) Cost(runID string) graph.CostSummary {
	return r.cost.Summary(runID)
}
