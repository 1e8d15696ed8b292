package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dshills/litreview/graph"
	"github.com/dshills/litreview/graph/emit"
	"github.com/dshills/litreview/internal/review"
)

const (
	maxRequestBodySize = 1 << 20

	modeFull   = "full"
	modeSearch = "search"

	// eventPollInterval is how often the event stream checks for new events.
	eventPollInterval = 500 * time.Millisecond
)

var validate = validator.New()

type startRunRequest struct {
	Topic string `json:"topic" validate:"required"`
	Mode  string `json:"mode" validate:"omitempty,oneof=full search"`
}

type acceptedResponse struct {
	RunID  string `json:"run_id"`
	Action string `json:"action"`
	Status string `json:"status"`
}

type runResponse struct {
	review.State
	Running bool              `json:"running"`
	Action  string            `json:"action,omitempty"`
	Cost    graph.CostSummary `json:"cost"`
}

type runListItem struct {
	review.RunInfo
	Running bool `json:"running"`
}

// startRun handles POST /api/v1/runs.
func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	var req startRunRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "topic is required and mode must be full or search")
		return
	}

	stopAfter, action := "", modeFull
	if req.Mode == modeSearch {
		stopAfter, action = review.StepDownloadArticles, modeSearch
	}
	initial := review.State{RunID: uuid.NewString(), Topic: req.Topic}

	s.execute(w, r, initial.RunID, action, func(ctx context.Context) (review.State, error) {
		return s.service.Run(ctx, initial, stopAfter)
	})
}

// generateRun handles POST /api/v1/runs/{runID}/generate.
func (s *Server) generateRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	state, err := s.service.Load(r.Context(), runID)
	if err != nil {
		s.writeRunError(w, err)
		return
	}
	if state.Done {
		writeJSON(w, http.StatusOK, s.view(state))
		return
	}
	s.execute(w, r, runID, "generate", func(ctx context.Context) (review.State, error) {
		return s.service.Generate(ctx, runID)
	})
}

// reviseRun handles POST /api/v1/runs/{runID}/revise.
func (s *Server) reviseRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	state, err := s.service.Load(r.Context(), runID)
	if err != nil {
		s.writeRunError(w, err)
		return
	}
	if state.CurrentDraft() == "" {
		s.writeRunError(w, review.ErrNoDraft)
		return
	}
	s.execute(w, r, runID, "revise", func(ctx context.Context) (review.State, error) {
		return s.service.Revise(ctx, runID)
	})
}

// execute runs fn for runID, synchronously when the request asks for
// ?wait=true and in the background otherwise. A run can only have one
// action in flight.
func (s *Server) execute(w http.ResponseWriter, r *http.Request, runID, action string, fn func(context.Context) (review.State, error)) {
	if !s.begin(runID, action) {
		writeError(w, http.StatusConflict, "run is already in progress")
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		state, err := func() (review.State, error) {
			defer s.end(runID)
			return fn(r.Context())
		}()
		if err != nil {
			s.writeRunError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.view(state))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.end(runID)

		logger := s.logger.With().Str("run_id", runID).Str("action", action).Logger()
		state, err := fn(s.baseCtx)
		if err != nil {
			logger.Error().Err(err).Msg("background run failed")
			return
		}
		logger.Info().Str("milestone", state.Milestone).Str("outcome", state.Outcome).Msg("background run finished")
	}()

	writeJSON(w, http.StatusAccepted, acceptedResponse{RunID: runID, Action: action, Status: "running"})
}

func (s *Server) begin(runID, action string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[runID]; busy {
		return false
	}
	s.inflight[runID] = action
	return true
}

func (s *Server) end(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, runID)
}

func (s *Server) running(runID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	action, ok := s.inflight[runID]
	return action, ok
}

func (s *Server) view(state review.State) runResponse {
	action, running := s.running(state.RunID)
	return runResponse{State: state, Running: running, Action: action, Cost: s.service.Cost(state.RunID)}
}

// listRuns handles GET /api/v1/runs.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.service.List(r.Context())
	if err != nil {
		s.writeRunError(w, err)
		return
	}
	items := make([]runListItem, 0, len(runs))
	for _, info := range runs {
		_, running := s.running(info.RunID)
		items = append(items, runListItem{RunInfo: info, Running: running})
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": items})
}

// getRun handles GET /api/v1/runs/{runID}. With ?format=markdown it
// returns the current draft as text.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	state, err := s.service.Load(r.Context(), runID)
	if err != nil {
		s.writeRunError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "markdown" {
		draft := state.FinalDraft
		if draft == "" {
			draft = state.CurrentDraft()
		}
		if draft == "" {
			s.writeRunError(w, review.ErrNoDraft)
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, draft)
		return
	}

	writeJSON(w, http.StatusOK, s.view(state))
}

// runEvents handles GET /api/v1/runs/{runID}/events. Clients that accept
// text/event-stream receive events as they happen until the run stops.
func (s *Server) runEvents(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if _, err := s.service.Load(r.Context(), runID); err != nil {
		if _, running := s.running(runID); !running {
			s.writeRunError(w, err)
			return
		}
	}

	filter := emit.HistoryFilter{NodeID: r.URL.Query().Get("node"), Msg: r.URL.Query().Get("msg")}
	if r.Header.Get("Accept") == "text/event-stream" {
		s.streamEvents(w, r, runID, filter)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "events": s.history(runID, filter)})
}

func (s *Server) history(runID string, filter emit.HistoryFilter) []emit.Event {
	if s.events == nil {
		return []emit.Event{}
	}
	return s.events.GetHistoryWithFilter(runID, filter)
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, runID string, filter emit.HistoryFilter) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	type eventKey struct {
		time      time.Time
		step      int
		node, msg string
	}
	sent := map[eventKey]bool{}
	send := func() {
		for _, ev := range s.history(runID, filter) {
			k := eventKey{ev.Time, ev.Step, ev.NodeID, ev.Msg}
			if sent[k] {
				continue
			}
			sent[k] = true
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			_, _ = io.WriteString(w, "event: "+ev.Msg+"\ndata: ")
			_, _ = w.Write(data)
			_, _ = io.WriteString(w, "\n\n")
		}
		flusher.Flush()
	}

	ticker := time.NewTicker(eventPollInterval)
	defer ticker.Stop()
	for {
		send()
		if _, running := s.running(runID); !running {
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// pipelineErrorResponse reports a failed run together with the state it
// reached.
type pipelineErrorResponse struct {
	Error string      `json:"error"`
	RunID string      `json:"run_id"`
	Step  string      `json:"step"`
	State runResponse `json:"state"`
}

// writeRunError maps workflow errors to HTTP statuses.
func (s *Server) writeRunError(w http.ResponseWriter, err error) {
	var pe *review.PipelineError
	switch {
	case errors.Is(err, review.ErrRunNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, review.ErrNoDraft):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &pe):
		status := http.StatusInternalServerError
		if errors.Is(err, review.ErrValidation) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, pipelineErrorResponse{
			Error: err.Error(),
			RunID: pe.State.RunID,
			Step:  pe.Step,
			State: s.view(pe.State),
		})
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
