package graph

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// ModelPricing defines input and output token costs in USD per 1M tokens.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// defaultModelPricing holds list prices for the models the application is
// configured with by default. Unknown models are recorded at zero cost.
var defaultModelPricing = map[string]ModelPricing{
	"gemini-2.0-flash":      {InputPer1M: 0.10, OutputPer1M: 0.40},
	"gemini-2.0-flash-lite": {InputPer1M: 0.075, OutputPer1M: 0.30},
	"gemini-2.5-flash":      {InputPer1M: 0.30, OutputPer1M: 2.50},
	"gemini-2.5-pro":        {InputPer1M: 1.25, OutputPer1M: 10.00},
	"gemini-1.5-flash":      {InputPer1M: 0.075, OutputPer1M: 0.30},
	"gemini-1.5-pro":        {InputPer1M: 1.25, OutputPer1M: 5.00},

	"gpt-4o":      {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini": {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4.1":     {InputPer1M: 2.00, OutputPer1M: 8.00},

	"claude-3-5-haiku-latest":  {InputPer1M: 0.80, OutputPer1M: 4.00},
	"claude-3-5-sonnet-latest": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-sonnet-4-20250514": {InputPer1M: 3.00, OutputPer1M: 15.00},
}

// LLMCall is one recorded LLM invocation.
type LLMCall struct {
	RunID        string    `json:"run_id"`
	NodeID       string    `json:"node_id"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	Timestamp    time.Time `json:"timestamp"`
}

// CostSummary aggregates the calls of one run.
type CostSummary struct {
	RunID        string             `json:"run_id"`
	Calls        int                `json:"calls"`
	InputTokens  int64              `json:"input_tokens"`
	OutputTokens int64              `json:"output_tokens"`
	TotalUSD     float64            `json:"total_usd"`
	ByModel      map[string]float64 `json:"by_model"`
	ByNode       map[string]float64 `json:"by_node"`
}

// CostTracker attributes LLM token usage and cost to runs and nodes.
// It is safe for concurrent use by fan-out workers.
type CostTracker struct {
	mu      sync.RWMutex
	pricing map[string]ModelPricing
	calls   []LLMCall
	enabled bool
}

// NewCostTracker creates a tracker with the default pricing table.
func NewCostTracker() *CostTracker {
	pricing := make(map[string]ModelPricing, len(defaultModelPricing))
	for k, v := range defaultModelPricing {
		pricing[k] = v
	}
	return &CostTracker{pricing: pricing, enabled: true}
}

// RecordLLMCall records one call and returns its cost in USD. A nil tracker
// records nothing.
func (ct *CostTracker) RecordLLMCall(runID, nodeID, model string, inputTokens, outputTokens int) float64 {
	if ct == nil {
		return 0
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()

	if !ct.enabled {
		return 0
	}

	p := ct.pricing[model]
	cost := float64(inputTokens)/1_000_000.0*p.InputPer1M + float64(outputTokens)/1_000_000.0*p.OutputPer1M

	ct.calls = append(ct.calls, LLMCall{
		RunID:        runID,
		NodeID:       nodeID,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
		Timestamp:    time.Now().UTC(),
	})
	return cost
}

// Summary aggregates every call recorded for runID.
func (ct *CostTracker) Summary(runID string) CostSummary {
	s := CostSummary{RunID: runID, ByModel: map[string]float64{}, ByNode: map[string]float64{}}
	if ct == nil {
		return s
	}

	ct.mu.RLock()
	defer ct.mu.RUnlock()

	for _, c := range ct.calls {
		if c.RunID != runID {
			continue
		}
		s.Calls++
		s.InputTokens += int64(c.InputTokens)
		s.OutputTokens += int64(c.OutputTokens)
		s.TotalUSD += c.CostUSD
		s.ByModel[c.Model] += c.CostUSD
		s.ByNode[c.NodeID] += c.CostUSD
	}
	return s
}

// Calls returns a copy of the calls recorded for runID, oldest first.
func (ct *CostTracker) Calls(runID string) []LLMCall {
	if ct == nil {
		return nil
	}
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	var out []LLMCall
	for _, c := range ct.calls {
		if c.RunID == runID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// SetCustomPricing overrides or adds pricing for model.
func (ct *CostTracker) SetCustomPricing(model string, inputPer1M, outputPer1M float64) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.pricing[model] = ModelPricing{InputPer1M: inputPer1M, OutputPer1M: outputPer1M}
}

// Disable stops recording.
func (ct *CostTracker) Disable() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.enabled = false
}

// Enable resumes recording.
func (ct *CostTracker) Enable() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.enabled = true
}

// Forget drops the calls of runID, or of every run when runID is empty.
func (ct *CostTracker) Forget(runID string) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if runID == "" {
		ct.calls = nil
		return
	}
	kept := ct.calls[:0]
	for _, c := range ct.calls {
		if c.RunID != runID {
			kept = append(kept, c)
		}
	}
	ct.calls = kept
}

func (s CostSummary) String() string {
	return fmt.Sprintf("%d LLM calls, %d in / %d out tokens, $%.4f",
		s.Calls, s.InputTokens, s.OutputTokens, s.TotalUSD)
}
