package emit

import "time"

// Event is an observability record produced while a workflow runs.
//
// The engine emits one event when a node starts, one when it completes or
// fails, and one per checkpoint. Application code may emit its own events
// (per-paper progress, LLM usage) through the same Emitter.
type Event struct {
	// RunID identifies the workflow execution.
	RunID string `json:"run_id"`

	// Step is the sequential step number (1-based). Zero for events that are
	// not tied to a step, such as checkpoints.
	Step int `json:"step"`

	// NodeID identifies the node that produced this event.
	NodeID string `json:"node_id,omitempty"`

	// Msg is a short human-readable description ("node_start",
	// "node_end", "node_error", "checkpoint").
	Msg string `json:"msg"`

	// Meta carries structured details such as latency_ms, error, tokens_in.
	Meta map[string]interface{} `json:"meta,omitempty"`

	// Time is when the event was produced. Zero values are filled in by
	// emitters that care about it.
	Time time.Time `json:"time"`
}

// Well-known event messages emitted by the engine.
const (
	MsgNodeStart  = "node_start"
	MsgNodeEnd    = "node_end"
	MsgNodeError  = "node_error"
	MsgCheckpoint = "checkpoint"
	MsgRunEnd     = "run_end"
)
