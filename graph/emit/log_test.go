package emit

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogEmitter(t *testing.T) {
	t.Run("writes run, step, node and meta fields", func(t *testing.T) {
		var buf bytes.Buffer
		emitter := NewLogEmitter(zerolog.New(&buf).Level(zerolog.DebugLevel))

		emitter.Emit(Event{
			RunID:  "run-001",
			Step:   3,
			NodeID: "planner",
			Msg:    MsgNodeEnd,
			Meta:   map[string]interface{}{"latency": 1500 * time.Millisecond, "queries": 4},
		})

		lines := decodeLines(t, &buf)
		if len(lines) != 1 {
			t.Fatalf("expected 1 line, got %d", len(lines))
		}
		line := lines[0]
		if line["run_id"] != "run-001" {
			t.Errorf("expected run_id run-001, got %v", line["run_id"])
		}
		if line["step"] != float64(3) {
			t.Errorf("expected step 3, got %v", line["step"])
		}
		if line["node_id"] != "planner" {
			t.Errorf("expected node_id planner, got %v", line["node_id"])
		}
		if line["message"] != MsgNodeEnd {
			t.Errorf("expected message %q, got %v", MsgNodeEnd, line["message"])
		}
		if line["level"] != "info" {
			t.Errorf("expected info level, got %v", line["level"])
		}
		if line["queries"] != float64(4) {
			t.Errorf("expected queries 4, got %v", line["queries"])
		}
		if line["component"] != "graph" {
			t.Errorf("expected component graph, got %v", line["component"])
		}
	})

	t.Run("errors are logged at warn level", func(t *testing.T) {
		var buf bytes.Buffer
		emitter := NewLogEmitter(zerolog.New(&buf))

		emitter.Emit(Event{
			RunID: "run-002",
			Msg:   MsgNodeError,
			Meta:  map[string]interface{}{"error": errors.New("boom")},
		})

		lines := decodeLines(t, &buf)
		if len(lines) != 1 {
			t.Fatalf("expected 1 line, got %d", len(lines))
		}
		if lines[0]["level"] != "warn" {
			t.Errorf("expected warn level, got %v", lines[0]["level"])
		}
		if lines[0]["error"] != "boom" {
			t.Errorf("expected error boom, got %v", lines[0]["error"])
		}
	})

	t.Run("debug events are filtered by logger level", func(t *testing.T) {
		var buf bytes.Buffer
		emitter := NewLogEmitter(zerolog.New(&buf).Level(zerolog.InfoLevel))

		emitter.Emit(Event{RunID: "run-003", Msg: MsgNodeStart})

		if buf.Len() != 0 {
			t.Errorf("expected node_start to be filtered at info level, got %s", buf.String())
		}
	})
}
