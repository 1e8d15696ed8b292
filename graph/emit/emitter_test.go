package emit

import "testing"

type countingEmitter struct {
	events []Event
}

func (c *countingEmitter) Emit(event Event) {
	c.events = append(c.events, event)
}

func TestMultiEmitter(t *testing.T) {
	t.Run("forwards to every emitter in order", func(t *testing.T) {
		a, b := &countingEmitter{}, &countingEmitter{}
		m := NewMultiEmitter(a, nil, b)

		if len(m) != 2 {
			t.Fatalf("expected nil emitters to be skipped, got %d entries", len(m))
		}

		m.Emit(Event{RunID: "run-1", Msg: MsgNodeStart})
		m.Emit(Event{RunID: "run-1", Msg: MsgNodeEnd})

		for name, c := range map[string]*countingEmitter{"a": a, "b": b} {
			if len(c.events) != 2 {
				t.Fatalf("%s: expected 2 events, got %d", name, len(c.events))
			}
			if c.events[1].Msg != MsgNodeEnd {
				t.Errorf("%s: expected second event %q, got %q", name, MsgNodeEnd, c.events[1].Msg)
			}
		}
	})

	t.Run("empty multi emitter is a no-op", func(t *testing.T) {
		NewMultiEmitter().Emit(Event{RunID: "run-1"})
	})
}

func TestNullEmitter(t *testing.T) {
	var e Emitter = NewNullEmitter()
	e.Emit(Event{RunID: "run-1", Meta: map[string]interface{}{"k": "v"}})
}
