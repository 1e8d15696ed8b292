package emit

// Emitter receives observability events from the engine and from
// application code.
//
// Implementations must be safe for concurrent use and must not block for
// long; Emit is called inline on the execution path.
type Emitter interface {
	Emit(event Event)
}

// MultiEmitter forwards every event to each of its emitters in order.
type MultiEmitter []Emitter

// NewMultiEmitter combines emitters, skipping nil entries.
func NewMultiEmitter(emitters ...Emitter) MultiEmitter {
	out := make(MultiEmitter, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// Emit implements Emitter.
func (m MultiEmitter) Emit(event Event) {
	for _, e := range m {
		e.Emit(event)
	}
}
