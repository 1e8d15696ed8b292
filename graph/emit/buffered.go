package emit

import (
	"sync"
	"time"
)

// BufferedEmitter keeps events in memory, grouped by run ID.
//
// The HTTP API serves run progress from it. When a run exceeds the
// per-run limit the oldest events are dropped.
type BufferedEmitter struct {
	mu        sync.RWMutex
	events    map[string][]Event // runID -> events
	maxPerRun int
}

// HistoryFilter narrows GetHistoryWithFilter results. Zero fields match
// everything.
type HistoryFilter struct {
	NodeID  string
	Msg     string
	MinStep *int
	MaxStep *int
}

// NewBufferedEmitter creates a BufferedEmitter. maxPerRun <= 0 means no
// limit.
func NewBufferedEmitter(maxPerRun int) *BufferedEmitter {
	return &BufferedEmitter{
		events:    make(map[string][]Event),
		maxPerRun: maxPerRun,
	}
}

// Emit implements Emitter.
func (b *BufferedEmitter) Emit(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	evs := append(b.events[event.RunID], event)
	if b.maxPerRun > 0 && len(evs) > b.maxPerRun {
		evs = append([]Event(nil), evs[len(evs)-b.maxPerRun:]...)
	}
	b.events[event.RunID] = evs
}

// GetHistory returns a copy of all events recorded for runID.
func (b *BufferedEmitter) GetHistory(runID string) []Event {
	return b.GetHistoryWithFilter(runID, HistoryFilter{})
}

// GetHistoryWithFilter returns the events for runID that match filter.
// It never returns nil.
func (b *BufferedEmitter) GetHistoryWithFilter(runID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := []Event{}
	for _, event := range b.events[runID] {
		if matchesFilter(event, filter) {
			result = append(result, event)
		}
	}
	return result
}

func matchesFilter(event Event, filter HistoryFilter) bool {
	if filter.NodeID != "" && event.NodeID != filter.NodeID {
		return false
	}
	if filter.Msg != "" && event.Msg != filter.Msg {
		return false
	}
	if filter.MinStep != nil && event.Step < *filter.MinStep {
		return false
	}
	if filter.MaxStep != nil && event.Step > *filter.MaxStep {
		return false
	}
	return true
}

// Clear removes the events of runID, or of every run when runID is empty.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if runID == "" {
		b.events = make(map[string][]Event)
	} else {
		delete(b.events, runID)
	}
}
