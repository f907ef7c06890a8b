package emit

import "sync"

// BufferedEmitter stores events in memory, keyed by run ID. Intended for
// tests, debugging and post-run analysis; it grows without bound, so
// production deployments should prefer a streaming backend.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event
}

// HistoryFilter selects events from a run's history. Empty fields match
// everything; set fields combine with AND.
type HistoryFilter struct {
	NodeID string
	Msg    string
}

// NewBufferedEmitter creates an in-memory emitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	b.events[event.RunID] = append(b.events[event.RunID], event)
	b.mu.Unlock()
}

// History returns a copy of all events for a run, in emission order.
func (b *BufferedEmitter) History(runID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	events := b.events[runID]
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// HistoryWithFilter returns the events for a run matching the filter.
func (b *BufferedEmitter) HistoryWithFilter(runID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := []Event{}
	for _, e := range b.events[runID] {
		if filter.NodeID != "" && e.NodeID != filter.NodeID {
			continue
		}
		if filter.Msg != "" && e.Msg != filter.Msg {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Clear drops events for one run, or for all runs when runID is empty.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if runID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, runID)
}
