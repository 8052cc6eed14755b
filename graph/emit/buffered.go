package emit

import "sync"

// BufferedEmitter implements Emitter by storing events in memory, grouped by
// run ID.
//
// The reply service uses it to attach the event trace of a run to the
// response: the job manager calls Take once the run ends, which returns the
// events and frees them.
//
// Example usage:
//
//	emitter := emit.NewBufferedEmitter()
//	engine, _ := graph.New(g, nil, emitter)
//	_, _ = engine.Run(ctx, "run-001", initial)
//
//	all := emitter.GetHistory("run-001")
//	routing := emitter.GetHistoryWithFilter("run-001", emit.HistoryFilter{Msg: emit.MsgRoutingDecision})
//	emitter.Clear("run-001")
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // runID -> events

	// maxPerRun caps the events kept per run; 0 means unlimited.
	maxPerRun int
}

// HistoryFilter specifies criteria for filtering execution history.
//
// All filter fields are optional. When multiple fields are set, they are
// combined with AND logic.
type HistoryFilter struct {
	NodeID  string // Filter by node ID (empty = no filter)
	Msg     string // Filter by message (empty = no filter)
	MinStep *int   // Minimum step number (nil = no filter)
	MaxStep *int   // Maximum step number (nil = no filter)
}

// NewBufferedEmitter creates an emitter with no per-run cap.
func NewBufferedEmitter() *BufferedEmitter {
	return NewBoundedEmitter(0)
}

// NewBoundedEmitter creates an emitter that keeps at most maxPerRun events per
// run, dropping the oldest first.
func NewBoundedEmitter(maxPerRun int) *BufferedEmitter {
	return &BufferedEmitter{
		events:    make(map[string][]Event),
		maxPerRun: maxPerRun,
	}
}

// Emit stores the event under its run ID.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := append(b.events[event.RunID], event)
	if b.maxPerRun > 0 && len(events) > b.maxPerRun {
		events = events[len(events)-b.maxPerRun:]
	}
	b.events[event.RunID] = events
}

// GetHistory returns a copy of every event recorded for runID.
func (b *BufferedEmitter) GetHistory(runID string) []Event {
	return b.GetHistoryWithFilter(runID, HistoryFilter{})
}

// GetHistoryWithFilter returns the events of runID that match filter.
func (b *BufferedEmitter) GetHistoryWithFilter(runID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := []Event{}
	for _, event := range b.events[runID] {
		if filter.matches(event) {
			result = append(result, event)
		}
	}
	return result
}

// Take returns the events of runID and forgets them.
func (b *BufferedEmitter) Take(runID string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := b.events[runID]
	delete(b.events, runID)
	if events == nil {
		return []Event{}
	}
	return events
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

func (f HistoryFilter) matches(event Event) bool {
	if f.NodeID != "" && event.NodeID != f.NodeID {
		return false
	}
	if f.Msg != "" && event.Msg != f.Msg {
		return false
	}
	if f.MinStep != nil && event.Step < *f.MinStep {
		return false
	}
	if f.MaxStep != nil && event.Step > *f.MaxStep {
		return false
	}
	return true
}
