// Package emit delivers graph run events to observability backends.
package emit

// Emitter receives and processes observability events from graph execution.
//
// Implementations should be:
//   - Non-blocking: Avoid slowing down workflow execution
//   - Thread-safe: May be called concurrently from many runs
//   - Resilient: Handle failures gracefully (never fail the run)
type Emitter interface {
	// Emit sends an observability event to the configured backend.
	// Emit should not panic. Errors should be handled internally.
	Emit(event Event)
}

// Multi fans every event out to each emitter in order. Nil emitters are
// skipped.
type Multi []Emitter

// NewMulti returns a Multi over the non-nil emitters.
func NewMulti(emitters ...Emitter) Multi {
	out := make(Multi, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// Emit implements Emitter.
func (m Multi) Emit(event Event) {
	for _, e := range m {
		e.Emit(event)
	}
}
