package graph

import (
	"context"
	"sync"

	"github.com/abdulmalikadeyemo/email-assistant/graph/emit"
)

// setNode returns a node that writes key=value and advances the step counter.
func setNode(key string, value any) Node[State] {
	return NodeFunc[State](func(_ context.Context, s State) NodeResult[State] {
		return Update(NewState(F(key, value), NextStep(s)))
	})
}

// labelDecider always returns label.
func labelDecider(label Label) Decider[State] {
	return DecisionFunc[State](func(context.Context, State) (Label, error) {
		return label, nil
	})
}

// mustCompile builds a graph or fails the test.
func mustCompile[S any](t interface {
	Helper()
	Fatalf(string, ...any)
}, b *Builder[S]) *Graph[S] {
	t.Helper()
	g, err := b.Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return g
}

// recordingEmitter keeps every event for assertions.
type recordingEmitter struct {
	mu     sync.Mutex
	events []emit.Event
}

func (r *recordingEmitter) Emit(e emit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEmitter) msgs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Msg
	}
	return out
}
