package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory implementation of Store[S].
//
// It is the default store for tests and for the CLI `run` command. Records are
// kept until DeleteRun is called or the process exits.
//
// States are stored as given; with graph.State this is safe because the
// engine never mutates a state after handing it to the store.
type MemStore[S any] struct {
	mu    sync.RWMutex
	steps map[string][]StepRecord[S] // runID -> steps ordered by Step
	now   func() time.Time
}

// NewMemStore creates an empty MemStore.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{
		steps: make(map[string][]StepRecord[S]),
		now:   time.Now,
	}
}

// SaveStep implements Store.
func (m *MemStore[S]) SaveStep(_ context.Context, runID string, step int, nodeID string, state S) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := StepRecord[S]{Step: step, NodeID: nodeID, State: state, SavedAt: m.now()}
	records := m.steps[runID]

	i := sort.Search(len(records), func(i int) bool { return records[i].Step >= step })
	if i < len(records) && records[i].Step == step {
		records[i] = rec
		return nil
	}
	records = append(records, StepRecord[S]{})
	copy(records[i+1:], records[i:])
	records[i] = rec
	m.steps[runID] = records
	return nil
}

// LoadLatest implements Store.
func (m *MemStore[S]) LoadLatest(_ context.Context, runID string) (state S, step int, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.steps[runID]
	if len(records) == 0 {
		return state, 0, ErrNotFound
	}
	last := records[len(records)-1]
	return last.State, last.Step, nil
}

// LoadSteps implements Store.
func (m *MemStore[S]) LoadSteps(_ context.Context, runID string) ([]StepRecord[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.steps[runID]
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	out := make([]StepRecord[S], len(records))
	copy(out, records)
	return out, nil
}

// DeleteRun forgets every step of runID.
func (m *MemStore[S]) DeleteRun(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.steps, runID)
	return nil
}

// Runs returns the IDs of all runs with at least one step, sorted.
func (m *MemStore[S]) Runs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.steps))
	for id := range m.steps {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
