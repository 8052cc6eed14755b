package jobs

import (
	"context"
	"sort"
	"sync"
)

// Store persists job records. Implementations must be safe for concurrent
// use and must not retain the *Job passed to Save.
type Store interface {
	Save(ctx context.Context, job *Job) error

	// Get returns the job or ErrNotFound.
	Get(ctx context.Context, id string) (*Job, error)

	// List returns up to limit jobs, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]*Job, error)

	Close() error
}

// MemoryStore keeps jobs in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job.clone()
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job.clone(), nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, limit int) ([]*Job, error) {
	m.mu.RLock()
	out := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, job.clone())
	}
	m.mu.RUnlock()
	return newestFirst(out, limit), nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }

func newestFirst(jobs []*Job, limit int) []*Job {
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs
}
