package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrDimensionMismatch is returned when a vector's length differs from the
// vectors already in an index.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Index stores document vectors and ranks them by cosine similarity.
type Index interface {
	// Upsert adds docs with their vectors, replacing documents with the same ID.
	Upsert(ctx context.Context, docs []Document, vectors [][]float64) error

	// Search returns up to k documents ordered by decreasing similarity to
	// query, with Score set.
	Search(ctx context.Context, query []float64, k int) ([]Document, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	Close() error
}

type entry struct {
	doc    Document
	vector []float64
}

// MemoryIndex is an in-process Index. It is safe for concurrent use.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]entry
	order   []string
	dim     int
}

// NewMemoryIndex creates an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]entry)}
}

// Upsert implements Index.
func (m *MemoryIndex) Upsert(ctx context.Context, docs []Document, vectors [][]float64) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("upsert: %d documents but %d vectors", len(docs), len(vectors))
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("upsert: document %d has no ID", i)
		}
		if err := checkDim(&m.dim, len(vectors[i])); err != nil {
			return err
		}
		if _, exists := m.entries[doc.ID]; !exists {
			m.order = append(m.order, doc.ID)
		}
		doc.Score = 0
		m.entries[doc.ID] = entry{doc: doc, vector: append([]float64(nil), vectors[i]...)}
	}
	return nil
}

// Search implements Index.
func (m *MemoryIndex) Search(ctx context.Context, query []float64, k int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.dim != 0 && len(query) != m.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), m.dim)
	}
	candidates := make([]entry, 0, len(m.order))
	for _, id := range m.order {
		candidates = append(candidates, m.entries[id])
	}
	return rank(candidates, query, k), nil
}

// Count implements Index.
func (m *MemoryIndex) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Close implements Index.
func (m *MemoryIndex) Close() error { return nil }

func checkDim(dim *int, n int) error {
	if n == 0 {
		return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	if *dim == 0 {
		*dim = n
		return nil
	}
	if *dim != n {
		return fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, n, *dim)
	}
	return nil
}

// rank scores candidates against query and returns the best k. Ties keep
// candidate order.
func rank(candidates []entry, query []float64, k int) []Document {
	scored := make([]Document, len(candidates))
	for i, c := range candidates {
		doc := c.doc
		doc.Score = cosine(query, c.vector)
		scored[i] = doc
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
