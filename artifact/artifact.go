// Package artifact persists the intermediate outputs of a reply run
// (category, research, drafts, feedback, final email) as markdown documents.
//
// Writing artifacts is best effort: workflow nodes log a failed Write and
// carry on.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Sink receives named artifacts. Implementations must be safe for concurrent
// use.
type Sink interface {
	Write(ctx context.Context, name string, content any) error
}

// Format renders content the way artifacts are stored: a map becomes one
// "key: value" line per entry (sorted by key), a list becomes its items
// joined by newlines, and anything else is printed with fmt.
func Format(content any) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, "\n")
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, "\n")
	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		lines := make([]string, len(keys))
		for i, k := range keys {
			lines[i] = k + ": " + v[k]
		}
		return strings.Join(lines, "\n")
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		lines := make([]string, len(keys))
		for i, k := range keys {
			lines[i] = fmt.Sprintf("%s: %v", k, v[k])
		}
		return strings.Join(lines, "\n")
	default:
		return fmt.Sprint(v)
	}
}

// ValidName reports whether name can be used as an artifact name: non-empty,
// no path separators, not "." or "..".
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

// MemorySink keeps artifacts in memory, keyed by run and name.
type MemorySink struct {
	mu   sync.RWMutex
	docs map[string]map[string]string
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{docs: make(map[string]map[string]string)}
}

// Write implements Sink. Artifacts are grouped by the run ID of ctx.
func (m *MemorySink) Write(ctx context.Context, name string, content any) error {
	if !ValidName(name) {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	runID := runID(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs[runID] == nil {
		m.docs[runID] = make(map[string]string)
	}
	m.docs[runID][name] = Format(content)
	return nil
}

// Get returns the artifact name written during runID.
func (m *MemorySink) Get(runID, name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[runID][name]
	return doc, ok
}

// Names returns the artifact names written during runID, sorted.
func (m *MemorySink) Names(runID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.docs[runID]))
	for name := range m.docs[runID] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type discard struct{}

func (discard) Write(context.Context, string, any) error { return nil }

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

type multi []Sink

func (m multi) Write(ctx context.Context, name string, content any) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, name, content); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Multi returns a Sink that writes to every sink. All sinks are attempted;
// their errors are joined.
func Multi(sinks ...Sink) Sink {
	flat := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			flat = append(flat, s)
		}
	}
	return flat
}
