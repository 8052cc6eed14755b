package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Reducer merges a node's partial update into the accumulated state.
//
// Reducers must be pure: the same (prev, delta) pair always yields the same
// result, and neither argument may be mutated. Merge is the reducer for State.
//
// Example for a typed state:
//
//	reducer := func(prev, delta MyState) MyState {
//	    if delta.Query != "" {
//	        prev.Query = delta.Query
//	    }
//	    return prev
//	}
type Reducer[S any] func(prev, delta S) S

// StepsKey is the conventional step counter field. Nodes that follow the
// step accounting convention increment it by exactly one in their partial.
const StepsKey = "num_steps"

// Field is a single key/value pair of a State.
type Field struct {
	Key   string
	Value any
}

// F is shorthand for constructing a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// State is an ordered mapping from field name to an opaque value.
//
// State values are copy-on-write: With and Merge return a new State and leave
// the receiver untouched, so a node can never alter the container the
// executor holds. Key order is insertion order and survives Merge and JSON
// encoding, which keeps traces and artifacts stable across runs.
//
// The zero value is an empty State ready to use.
type State struct {
	keys []string
	vals map[string]any
}

// NewState builds a State from fields in order. A repeated key keeps its first
// position and takes the last value.
func NewState(fields ...Field) State {
	s := State{vals: make(map[string]any, len(fields))}
	for _, f := range fields {
		if _, ok := s.vals[f.Key]; !ok {
			s.keys = append(s.keys, f.Key)
		}
		s.vals[f.Key] = f.Value
	}
	return s
}

// FromMap builds a State from a plain map. Keys listed in order come first;
// the remaining keys follow in lexicographic order.
func FromMap(m map[string]any, order ...string) State {
	fields := make([]Field, 0, len(m))
	seen := make(map[string]bool, len(m))
	for _, k := range order {
		if v, ok := m[k]; ok && !seen[k] {
			fields = append(fields, F(k, v))
			seen[k] = true
		}
	}
	rest := make([]string, 0, len(m)-len(seen))
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		fields = append(fields, F(k, m[k]))
	}
	return NewState(fields...)
}

// Len reports the number of fields.
func (s State) Len() int { return len(s.keys) }

// Keys returns the field names in insertion order.
func (s State) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Get returns the value stored under key.
func (s State) Get(key string) (any, bool) {
	v, ok := s.vals[key]
	return v, ok
}

// Has reports whether key is present.
func (s State) Has(key string) bool {
	_, ok := s.vals[key]
	return ok
}

// String returns the value under key as a string, or "" when absent or not a
// string.
func (s State) String(key string) string {
	switch v := s.vals[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

// Int returns the value under key as an int. Numeric values decoded from JSON
// arrive as float64 and are truncated.
func (s State) Int(key string) int {
	switch v := s.vals[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}

// Strings returns the value under key as a string slice. It accepts []string
// and []any holding strings.
func (s State) Strings(key string) []string {
	switch v := s.vals[key].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

// With returns a copy of s with key set to value.
func (s State) With(key string, value any) State {
	next := s.Clone()
	if _, ok := next.vals[key]; !ok {
		next.keys = append(next.keys, key)
	}
	next.vals[key] = value
	return next
}

// Clone returns a shallow copy: the container is new, values are shared.
func (s State) Clone() State {
	next := State{
		keys: make([]string, len(s.keys)),
		vals: make(map[string]any, len(s.vals)+1),
	}
	copy(next.keys, s.keys)
	for k, v := range s.vals {
		next.vals[k] = v
	}
	return next
}

// Map returns the fields as a plain map.
func (s State) Map() map[string]any {
	out := make(map[string]any, len(s.vals))
	for k, v := range s.vals {
		out[k] = v
	}
	return out
}

// Fields returns the fields in insertion order.
func (s State) Fields() []Field {
	out := make([]Field, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, Field{Key: k, Value: s.vals[k]})
	}
	return out
}

// Merge applies partial on top of current.
//
// Every key in partial replaces the current value wholesale; there is no deep
// merge of nested maps or slices. Keys absent from partial keep their current
// value, and no key is ever deleted. New keys are appended after existing
// ones in the order partial lists them.
func Merge(current, partial State) State {
	next := current.Clone()
	for _, k := range partial.keys {
		if _, ok := next.vals[k]; !ok {
			next.keys = append(next.keys, k)
		}
		next.vals[k] = partial.vals[k]
	}
	return next
}

// Steps returns the step counter of s.
func Steps(s State) int {
	return s.Int(StepsKey)
}

// NextStep returns the partial field that advances the step counter by one.
func NextStep(s State) Field {
	return F(StepsKey, Steps(s)+1)
}

// MarshalJSON encodes s as a JSON object with keys in insertion order.
func (s State) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(s.vals[k])
		if err != nil {
			return nil, fmt.Errorf("failed to marshal field %q: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, preserving the key order of the input.
func (s *State) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*s = State{}
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("state: expected JSON object, got %v", tok)
	}

	next := State{vals: make(map[string]any)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("state: expected object key, got %v", tok)
		}
		var val any
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("state: field %q: %w", key, err)
		}
		if _, exists := next.vals[key]; !exists {
			next.keys = append(next.keys, key)
		}
		next.vals[key] = val
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = next
	return nil
}
