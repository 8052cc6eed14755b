// Package parse turns model replies into structured values.
//
// Models asked for JSON often wrap it in a markdown code fence or add a
// sentence before it. Extract finds the outermost JSON object or array in
// such a reply; Structured, Field and Strings build on it.
package parse

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ParseError reports a reply that does not contain the expected structure.
type ParseError struct {
	// Text is the reply that failed to parse, truncated for display.
	Text string

	// Key is the field that was looked up, if any.
	Key string

	Reason string
	Cause  error
}

func (e *ParseError) Error() string {
	msg := "parse: " + e.Reason
	if e.Key != "" {
		msg += fmt.Sprintf(" (key %q)", e.Key)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

const maxErrorText = 200

func newError(text, key, reason string, cause error) *ParseError {
	if len(text) > maxErrorText {
		text = text[:maxErrorText] + "..."
	}
	return &ParseError{Text: text, Key: key, Reason: reason, Cause: cause}
}

// Clean trims whitespace and removes a surrounding markdown code fence
// (``` or ```json).
func Clean(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop the info string (e.g. "json").
		if !strings.ContainsAny(s[:nl], "{[") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Extract returns the outermost JSON object or array in text.
func Extract(text string) (string, error) {
	s := Clean(text)
	if gjson.Valid(s) && (strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")) {
		return s, nil
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", newError(text, "", "no JSON found", nil)
	}
	end := matchingClose(s, start)
	if end < 0 {
		return "", newError(text, "", "unterminated JSON", nil)
	}
	candidate := s[start : end+1]
	if !gjson.Valid(candidate) {
		return "", newError(text, "", "invalid JSON", nil)
	}
	return candidate, nil
}

// matchingClose returns the index of the bracket closing s[start], skipping
// brackets inside string literals, or -1.
func matchingClose(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// Structured extracts JSON from text and unmarshals it into v.
func Structured(text string, v any) error {
	raw, err := Extract(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return newError(text, "", "decode", err)
	}
	return nil
}

// Field returns the string value at key (a gjson path) in the JSON of text.
// Numbers and booleans are returned in their JSON form; objects and arrays
// are rejected.
func Field(text, key string) (string, error) {
	res, err := lookup(text, key)
	if err != nil {
		return "", err
	}
	if res.IsObject() || res.IsArray() {
		return "", newError(text, key, "value is not a scalar", nil)
	}
	return res.String(), nil
}

// Strings returns the string list at key in the JSON of text. A single string
// value is returned as a one-element list.
func Strings(text, key string) ([]string, error) {
	res, err := lookup(text, key)
	if err != nil {
		return nil, err
	}
	if !res.IsArray() {
		if res.Type == gjson.String {
			return []string{res.String()}, nil
		}
		return nil, newError(text, key, "value is not a list", nil)
	}
	items := res.Array()
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item.IsObject() || item.IsArray() {
			return nil, newError(text, key, "list item is not a scalar", nil)
		}
		out = append(out, item.String())
	}
	return out, nil
}

func lookup(text, key string) (gjson.Result, error) {
	raw, err := Extract(text)
	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			pe.Key = key
		}
		return gjson.Result{}, err
	}
	res := gjson.Get(raw, key)
	if !res.Exists() {
		return gjson.Result{}, newError(text, key, "missing key", nil)
	}
	return res, nil
}

// Label normalizes a free-text classification: surrounding whitespace,
// quotes, backticks and trailing punctuation are removed and the result is
// lower-cased.
func Label(text string) string {
	s := Clean(text)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(s, " \t\"'`.,;:!")
	return strings.ToLower(s)
}
