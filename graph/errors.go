// Package graph provides the core graph execution engine: a registry of named
// nodes, a static and conditional edge table, compile-time validation, and an
// executor that threads state from an entry node to the END marker.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Graph definition errors. Every DefinitionError matches ErrInvalidGraph as
// well as its specific kind.
var (
	ErrInvalidGraph    = errors.New("invalid graph definition")
	ErrDuplicateNode   = errors.New("duplicate node")
	ErrUnknownNode     = errors.New("unknown node")
	ErrUnreachableNode = errors.New("unreachable node")
	ErrMissingEdge     = errors.New("missing outgoing edge")
	ErrDuplicateEdge   = errors.New("duplicate outgoing edge")
	ErrNoEntry         = errors.New("entry node not set")
	ErrReservedName    = errors.New("reserved node name")
	ErrSealed          = errors.New("graph already compiled")
)

// Run errors.
var (
	// ErrRouting indicates a decider returned a label the conditional edge
	// does not map.
	ErrRouting = errors.New("unrecognized routing decision")

	// ErrCancelled indicates the run was cancelled or its deadline passed
	// before the graph reached END.
	ErrCancelled = errors.New("run cancelled")

	// ErrMaxStepsExceeded indicates that the graph execution reached the maximum
	// allowed step count without completing. This prevents infinite loops and
	// runaway executions.
	ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")
)

// DefinitionError describes one problem found while building or compiling a
// graph. Compile joins all of them with errors.Join.
type DefinitionError struct {
	// Kind is one of the Err* definition sentinels.
	Kind error

	// NodeID is the node the problem is about.
	NodeID string

	// Detail adds context, for example the edge that references NodeID.
	Detail string
}

func (e *DefinitionError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.NodeID != "" {
		fmt.Fprintf(&b, " %q", e.NodeID)
	}
	if e.Detail != "" {
		b.WriteString(" (")
		b.WriteString(e.Detail)
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap lets errors.Is match both ErrInvalidGraph and the specific kind.
func (e *DefinitionError) Unwrap() []error {
	return []error{ErrInvalidGraph, e.Kind}
}

// RoutingError reports a decision label with no entry in the conditional
// edge's label map.
type RoutingError struct {
	// NodeID is the node whose outgoing conditional edge failed to resolve.
	NodeID string

	// Label is the unmapped decision.
	Label Label

	// Known lists the labels the edge does map, sorted.
	Known []Label
}

func (e *RoutingError) Error() string {
	known := make([]string, len(e.Known))
	for i, l := range e.Known {
		known[i] = string(l)
	}
	return fmt.Sprintf("node %s: %s %q (known: %s)", e.NodeID, ErrRouting, string(e.Label), strings.Join(known, ", "))
}

// Is reports whether target is ErrRouting.
func (e *RoutingError) Is(target error) bool {
	return target == ErrRouting
}

// CancelledError reports a run stopped by its context before NodeID ran.
type CancelledError struct {
	// NodeID is the node that would have run next.
	NodeID string

	// Step is the number of nodes completed before cancellation.
	Step int

	// Cause is the context error (context.Canceled or context.DeadlineExceeded).
	Cause error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("%s before node %s after %d steps: %v", ErrCancelled, e.NodeID, e.Step, e.Cause)
}

// Unwrap matches ErrCancelled and the underlying context error.
func (e *CancelledError) Unwrap() []error {
	return []error{ErrCancelled, e.Cause}
}

// EngineError represents an error raised by the engine itself rather than by
// node logic: exceeded step limits, node timeouts, store failures.
type EngineError struct {
	Message string
	Code    string

	// NodeID is the node being executed when the error occurred, if any.
	NodeID string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Status is the outcome of a run as reported to callers.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// StatusOf classifies the error returned by Engine.Run.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusCompleted
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return StatusCancelled
	default:
		return StatusFailed
	}
}

// FailedNode returns the node a run error is attributed to, or "" when the
// error carries no node.
func FailedNode(err error) string {
	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		return nodeErr.NodeID
	}
	var routeErr *RoutingError
	if errors.As(err, &routeErr) {
		return routeErr.NodeID
	}
	var cancelErr *CancelledError
	if errors.As(err, &cancelErr) {
		return cancelErr.NodeID
	}
	var engErr *EngineError
	if errors.As(err, &engErr) {
		return engErr.NodeID
	}
	return ""
}

func sortedLabels[V any](m map[Label]V) []Label {
	out := make([]Label, 0, len(m))
	for l := range m {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
