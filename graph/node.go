package graph

import "context"

// Node represents a processing unit in the workflow graph.
// It receives state of type S, performs computation, and returns a NodeResult.
//
// Each node can:
//   - Read the current state
//   - Call external capabilities (generation, retrieval, persistence)
//   - Return a partial state update via Delta
//   - Fail with Err
//
// Nodes never choose their successor; the edge table does. A node must not
// mutate the state it receives.
//
// Type parameter S is the state type shared across the workflow.
type Node[S any] interface {
	// Run executes the node's logic with the given context and state.
	Run(ctx context.Context, state S) NodeResult[S]
}

// NodeResult represents the output of a node execution.
type NodeResult[S any] struct {
	// Delta is the partial state update produced by this node.
	// It will be merged with the current state using the graph's reducer.
	Delta S

	// Err contains any error that occurred during node execution.
	// A non-nil error halts the run; the engine wraps it in a NodeError.
	Err error
}

// Update returns a successful NodeResult carrying delta.
func Update[S any](delta S) NodeResult[S] {
	return NodeResult[S]{Delta: delta}
}

// Fail returns a failed NodeResult.
func Fail[S any](err error) NodeResult[S] {
	return NodeResult[S]{Err: err}
}

// NodeFunc is a function adapter that implements the Node interface.
// It allows using plain functions as nodes without creating custom types.
//
// Example:
//
//	categorize := NodeFunc[State](func(ctx context.Context, s State) NodeResult[State] {
//	    return Update(NewState(F("email_category", "price_enquiry"), NextStep(s)))
//	})
type NodeFunc[S any] func(ctx context.Context, state S) NodeResult[S]

// Run implements the Node interface for NodeFunc.
func (f NodeFunc[S]) Run(ctx context.Context, state S) NodeResult[S] {
	return f(ctx, state)
}

// NodeError represents an error that occurred during node execution.
// It provides structured error information for better observability and debugging.
type NodeError struct {
	// Message is the human-readable error description.
	Message string

	// Code is a machine-readable error code for programmatic handling.
	// The engine uses "NODE_FAILED" for node errors and "DECISION_FAILED"
	// for errors returned by a conditional edge's decider.
	Code string

	// NodeID identifies which node produced this error.
	NodeID string

	// Cause is the underlying error that caused this NodeError.
	Cause error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause error for error wrapping support.
func (e *NodeError) Unwrap() error {
	return e.Cause
}
