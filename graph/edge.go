package graph

import "context"

// END is the terminal marker. Routing to END finishes the run. It is reserved
// and cannot be registered as a node.
const END = "__end__"

// Label is a symbolic routing decision returned by a Decider.
type Label string

// Decider inspects state after a node has run and names the branch to take.
//
// Deciders must not modify state. They may call external services (for
// example a model that classifies a draft), so they receive a context.
type Decider[S any] interface {
	Decide(ctx context.Context, state S) (Label, error)
}

// DecisionFunc adapts a plain function to the Decider interface.
type DecisionFunc[S any] func(ctx context.Context, state S) (Label, error)

// Decide implements Decider.
func (f DecisionFunc[S]) Decide(ctx context.Context, state S) (Label, error) {
	return f(ctx, state)
}

// Edge is the single outgoing edge definition of a node.
//
// Exactly one of To and Decider is set:
//   - Static: always continue to To.
//   - Conditional: call Decider on the post-merge state and continue to
//     Routes[label]. A label missing from Routes is a RoutingError.
//
// Type parameter S is the state type passed to the decider.
type Edge[S any] struct {
	// From is the source node ID.
	From string

	// To is the destination of a static edge (a node ID or END).
	To string

	// Decider chooses the label of a conditional edge.
	Decider Decider[S]

	// Routes maps every label Decider may return to a node ID or END.
	Routes map[Label]string
}

// Conditional reports whether the edge is resolved by a decider.
func (e Edge[S]) Conditional() bool {
	return e.Decider != nil
}

// Targets returns every possible destination of the edge.
func (e Edge[S]) Targets() []string {
	if !e.Conditional() {
		return []string{e.To}
	}
	out := make([]string, 0, len(e.Routes))
	for _, l := range sortedLabels(e.Routes) {
		out = append(out, e.Routes[l])
	}
	return out
}

// resolve returns the next node for the edge given the post-merge state.
func (e Edge[S]) resolve(ctx context.Context, state S) (next string, label Label, err error) {
	if !e.Conditional() {
		return e.To, "", nil
	}
	label, err = e.Decider.Decide(ctx, state)
	if err != nil {
		return "", label, &NodeError{
			Message: "decision failed: " + err.Error(),
			Code:    "DECISION_FAILED",
			NodeID:  e.From,
			Cause:   err,
		}
	}
	target, ok := e.Routes[label]
	if !ok {
		return "", label, &RoutingError{
			NodeID: e.From,
			Label:  label,
			Known:  sortedLabels(e.Routes),
		}
	}
	return target, label, nil
}
