package graph

import "context"

type costTrackerKey struct{}

// WithCostTracker returns a context carrying ct.
func WithCostTracker(ctx context.Context, ct *CostTracker) context.Context {
	return context.WithValue(ctx, costTrackerKey{}, ct)
}

// CostTrackerFrom returns the tracker carried by ctx, or nil.
func CostTrackerFrom(ctx context.Context) *CostTracker {
	ct, _ := ctx.Value(costTrackerKey{}).(*CostTracker)
	return ct
}

type nodeIDKey struct{}

// withNodeID marks ctx with the node being executed.
func withNodeID(ctx context.Context, nodeID string) context.Context {
	return context.WithValue(ctx, nodeIDKey{}, nodeID)
}

// NodeIDFrom returns the ID of the node whose execution ctx belongs to, or
// "" outside a node.
func NodeIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(nodeIDKey{}).(string)
	return id
}

type runIDKey struct{}

func withRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFrom returns the ID of the run ctx belongs to, or "" outside a run.
func RunIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
