package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abdulmalikadeyemo/email-assistant/graph/emit"
	"github.com/abdulmalikadeyemo/email-assistant/graph/store"
)

// Engine executes runs of a compiled Graph.
//
// The Engine:
//   - Starts every run at the graph's entry node
//   - Merges each node's partial update via the graph's reducer
//   - Resolves the next node from the edge table, calling deciders for
//     conditional edges
//   - Persists the merged state after each node when a store is configured
//   - Emits observability events and records metrics
//   - Enforces MaxSteps and node timeouts
//   - Stops before the next node once the run context is done
//
// An Engine holds no per-run state; any number of runs may execute
// concurrently on one Engine.
//
// Type parameter S is the state type shared across the workflow.
//
// Example:
//
//	g, _ := b.Compile()
//	engine, err := graph.New(g, store.NewMemStore[graph.State](), emit.NewNullEmitter(),
//	    graph.WithMaxSteps(50))
//	final, err := engine.Run(ctx, "run-001", graph.NewState(graph.F("initial_email", body)))
type Engine[S any] struct {
	graph *Graph[S]

	// store persists the state after each step; nil disables persistence
	store store.Store[S]

	// emitter receives observability events
	emitter emit.Emitter

	metrics *PrometheusMetrics
	opts    Options
}

// New creates an Engine for g. st and emitter may be nil.
func New[S any](g *Graph[S], st store.Store[S], emitter emit.Emitter, options ...Option) (*Engine[S], error) {
	if g == nil {
		return nil, &EngineError{Message: "graph is required", Code: "MISSING_GRAPH"}
	}

	cfg := &engineConfig{}
	for _, opt := range options {
		if err := opt(cfg); err != nil {
			return nil, &EngineError{Message: "invalid option: " + err.Error(), Code: "INVALID_OPTION", Cause: err}
		}
	}

	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}

	return &Engine[S]{
		graph:   g,
		store:   st,
		emitter: emitter,
		metrics: cfg.metrics,
		opts:    cfg.opts,
	}, nil
}

// Graph returns the compiled graph the engine runs.
func (e *Engine[S]) Graph() *Graph[S] {
	return e.graph
}

// Run executes the graph from its entry node until a route reaches END.
//
// On success Run returns the final state. On failure it returns the state as
// it was when the failure happened together with one of:
//   - *NodeError: a node, or a conditional edge's decider, failed
//   - *RoutingError: a decider returned a label its edge does not map
//   - *CancelledError: ctx was done before the next node could start
//   - *EngineError: MaxSteps exceeded, node timeout, or store failure
//
// The engine never retries a node.
func (e *Engine[S]) Run(ctx context.Context, runID string, initial S) (S, error) {
	r := &run[S]{engine: e, runID: runID, state: initial, current: e.graph.entry}
	ctx = withRunID(ctx, runID)

	e.metrics.RunStarted()
	r.emit(emit.MsgRunStart, "", map[string]interface{}{"entry": e.graph.entry})

	for {
		if err := ctx.Err(); err != nil {
			return r.fail(&CancelledError{NodeID: r.current, Step: r.step, Cause: err})
		}
		if e.opts.MaxSteps > 0 && r.step >= e.opts.MaxSteps {
			return r.fail(&EngineError{
				Message: fmt.Sprintf("run exceeded MaxSteps limit of %d", e.opts.MaxSteps),
				Code:    "MAX_STEPS_EXCEEDED",
				NodeID:  r.current,
				Cause:   ErrMaxStepsExceeded,
			})
		}

		next, err := r.advance(ctx)
		if err != nil {
			return r.fail(err)
		}
		if next == END {
			e.metrics.RunFinished(StatusCompleted)
			r.emit(emit.MsgRunComplete, "", map[string]interface{}{"status": string(StatusCompleted)})
			return r.state, nil
		}
		r.current = next
	}
}

// run carries the mutable state of one execution.
type run[S any] struct {
	engine  *Engine[S]
	runID   string
	state   S
	current string
	step    int
}

// advance executes the current node, merges its update, persists, and resolves
// the outgoing edge.
func (r *run[S]) advance(ctx context.Context) (string, error) {
	e := r.engine
	nodeID := r.current
	node := e.graph.nodes[nodeID]
	ctx = withNodeID(ctx, nodeID)

	r.step++
	r.emit(emit.MsgNodeStart, nodeID, nil)

	var policy *NodePolicy
	if p, ok := e.graph.policies[nodeID]; ok {
		policy = &p
	}

	start := time.Now()
	result, timeoutErr := executeNodeWithTimeout(ctx, node, nodeID, r.state, policy, e.opts.DefaultNodeTimeout)
	latency := time.Since(start)

	switch {
	case timeoutErr != nil:
		e.metrics.RecordStepLatency(nodeID, latency, "timeout")
		return "", timeoutErr
	case result.Err != nil:
		e.metrics.RecordStepLatency(nodeID, latency, "error")
		if ctx.Err() != nil && (errors.Is(result.Err, context.Canceled) || errors.Is(result.Err, context.DeadlineExceeded)) {
			// The node stopped because the run was cancelled; it did not complete.
			return "", &CancelledError{NodeID: nodeID, Step: r.step - 1, Cause: ctx.Err()}
		}
		return "", wrapNodeError(nodeID, result.Err)
	}
	e.metrics.RecordStepLatency(nodeID, latency, "success")

	r.state = e.graph.reducer(r.state, result.Delta)

	if e.store != nil {
		if err := e.store.SaveStep(ctx, r.runID, r.step, nodeID, r.state); err != nil {
			return "", &EngineError{
				Message: "failed to save step: " + err.Error(),
				Code:    "STORE_ERROR",
				NodeID:  nodeID,
				Cause:   err,
			}
		}
	}

	r.emit(emit.MsgNodeEnd, nodeID, map[string]interface{}{"latency_ms": latency.Milliseconds()})

	edge := e.graph.edges[nodeID]
	next, label, err := edge.resolve(ctx, r.state)
	if err != nil {
		return "", err
	}
	if edge.Conditional() {
		e.metrics.RecordRoutingDecision(nodeID, label)
		r.emit(emit.MsgRoutingDecision, nodeID, map[string]interface{}{"label": string(label), "next": next})
	}
	return next, nil
}

// fail finishes the run with err and returns the partial state.
func (r *run[S]) fail(err error) (S, error) {
	status := StatusOf(err)
	kind := errorKind(err)
	nodeID := FailedNode(err)

	r.engine.metrics.RecordNodeError(nodeID, kind)
	r.engine.metrics.RunFinished(status)
	r.emit(emit.MsgRunFailed, nodeID, map[string]interface{}{
		"error":  err.Error(),
		"status": string(status),
		"kind":   kind,
	})
	return r.state, err
}

func (r *run[S]) emit(msg, nodeID string, meta map[string]interface{}) {
	r.engine.emitter.Emit(emit.Event{
		RunID:  r.runID,
		Step:   r.step,
		NodeID: nodeID,
		Msg:    msg,
		Time:   time.Now(),
		Meta:   meta,
	})
}

func wrapNodeError(nodeID string, err error) error {
	var nodeErr *NodeError
	if errors.As(err, &nodeErr) && nodeErr.NodeID != "" {
		return err
	}
	return &NodeError{
		Message: err.Error(),
		Code:    "NODE_FAILED",
		NodeID:  nodeID,
		Cause:   err,
	}
}

func errorKind(err error) string {
	var engErr *EngineError
	var nodeErr *NodeError
	switch {
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrRouting):
		return "routing"
	case errors.As(err, &engErr):
		switch engErr.Code {
		case "NODE_TIMEOUT":
			return "timeout"
		case "STORE_ERROR":
			return "store"
		case "MAX_STEPS_EXCEEDED":
			return "max_steps"
		}
		return "engine"
	case errors.As(err, &nodeErr) && nodeErr.Code == "DECISION_FAILED":
		return "decision"
	default:
		return "node"
	}
}

// Execute runs g once with no store, emitter, or limits. It is the shortest
// path from a compiled graph to a final state.
func Execute[S any](ctx context.Context, g *Graph[S], initial S) (S, error) {
	engine, err := New[S](g, nil, nil)
	if err != nil {
		var zero S
		return zero, err
	}
	return engine.Run(ctx, "run", initial)
}
