package graph

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/abdulmalikadeyemo/email-assistant/graph/emit"
	"github.com/abdulmalikadeyemo/email-assistant/graph/store"
)

// linearGraph is A -> C -> END.
func linearGraph(t *testing.T) *Graph[State] {
	b := NewBuilder[State](Merge)
	_ = b.AddNode("A", setNode("a", "done"))
	_ = b.AddNode("C", setNode("c", "done"))
	_ = b.SetEntry("A")
	_ = b.AddEdge("A", "C")
	_ = b.AddEdge("C", END)
	return mustCompile(t, b)
}

// rewriteGraph mirrors the reply flow: draft, then either rewrite (analyze and
// rewrite) or keep the draft.
func rewriteGraph(t *testing.T, decide Decider[State]) *Graph[State] {
	b := NewBuilder[State](Merge)
	_ = b.AddNode("categorize", setNode("category", "customer_complaint"))
	_ = b.AddNode("draft", setNode("draft", "Sorry about that."))
	_ = b.AddNode("analyze", setNode("feedback", "be more specific"))
	_ = b.AddNode("rewrite", NodeFunc[State](func(_ context.Context, s State) NodeResult[State] {
		return Update(NewState(F("final", s.String("draft")+" We have refunded your order."), NextStep(s)))
	}))
	_ = b.AddNode("no_rewrite", NodeFunc[State](func(_ context.Context, s State) NodeResult[State] {
		return Update(NewState(F("final", s.String("draft")), NextStep(s)))
	}))
	_ = b.SetEntry("categorize")
	_ = b.AddEdge("categorize", "draft")
	_ = b.AddConditionalEdge("draft", decide, map[Label]string{
		"rewrite":    "analyze",
		"no_rewrite": "no_rewrite",
	})
	_ = b.AddEdge("analyze", "rewrite")
	_ = b.AddEdge("rewrite", END)
	_ = b.AddEdge("no_rewrite", END)
	return mustCompile(t, b)
}

func newEngine(t *testing.T, g *Graph[State], opts ...Option) (*Engine[State], *recordingEmitter) {
	t.Helper()
	rec := &recordingEmitter{}
	engine, err := New(g, nil, rec, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return engine, rec
}

func TestEngine_New(t *testing.T) {
	if _, err := New[State](nil, nil, nil); err == nil {
		t.Error("expected error for nil graph")
	}
	if _, err := New(linearGraph(t), nil, nil, WithMaxSteps(-1)); err == nil {
		t.Error("expected error for negative MaxSteps")
	}
	if _, err := New(linearGraph(t), nil, nil, WithDefaultNodeTimeout(-time.Second)); err == nil {
		t.Error("expected error for negative timeout")
	}
	engine, err := New(linearGraph(t), nil, nil, WithOptions(Options{MaxSteps: 10}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if engine.Graph().Entry() != "A" {
		t.Errorf("Graph().Entry() = %q", engine.Graph().Entry())
	}
}

func TestEngine_LinearRun(t *testing.T) {
	engine, rec := newEngine(t, linearGraph(t))

	final, err := engine.Run(context.Background(), "run-1", NewState(F(StepsKey, 0)))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if Steps(final) != 2 {
		t.Errorf("num_steps = %d, want 2", Steps(final))
	}
	if final.String("a") != "done" || final.String("c") != "done" {
		t.Errorf("final state = %v", final.Map())
	}

	want := []string{
		emit.MsgRunStart,
		emit.MsgNodeStart, emit.MsgNodeEnd,
		emit.MsgNodeStart, emit.MsgNodeEnd,
		emit.MsgRunComplete,
	}
	if got := rec.msgs(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestEngine_ConditionalRouting(t *testing.T) {
	t.Run("rewrite branch", func(t *testing.T) {
		engine, rec := newEngine(t, rewriteGraph(t, labelDecider("rewrite")))

		final, err := engine.Run(context.Background(), "run-rewrite", NewState(F("initial_email", "my order is late"), F(StepsKey, 0)))
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if Steps(final) != 4 {
			t.Errorf("num_steps = %d, want 4", Steps(final))
		}
		if final.String("final") == final.String("draft") {
			t.Error("expected rewritten final to differ from draft")
		}
		if final.String("feedback") == "" {
			t.Error("expected analysis feedback in state")
		}

		var routed []emit.Event
		for _, e := range rec.events {
			if e.Msg == emit.MsgRoutingDecision {
				routed = append(routed, e)
			}
		}
		if len(routed) != 1 || routed[0].Meta["label"] != "rewrite" || routed[0].Meta["next"] != "analyze" {
			t.Errorf("routing events = %+v", routed)
		}
	})

	t.Run("no rewrite branch", func(t *testing.T) {
		engine, _ := newEngine(t, rewriteGraph(t, labelDecider("no_rewrite")))

		final, err := engine.Run(context.Background(), "run-keep", NewState(F(StepsKey, 0)))
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if Steps(final) != 3 {
			t.Errorf("num_steps = %d, want 3", Steps(final))
		}
		if final.String("final") != final.String("draft") {
			t.Error("expected final to equal draft")
		}
		if final.Has("feedback") {
			t.Error("analyze node should not have run")
		}
	})

	t.Run("decider sees merged state", func(t *testing.T) {
		var seen string
		decide := DecisionFunc[State](func(_ context.Context, s State) (Label, error) {
			seen = s.String("draft")
			return "no_rewrite", nil
		})
		engine, _ := newEngine(t, rewriteGraph(t, decide))
		if _, err := engine.Run(context.Background(), "run", State{}); err != nil {
			t.Fatalf("Run: %v", err)
		}
		if seen != "Sorry about that." {
			t.Errorf("decider saw draft %q", seen)
		}
	})

	t.Run("deterministic across runs", func(t *testing.T) {
		engine, _ := newEngine(t, rewriteGraph(t, DecisionFunc[State](func(_ context.Context, s State) (Label, error) {
			if s.String("category") == "customer_complaint" {
				return "rewrite", nil
			}
			return "no_rewrite", nil
		})))

		first, err := engine.Run(context.Background(), "r0", NewState(F(StepsKey, 0)))
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		for i := 1; i < 10; i++ {
			got, err := engine.Run(context.Background(), fmt.Sprintf("r%d", i), NewState(F(StepsKey, 0)))
			if err != nil {
				t.Fatalf("Run %d: %v", i, err)
			}
			if !reflect.DeepEqual(got.Map(), first.Map()) || !reflect.DeepEqual(got.Keys(), first.Keys()) {
				t.Fatalf("run %d differs: %v vs %v", i, got.Map(), first.Map())
			}
		}
	})
}

func TestEngine_RoutingError(t *testing.T) {
	engine, rec := newEngine(t, rewriteGraph(t, labelDecider("unknown_label")))

	partial, err := engine.Run(context.Background(), "run-bad", NewState(F(StepsKey, 0)))

	var routeErr *RoutingError
	if !errors.As(err, &routeErr) {
		t.Fatalf("expected RoutingError, got %v", err)
	}
	if !errors.Is(err, ErrRouting) {
		t.Error("expected error to match ErrRouting")
	}
	if routeErr.NodeID != "draft" || routeErr.Label != "unknown_label" {
		t.Errorf("RoutingError = %+v", routeErr)
	}
	if !reflect.DeepEqual(routeErr.Known, []Label{"no_rewrite", "rewrite"}) {
		t.Errorf("Known = %v", routeErr.Known)
	}

	// The draft node completed before routing failed, so its update is kept.
	if Steps(partial) != 2 || partial.String("draft") == "" {
		t.Errorf("partial state = %v", partial.Map())
	}
	if StatusOf(err) != StatusFailed || FailedNode(err) != "draft" {
		t.Errorf("status = %s, failed node = %q", StatusOf(err), FailedNode(err))
	}

	msgs := rec.msgs()
	if msgs[len(msgs)-1] != emit.MsgRunFailed {
		t.Errorf("last event = %s, want run_failed", msgs[len(msgs)-1])
	}
}

func TestEngine_NodeError(t *testing.T) {
	boom := errors.New("generation backend unavailable")

	b := NewBuilder[State](Merge)
	_ = b.AddNode("A", setNode("a", 1))
	_ = b.AddNode("B", NodeFunc[State](func(context.Context, State) NodeResult[State] {
		return Fail[State](boom)
	}))
	_ = b.AddNode("C", setNode("c", 1))
	_ = b.SetEntry("A")
	_ = b.AddEdge("A", "B")
	_ = b.AddEdge("B", "C")
	_ = b.AddEdge("C", END)

	cStore := store.NewMemStore[State]()
	engine, err := New(mustCompile(t, b), cStore, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	partial, err := engine.Run(context.Background(), "run-err", NewState(F(StepsKey, 0)))

	var nodeErr *NodeError
	if !errors.As(err, &nodeErr) {
		t.Fatalf("expected NodeError, got %v", err)
	}
	if nodeErr.NodeID != "B" || nodeErr.Code != "NODE_FAILED" {
		t.Errorf("NodeError = %+v", nodeErr)
	}
	if !errors.Is(err, boom) {
		t.Error("expected NodeError to wrap the cause")
	}
	if Steps(partial) != 1 || partial.Has("c") {
		t.Errorf("partial state = %v", partial.Map())
	}

	steps, err := cStore.LoadSteps(context.Background(), "run-err")
	if err != nil || len(steps) != 1 || steps[0].NodeID != "A" {
		t.Errorf("persisted steps = %+v, %v", steps, err)
	}
}

func TestEngine_DecisionError(t *testing.T) {
	failing := DecisionFunc[State](func(context.Context, State) (Label, error) {
		return "", errors.New("could not parse router output")
	})
	engine, _ := newEngine(t, rewriteGraph(t, failing))

	_, err := engine.Run(context.Background(), "run", State{})

	var nodeErr *NodeError
	if !errors.As(err, &nodeErr) || nodeErr.Code != "DECISION_FAILED" || nodeErr.NodeID != "draft" {
		t.Fatalf("expected DECISION_FAILED NodeError at draft, got %v", err)
	}
}

func TestEngine_Cancellation(t *testing.T) {
	t.Run("cancelled before start", func(t *testing.T) {
		engine, _ := newEngine(t, linearGraph(t))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		partial, err := engine.Run(ctx, "run", NewState(F(StepsKey, 0)))

		var cancelErr *CancelledError
		if !errors.As(err, &cancelErr) {
			t.Fatalf("expected CancelledError, got %v", err)
		}
		if cancelErr.NodeID != "A" || cancelErr.Step != 0 {
			t.Errorf("CancelledError = %+v", cancelErr)
		}
		if !errors.Is(err, context.Canceled) || StatusOf(err) != StatusCancelled {
			t.Errorf("status = %s, err = %v", StatusOf(err), err)
		}
		if Steps(partial) != 0 {
			t.Errorf("no node should have run, num_steps = %d", Steps(partial))
		}
	})

	t.Run("cancelled between nodes", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		b := NewBuilder[State](Merge)
		_ = b.AddNode("A", NodeFunc[State](func(_ context.Context, s State) NodeResult[State] {
			cancel()
			return Update(NewState(F("a", 1), NextStep(s)))
		}))
		_ = b.AddNode("C", setNode("c", 1))
		_ = b.SetEntry("A")
		_ = b.AddEdge("A", "C")
		_ = b.AddEdge("C", END)

		engine, _ := newEngine(t, mustCompile(t, b))
		partial, err := engine.Run(ctx, "run", NewState(F(StepsKey, 0)))

		var cancelErr *CancelledError
		if !errors.As(err, &cancelErr) || cancelErr.NodeID != "C" {
			t.Fatalf("expected CancelledError before C, got %v", err)
		}
		if partial.Int("a") != 1 || partial.Has("c") {
			t.Errorf("partial state = %v", partial.Map())
		}
	})

	t.Run("node interrupted by cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		b := NewBuilder[State](Merge)
		_ = b.AddNode("slow", NodeFunc[State](func(ctx context.Context, s State) NodeResult[State] {
			cancel()
			<-ctx.Done()
			return Fail[State](ctx.Err())
		}))
		_ = b.SetEntry("slow")
		_ = b.AddEdge("slow", END)

		engine, _ := newEngine(t, mustCompile(t, b))
		_, err := engine.Run(ctx, "run", State{})
		if StatusOf(err) != StatusCancelled || FailedNode(err) != "slow" {
			t.Errorf("status = %s, node = %q, err = %v", StatusOf(err), FailedNode(err), err)
		}
	})
}

func TestEngine_MaxSteps(t *testing.T) {
	b := NewBuilder[State](Merge)
	_ = b.AddNode("loop", NodeFunc[State](func(_ context.Context, s State) NodeResult[State] {
		return Update(NewState(NextStep(s)))
	}))
	_ = b.SetEntry("loop")
	_ = b.AddConditionalEdge("loop", labelDecider("again"), map[Label]string{"again": "loop", "stop": END})

	engine, _ := newEngine(t, mustCompile(t, b), WithMaxSteps(5))
	partial, err := engine.Run(context.Background(), "run", State{})

	if !errors.Is(err, ErrMaxStepsExceeded) {
		t.Fatalf("expected ErrMaxStepsExceeded, got %v", err)
	}
	var engErr *EngineError
	if !errors.As(err, &engErr) || engErr.Code != "MAX_STEPS_EXCEEDED" {
		t.Errorf("expected MAX_STEPS_EXCEEDED EngineError, got %v", err)
	}
	if Steps(partial) != 5 {
		t.Errorf("num_steps = %d, want 5", Steps(partial))
	}
}

func TestEngine_NodeTimeout(t *testing.T) {
	slow := NodeFunc[State](func(ctx context.Context, s State) NodeResult[State] {
		select {
		case <-ctx.Done():
			return Fail[State](ctx.Err())
		case <-time.After(time.Second):
			return Update(NewState(NextStep(s)))
		}
	})

	t.Run("policy timeout", func(t *testing.T) {
		b := NewBuilder[State](Merge)
		_ = b.AddNode("slow", slow)
		_ = b.SetEntry("slow")
		_ = b.AddEdge("slow", END)
		_ = b.SetPolicy("slow", NodePolicy{Timeout: 10 * time.Millisecond})

		engine, _ := newEngine(t, mustCompile(t, b))
		_, err := engine.Run(context.Background(), "run", State{})

		var engErr *EngineError
		if !errors.As(err, &engErr) || engErr.Code != "NODE_TIMEOUT" || engErr.NodeID != "slow" {
			t.Fatalf("expected NODE_TIMEOUT, got %v", err)
		}
		if StatusOf(err) != StatusFailed {
			t.Errorf("status = %s, want failed", StatusOf(err))
		}
	})

	t.Run("default timeout", func(t *testing.T) {
		b := NewBuilder[State](Merge)
		_ = b.AddNode("slow", slow)
		_ = b.SetEntry("slow")
		_ = b.AddEdge("slow", END)

		engine, _ := newEngine(t, mustCompile(t, b), WithDefaultNodeTimeout(10*time.Millisecond))
		if _, err := engine.Run(context.Background(), "run", State{}); FailedNode(err) != "slow" {
			t.Errorf("expected timeout at slow, got %v", err)
		}
	})

	t.Run("policy validation", func(t *testing.T) {
		b := NewBuilder[State](Merge)
		if err := b.SetPolicy("x", NodePolicy{Timeout: -1}); err == nil {
			t.Error("expected error for negative timeout")
		}
	})
}

func TestEngine_Store(t *testing.T) {
	st := store.NewMemStore[State]()
	engine, err := New(linearGraph(t), st, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := engine.Run(context.Background(), "run-store", NewState(F(StepsKey, 0))); err != nil {
		t.Fatalf("Run: %v", err)
	}

	steps, err := st.LoadSteps(context.Background(), "run-store")
	if err != nil {
		t.Fatalf("LoadSteps: %v", err)
	}
	if len(steps) != 2 || steps[0].NodeID != "A" || steps[1].NodeID != "C" {
		t.Fatalf("steps = %+v", steps)
	}
	if Steps(steps[1].State) != 2 {
		t.Errorf("persisted num_steps = %d", Steps(steps[1].State))
	}
}

type failingStore struct{ store.Store[State] }

func (failingStore) SaveStep(context.Context, string, int, string, State) error {
	return errors.New("disk full")
}

func TestEngine_StoreError(t *testing.T) {
	engine, err := New(linearGraph(t), failingStore{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = engine.Run(context.Background(), "run", State{})

	var engErr *EngineError
	if !errors.As(err, &engErr) || engErr.Code != "STORE_ERROR" || engErr.NodeID != "A" {
		t.Fatalf("expected STORE_ERROR at A, got %v", err)
	}
}

func TestEngine_Metrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	ok, _ := newEngine(t, rewriteGraph(t, labelDecider("rewrite")), WithMetrics(metrics))
	if _, err := ok.Run(context.Background(), "ok", State{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	bad, _ := newEngine(t, rewriteGraph(t, labelDecider("bogus")), WithMetrics(metrics))
	_, _ = bad.Run(context.Background(), "bad", State{})

	if got := testutil.ToFloat64(metrics.runs.WithLabelValues("completed")); got != 1 {
		t.Errorf("completed runs = %v", got)
	}
	if got := testutil.ToFloat64(metrics.runs.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed runs = %v", got)
	}
	if got := testutil.ToFloat64(metrics.routingDecisions.WithLabelValues("draft", "rewrite")); got != 1 {
		t.Errorf("rewrite decisions = %v", got)
	}
	if got := testutil.ToFloat64(metrics.nodeErrors.WithLabelValues("draft", "routing")); got != 1 {
		t.Errorf("routing errors = %v", got)
	}
	if got := testutil.ToFloat64(metrics.inflight); got != 0 {
		t.Errorf("inflight = %v", got)
	}

	metrics.Disable()
	_, _ = ok.Run(context.Background(), "ok2", State{})
	if got := testutil.ToFloat64(metrics.runs.WithLabelValues("completed")); got != 1 {
		t.Errorf("disabled metrics recorded a run: %v", got)
	}
	metrics.Enable()
	metrics.Reset()
}

func TestEngine_ConcurrentRuns(t *testing.T) {
	engine, _ := newEngine(t, rewriteGraph(t, DecisionFunc[State](func(_ context.Context, s State) (Label, error) {
		if s.Int("want_rewrite") == 1 {
			return "rewrite", nil
		}
		return "no_rewrite", nil
	})))

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := i % 2
			final, err := engine.Run(context.Background(), fmt.Sprintf("run-%d", i), NewState(F("want_rewrite", want), F(StepsKey, 0)))
			if err != nil {
				errs <- err
				return
			}
			wantSteps := 3
			if want == 1 {
				wantSteps = 4
			}
			if Steps(final) != wantSteps {
				errs <- fmt.Errorf("run %d: num_steps = %d, want %d", i, Steps(final), wantSteps)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

// reviewState is a typed state with its own reducer.
type reviewState struct {
	Draft string
	Votes int
}

func TestEngine_TypedState(t *testing.T) {
	reducer := func(prev, delta reviewState) reviewState {
		if delta.Draft != "" {
			prev.Draft = delta.Draft
		}
		prev.Votes += delta.Votes
		return prev
	}

	b := NewBuilder[reviewState](reducer)
	_ = b.AddNode("vote", NodeFunc[reviewState](func(context.Context, reviewState) NodeResult[reviewState] {
		return Update(reviewState{Votes: 1})
	}))
	_ = b.SetEntry("vote")
	_ = b.AddConditionalEdge("vote", DecisionFunc[reviewState](func(_ context.Context, s reviewState) (Label, error) {
		if s.Votes >= 3 {
			return "enough", nil
		}
		return "more", nil
	}), map[Label]string{"enough": END, "more": "vote"})

	final, err := Execute(context.Background(), mustCompile(t, b), reviewState{Draft: "x"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if final.Votes != 3 || final.Draft != "x" {
		t.Errorf("final = %+v", final)
	}
}
