package graph

import (
	"context"
	"math"
	"strings"
	"sync"
	"testing"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCostTracker_RecordLLMCall(t *testing.T) {
	ct := NewCostTracker("run-1")

	// 1000 input tokens at $0.15/1M + 500 output at $0.60/1M
	cost := ct.RecordLLMCall("gpt-4o-mini", 1000, 500, "categorize_email")
	if !approx(cost, 0.00045) {
		t.Errorf("cost = %v, want 0.00045", cost)
	}

	ct.RecordLLMCall("llama-3.3-70b-versatile", 2000, 1000, "draft_email_writer")
	if !approx(ct.TotalCost(), 0.00045+0.00118+0.00079) {
		t.Errorf("TotalCost = %v", ct.TotalCost())
	}

	in, out := ct.TokenUsage()
	if in != 3000 || out != 1500 {
		t.Errorf("TokenUsage = %d, %d", in, out)
	}

	byNode := ct.CostByNode()
	if !approx(byNode["categorize_email"], 0.00045) {
		t.Errorf("CostByNode = %v", byNode)
	}
	if len(ct.Calls()) != 2 || ct.Calls()[1].NodeID != "draft_email_writer" {
		t.Errorf("Calls = %+v", ct.Calls())
	}
}

func TestCostTracker_Pricing(t *testing.T) {
	ct := NewCostTracker("run")

	t.Run("dated snapshot uses prefix", func(t *testing.T) {
		cost := ct.RecordLLMCall("gpt-4o-mini-2024-07-18", 1_000_000, 0, "")
		if !approx(cost, 0.15) {
			t.Errorf("cost = %v, want 0.15 (gpt-4o-mini, not gpt-4o)", cost)
		}
	})

	t.Run("unknown model is free", func(t *testing.T) {
		if cost := ct.RecordLLMCall("local-model", 1000, 1000, ""); cost != 0 {
			t.Errorf("cost = %v", cost)
		}
	})

	t.Run("custom pricing", func(t *testing.T) {
		ct.SetPricing("local-model", 1, 2)
		if cost := ct.RecordLLMCall("local-model", 1_000_000, 1_000_000, ""); !approx(cost, 3) {
			t.Errorf("cost = %v", cost)
		}
	})

	t.Run("pricing is per tracker", func(t *testing.T) {
		other := NewCostTracker("other")
		if cost := other.RecordLLMCall("local-model", 1_000_000, 0, ""); cost != 0 {
			t.Errorf("SetPricing leaked into another tracker: %v", cost)
		}
	})
}

func TestCostTracker_SummaryAndString(t *testing.T) {
	ct := NewCostTracker("run-9")
	ct.RecordLLMCall("gemini-1.5-flash", 1_000_000, 1_000_000, "n")

	s := ct.Summary()
	if s.Calls != 1 || !approx(s.TotalUSD, 0.375) || !approx(s.ByModel["gemini-1.5-flash"], 0.375) {
		t.Errorf("Summary = %+v", s)
	}
	if !strings.Contains(ct.String(), "RunID: run-9") {
		t.Errorf("String = %s", ct.String())
	}
	if ct.RunID() != "run-9" {
		t.Errorf("RunID = %q", ct.RunID())
	}
}

func TestCostTracker_Concurrent(t *testing.T) {
	ct := NewCostTracker("run")
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ct.RecordLLMCall("gpt-4o", 10, 10, "n")
		}()
	}
	wg.Wait()
	if len(ct.Calls()) != 100 {
		t.Errorf("calls = %d", len(ct.Calls()))
	}
}

func TestCostTracker_Context(t *testing.T) {
	if CostTrackerFrom(context.Background()) != nil {
		t.Error("expected nil tracker on empty context")
	}
	ct := NewCostTracker("run")
	if CostTrackerFrom(WithCostTracker(context.Background(), ct)) != ct {
		t.Error("tracker not carried by context")
	}
}

func TestNodeIDFrom(t *testing.T) {
	if NodeIDFrom(context.Background()) != "" {
		t.Error("expected empty node ID outside a node")
	}

	var seen []string
	record := NodeFunc[State](func(ctx context.Context, s State) NodeResult[State] {
		seen = append(seen, NodeIDFrom(ctx))
		return Update(NewState(NextStep(s)))
	})
	b := NewBuilder[State](Merge)
	_ = b.AddNode("first", record)
	_ = b.AddNode("second", record)
	_ = b.SetEntry("first")
	_ = b.AddEdge("first", "second")
	_ = b.AddEdge("second", END)

	if _, err := Execute(context.Background(), mustCompile(t, b), State{}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.Join(seen, ",") != "first,second" {
		t.Errorf("node IDs seen = %v", seen)
	}
}
