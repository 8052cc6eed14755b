package prompt

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/abdulmalikadeyemo/email-assistant/graph"
	"github.com/abdulmalikadeyemo/email-assistant/graph/model"
)

func TestNewGenerator(t *testing.T) {
	if _, err := NewGenerator(nil, nil); err == nil {
		t.Error("expected error for nil model")
	}
	g, err := NewGenerator(&model.MockChatModel{}, nil)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	if !g.Prompts().Has(Categorize) {
		t.Error("nil prompt set should fall back to defaults")
	}
}

func TestGenerate(t *testing.T) {
	mock := &model.MockChatModel{
		Responses: []model.ChatOut{{Text: "  price_enquiry\n", Model: "gpt-4o-mini"}},
	}
	g, _ := NewGenerator(mock, nil, WithDefaults(map[string]any{"company": "Westworld"}))

	got, err := g.Generate(context.Background(), Categorize, map[string]any{"initial_email": "How much?"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "price_enquiry" {
		t.Errorf("Generate = %q, want trimmed text", got)
	}

	last := mock.LastMessages()
	if len(last) != 2 || last[1].Role != model.RoleUser {
		t.Fatalf("unexpected messages sent: %+v", last)
	}
}

func TestGenerate_CallerVarsOverrideDefaults(t *testing.T) {
	mock := &model.MockChatModel{Responses: []model.ChatOut{{Text: "ok"}}}
	g, _ := NewGenerator(mock, nil, WithDefaults(map[string]any{"company": "Westworld"}))

	_, err := g.Generate(context.Background(), Categorize, map[string]any{
		"company":       "Sweetwater",
		"initial_email": "hello",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sys := mock.LastMessages()[0].Content; !strings.Contains(sys, "Sweetwater") || strings.Contains(sys, "Westworld") {
		t.Errorf("caller variable did not win: %q", sys)
	}
}

func TestGenerate_Errors(t *testing.T) {
	t.Run("render failure", func(t *testing.T) {
		mock := &model.MockChatModel{}
		g, _ := NewGenerator(mock, nil)
		_, err := g.Generate(context.Background(), Categorize, nil)
		var genErr *GenerationError
		if !errors.As(err, &genErr) || genErr.Template != Categorize {
			t.Fatalf("expected GenerationError, got %v", err)
		}
		if mock.CallCount() != 0 {
			t.Error("model should not be called when rendering fails")
		}
	})

	t.Run("model failure", func(t *testing.T) {
		cause := &model.ProviderError{Provider: "openai", Code: model.CodeRateLimited, Retryable: true}
		g, _ := NewGenerator(&model.MockChatModel{Err: cause}, nil)
		_, err := g.Generate(context.Background(), Categorize, map[string]any{"company": "W", "initial_email": "x"})
		var genErr *GenerationError
		if !errors.As(err, &genErr) {
			t.Fatalf("expected GenerationError, got %v", err)
		}
		if !errors.Is(err, cause) || !model.IsRetryable(err) {
			t.Errorf("cause not preserved: %v", err)
		}
	})

	t.Run("empty output", func(t *testing.T) {
		g, _ := NewGenerator(&model.MockChatModel{Responses: []model.ChatOut{{Text: "   "}}}, nil)
		_, err := g.Generate(context.Background(), Categorize, map[string]any{"company": "W", "initial_email": "x"})
		if !errors.Is(err, ErrEmptyOutput) {
			t.Errorf("expected ErrEmptyOutput, got %v", err)
		}
	})
}

func TestGenerate_RecordsCostPerNode(t *testing.T) {
	mock := &model.MockChatModel{Responses: []model.ChatOut{{
		Text:  "customer_feedback",
		Model: "gpt-4o-mini",
		Usage: model.Usage{InputTokens: 1000, OutputTokens: 10},
	}}}
	gen, _ := NewGenerator(mock, nil, WithDefaults(map[string]any{"company": "Westworld"}))

	b := graph.NewBuilder[graph.State](graph.Merge)
	_ = b.AddNode("categorize_email", graph.NodeFunc[graph.State](func(ctx context.Context, s graph.State) graph.NodeResult[graph.State] {
		text, err := gen.Generate(ctx, Categorize, map[string]any{"initial_email": s.String("initial_email")})
		if err != nil {
			return graph.Fail[graph.State](err)
		}
		return graph.Update(graph.NewState(graph.F("email_category", text)))
	}))
	_ = b.SetEntry("categorize_email")
	_ = b.AddEdge("categorize_email", graph.END)
	g, err := b.Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	tracker := graph.NewCostTracker("run-1")
	ctx := graph.WithCostTracker(context.Background(), tracker)
	if _, err := graph.Execute(ctx, g, graph.NewState(graph.F("initial_email", "Loved the park!"))); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	calls := tracker.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 recorded call, got %d", len(calls))
	}
	if calls[0].NodeID != "categorize_email" || calls[0].Model != "gpt-4o-mini" {
		t.Errorf("unexpected call record: %+v", calls[0])
	}
	if tracker.TotalCost() <= 0 {
		t.Error("expected a non-zero cost for a priced model")
	}
}
