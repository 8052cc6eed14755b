package prompt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/abdulmalikadeyemo/email-assistant/graph"
	"github.com/abdulmalikadeyemo/email-assistant/graph/model"
	"github.com/abdulmalikadeyemo/email-assistant/internal/logging"
)

// ErrEmptyOutput is the cause of a GenerationError when the model replied
// with no text.
var ErrEmptyOutput = errors.New("model returned empty output")

// GenerationError reports a failed generation: the template could not be
// rendered, the model call failed, or the reply was empty.
type GenerationError struct {
	// Template is the prompt that was being generated.
	Template ID

	// NodeID is the graph node that asked for the generation, if any.
	NodeID string

	Cause error
}

func (e *GenerationError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("generate %s (node %s): %v", e.Template, e.NodeID, e.Cause)
	}
	return fmt.Sprintf("generate %s: %v", e.Template, e.Cause)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// Generator renders prompts and sends them to a chat model.
//
// Token usage of every call is recorded in the graph.CostTracker carried by
// the context, attributed to the node that is executing.
type Generator struct {
	model    model.ChatModel
	prompts  *Set
	defaults map[string]any
	logger   *slog.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithLogger sets the logger for generation diagnostics.
func WithLogger(l *slog.Logger) GeneratorOption {
	return func(g *Generator) { g.logger = l }
}

// WithDefaults sets variables available to every template. Variables passed
// to Generate take precedence.
func WithDefaults(vars map[string]any) GeneratorOption {
	return func(g *Generator) {
		for k, v := range vars {
			g.defaults[k] = v
		}
	}
}

// NewGenerator creates a Generator. A nil prompt set uses Default().
func NewGenerator(m model.ChatModel, prompts *Set, opts ...GeneratorOption) (*Generator, error) {
	if m == nil {
		return nil, errors.New("prompt: chat model is required")
	}
	if prompts == nil {
		var err error
		if prompts, err = Default(); err != nil {
			return nil, fmt.Errorf("prompt: load default templates: %w", err)
		}
	}
	g := &Generator{model: m, prompts: prompts, defaults: map[string]any{}}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.OrNop(g.logger)
	return g, nil
}

// Prompts returns the generator's template set.
func (g *Generator) Prompts() *Set {
	return g.prompts
}

// Generate renders template id with vars, calls the model, and returns the
// trimmed reply text.
func (g *Generator) Generate(ctx context.Context, id ID, vars map[string]any) (string, error) {
	nodeID := graph.NodeIDFrom(ctx)

	merged := make(map[string]any, len(g.defaults)+len(vars))
	for k, v := range g.defaults {
		merged[k] = v
	}
	for k, v := range vars {
		merged[k] = v
	}

	messages, err := g.prompts.Render(id, merged)
	if err != nil {
		return "", &GenerationError{Template: id, NodeID: nodeID, Cause: err}
	}

	start := time.Now()
	out, err := g.model.Chat(ctx, messages)
	if err != nil {
		g.logger.Warn("generation failed", "template", id, "node", nodeID, "err", err)
		return "", &GenerationError{Template: id, NodeID: nodeID, Cause: err}
	}

	var cost float64
	if ct := graph.CostTrackerFrom(ctx); ct != nil {
		cost = ct.RecordLLMCall(out.Model, out.Usage.InputTokens, out.Usage.OutputTokens, nodeID)
	}
	g.logger.Debug("generation complete",
		"template", id,
		"node", nodeID,
		"model", out.Model,
		"input_tokens", out.Usage.InputTokens,
		"output_tokens", out.Usage.OutputTokens,
		"cost_usd", cost,
		"duration", time.Since(start),
	)

	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", &GenerationError{Template: id, NodeID: nodeID, Cause: ErrEmptyOutput}
	}
	return text, nil
}
