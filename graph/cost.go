package graph

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// ModelPricing defines input and output token costs for a model, in USD per
// one million tokens.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// defaultModelPricing covers the models the service is configured with out of
// the box. Unknown models are recorded at zero cost.
var defaultModelPricing = map[string]ModelPricing{
	// OpenAI
	"gpt-4o":                 {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":            {InputPer1M: 0.15, OutputPer1M: 0.60},
	"text-embedding-3-small": {InputPer1M: 0.02},
	"text-embedding-3-large": {InputPer1M: 0.13},

	// Groq
	"llama-3.3-70b-versatile": {InputPer1M: 0.59, OutputPer1M: 0.79},
	"llama3-70b-8192":         {InputPer1M: 0.59, OutputPer1M: 0.79},
	"llama-3.1-8b-instant":    {InputPer1M: 0.05, OutputPer1M: 0.08},

	// Anthropic
	"claude-3-5-haiku-latest":    {InputPer1M: 0.80, OutputPer1M: 4.00},
	"claude-3-5-sonnet-20241022": {InputPer1M: 3.00, OutputPer1M: 15.00},

	// Google
	"gemini-1.5-flash": {InputPer1M: 0.075, OutputPer1M: 0.30},
	"gemini-1.5-pro":   {InputPer1M: 1.25, OutputPer1M: 5.00},
}

// LLMCall is one recorded model invocation.
type LLMCall struct {
	Model        string    `json:"model"`
	NodeID       string    `json:"node_id,omitempty"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	Timestamp    time.Time `json:"timestamp"`
}

// CostTracker accumulates token usage and cost of the model calls made during
// one run. It is carried in the run context (WithCostTracker) so that
// generation code deep inside a node can record calls without the engine
// knowing about models.
//
// Example:
//
//	tracker := graph.NewCostTracker(runID)
//	ctx = graph.WithCostTracker(ctx, tracker)
//	final, err := engine.Run(ctx, runID, initial)
//	log.Printf("run cost $%.4f", tracker.TotalCost())
//
// All methods are safe for concurrent use.
type CostTracker struct {
	runID string

	mu           sync.RWMutex
	pricing      map[string]ModelPricing
	calls        []LLMCall
	totalCost    float64
	modelCosts   map[string]float64
	inputTokens  int64
	outputTokens int64
}

// NewCostTracker creates a tracker for runID with the default pricing table.
func NewCostTracker(runID string) *CostTracker {
	pricing := make(map[string]ModelPricing, len(defaultModelPricing))
	for k, v := range defaultModelPricing {
		pricing[k] = v
	}
	return &CostTracker{
		runID:      runID,
		pricing:    pricing,
		modelCosts: make(map[string]float64),
	}
}

// RunID returns the run the tracker belongs to.
func (ct *CostTracker) RunID() string { return ct.runID }

// RecordLLMCall records one call and returns its cost in USD.
//
// Models are matched exactly first, then by the longest known prefix, so
// dated snapshots such as "gpt-4o-mini-2024-07-18" resolve to "gpt-4o-mini".
func (ct *CostTracker) RecordLLMCall(model string, inputTokens, outputTokens int, nodeID string) float64 {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	pricing := ct.lookup(model)
	cost := float64(inputTokens)/1_000_000.0*pricing.InputPer1M +
		float64(outputTokens)/1_000_000.0*pricing.OutputPer1M

	ct.calls = append(ct.calls, LLMCall{
		Model:        model,
		NodeID:       nodeID,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
		Timestamp:    time.Now(),
	})
	ct.totalCost += cost
	ct.modelCosts[model] += cost
	ct.inputTokens += int64(inputTokens)
	ct.outputTokens += int64(outputTokens)
	return cost
}

func (ct *CostTracker) lookup(model string) ModelPricing {
	if p, ok := ct.pricing[model]; ok {
		return p
	}
	best := ""
	for name := range ct.pricing {
		if len(name) > len(best) && len(model) > len(name) && model[:len(name)] == name {
			best = name
		}
	}
	return ct.pricing[best]
}

// SetPricing overrides the price of a model.
func (ct *CostTracker) SetPricing(model string, inputPer1M, outputPer1M float64) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.pricing[model] = ModelPricing{InputPer1M: inputPer1M, OutputPer1M: outputPer1M}
}

// TotalCost returns the cumulative cost in USD.
func (ct *CostTracker) TotalCost() float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.totalCost
}

// CostByModel returns a copy of the per-model cost breakdown.
func (ct *CostTracker) CostByModel() map[string]float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	costs := make(map[string]float64, len(ct.modelCosts))
	for model, cost := range ct.modelCosts {
		costs[model] = cost
	}
	return costs
}

// CostByNode returns the cost attributed to each node.
func (ct *CostTracker) CostByNode() map[string]float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	costs := make(map[string]float64)
	for _, c := range ct.calls {
		costs[c.NodeID] += c.CostUSD
	}
	return costs
}

// Calls returns a copy of the recorded calls in order.
func (ct *CostTracker) Calls() []LLMCall {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return append([]LLMCall(nil), ct.calls...)
}

// TokenUsage returns the total input and output tokens.
func (ct *CostTracker) TokenUsage() (inputTokens, outputTokens int64) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.inputTokens, ct.outputTokens
}

// Summary is a serializable snapshot of a tracker.
type Summary struct {
	Calls        int                `json:"calls"`
	InputTokens  int64              `json:"input_tokens"`
	OutputTokens int64              `json:"output_tokens"`
	TotalUSD     float64            `json:"total_usd"`
	ByModel      map[string]float64 `json:"by_model,omitempty"`
}

// Summary returns a snapshot of the totals.
func (ct *CostTracker) Summary() Summary {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	s := Summary{
		Calls:        len(ct.calls),
		InputTokens:  ct.inputTokens,
		OutputTokens: ct.outputTokens,
		TotalUSD:     ct.totalCost,
	}
	if len(ct.modelCosts) > 0 {
		s.ByModel = make(map[string]float64, len(ct.modelCosts))
		for k, v := range ct.modelCosts {
			s.ByModel[k] = v
		}
	}
	return s
}

func (ct *CostTracker) String() string {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	models := make([]string, 0, len(ct.modelCosts))
	for m := range ct.modelCosts {
		models = append(models, m)
	}
	sort.Strings(models)
	return fmt.Sprintf("CostTracker{RunID: %s, Calls: %d, TotalCost: $%.4f, InputTokens: %d, OutputTokens: %d, Models: %v}",
		ct.runID, len(ct.calls), ct.totalCost, ct.inputTokens, ct.outputTokens, models)
}
