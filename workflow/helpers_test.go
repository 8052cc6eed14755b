package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/abdulmalikadeyemo/email-assistant/prompt"
	"github.com/abdulmalikadeyemo/email-assistant/retrieval"
)

type generateCall struct {
	ID   prompt.ID
	Vars map[string]any
}

// scriptedGenerator replies per prompt ID. Each ID's replies are consumed in
// order and the last one repeats.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies map[prompt.ID][]string
	errs    map[prompt.ID]error
	next    map[prompt.ID]int
	calls   []generateCall
}

func newScripted(replies map[prompt.ID][]string) *scriptedGenerator {
	return &scriptedGenerator{
		replies: replies,
		errs:    map[prompt.ID]error{},
		next:    map[prompt.ID]int{},
	}
}

func (g *scriptedGenerator) Generate(_ context.Context, id prompt.ID, vars map[string]any) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, generateCall{ID: id, Vars: vars})

	if err := g.errs[id]; err != nil {
		return "", err
	}
	replies := g.replies[id]
	if len(replies) == 0 {
		return "", fmt.Errorf("no scripted reply for %s", id)
	}
	i := g.next[id]
	if i < len(replies)-1 {
		g.next[id]++
	}
	return replies[i], nil
}

func (g *scriptedGenerator) callsFor(id prompt.ID) []generateCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []generateCall
	for _, c := range g.calls {
		if c.ID == id {
			out = append(out, c)
		}
	}
	return out
}

// replyScript is a full happy-path script; decision is the rewrite router's
// answer.
func replyScript(decision string) map[prompt.ID][]string {
	return map[prompt.ID][]string{
		prompt.Categorize:     {"'customer_feedback'"},
		prompt.RAGQuestions:   {"```json\n{\"questions\": [\"Q1\", \"Q2\"]}\n```"},
		prompt.RAGAnswer:      {"A"},
		prompt.Draft:          {`{"email_draft": "Thanks for the kind words!"}`},
		prompt.RewriteRouter:  {fmt.Sprintf(`{"router_decision": %q}`, decision)},
		prompt.Analysis:       {`{"draft_analysis": "Mention the loyalty discount."}`},
		prompt.Rewrite:        {`{"final_email": "Thanks! As a regular you get 10% off."}`},
		prompt.ResearchRouter: {`{"router_decision": "research_info"}`},
	}
}

// staticRetriever returns the same documents for every query and records the
// queries.
type staticRetriever struct {
	mu      sync.Mutex
	docs    []retrieval.Document
	err     error
	queries []string
	ks      []int
}

func (r *staticRetriever) Retrieve(_ context.Context, query string, k int) ([]retrieval.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, query)
	r.ks = append(r.ks, k)
	if r.err != nil {
		return nil, r.err
	}
	return r.docs, nil
}

func parkDocs() *staticRetriever {
	return &staticRetriever{docs: []retrieval.Document{
		{ID: "1", Content: "Regular guests get 10% off."},
		{ID: "2", Content: "The park opens at 9am."},
	}}
}
