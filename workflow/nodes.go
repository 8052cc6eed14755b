package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/abdulmalikadeyemo/email-assistant/artifact"
	"github.com/abdulmalikadeyemo/email-assistant/graph"
	"github.com/abdulmalikadeyemo/email-assistant/parse"
	"github.com/abdulmalikadeyemo/email-assistant/prompt"
	"github.com/abdulmalikadeyemo/email-assistant/retrieval"
)

type nodes struct {
	gen       Generator
	retriever retrieval.Retriever
	sink      artifact.Sink
	logger    *slog.Logger
	opts      Options
}

type (
	state  = graph.State
	result = graph.NodeResult[graph.State]
)

func fail(err error) result { return graph.Fail[graph.State](err) }

// save writes an artifact. Failures are logged and otherwise ignored.
func (n *nodes) save(ctx context.Context, name string, content any) {
	if err := n.sink.Write(ctx, name, content); err != nil {
		n.logger.Warn("artifact write failed",
			"run_id", graph.RunIDFrom(ctx),
			"node", graph.NodeIDFrom(ctx),
			"artifact", name,
			"err", err,
		)
	}
}

func (n *nodes) categorize(ctx context.Context, s state) result {
	text, err := n.gen.Generate(ctx, prompt.Categorize, map[string]any{
		"initial_email": s.String(KeyInitialEmail),
	})
	if err != nil {
		return fail(err)
	}

	category, known := NormalizeCategory(text)
	if !known {
		n.logger.Warn("unrecognized email category", "run_id", graph.RunIDFrom(ctx), "category", category)
	}
	n.logger.Info("categorized email", "run_id", graph.RunIDFrom(ctx), "category", category)
	n.save(ctx, ArtifactCategory, category)

	return graph.Update(graph.NewState(
		graph.F(KeyEmailCategory, category),
		graph.NextStep(s),
	))
}

func (n *nodes) research(ctx context.Context, s state) result {
	text, err := n.gen.Generate(ctx, prompt.RAGQuestions, map[string]any{
		"initial_email":  s.String(KeyInitialEmail),
		"email_category": s.String(KeyEmailCategory),
		"max_questions":  n.opts.MaxQuestions,
	})
	if err != nil {
		return fail(err)
	}
	questions, err := parse.Strings(text, "questions")
	if err != nil {
		return fail(err)
	}
	questions = nonEmpty(questions)
	if len(questions) > n.opts.MaxQuestions {
		questions = questions[:n.opts.MaxQuestions]
	}

	results := make([]string, 0, len(questions))
	for _, q := range questions {
		docs, err := n.retriever.Retrieve(ctx, q, n.opts.RetrievalK)
		if err != nil {
			return fail(err)
		}
		answer, err := n.gen.Generate(ctx, prompt.RAGAnswer, map[string]any{
			"question": q,
			"context":  retrieval.Contents(docs),
		})
		if err != nil {
			return fail(err)
		}
		n.logger.Debug("answered research question", "run_id", graph.RunIDFrom(ctx), "question", q, "documents", len(docs))
		results = append(results, q+"\n\n"+answer+"\n\n\n")
	}

	n.save(ctx, ArtifactResearchInfo, results)
	n.save(ctx, ArtifactRAGQuestions, questions)

	return graph.Update(graph.NewState(
		graph.F(KeyResearchInfo, results),
		graph.F(KeyRAGQuestions, questions),
		graph.F(KeyInfoNeeded, len(results) > 0),
		graph.NextStep(s),
	))
}

func (n *nodes) draft(ctx context.Context, s state) result {
	text, err := n.gen.Generate(ctx, prompt.Draft, map[string]any{
		"initial_email":  s.String(KeyInitialEmail),
		"email_category": s.String(KeyEmailCategory),
		"research_info":  s.Strings(KeyResearchInfo),
	})
	if err != nil {
		return fail(err)
	}
	draft, err := parse.Field(text, "email_draft")
	if err != nil {
		return fail(err)
	}

	n.save(ctx, ArtifactDraft, draft)
	return graph.Update(graph.NewState(
		graph.F(KeyDraftEmail, draft),
		graph.NextStep(s),
	))
}

func (n *nodes) analyze(ctx context.Context, s state) result {
	text, err := n.gen.Generate(ctx, prompt.Analysis, map[string]any{
		"initial_email":  s.String(KeyInitialEmail),
		"email_category": s.String(KeyEmailCategory),
		"research_info":  s.Strings(KeyResearchInfo),
		"draft_email":    s.String(KeyDraftEmail),
	})
	if err != nil {
		return fail(err)
	}
	analysis, err := parse.Field(text, "draft_analysis")
	if err != nil {
		return fail(err)
	}

	feedback := map[string]any{"draft_analysis": analysis}
	n.save(ctx, ArtifactFeedback, feedback)
	return graph.Update(graph.NewState(
		graph.F(KeyDraftFeedback, feedback),
		graph.NextStep(s),
	))
}

func (n *nodes) rewrite(ctx context.Context, s state) result {
	feedback, _ := s.Get(KeyDraftFeedback)
	text, err := n.gen.Generate(ctx, prompt.Rewrite, map[string]any{
		"email_category": s.String(KeyEmailCategory),
		"research_info":  s.Strings(KeyResearchInfo),
		"draft_email":    s.String(KeyDraftEmail),
		"email_analysis": artifact.Format(feedback),
	})
	if err != nil {
		return fail(err)
	}
	final, err := parse.Field(text, "final_email")
	if err != nil {
		return fail(err)
	}

	n.save(ctx, ArtifactFinal, final)
	return graph.Update(graph.NewState(
		graph.F(KeyFinalEmail, final),
		graph.NextStep(s),
	))
}

func (n *nodes) noRewrite(ctx context.Context, s state) result {
	draft := s.String(KeyDraftEmail)
	n.save(ctx, ArtifactFinal, draft)
	return graph.Update(graph.NewState(
		graph.F(KeyFinalEmail, draft),
		graph.NextStep(s),
	))
}

// statePrinter logs the finished state. It counts as a step like every other
// node.
func (n *nodes) statePrinter(ctx context.Context, s state) result {
	next := graph.NextStep(s)
	n.logger.Info("reply complete",
		"run_id", graph.RunIDFrom(ctx),
		"initial_email", s.String(KeyInitialEmail),
		"email_category", s.String(KeyEmailCategory),
		"draft_email", s.String(KeyDraftEmail),
		"final_email", s.String(KeyFinalEmail),
		"research_info", s.Strings(KeyResearchInfo),
		"rag_questions", s.Strings(KeyRAGQuestions),
		"num_steps", next.Value,
	)
	return graph.Update(graph.NewState(next))
}

// RewriteDecider asks the model whether the draft needs a rewrite. It returns
// the model's router_decision as-is; a value other than rewrite or no_rewrite
// fails the run with a routing error.
func RewriteDecider(gen Generator) graph.Decider[graph.State] {
	return graph.DecisionFunc[graph.State](func(ctx context.Context, s graph.State) (graph.Label, error) {
		return decide(ctx, gen, prompt.RewriteRouter, map[string]any{
			"initial_email":  s.String(KeyInitialEmail),
			"email_category": s.String(KeyEmailCategory),
			"draft_email":    s.String(KeyDraftEmail),
		})
	})
}

// ResearchDecider asks the model whether the email needs research
// (research_info) or can be answered directly (draft_email).
func ResearchDecider(gen Generator) graph.Decider[graph.State] {
	return graph.DecisionFunc[graph.State](func(ctx context.Context, s graph.State) (graph.Label, error) {
		return decide(ctx, gen, prompt.ResearchRouter, map[string]any{
			"initial_email":  s.String(KeyInitialEmail),
			"email_category": s.String(KeyEmailCategory),
		})
	})
}

func decide(ctx context.Context, gen Generator, id prompt.ID, vars map[string]any) (graph.Label, error) {
	text, err := gen.Generate(ctx, id, vars)
	if err != nil {
		return "", err
	}
	decision, err := parse.Field(text, "router_decision")
	if err != nil {
		return "", fmt.Errorf("%s: %w", id, err)
	}
	return graph.Label(parse.Label(decision)), nil
}

func nonEmpty(in []string) []string {
	out := in[:0:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
