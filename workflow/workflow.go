// Package workflow is the customer email reply graph: categorize the email,
// research it against the knowledge base, draft a reply, and either send the
// draft or critique and rewrite it.
//
//	categorize_email -> research_info_search -> draft_email_writer
//	draft_email_writer --rewrite--> analyze_draft_email -> rewrite_email -> state_printer
//	draft_email_writer --no_rewrite--> no_rewrite -> state_printer
//	state_printer -> END
//
// With Options.RouteResearch, categorize_email asks the model whether the
// email needs research and may skip straight to draft_email_writer.
package workflow

import (
	"context"
	"errors"
	"log/slog"

	"github.com/abdulmalikadeyemo/email-assistant/artifact"
	"github.com/abdulmalikadeyemo/email-assistant/graph"
	"github.com/abdulmalikadeyemo/email-assistant/internal/logging"
	"github.com/abdulmalikadeyemo/email-assistant/prompt"
	"github.com/abdulmalikadeyemo/email-assistant/retrieval"
)

// State fields.
const (
	KeyInitialEmail  = "initial_email"
	KeyEmailCategory = "email_category"
	KeyDraftEmail    = "draft_email"
	KeyFinalEmail    = "final_email"
	KeyResearchInfo  = "research_info"
	KeyInfoNeeded    = "info_needed"
	KeyNumSteps      = graph.StepsKey
	KeyDraftFeedback = "draft_email_feedback"
	KeyRAGQuestions  = "rag_questions"
)

// Node IDs.
const (
	NodeCategorize   = "categorize_email"
	NodeResearch     = "research_info_search"
	NodeDraft        = "draft_email_writer"
	NodeAnalyze      = "analyze_draft_email"
	NodeRewrite      = "rewrite_email"
	NodeNoRewrite    = "no_rewrite"
	NodeStatePrinter = "state_printer"
)

// Routing labels.
const (
	LabelRewrite   graph.Label = "rewrite"
	LabelNoRewrite graph.Label = "no_rewrite"
	LabelResearch  graph.Label = "research_info"
	LabelDraft     graph.Label = "draft_email"
)

// Artifact names.
const (
	ArtifactCategory     = "email_category"
	ArtifactResearchInfo = "research_info"
	ArtifactRAGQuestions = "rag_questions"
	ArtifactDraft        = "draft_email"
	ArtifactFeedback     = "draft_email_feedback"
	ArtifactFinal        = "final_email"
)

// Generator renders a prompt and returns the model's reply.
// *prompt.Generator implements it.
type Generator interface {
	Generate(ctx context.Context, id prompt.ID, vars map[string]any) (string, error)
}

// Deps are the capabilities the workflow nodes call.
type Deps struct {
	// Generator is required.
	Generator Generator

	// Retriever answers research questions. Required.
	Retriever retrieval.Retriever

	// Sink receives artifacts. Nil discards them.
	Sink artifact.Sink

	// Logger receives node diagnostics. Nil discards them.
	Logger *slog.Logger
}

// Options tune the workflow.
type Options struct {
	// RouteResearch lets the model decide after categorization whether the
	// email needs research. When false every email is researched.
	RouteResearch bool

	// MaxQuestions caps the research questions per email. Zero means 3.
	MaxQuestions int

	// RetrievalK is the number of documents retrieved per question. Zero means
	// retrieval.DefaultK.
	RetrievalK int
}

// DefaultMaxQuestions is used when Options.MaxQuestions is zero.
const DefaultMaxQuestions = 3

// Build assembles and compiles the reply graph.
func Build(deps Deps, opts Options) (*graph.Graph[graph.State], error) {
	var errs []error
	if deps.Generator == nil {
		errs = append(errs, errors.New("workflow: generator is required"))
	}
	if deps.Retriever == nil {
		errs = append(errs, errors.New("workflow: retriever is required"))
	}
	if opts.MaxQuestions < 0 {
		errs = append(errs, errors.New("workflow: max questions must be >= 0"))
	}
	if opts.RetrievalK < 0 {
		errs = append(errs, errors.New("workflow: retrieval k must be >= 0"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if deps.Sink == nil {
		deps.Sink = artifact.Discard
	}
	if opts.MaxQuestions == 0 {
		opts.MaxQuestions = DefaultMaxQuestions
	}
	if opts.RetrievalK == 0 {
		opts.RetrievalK = retrieval.DefaultK
	}
	n := &nodes{
		gen:       deps.Generator,
		retriever: deps.Retriever,
		sink:      deps.Sink,
		logger:    logging.OrNop(deps.Logger),
		opts:      opts,
	}

	b := graph.NewBuilder[graph.State](graph.Merge)
	for _, add := range []struct {
		id   string
		node graph.NodeFunc[graph.State]
	}{
		{NodeCategorize, n.categorize},
		{NodeResearch, n.research},
		{NodeDraft, n.draft},
		{NodeAnalyze, n.analyze},
		{NodeRewrite, n.rewrite},
		{NodeNoRewrite, n.noRewrite},
		{NodeStatePrinter, n.statePrinter},
	} {
		if err := b.AddNode(add.id, add.node); err != nil {
			return nil, err
		}
	}

	if err := b.SetEntry(NodeCategorize); err != nil {
		return nil, err
	}

	var err error
	if opts.RouteResearch {
		err = b.AddConditionalEdge(NodeCategorize, ResearchDecider(deps.Generator), map[graph.Label]string{
			LabelResearch: NodeResearch,
			LabelDraft:    NodeDraft,
		})
	} else {
		err = b.AddEdge(NodeCategorize, NodeResearch)
	}
	if err != nil {
		return nil, err
	}

	err = errors.Join(
		b.AddEdge(NodeResearch, NodeDraft),
		b.AddConditionalEdge(NodeDraft, RewriteDecider(deps.Generator), map[graph.Label]string{
			LabelRewrite:   NodeAnalyze,
			LabelNoRewrite: NodeNoRewrite,
		}),
		b.AddEdge(NodeAnalyze, NodeRewrite),
		b.AddEdge(NodeRewrite, NodeStatePrinter),
		b.AddEdge(NodeNoRewrite, NodeStatePrinter),
		b.AddEdge(NodeStatePrinter, graph.END),
	)
	if err != nil {
		return nil, err
	}
	return b.Compile()
}
