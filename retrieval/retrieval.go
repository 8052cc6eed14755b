// Package retrieval provides the knowledge base the reply workflow researches
// against: documents, embedders, vector indexes, and a text splitter for
// ingestion.
package retrieval

import (
	"context"
	"fmt"
)

// DefaultK is the number of documents retrieved per question.
const DefaultK = 3

// Document is a chunk of knowledge-base text.
type Document struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// Score is the similarity to the query, set by Search. Higher is closer.
	Score float64 `json:"score,omitempty"`
}

// Retriever returns the documents most relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]Document, error)
}

// RetrieverFunc adapts a plain function to the Retriever interface.
type RetrieverFunc func(ctx context.Context, query string, k int) ([]Document, error)

// Retrieve implements Retriever.
func (f RetrieverFunc) Retrieve(ctx context.Context, query string, k int) ([]Document, error) {
	return f(ctx, query, k)
}

// RetrievalError reports a failed lookup.
type RetrievalError struct {
	Query string
	Cause error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieve %q: %v", e.Query, e.Cause)
}

func (e *RetrievalError) Unwrap() error {
	return e.Cause
}

// Contents returns the text of each document.
func Contents(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Content
	}
	return out
}
