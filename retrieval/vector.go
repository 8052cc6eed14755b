package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// VectorRetriever answers queries by embedding them and searching an Index.
type VectorRetriever struct {
	embedder  Embedder
	index     Index
	batchSize int
}

// DefaultBatchSize is the number of texts embedded per Embed call during
// ingestion.
const DefaultBatchSize = 64

// NewVectorRetriever creates a retriever over index. Documents must have
// been ingested with the same embedder.
func NewVectorRetriever(embedder Embedder, index Index) (*VectorRetriever, error) {
	if embedder == nil {
		return nil, errors.New("retrieval: embedder is required")
	}
	if index == nil {
		return nil, errors.New("retrieval: index is required")
	}
	return &VectorRetriever{embedder: embedder, index: index, batchSize: DefaultBatchSize}, nil
}

// Index returns the underlying index.
func (r *VectorRetriever) Index() Index { return r.index }

// Retrieve implements Retriever. k <= 0 means DefaultK.
func (r *VectorRetriever) Retrieve(ctx context.Context, query string, k int) ([]Document, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &RetrievalError{Query: query, Cause: errors.New("empty query")}
	}
	if k <= 0 {
		k = DefaultK
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, &RetrievalError{Query: query, Cause: fmt.Errorf("embed query: %w", err)}
	}
	if len(vectors) != 1 {
		return nil, &RetrievalError{Query: query, Cause: fmt.Errorf("embedder returned %d vectors for 1 query", len(vectors))}
	}

	docs, err := r.index.Search(ctx, vectors[0], k)
	if err != nil {
		return nil, &RetrievalError{Query: query, Cause: err}
	}
	return docs, nil
}

// Ingest embeds docs and adds them to the index, returning how many were
// stored. Documents without an ID get one derived from their content, so
// ingesting the same text twice does not duplicate it.
func (r *VectorRetriever) Ingest(ctx context.Context, docs []Document) (int, error) {
	stored := 0
	for start := 0; start < len(docs); start += r.batchSize {
		end := min(start+r.batchSize, len(docs))
		batch := make([]Document, 0, end-start)
		texts := make([]string, 0, end-start)
		for _, doc := range docs[start:end] {
			if strings.TrimSpace(doc.Content) == "" {
				continue
			}
			if doc.ID == "" {
				doc.ID = ContentID(doc.Content)
			}
			batch = append(batch, doc)
			texts = append(texts, doc.Content)
		}
		if len(batch) == 0 {
			continue
		}

		vectors, err := r.embedder.Embed(ctx, texts)
		if err != nil {
			return stored, fmt.Errorf("embed documents %d-%d: %w", start, end-1, err)
		}
		if len(vectors) != len(batch) {
			return stored, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(batch))
		}
		if err := r.index.Upsert(ctx, batch, vectors); err != nil {
			return stored, fmt.Errorf("store documents %d-%d: %w", start, end-1, err)
		}
		stored += len(batch)
	}
	return stored, nil
}

// ContentID returns a stable ID for a chunk of text.
func ContentID(content string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(content)).String()
}
