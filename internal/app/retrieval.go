package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/abdulmalikadeyemo/email-assistant/config"
	"github.com/abdulmalikadeyemo/email-assistant/graph/model/openai"
	"github.com/abdulmalikadeyemo/email-assistant/retrieval"
)

// NewEmbedder creates the configured embedder.
func NewEmbedder(cfg config.RetrievalConfig) (retrieval.Embedder, error) {
	switch cfg.Embedder {
	case "openai":
		e, err := openai.NewEmbedder(openai.EmbedderConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.EmbeddingModel,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		return e, nil
	case "hash":
		return retrieval.HashEmbedder{Dim: cfg.Dimensions}, nil
	default:
		return nil, fmt.Errorf("unknown embedder %q", cfg.Embedder)
	}
}

// NewRetriever opens the configured index and pairs it with the embedder.
// The caller owns the index and closes it through Retriever.Index().Close.
func NewRetriever(cfg config.RetrievalConfig) (*retrieval.VectorRetriever, error) {
	embedder, err := NewEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	var index retrieval.Index
	switch cfg.Index {
	case "sqlite":
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create index directory: %w", err)
			}
		}
		idx, err := retrieval.OpenSQLiteIndex(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open index %s: %w", cfg.Path, err)
		}
		index = idx
	case "memory":
		index = retrieval.NewMemoryIndex()
	default:
		return nil, fmt.Errorf("unknown index %q", cfg.Index)
	}

	r, err := retrieval.NewVectorRetriever(embedder, index)
	if err != nil {
		_ = index.Close()
		return nil, err
	}
	return r, nil
}

// NewSplitter creates the ingestion splitter.
func NewSplitter(cfg config.RetrievalConfig) (*retrieval.Splitter, error) {
	return retrieval.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
}
