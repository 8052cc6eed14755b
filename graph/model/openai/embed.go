package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/abdulmalikadeyemo/email-assistant/graph/model"
)

// DefaultEmbeddingModel is used when EmbedderConfig.Model is empty.
const DefaultEmbeddingModel = "text-embedding-3-large"

// EmbedderConfig configures an Embedder.
type EmbedderConfig struct {
	APIKey string

	// Model is the embedding model, for example "text-embedding-3-small".
	Model string

	BaseURL string

	// Dimensions shortens the returned vectors when > 0. Only the
	// text-embedding-3 models support it.
	Dimensions int

	RequestOptions []option.RequestOption
}

// Embedder turns texts into vectors with the Embeddings API. It satisfies
// retrieval.Embedder.
type Embedder struct {
	modelName  string
	dimensions int
	client     openai.Client
}

// NewEmbedder creates an Embedder.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.Join(model.ErrMissingAPIKey, errors.New("openai embeddings: APIKey is empty"))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultEmbeddingModel
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, cfg.RequestOptions...)

	return &Embedder{
		modelName:  cfg.Model,
		dimensions: cfg.Dimensions,
		client:     openai.NewClient(opts...),
	}, nil
}

// ModelName returns the configured embedding model.
func (e *Embedder) ModelName() string { return e.modelName }

// Embed returns one vector per text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.modelName),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if e.dimensions > 0 {
		params.Dimensions = openai.Int(int64(e.dimensions))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, model.ClassifyError("openai", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
