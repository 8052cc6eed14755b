// Package openai adapts the OpenAI Chat Completions API, and OpenAI-compatible
// endpoints such as Groq, to model.ChatModel.
package openai

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/abdulmalikadeyemo/email-assistant/graph/model"
)

const (
	// DefaultModel is used when Config.Model is empty.
	DefaultModel = "gpt-4o-mini"

	// GroqBaseURL is Groq's OpenAI-compatible endpoint.
	GroqBaseURL = "https://api.groq.com/openai/v1/"

	// DefaultGroqModel is used by NewGroqChatModel when Config.Model is empty.
	DefaultGroqModel = "llama-3.3-70b-versatile"
)

// Config configures a ChatModel.
type Config struct {
	// APIKey authenticates requests. Required.
	APIKey string

	// Model is the model name, for example "gpt-4o-mini".
	Model string

	// BaseURL overrides the API endpoint.
	BaseURL string

	// Temperature is sent when non-nil.
	Temperature *float64

	// MaxTokens caps the completion length when > 0.
	MaxTokens int

	// RequestOptions are appended to the SDK client options.
	RequestOptions []option.RequestOption
}

// ChatModel implements model.ChatModel on the Chat Completions API.
//
// The SDK client is safe for concurrent use, and so is ChatModel.
type ChatModel struct {
	provider    string
	modelName   string
	temperature *float64
	maxTokens   int
	client      completionClient
}

// completionClient is the subset of the SDK the adapter uses. Tests replace it.
type completionClient interface {
	complete(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

type sdkClient struct {
	client openai.Client
}

func (c *sdkClient) complete(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}

// NewChatModel creates an OpenAI ChatModel.
//
// Example:
//
//	m, err := openai.NewChatModel(openai.Config{APIKey: os.Getenv("OPENAI_API_KEY")})
func NewChatModel(cfg Config) (*ChatModel, error) {
	return newChatModel("openai", DefaultModel, cfg)
}

// NewGroqChatModel creates a ChatModel for Groq's OpenAI-compatible API.
// Config.BaseURL defaults to GroqBaseURL.
func NewGroqChatModel(cfg Config) (*ChatModel, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = GroqBaseURL
	}
	return newChatModel("groq", DefaultGroqModel, cfg)
}

func newChatModel(provider, defaultModel string, cfg Config) (*ChatModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.Join(model.ErrMissingAPIKey, errors.New(provider+": APIKey is empty"))
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	// model.WithRetry owns retries; the SDK's own retry loop is turned off.
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, cfg.RequestOptions...)

	return &ChatModel{
		provider:    provider,
		modelName:   cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      &sdkClient{client: openai.NewClient(opts...)},
	}, nil
}

// Provider returns "openai" or "groq".
func (m *ChatModel) Provider() string { return m.provider }

// ModelName returns the configured model.
func (m *ChatModel) ModelName() string { return m.modelName }

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	completion, err := m.client.complete(ctx, m.params(messages))
	if err != nil {
		return model.ChatOut{}, model.ClassifyError(m.provider, err)
	}
	if len(completion.Choices) == 0 {
		return model.ChatOut{}, model.EmptyResponse(m.provider)
	}

	out := model.ChatOut{
		Text:  completion.Choices[0].Message.Content,
		Model: completion.Model,
		Usage: model.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}
	if out.Model == "" {
		out.Model = m.modelName
	}
	return out, nil
}

func (m *ChatModel) params(messages []model.Message) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.modelName),
		Messages: convertMessages(messages),
	}
	if m.temperature != nil {
		params.Temperature = openai.Float(*m.temperature)
	}
	if m.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(m.maxTokens))
	}
	return params
}

func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}
