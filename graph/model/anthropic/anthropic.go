// Package anthropic adapts the Anthropic Messages API to model.ChatModel.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/abdulmalikadeyemo/email-assistant/graph/model"
)

const (
	// DefaultModel is used when Config.Model is empty.
	DefaultModel = "claude-3-5-haiku-latest"

	// DefaultMaxTokens is sent when Config.MaxTokens is 0. The Messages API
	// requires max_tokens on every request.
	DefaultMaxTokens = 1024
)

// Config configures a ChatModel.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature *float64
	MaxTokens   int

	// RequestOptions are appended to the SDK client options.
	RequestOptions []option.RequestOption
}

// ChatModel implements model.ChatModel for Anthropic's Claude models.
//
// System messages are lifted into the request's system parameter; the API
// does not accept them in the message list.
type ChatModel struct {
	modelName   string
	temperature *float64
	maxTokens   int
	client      messageClient
}

type messageClient interface {
	createMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

type sdkClient struct {
	client anthropic.Client
}

func (c *sdkClient) createMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return c.client.Messages.New(ctx, params)
}

// NewChatModel creates an Anthropic ChatModel.
func NewChatModel(cfg Config) (*ChatModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.Join(model.ErrMissingAPIKey, errors.New("anthropic: APIKey is empty"))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	// model.WithRetry owns retries; the SDK's own retry loop is turned off.
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, cfg.RequestOptions...)

	return &ChatModel{
		modelName:   cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      &sdkClient{client: anthropic.NewClient(opts...)},
	}, nil
}

// ModelName returns the configured model.
func (m *ChatModel) ModelName() string { return m.modelName }

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	msg, err := m.client.createMessage(ctx, m.params(messages))
	if err != nil {
		return model.ChatOut{}, model.ClassifyError("anthropic", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return model.ChatOut{}, model.EmptyResponse("anthropic")
	}

	out := model.ChatOut{
		Text:  text.String(),
		Model: string(msg.Model),
		Usage: model.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
	if out.Model == "" {
		out.Model = m.modelName
	}
	return out, nil
}

func (m *ChatModel) params(messages []model.Message) anthropic.MessageNewParams {
	system, conversation := model.SplitSystem(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.modelName),
		MaxTokens: int64(m.maxTokens),
		Messages:  convertMessages(conversation),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if m.temperature != nil {
		params.Temperature = anthropic.Float(*m.temperature)
	}
	return params
}

func convertMessages(messages []model.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == model.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}
