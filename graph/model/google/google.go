// Package google adapts the Google Gemini API to model.ChatModel.
package google

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/abdulmalikadeyemo/email-assistant/graph/model"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-1.5-flash"

// Config configures a ChatModel.
type Config struct {
	APIKey      string
	Model       string
	Temperature *float64
	MaxTokens   int

	// ClientOptions are appended to the Google API client options, for
	// example option.WithEndpoint.
	ClientOptions []option.ClientOption
}

// ChatModel implements model.ChatModel for Google's Gemini models.
//
// System messages become the model's system instruction. All messages but
// the last form the chat history; the last one is sent.
//
// Call Close to release the underlying client.
type ChatModel struct {
	modelName string
	client    contentClient
	closer    func() error
}

// request is one Gemini call in adapter terms.
type request struct {
	system  string
	history []*genai.Content
	parts   []genai.Part
}

type contentClient interface {
	generate(ctx context.Context, req request) (*genai.GenerateContentResponse, error)
}

type sdkClient struct {
	client      *genai.Client
	modelName   string
	temperature *float64
	maxTokens   int
}

func (c *sdkClient) generate(ctx context.Context, req request) (*genai.GenerateContentResponse, error) {
	gm := c.client.GenerativeModel(c.modelName)
	if req.system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.system)}}
	}
	if c.temperature != nil {
		gm.SetTemperature(float32(*c.temperature))
	}
	if c.maxTokens > 0 {
		gm.SetMaxOutputTokens(int32(c.maxTokens))
	}

	if len(req.history) == 0 {
		return gm.GenerateContent(ctx, req.parts...)
	}
	cs := gm.StartChat()
	cs.History = req.history
	return cs.SendMessage(ctx, req.parts...)
}

// NewChatModel creates a Gemini ChatModel.
func NewChatModel(ctx context.Context, cfg Config) (*ChatModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.Join(model.ErrMissingAPIKey, errors.New("google: APIKey is empty"))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	opts := append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, cfg.ClientOptions...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return &ChatModel{
		modelName: cfg.Model,
		client: &sdkClient{
			client:      client,
			modelName:   cfg.Model,
			temperature: cfg.Temperature,
			maxTokens:   cfg.MaxTokens,
		},
		closer: client.Close,
	}, nil
}

// ModelName returns the configured model.
func (m *ChatModel) ModelName() string { return m.modelName }

// Close releases the underlying client.
func (m *ChatModel) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer()
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	resp, err := m.client.generate(ctx, buildRequest(messages))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return model.ChatOut{}, safetyErrorFromBlocked(blocked)
		}
		return model.ChatOut{}, model.ClassifyError("google", err)
	}

	out, err := convertResponse(resp)
	if err != nil {
		return model.ChatOut{}, err
	}
	out.Model = m.modelName
	return out, nil
}

func buildRequest(messages []model.Message) request {
	system, conversation := model.SplitSystem(messages)
	req := request{system: system}
	if len(conversation) == 0 {
		return req
	}

	last := conversation[len(conversation)-1]
	req.parts = []genai.Part{genai.Text(last.Content)}
	for _, msg := range conversation[:len(conversation)-1] {
		role := "user"
		if msg.Role == model.RoleAssistant {
			role = "model"
		}
		req.history = append(req.history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	return req
}

func convertResponse(resp *genai.GenerateContentResponse) (model.ChatOut, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return model.ChatOut{}, model.EmptyResponse("google")
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return model.ChatOut{}, safetyErrorFromRatings("SAFETY", candidate.SafetyRatings)
	}
	if candidate.Content == nil {
		return model.ChatOut{}, model.EmptyResponse("google")
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	out := model.ChatOut{Text: text.String()}
	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

// SafetyFilterError reports a prompt or reply blocked by Gemini's safety
// filters. It is not retryable.
//
//	var safetyErr *google.SafetyFilterError
//	if errors.As(err, &safetyErr) {
//	    log.Printf("content blocked: %s", safetyErr.Category())
//	}
type SafetyFilterError struct {
	reason   string
	category string
}

func (e *SafetyFilterError) Error() string {
	if e.category == "" {
		return "content blocked by safety filter: " + e.reason
	}
	return "content blocked by safety filter: " + e.category
}

// Category returns the harm category that triggered the block, if known.
func (e *SafetyFilterError) Category() string { return e.category }

// Reason returns why the content was blocked.
func (e *SafetyFilterError) Reason() string { return e.reason }

func safetyErrorFromBlocked(blocked *genai.BlockedError) error {
	if blocked.PromptFeedback != nil {
		return safetyErrorFromRatings(blocked.PromptFeedback.BlockReason.String(), blocked.PromptFeedback.SafetyRatings)
	}
	if blocked.Candidate != nil {
		return safetyErrorFromRatings(blocked.Candidate.FinishReason.String(), blocked.Candidate.SafetyRatings)
	}
	return &SafetyFilterError{reason: "blocked"}
}

func safetyErrorFromRatings(reason string, ratings []*genai.SafetyRating) error {
	err := &SafetyFilterError{reason: reason}
	for _, r := range ratings {
		if r != nil && r.Blocked {
			err.category = r.Category.String()
			break
		}
	}
	return err
}
