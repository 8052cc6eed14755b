package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/abdulmalikadeyemo/email-assistant/config"
	"github.com/abdulmalikadeyemo/email-assistant/graph/model"
	"github.com/abdulmalikadeyemo/email-assistant/graph/model/anthropic"
	"github.com/abdulmalikadeyemo/email-assistant/graph/model/google"
	"github.com/abdulmalikadeyemo/email-assistant/graph/model/openai"
)

// NewModel creates the configured chat model wrapped with retries.
func NewModel(ctx context.Context, cfg config.ModelConfig) (model.ChatModel, error) {
	var (
		m   model.ChatModel
		err error
	)
	switch cfg.Provider {
	case "openai", "groq":
		c := openai.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Name,
			BaseURL:     cfg.BaseURL,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		}
		if cfg.Provider == "groq" {
			m, err = openai.NewGroqChatModel(c)
		} else {
			m, err = openai.NewChatModel(c)
		}
	case "anthropic":
		m, err = anthropic.NewChatModel(anthropic.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Name,
			BaseURL:     cfg.BaseURL,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
	case "google":
		m, err = google.NewChatModel(ctx, google.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Name,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
	case "mock":
		return OfflineModel(), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s model: %w", cfg.Provider, err)
	}

	policy := model.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return model.WithRetry(m, policy), nil
}

// OfflineModel answers every workflow prompt with a fixed, well-formed reply.
// It backs the "mock" provider for demos and smoke tests without API keys.
func OfflineModel() *model.MockChatModel {
	reply := func(v any) (model.ChatOut, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return model.ChatOut{}, err
		}
		return model.ChatOut{Text: string(b), Model: "offline"}, nil
	}

	return &model.MockChatModel{
		Respond: func(messages []model.Message) (model.ChatOut, error) {
			system, _ := model.SplitSystem(messages)
			switch {
			case strings.Contains(system, "email categorizer"):
				return model.ChatOut{Text: "customer_feedback", Model: "offline"}, nil
			case strings.Contains(system, "route incoming emails"):
				return reply(map[string]string{"router_decision": "research_info"})
			case strings.Contains(system, "questions our knowledge agent"):
				return reply(map[string][]string{"questions": {"What does the customer need?"}})
			case strings.Contains(system, "retrieved context"):
				return model.ChatOut{Text: "I don't know.", Model: "offline"}, nil
			case strings.Contains(system, "must be rewritten"):
				return reply(map[string]string{"router_decision": "no_rewrite"})
			case strings.Contains(system, "quality reviewer"):
				return reply(map[string]string{"draft_analysis": "The draft is fine."})
			case strings.Contains(system, "final customer email"):
				return reply(map[string]string{"final_email": "Thank you for your email."})
			case strings.Contains(system, "email replies"):
				return reply(map[string]string{"email_draft": "Thank you for your email."})
			}
			return model.ChatOut{}, fmt.Errorf("offline model: unrecognized prompt")
		},
	}
}
