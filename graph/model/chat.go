// Package model provides the chat model abstraction used by prompt generation
// and adapters for OpenAI (and OpenAI-compatible endpoints such as Groq),
// Anthropic, and Google Gemini.
package model

import "context"

// ChatModel defines the interface for LLM chat providers.
//
// Implementations should:
//   - Convert the standard Message format to the provider's format
//   - Report token usage in ChatOut.Usage when the provider returns it
//   - Respect context cancellation and timeouts
//   - Return a *ProviderError for API failures so callers can decide on retries
//
// Retries are not the adapter's job; wrap a model with WithRetry.
//
// Example:
//
//	m := openai.NewChatModel(openai.Config{APIKey: key, Model: "gpt-4o-mini"})
//	out, err := m.Chat(ctx, []model.Message{
//	    {Role: model.RoleSystem, Content: "You categorize customer emails."},
//	    {Role: model.RoleUser, Content: body},
//	})
type ChatModel interface {
	// Chat sends messages to the LLM and returns its reply.
	Chat(ctx context.Context, messages []Message) (ChatOut, error)
}

// ChatFunc adapts a plain function to the ChatModel interface.
type ChatFunc func(ctx context.Context, messages []Message) (ChatOut, error)

// Chat implements ChatModel.
func (f ChatFunc) Chat(ctx context.Context, messages []Message) (ChatOut, error) {
	return f(ctx, messages)
}

// Message is a single message in an LLM conversation.
type Message struct {
	// Role identifies the sender. Use the Role* constants.
	Role string

	// Content contains the message text.
	Content string
}

// Standard role constants for LLM conversations.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatOut is the output of a chat completion.
type ChatOut struct {
	// Text is the generated reply.
	Text string

	// Model is the model that produced the reply, as reported by the provider.
	// Adapters fall back to the configured model name.
	Model string

	// Usage is the token usage of the call. Zero when the provider does not
	// report it.
	Usage Usage
}

// Usage counts the tokens consumed by one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Total returns the sum of input and output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// SplitSystem separates system messages from the conversation. Multiple
// system messages are joined with a blank line. Providers with a dedicated
// system parameter (Anthropic, Gemini) use it.
func SplitSystem(messages []Message) (string, []Message) {
	var system string
	rest := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role != RoleSystem {
			rest = append(rest, msg)
			continue
		}
		if system != "" {
			system += "\n\n"
		}
		system += msg.Content
	}
	return system, rest
}
