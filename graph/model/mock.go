package model

import (
	"context"
	"sync"
)

// MockChatModel is a test implementation of ChatModel.
//
// Use MockChatModel in tests to verify workflow behavior without making
// actual LLM API calls. Replies come from, in order of precedence:
//   - Err, if set
//   - Respond, if set
//   - Responses, one per call, repeating the last one
//
// Example:
//
//	mock := &MockChatModel{
//	    Responses: []ChatOut{{Text: "customer_complaint"}, {Text: `{"questions": []}`}},
//	}
type MockChatModel struct {
	// Responses contains the sequence of responses to return.
	Responses []ChatOut

	// Respond computes the reply from the messages. It lets a single mock
	// answer several different prompts.
	Respond func(messages []Message) (ChatOut, error)

	// Err, if set, is returned by every call.
	Err error

	// Calls records the messages of every call.
	Calls [][]Message

	mu        sync.Mutex
	callIndex int
}

// Chat implements the ChatModel interface. Every call is recorded, including
// failed ones.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message) (ChatOut, error) {
	if ctx.Err() != nil {
		return ChatOut{}, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, append([]Message(nil), messages...))

	if m.Err != nil {
		return ChatOut{}, m.Err
	}
	if m.Respond != nil {
		return m.Respond(messages)
	}
	if len(m.Responses) == 0 {
		return ChatOut{}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

// Reset clears the call history and rewinds Responses.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = nil
	m.callIndex = 0
}

// CallCount returns the number of times Chat has been called.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.Calls)
}

// LastMessages returns the messages of the most recent call.
func (m *MockChatModel) LastMessages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Calls) == 0 {
		return nil
	}
	return m.Calls[len(m.Calls)-1]
}
