package model

import (
	"context"
	"sync"
)

// MockChatModel is a test implementation of ChatModel.
//
// Responses are returned in order, repeating the last one. When Handler is
// set it takes precedence, which suits concurrent callers whose call order is
// not deterministic:
//
//	mock := &model.MockChatModel{
//	    Handler: func(msgs []model.Message, f *model.ResponseFormat) (model.ChatOut, error) {
//	        if f != nil && f.Name == "queries" {
//	            return model.ChatOut{Text: `{"queries":["a","b","c"]}`}, nil
//	        }
//	        return model.ChatOut{Text: "prose"}, nil
//	    },
//	}
type MockChatModel struct {
	// Responses contains the sequence of responses to return.
	Responses []ChatOut

	// Err, if set, is returned instead of a response.
	Err error

	// Handler, if set, computes each response.
	Handler func(messages []Message, format *ResponseFormat) (ChatOut, error)

	// Calls tracks the history of all Chat invocations.
	Calls []MockChatCall

	mu        sync.Mutex
	callIndex int
}

// MockChatCall records a single invocation of Chat.
type MockChatCall struct {
	Messages []Message
	Format   *ResponseFormat
}

// Chat implements the ChatModel interface.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message, format *ResponseFormat) (ChatOut, error) {
	if ctx.Err() != nil {
		return ChatOut{}, ctx.Err()
	}

	m.mu.Lock()
	m.Calls = append(m.Calls, MockChatCall{Messages: messages, Format: format})
	handler := m.Handler
	m.mu.Unlock()

	if handler != nil {
		return handler(messages, format)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return ChatOut{}, m.Err
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

// Reset clears the call history and resets the response index.
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
