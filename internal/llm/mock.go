package llm

import (
	"context"
	"sync"
)

// MockClient is a scripted ChatCompletionProvider for tests and local
// development. Respond is called per request when set; otherwise responses
// are consumed in order, repeating the last one when exhausted.
type MockClient struct {
	Respond   func(call int, messages []Message, opts Options) (string, error)
	Responses []string

	mu    sync.Mutex
	calls int
}

func NewMockClient(responses ...string) *MockClient {
	return &MockClient{Responses: responses}
}

func (m *MockClient) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	m.mu.Lock()
	call := m.calls
	m.calls++
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.Respond != nil {
		return m.Respond(call, messages, opts)
	}
	if len(m.Responses) == 0 {
		return "{}", nil
	}
	if call >= len(m.Responses) {
		call = len(m.Responses) - 1
	}
	return m.Responses[call], nil
}

// Calls reports how many completions were requested.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
