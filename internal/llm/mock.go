package llm

import (
	"context"
	"sync"
)

// MockCall records a single Complete invocation.
type MockCall struct {
	System   string
	Messages []Message
}

// MockClient is a test double for Client. Responses are either scripted
// in order or computed by ResponseFunc; calls are recorded for
// assertions. Safe for concurrent use.
type MockClient struct {
	mu           sync.Mutex
	responses    []string
	responseIdx  int
	calls        []MockCall
	Err          error
	ResponseFunc func(system string, messages []Message) (string, error)
}

// NewMockClient creates a mock that replays the given responses in order,
// repeating the last one once the script runs out.
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{responses: responses}
}

// Complete implements Client.
func (m *MockClient) Complete(_ context.Context, system string, messages []Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	recorded := make([]Message, len(messages))
	copy(recorded, messages)
	m.calls = append(m.calls, MockCall{System: system, Messages: recorded})

	if m.Err != nil {
		return "", m.Err
	}
	if m.ResponseFunc != nil {
		return m.ResponseFunc(system, messages)
	}
	if len(m.responses) == 0 {
		return "", nil
	}
	resp := m.responses[m.responseIdx]
	if m.responseIdx < len(m.responses)-1 {
		m.responseIdx++
	}
	return resp, nil
}

// CallCount returns how many times Complete was invoked.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls returns a copy of the recorded invocations.
func (m *MockClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]MockCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}
