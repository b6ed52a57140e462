package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider is a scripted Provider for tests. Responses are consumed
// in order; once exhausted, the last response repeats. FailBefore makes
// the first N prompts return an error, for circuit-breaker tests.
type MockProvider struct {
	mu sync.Mutex

	Ready      bool
	State      Availability // used when Ready is false
	Responses  []string
	FailBefore int

	// Gate, when non-nil, blocks every prompt until the channel is
	// closed. Used to hold worker slots open in queue tests.
	Gate chan struct{}

	prompts   []string
	destroyed int
	created   int
}

// NewMockProvider returns a ready provider that answers every prompt with
// the given responses in order.
func NewMockProvider(responses ...string) *MockProvider {
	return &MockProvider{Ready: true, Responses: responses}
}

// Availability implements Provider.
func (m *MockProvider) Availability() Availability {
	if m.Ready {
		return Ready
	}
	return m.State
}

// NewSession implements Provider.
func (m *MockProvider) NewSession(opts SessionOptions) (Session, error) {
	if m.Availability() != Ready {
		return nil, fmt.Errorf("mock capability not ready")
	}
	m.mu.Lock()
	m.created++
	m.mu.Unlock()
	return &mockSession{provider: m}, nil
}

// Prompts returns a copy of every prompt text received so far.
func (m *MockProvider) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

// PromptCount returns how many prompts were issued.
func (m *MockProvider) PromptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// SessionsLeaked reports sessions created but never destroyed.
func (m *MockProvider) SessionsLeaked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created - m.destroyed
}

type mockSession struct {
	provider *MockProvider
	done     bool
}

func (s *mockSession) Prompt(ctx context.Context, text string, image []byte) (string, error) {
	m := s.provider
	if m == nil {
		return "", fmt.Errorf("session already destroyed")
	}

	if m.Gate != nil {
		select {
		case <-m.Gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.prompts)
	m.prompts = append(m.prompts, text)

	if n < m.FailBefore {
		return "", fmt.Errorf("scripted failure %d", n+1)
	}
	if len(m.Responses) == 0 {
		return "", fmt.Errorf("no scripted response")
	}
	idx := n - m.FailBefore
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	return m.Responses[idx], nil
}

func (s *mockSession) Destroy() {
	if s.done || s.provider == nil {
		return
	}
	s.done = true
	s.provider.mu.Lock()
	s.provider.destroyed++
	s.provider.mu.Unlock()
	s.provider = nil
}
