package llm

import (
	"context"
	"strings"
	"sync"
)

// Rule scripts a response for prompts containing Contains.
type Rule struct {
	Contains string
	Response string
	Error    error
}

// MockLLM is a deterministic LLM implementation for testing.
// Rules are checked in order; the first rule whose Contains is a substring of
// the prompt wins. Otherwise queued Responses are returned in order, then
// Response.
type MockLLM struct {
	mu sync.Mutex

	// Rules map prompt substrings to responses.
	Rules []Rule

	// Responses are consumed one per call once no rule matches.
	Responses []string

	// Response is returned when no rule matches and Responses is exhausted.
	Response string

	// Error, if set, is returned by every call.
	Error error

	// Prompts records every prompt passed to Generate.
	Prompts []string
}

// NewMockLLM creates a mock LLM with the given fixed response.
func NewMockLLM(response string) *MockLLM {
	return &MockLLM{Response: response}
}

// NewMockLLMWithError creates a mock LLM that always returns an error.
func NewMockLLMWithError(err error) *MockLLM {
	return &MockLLM{Error: err}
}

// On appends a rule and returns the mock for chaining.
func (m *MockLLM) On(contains, response string) *MockLLM {
	m.Rules = append(m.Rules, Rule{Contains: contains, Response: response})
	return m
}

// OnError appends a failing rule and returns the mock for chaining.
func (m *MockLLM) OnError(contains string, err error) *MockLLM {
	m.Rules = append(m.Rules, Rule{Contains: contains, Error: err})
	return m
}

// Generate returns the scripted response for prompt.
func (m *MockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Prompts = append(m.Prompts, prompt)

	if m.Error != nil {
		return "", m.Error
	}
	for _, r := range m.Rules {
		if strings.Contains(prompt, r.Contains) {
			return r.Response, r.Error
		}
	}
	if len(m.Responses) > 0 {
		out := m.Responses[0]
		m.Responses = m.Responses[1:]
		return out, nil
	}
	return m.Response, nil
}

// Calls returns the number of Generate calls so far.
func (m *MockLLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}

// CallsContaining counts prompts that contain substr.
func (m *MockLLM) CallsContaining(substr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.Prompts {
		if strings.Contains(p, substr) {
			n++
		}
	}
	return n
}

// LastPrompt returns the most recent prompt, or "" if none.
func (m *MockLLM) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Prompts) == 0 {
		return ""
	}
	return m.Prompts[len(m.Prompts)-1]
}
