// Package llm provides the completion collaborator used by the chatbot and
// the minutes pipeline. It defines a provider-agnostic LLM interface with
// implementations for Gemini and OpenAI and a scripted mock for tests.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/Yates-Labs/auditor/internal/config"
	"github.com/Yates-Labs/auditor/internal/telemetry"
)

var (
	ErrLLMFailed     = errors.New("LLM request failed")
	ErrInvalidConfig = errors.New("invalid LLM configuration")
)

// LLM defines the interface for interacting with language models.
// Implementations must be stateless and safe for concurrent use.
type LLM interface {
	// Generate produces text from a prompt using the configured model.
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config holds common configuration options for LLM providers.
type Config struct {
	// Model specifies the model identifier (e.g., "gemini-1.5-pro-latest", "gpt-4o")
	Model string

	// Temperature controls randomness (0 = provider default)
	Temperature float32

	// MaxTokens limits the response length (0 = provider default)
	MaxTokens int

	// APIKey is the authentication key for the provider
	APIKey string

	// RequestsPerMinute throttles outbound calls (0 = unlimited)
	RequestsPerMinute int
}

// DefaultConfig returns the defaults used for compliance prompts.
func DefaultConfig() Config {
	return Config{
		Model:             "gemini-1.5-pro-latest",
		MaxTokens:         2048,
		RequestsPerMinute: 60,
	}
}

// New builds the provider selected in cfg.
func New(ctx context.Context, cfg config.LLMConfig) (LLM, error) {
	c := Config{
		Model:             cfg.Model,
		Temperature:       cfg.Temperature,
		MaxTokens:         cfg.MaxTokens,
		APIKey:            cfg.APIKey,
		RequestsPerMinute: cfg.RequestsPerMinute,
	}
	switch cfg.Provider {
	case "gemini":
		return NewGeminiLLM(ctx, c)
	case "openai":
		return NewOpenAILLM(c)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// Instrumented counts every call made through an LLM under one purpose label.
type Instrumented struct {
	LLM     LLM
	Metrics *telemetry.Metrics
	Purpose string
}

// Instrument wraps l so each call is recorded by m. A nil m returns l unchanged.
func Instrument(l LLM, m *telemetry.Metrics, purpose string) LLM {
	if m == nil {
		return l
	}
	return &Instrumented{LLM: l, Metrics: m, Purpose: purpose}
}

// Generate forwards to the wrapped LLM.
func (i *Instrumented) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := i.LLM.Generate(ctx, prompt)
	i.Metrics.ObserveCompletion(i.Purpose, err)
	return out, err
}
