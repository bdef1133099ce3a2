package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

// ErrCircuitOpen is returned while the Gemini breaker rejects calls.
var ErrCircuitOpen = errors.New("gemini circuit breaker open")

type sendFunc func(ctx context.Context, prompt string) (string, error)

// GeminiLLM implements the LLM interface using Google's Gemini API.
// Calls pass through a rate limiter and a circuit breaker; neither retries.
type GeminiLLM struct {
	client  *genai.Client
	config  Config
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	send    sendFunc
	logger  *zap.Logger
}

// GeminiOption customizes a GeminiLLM.
type GeminiOption func(*GeminiLLM)

// WithGeminiLogger sets the logger used for breaker state changes.
func WithGeminiLogger(l *zap.Logger) GeminiOption {
	return func(g *GeminiLLM) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGeminiLLM creates a Gemini-backed LLM implementation.
func NewGeminiLLM(ctx context.Context, config Config, opts ...GeminiOption) (*GeminiLLM, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing API key (set GEMINI_API_KEY or provide in config)", ErrInvalidConfig)
	}
	if config.Model == "" {
		return nil, fmt.Errorf("%w: missing model name", ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	g := newGemini(config, nil, opts...)
	g.client = client
	g.send = g.generateContent
	return g, nil
}

func newGemini(config Config, send sendFunc, opts ...GeminiOption) *GeminiLLM {
	g := &GeminiLLM{
		config:  config,
		limiter: newLimiter(config.RequestsPerMinute),
		send:    send,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gemini",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return g
}

func newLimiter(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := rpm / 10
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)
}

// Generate sends the prompt to Gemini and returns the generated text.
func (g *GeminiLLM) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: prompt cannot be empty", ErrInvalidConfig)
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limiter: %w", ErrLLMFailed, err)
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.send(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %w", ErrLLMFailed, ErrCircuitOpen)
		}
		return "", fmt.Errorf("%w: %w", ErrLLMFailed, err)
	}
	return result.(string), nil
}

func (g *GeminiLLM) generateContent(ctx context.Context, prompt string) (string, error) {
	model := g.client.GenerativeModel(g.config.Model)
	if g.config.Temperature > 0 {
		model.SetTemperature(g.config.Temperature)
	}
	if g.config.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(g.config.MaxTokens))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("no candidates returned")
	}
	var b strings.Builder
	content := resp.Candidates[0].Content
	if content == nil {
		return "", errors.New("candidate has no content")
	}
	for _, part := range content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String(), nil
}

// Close releases the underlying client.
func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
