package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"golang.org/x/time/rate"
)

// OpenAILLM is the alternate completion provider. It shares the Gemini
// throttle settings so switching providers keeps the same request budget.
type OpenAILLM struct {
	client  openai.Client
	config  Config
	limiter *rate.Limiter
}

// NewOpenAILLM creates an OpenAI-backed LLM. The key falls back to
// OPENAI_API_KEY; opts are passed to the client (base URL, retries).
func NewOpenAILLM(config Config, opts ...option.RequestOption) (*OpenAILLM, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing API key (set OPENAI_API_KEY or provide in config)", ErrInvalidConfig)
	}
	if config.Model == "" {
		return nil, fmt.Errorf("%w: missing model name", ErrInvalidConfig)
	}

	return &OpenAILLM{
		client:  openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...),
		config:  config,
		limiter: newLimiter(config.RequestsPerMinute),
	}, nil
}

// Generate returns the first choice with surrounding whitespace removed.
// A blank completion is an error.
func (o *OpenAILLM) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: prompt cannot be empty", ErrInvalidConfig)
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limiter: %w", ErrLLMFailed, err)
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(o.config.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
	}
	if o.config.Temperature > 0 {
		params.Temperature = openai.Float(float64(o.config.Temperature))
	}
	if o.config.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(o.config.MaxTokens))
	}

	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLLMFailed, err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: no response generated", ErrLLMFailed)
	}
	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty completion (finish reason %q)", ErrLLMFailed, completion.Choices[0].FinishReason)
	}
	return text, nil
}
