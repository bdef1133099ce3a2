package minutes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Yates-Labs/auditor/internal/llm"
)

var ErrSummarizationFailed = errors.New("minutes summarization failed")

const summarizationPrompt = `You are an AI assistant specializing in summarizing meeting minutes for auditors at the Bank of Thailand in Thai.

Analyze the following meeting minutes and provide a summary under exactly these three headers, each written on its own line and spelled exactly as shown:
` + HeaderDecisions + `
` + HeaderTopics + `
` + HeaderActions + `

Under each header, write one line per item in the form "- <topic name>: <details>". Write the topic names and details in Thai.

Meeting Minutes:
%s

Provide a structured and detailed summary.`

// Summarizer produces the structured analysis text that Decompose reads.
type Summarizer struct {
	llm llm.LLM
}

// NewSummarizer creates a Summarizer.
func NewSummarizer(l llm.LLM) *Summarizer {
	return &Summarizer{llm: l}
}

// Summarize returns the trimmed analysis of minutes.
func (s *Summarizer) Summarize(ctx context.Context, minutes string) (string, error) {
	out, err := s.llm.Generate(ctx, fmt.Sprintf(summarizationPrompt, minutes))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSummarizationFailed, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: empty response", ErrSummarizationFailed)
	}
	return out, nil
}
