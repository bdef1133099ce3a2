package chatbot

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Yates-Labs/auditor/internal/llm"
)

const classifierPrompt = `You are an AI assistant for the Bank of Thailand's auditor. Analyze the user query:
- If it explicitly references a specific section (e.g., "มาตรา 98"), respond with 'exact_section_query'.
- If it is related to laws or sections (กฏหมาย, มาตรา), respond with 'law_query'.
- If it is related to Bank of Thailand announcements (ประกาศธนาคาร, ประกาศธนาคารแห่งประเทศไทย), respond with 'announcement_query'.
- Otherwise, respond with 'general_question'.
User Query: "%s"`

// Classifier labels questions with one completion call.
type Classifier struct {
	llm    llm.LLM
	logger *zap.Logger
}

// NewClassifier creates a Classifier.
func NewClassifier(l llm.LLM, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{llm: l, logger: logger}
}

// Classify never fails: collaborator errors and unrecognised output both
// yield LabelGeneral.
func (c *Classifier) Classify(ctx context.Context, text string) Label {
	raw, err := c.llm.Generate(ctx, fmt.Sprintf(classifierPrompt, text))
	if err != nil {
		c.logger.Warn("classification failed, treating as general question", zap.Error(err))
		return LabelGeneral
	}

	label, ok := ParseLabel(raw)
	if !ok {
		c.logger.Warn("unrecognised classifier output", zap.String("raw", raw))
	}
	return label
}
