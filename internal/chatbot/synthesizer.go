package chatbot

import (
	"context"
	"fmt"
	"strings"

	"github.com/Yates-Labs/auditor/internal/llm"
	"github.com/Yates-Labs/auditor/internal/rag"
)

// NoRelevantInformation is the answer when retrieval finds nothing.
const NoRelevantInformation = "No relevant information was found in the database."

const answerPrompt = `You are an AI assistant for the Bank of Thailand's auditor. Use the following retrieved information to answer the user's question:

Retrieved Information:
%s

User's Question:
%s

Provide a clear and accurate response based on the retrieved information in Thai.`

const generalPrompt = `You are an AI assistant for the Bank of Thailand's auditor. Respond formally and in Thai to the following query:
"%s"`

// Synthesizer writes answers from retrieved context.
type Synthesizer struct {
	llm llm.LLM
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(l llm.LLM) *Synthesizer {
	return &Synthesizer{llm: l}
}

// Answer grounds the response in hits. Empty hits return
// NoRelevantInformation without calling the model.
func (s *Synthesizer) Answer(ctx context.Context, question string, hits []rag.Hit) (string, error) {
	if len(hits) == 0 {
		return NoRelevantInformation, nil
	}

	texts := make([]string, 0, len(hits))
	for _, h := range hits {
		texts = append(texts, h.Text)
	}

	out, err := s.llm.Generate(ctx, fmt.Sprintf(answerPrompt, strings.Join(texts, "\n\n"), question))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// General answers without retrieval.
func (s *Synthesizer) General(ctx context.Context, question string) (string, error) {
	out, err := s.llm.Generate(ctx, fmt.Sprintf(generalPrompt, question))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// RetrievedPanel renders the raw retrieved records shown next to an answer.
func RetrievedPanel(label Label, hits []rag.Hit) string {
	entries := make([]string, 0, len(hits))
	for _, h := range hits {
		switch label {
		case LabelAnnouncement:
			var next, doc, sections string
			if h.Links.Next != nil {
				next = h.Links.Next.Text
			}
			if h.Links.Document != nil {
				doc = h.Links.Document.Name
				sections = "[" + strings.Join(h.Links.Document.RelatedSections, ", ") + "]"
			}
			entries = append(entries, fmt.Sprintf("Chunk: %s, Next Chunk: %s, Document: %s, Sections: %s", h.Text, next, doc, sections))
		case LabelLaw:
			entries = append(entries, fmt.Sprintf("Section: %s, Law: %s, Score: %.4f", h.Text, h.Links.Law, h.Score))
		default:
			entries = append(entries, h.Text)
		}
	}
	return strings.Join(entries, "\n\n")
}
