// Package chatbot answers auditor questions: it classifies each turn, then
// either resolves cited law sections exactly or retrieves related chunks and
// sections and synthesizes a grounded answer.
package chatbot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Yates-Labs/auditor/internal/llm"
	"github.com/Yates-Labs/auditor/internal/rag"
	"github.com/Yates-Labs/auditor/internal/telemetry"
)

// Config holds per-label retrieval sizes.
type Config struct {
	AnnouncementTopN int
	LawTopN          int
}

// DefaultConfig returns the retrieval sizes of the production assistant.
func DefaultConfig() Config {
	return Config{
		AnnouncementTopN: 10,
		LawTopN:          5,
	}
}

// Reply is the outcome of one turn.
type Reply struct {
	Query     Query          `json:"query"`
	Message   string         `json:"message"`
	Retrieved string         `json:"retrieved,omitempty"`
	Hits      []rag.Hit      `json:"hits,omitempty"`
	Sections  *SectionLookup `json:"sections,omitempty"`
	Err       string         `json:"error,omitempty"`
}

// Chatbot runs conversational turns.
type Chatbot struct {
	classifier  *Classifier
	sections    *SectionExtractor
	retriever   *rag.Retriever
	synthesizer *Synthesizer
	config      Config
	logger      *zap.Logger
	metrics     *telemetry.Metrics
}

// Option customizes a Chatbot.
type Option func(*Chatbot)

// WithLogger sets the chatbot's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Chatbot) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records turns and completion calls on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Chatbot) { c.metrics = m }
}

// New assembles a Chatbot from a completion model and a retriever.
func New(model llm.LLM, retriever *rag.Retriever, config Config, opts ...Option) (*Chatbot, error) {
	if model == nil {
		return nil, fmt.Errorf("llm cannot be nil")
	}
	if retriever == nil {
		return nil, fmt.Errorf("retriever cannot be nil")
	}
	if config.AnnouncementTopN <= 0 || config.LawTopN <= 0 {
		return nil, fmt.Errorf("%w: top-N values must be positive", rag.ErrInvalidTopK)
	}

	c := &Chatbot{config: config, retriever: retriever, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}

	c.classifier = NewClassifier(llm.Instrument(model, c.metrics, "classify"), c.logger)
	c.sections = NewSectionExtractor(retriever.Store(), c.logger)
	c.synthesizer = NewSynthesizer(llm.Instrument(model, c.metrics, "answer"))
	return c, nil
}

// Turn processes one user message. The user message and the assistant reply
// are both appended to h. Turn never returns an error: failures become the
// assistant message.
func (c *Chatbot) Turn(ctx context.Context, h *History, text string) Reply {
	start := time.Now()
	h.Append(RoleUser, text)

	q := Query{Text: text, Label: c.classifier.Classify(ctx, text)}
	c.metrics.ObserveChatTurn(q.Label.String())
	logger := c.logger.With(zap.String("label", q.Label.String()))
	logger.Info("chat turn classified")

	reply := c.route(ctx, q)
	if reply.Err != "" {
		logger.Warn("chat turn failed", zap.String("error", reply.Err))
		reply.Message = "An error occurred while processing your query: " + reply.Err
	}
	h.Append(RoleAssistant, reply.Message)

	c.metrics.ObserveStage("chat_turn", start)
	logger.Debug("chat turn complete", zap.Int("hits", len(reply.Hits)), zap.Duration("elapsed", time.Since(start)))
	return reply
}

func (c *Chatbot) route(ctx context.Context, q Query) Reply {
	reply := Reply{Query: q}

	switch q.Label {
	case LabelExactSection:
		if strings.Contains(q.Text, SectionMarker) {
			lookup := c.sections.Lookup(ctx, q.Text)
			reply.Sections = &lookup
			reply.Message = lookup.Render()
			return reply
		}
		return c.general(ctx, reply)
	case LabelLaw:
		return c.retrieve(ctx, reply, rag.IndexSection, c.config.LawTopN)
	case LabelAnnouncement:
		return c.retrieve(ctx, reply, rag.IndexChunk, c.config.AnnouncementTopN)
	case LabelGeneral:
		return c.general(ctx, reply)
	default:
		c.logger.Warn("unhandled label, answering as general question", zap.Int("label", int(q.Label)))
		return c.general(ctx, reply)
	}
}

func (c *Chatbot) retrieve(ctx context.Context, reply Reply, index rag.Index, topN int) Reply {
	hits, err := c.retriever.Retrieve(ctx, rag.Query{
		Text:         reply.Query.Text,
		Index:        index,
		TopK:         topN,
		ResolveLinks: true,
	})
	if err != nil {
		reply.Err = err.Error()
		return reply
	}

	reply.Hits = hits
	reply.Retrieved = RetrievedPanel(reply.Query.Label, hits)

	answer, err := c.synthesizer.Answer(ctx, reply.Query.Text, hits)
	if err != nil {
		reply.Err = err.Error()
		return reply
	}
	reply.Message = answer
	return reply
}

func (c *Chatbot) general(ctx context.Context, reply Reply) Reply {
	answer, err := c.synthesizer.General(ctx, reply.Query.Text)
	if err != nil {
		reply.Err = err.Error()
		return reply
	}
	reply.Message = answer
	return reply
}
