// Package orchestrator wires configuration into the running assistant: the
// knowledge graph store, the completion and embedding models, the chatbot
// and the minutes pipeline.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/Yates-Labs/auditor/internal/chatbot"
	"github.com/Yates-Labs/auditor/internal/config"
	"github.com/Yates-Labs/auditor/internal/extract"
	"github.com/Yates-Labs/auditor/internal/llm"
	"github.com/Yates-Labs/auditor/internal/logging"
	"github.com/Yates-Labs/auditor/internal/minutes"
	"github.com/Yates-Labs/auditor/internal/rag"
	"github.com/Yates-Labs/auditor/internal/rag/store"
	"github.com/Yates-Labs/auditor/internal/telemetry"
)

// App owns every long-lived component. Close releases them in reverse order
// of acquisition.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *telemetry.Metrics
	Store     rag.GraphStore
	LLM       llm.LLM
	Embedder  rag.Embedder
	Retriever *rag.Retriever
	Chatbot   *chatbot.Chatbot
	Pipeline  *minutes.Pipeline

	closers []func(ctx context.Context) error
}

// Option overrides a component before Open builds it from configuration.
type Option func(*App)

// WithStore uses s instead of opening the configured backend.
func WithStore(s rag.GraphStore) Option {
	return func(a *App) { a.Store = s }
}

// WithLLM uses l instead of the configured completion provider.
func WithLLM(l llm.LLM) Option {
	return func(a *App) { a.LLM = l }
}

// WithEmbedder uses e instead of the configured embedding provider.
func WithEmbedder(e rag.Embedder) Option {
	return func(a *App) { a.Embedder = e }
}

// WithMetrics records on m instead of a fresh registry.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(a *App) { a.Metrics = m }
}

// Open builds the App described by cfg. On error everything acquired so far
// is closed.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrInvalidConfig)
	}
	a := &App{Config: cfg, Logger: logging.OrNop(logger)}
	for _, opt := range opts {
		opt(a)
	}
	if a.Metrics == nil {
		a.Metrics = telemetry.New()
	}

	if err := a.build(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.Logger.Info("assistant ready",
		zap.String("store", cfg.Store.Backend),
		zap.String("llm", cfg.LLM.Provider),
		zap.String("embedding", cfg.Embedding.Provider),
	)
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	if a.Store == nil {
		s, err := store.Open(ctx, cfg, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to open knowledge graph: %w", err)
		}
		a.Store = s
	}
	a.closers = append(a.closers, a.Store.Close)

	if a.LLM == nil {
		l, err := llm.New(ctx, cfg.LLM)
		if err != nil {
			return fmt.Errorf("failed to create LLM: %w", err)
		}
		a.LLM = l
	}
	a.closeIfCloser(a.LLM)

	if a.Embedder == nil {
		e, err := rag.NewEmbedder(ctx, cfg.Embedding)
		if err != nil {
			return fmt.Errorf("failed to create embedder: %w", err)
		}
		a.Embedder = e
	}
	a.closeIfCloser(a.Embedder)

	retriever, err := rag.NewRetriever(a.Embedder, a.Store,
		rag.WithLogger(a.Logger),
		rag.WithMetrics(a.Metrics),
	)
	if err != nil {
		return fmt.Errorf("failed to create retriever: %w", err)
	}
	a.Retriever = retriever

	a.Chatbot, err = chatbot.New(a.LLM, retriever, chatbot.Config{
		AnnouncementTopN: cfg.Retrieval.AnnouncementTopN,
		LawTopN:          cfg.Retrieval.LawTopN,
	}, chatbot.WithLogger(a.Logger.Named("chatbot")), chatbot.WithMetrics(a.Metrics))
	if err != nil {
		return fmt.Errorf("failed to create chatbot: %w", err)
	}

	a.Pipeline, err = minutes.NewPipeline(a.LLM, retriever, minutes.Config{
		MinWords:     cfg.Extraction.MinWords,
		EvidenceTopN: cfg.Retrieval.EvidenceTopN,
	}, minutes.WithLogger(a.Logger.Named("minutes")), minutes.WithMetrics(a.Metrics))
	if err != nil {
		return fmt.Errorf("failed to create minutes pipeline: %w", err)
	}
	return nil
}

func (a *App) closeIfCloser(v any) {
	if c, ok := v.(io.Closer); ok {
		a.closers = append(a.closers, func(context.Context) error { return c.Close() })
	}
}

// Extractor builds the text extractor for one minutes run. Non-empty creds
// override the configured service endpoint and key.
func (a *App) Extractor(creds extract.Credentials) (extract.Extractor, error) {
	return extract.New(a.Config.Extraction, creds, extract.WithAzureLogger(a.Logger.Named("extract")))
}

// Close releases every component. It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// WithApp opens an App, runs fn and closes the App even when fn fails.
func WithApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, fn func(*App) error, opts ...Option) (err error) {
	app, err := Open(ctx, cfg, logger, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(ctx); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close assistant: %w", cerr)
		}
	}()
	return fn(app)
}
