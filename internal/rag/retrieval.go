package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Yates-Labs/auditor/internal/telemetry"
)

// Query describes one semantic retrieval.
type Query struct {
	Text  string
	Index Index
	TopK  int

	// Document scopes the search to one document's chunks when non-empty.
	Document string

	// ResolveLinks fetches neighbours and parents for every hit.
	ResolveLinks bool
}

// Retriever embeds free text and runs similarity search over the graph store.
type Retriever struct {
	embedder Embedder
	store    GraphStore
	logger   *zap.Logger
	metrics  *telemetry.Metrics
}

// RetrieverOption customizes a Retriever.
type RetrieverOption func(*Retriever)

// WithLogger sets the retriever's logger.
func WithLogger(l *zap.Logger) RetrieverOption {
	return func(r *Retriever) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records embedding and retrieval counts on m.
func WithMetrics(m *telemetry.Metrics) RetrieverOption {
	return func(r *Retriever) { r.metrics = m }
}

// NewRetriever creates a new Retriever instance.
func NewRetriever(embedder Embedder, store GraphStore, opts ...RetrieverOption) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("graph store cannot be nil")
	}

	r := &Retriever{
		embedder: embedder,
		store:    store,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Store returns the graph store the retriever searches.
func (r *Retriever) Store() GraphStore {
	return r.store
}

// Retrieve embeds q.Text and returns at most q.TopK hits in descending score
// order. An embedding failure is returned as an error wrapping
// ErrEmbeddingFailed; an empty match set yields an empty, non-nil slice.
func (r *Retriever) Retrieve(ctx context.Context, q Query) ([]Hit, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, ErrEmptyQuery
	}
	if q.TopK <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidTopK, q.TopK)
	}
	if !q.Index.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIndex, q.Index)
	}

	vector, err := r.EmbedQuery(ctx, q.Text)
	if err != nil {
		return nil, err
	}
	return r.RetrieveVector(ctx, vector, q)
}

// EmbedQuery embeds one query text. Failures wrap ErrEmbeddingFailed.
func (r *Retriever) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}
	records, err := r.embedder.Embed(ctx, []string{text})
	r.metrics.ObserveEmbedding(err)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", wrapEmbedding(err))
	}
	if len(records) == 0 || len(records[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: no embedding generated for query", ErrEmbeddingFailed)
	}
	return records[0].Embedding, nil
}

// RetrieveVector runs the search part of Retrieve with a precomputed vector.
func (r *Retriever) RetrieveVector(ctx context.Context, vector []float32, q Query) ([]Hit, error) {
	if q.TopK <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidTopK, q.TopK)
	}
	if !q.Index.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIndex, q.Index)
	}

	var opts *SearchOptions
	if doc := strings.TrimSpace(q.Document); doc != "" {
		opts = &SearchOptions{Document: doc}
	}
	r.metrics.ObserveRetrieval(string(q.Index), opts != nil)

	hits, err := r.store.Search(ctx, q.Index, vector, q.TopK, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}

	out := make([]Hit, 0, len(hits))
	out = append(out, hits...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > q.TopK {
		out = out[:q.TopK]
	}

	for i := range out {
		out[i].Index = q.Index
	}

	if q.ResolveLinks {
		for i := range out {
			links, err := r.store.Links(ctx, q.Index, out[i].ID)
			if err != nil {
				r.logger.Warn("link lookup failed",
					zap.String("index", string(q.Index)),
					zap.String("id", out[i].ID),
					zap.Error(err),
				)
				continue
			}
			out[i].Links = links
		}
	}

	r.logger.Debug("retrieval complete",
		zap.String("index", string(q.Index)),
		zap.String("document", q.Document),
		zap.Int("top_k", q.TopK),
		zap.Int("hits", len(out)),
	)
	return out, nil
}

func wrapEmbedding(err error) error {
	if errors.Is(err, ErrEmbeddingFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
}
