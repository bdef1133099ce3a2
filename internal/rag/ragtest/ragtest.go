// Package ragtest provides scripted rag collaborators for tests in other
// packages.
package ragtest

import (
	"context"
	"sync"

	"github.com/Yates-Labs/auditor/internal/rag"
)

// Embedder returns a fixed vector per text unless EmbedFunc is set.
type Embedder struct {
	mu        sync.Mutex
	EmbedFunc func(ctx context.Context, texts []string) ([]rag.EmbeddingRecord, error)
	Texts     []string
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([]rag.EmbeddingRecord, error) {
	e.mu.Lock()
	e.Texts = append(e.Texts, texts...)
	e.mu.Unlock()

	if e.EmbedFunc != nil {
		return e.EmbedFunc(ctx, texts)
	}
	records := make([]rag.EmbeddingRecord, len(texts))
	for i, text := range texts {
		records[i] = rag.EmbeddingRecord{Text: text, Embedding: []float32{1, 0, 0}, Index: i, Model: "fake"}
	}
	return records, nil
}

func (e *Embedder) GetModel() string  { return "fake" }
func (e *Embedder) GetDimension() int { return 3 }

// Calls returns the number of texts embedded so far.
func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Texts)
}

// Search records one Store.Search call.
type Search struct {
	Index    rag.Index
	TopK     int
	Document string
}

// Store is a rag.GraphStore with func fields and call recording.
type Store struct {
	mu sync.Mutex

	SearchFunc   func(ctx context.Context, index rag.Index, vector []float32, topK int, opts *rag.SearchOptions) ([]rag.Hit, error)
	LinksFunc    func(ctx context.Context, index rag.Index, id string) (rag.Links, error)
	SectionsFunc func(ctx context.Context, number string) ([]rag.Section, error)
	NamesFunc    func(ctx context.Context) ([]string, error)
	DocumentFunc func(ctx context.Context, name string) (*rag.Document, error)

	Searches       []Search
	SectionLookups []string
	NameListings   int
	DocumentReads  []string
	Closed         int
}

func (s *Store) Search(ctx context.Context, index rag.Index, vector []float32, topK int, opts *rag.SearchOptions) ([]rag.Hit, error) {
	call := Search{Index: index, TopK: topK}
	if opts != nil {
		call.Document = opts.Document
	}
	s.mu.Lock()
	s.Searches = append(s.Searches, call)
	s.mu.Unlock()

	if s.SearchFunc != nil {
		return s.SearchFunc(ctx, index, vector, topK, opts)
	}
	return []rag.Hit{}, nil
}

func (s *Store) Links(ctx context.Context, index rag.Index, id string) (rag.Links, error) {
	if s.LinksFunc != nil {
		return s.LinksFunc(ctx, index, id)
	}
	return rag.Links{}, nil
}

func (s *Store) SectionsByNumber(ctx context.Context, number string) ([]rag.Section, error) {
	s.mu.Lock()
	s.SectionLookups = append(s.SectionLookups, number)
	s.mu.Unlock()

	if s.SectionsFunc != nil {
		return s.SectionsFunc(ctx, number)
	}
	return []rag.Section{}, nil
}

func (s *Store) DocumentNames(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	s.NameListings++
	s.mu.Unlock()

	if s.NamesFunc != nil {
		return s.NamesFunc(ctx)
	}
	return []string{}, nil
}

func (s *Store) Document(ctx context.Context, name string) (*rag.Document, error) {
	s.mu.Lock()
	s.DocumentReads = append(s.DocumentReads, name)
	s.mu.Unlock()

	if s.DocumentFunc != nil {
		return s.DocumentFunc(ctx, name)
	}
	return nil, nil
}

func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	s.Closed++
	s.mu.Unlock()
	return nil
}

var _ rag.GraphStore = (*Store)(nil)
var _ rag.Embedder = (*Embedder)(nil)
