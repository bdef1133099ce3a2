package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/Yates-Labs/auditor/internal/rag"
)

const (
	memoryChunkCollection   = "chunks"
	memorySectionCollection = "sections"
	metaDocument            = "document"
)

// MemoryStore is an embedded GraphStore backed by chromem-go collections.
// Graph relations are kept alongside the collections in plain maps.
type MemoryStore struct {
	db       *chromem.DB
	chunks   *chromem.Collection
	sections *chromem.Collection
	logger   *zap.Logger

	chunkByID    map[string]rag.Chunk
	chunkDoc     map[string]string
	next         map[string]string
	prev         map[string]string
	docChunks    map[string]int
	documents    map[string]rag.Document
	docNames     []string
	sectionByID  map[string]rag.Section
	sectionOrder []string
}

// errNoEmbeddingFunc is returned if chromem is asked to embed raw text.
// Every node in the fixture carries its own embedding.
var errNoEmbeddingFunc = errors.New("memory store only accepts pre-computed embeddings")

func noEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

// NewMemoryStore builds an in-memory graph from fx.
func NewMemoryStore(ctx context.Context, fx *Fixture, logger *zap.Logger) (*MemoryStore, error) {
	if fx == nil {
		return nil, fmt.Errorf("%w: nil fixture", ErrInvalidFixture)
	}
	if err := fx.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db := chromem.NewDB()
	chunks, err := db.CreateCollection(memoryChunkCollection, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunk collection: %w", err)
	}
	sections, err := db.CreateCollection(memorySectionCollection, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create section collection: %w", err)
	}

	m := &MemoryStore{
		db:          db,
		chunks:      chunks,
		sections:    sections,
		logger:      logger,
		chunkByID:   make(map[string]rag.Chunk, len(fx.Chunks)),
		chunkDoc:    make(map[string]string, len(fx.Chunks)),
		next:        make(map[string]string, len(fx.Chunks)),
		prev:        fx.previous(),
		docChunks:   make(map[string]int, len(fx.Documents)),
		documents:   make(map[string]rag.Document, len(fx.Documents)),
		sectionByID: make(map[string]rag.Section, len(fx.Sections)),
	}

	for _, d := range fx.Documents {
		name := strings.TrimSpace(d.Name)
		m.documents[name] = rag.Document{Name: name, RelatedSections: d.RelatedSections}
		m.docNames = append(m.docNames, name)
	}

	for _, c := range fx.Chunks {
		doc := strings.TrimSpace(c.Document)
		err := chunks.AddDocument(ctx, chromem.Document{
			ID:        c.ID,
			Content:   c.Text,
			Embedding: c.Embedding,
			Metadata:  map[string]string{metaDocument: doc},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to add chunk %s: %w", c.ID, err)
		}
		m.chunkByID[c.ID] = rag.Chunk{ID: c.ID, Text: c.Text}
		m.chunkDoc[c.ID] = doc
		if c.Next != "" {
			m.next[c.ID] = c.Next
		}
		if doc != "" {
			m.docChunks[doc]++
		}
	}

	for _, s := range fx.Sections {
		err := sections.AddDocument(ctx, chromem.Document{
			ID:        s.ID,
			Content:   s.Text,
			Embedding: s.Embedding,
			Metadata:  map[string]string{"number": s.Number},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to add section %s: %w", s.ID, err)
		}
		m.sectionByID[s.ID] = rag.Section{ID: s.ID, Number: s.Number, Text: s.Text, Law: s.Law}
		m.sectionOrder = append(m.sectionOrder, s.ID)
	}

	logger.Info("memory graph loaded",
		zap.Int("documents", len(m.documents)),
		zap.Int("chunks", len(m.chunkByID)),
		zap.Int("sections", len(m.sectionByID)),
	)
	return m, nil
}

// Search queries the selected collection with a pre-computed vector.
func (m *MemoryStore) Search(ctx context.Context, index rag.Index, vector []float32, topK int, opts *rag.SearchOptions) ([]rag.Hit, error) {
	if topK <= 0 {
		return nil, rag.ErrInvalidTopK
	}

	var (
		coll  *chromem.Collection
		where map[string]string
		limit int
	)
	switch index {
	case rag.IndexChunk:
		coll = m.chunks
		limit = coll.Count()
		if opts != nil && opts.Document != "" {
			doc := strings.TrimSpace(opts.Document)
			where = map[string]string{metaDocument: doc}
			limit = m.docChunks[doc]
		}
	case rag.IndexSection:
		if opts != nil && opts.Document != "" {
			return nil, rag.ErrScopeUnsupported
		}
		coll = m.sections
		limit = coll.Count()
	default:
		return nil, fmt.Errorf("%w: %q", rag.ErrUnknownIndex, index)
	}

	// chromem rejects nResults above the number of candidate documents.
	k := topK
	if k > limit {
		k = limit
	}
	if k == 0 {
		return []rag.Hit{}, nil
	}

	results, err := coll.QueryEmbedding(ctx, vector, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rag.ErrSearchFailed, err)
	}

	hits := make([]rag.Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, rag.Hit{ID: r.ID, Text: r.Content, Score: r.Similarity, Index: index})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits, nil
}

// Links resolves NEXT, previous and PART_OF for chunks and UNDER for sections.
func (m *MemoryStore) Links(ctx context.Context, index rag.Index, id string) (rag.Links, error) {
	var links rag.Links
	switch index {
	case rag.IndexChunk:
		if _, ok := m.chunkByID[id]; !ok {
			return links, fmt.Errorf("chunk %q not found", id)
		}
		if n, ok := m.next[id]; ok {
			c := m.chunkByID[n]
			links.Next = &c
		}
		if p, ok := m.prev[id]; ok {
			c := m.chunkByID[p]
			links.Previous = &c
		}
		if doc, ok := m.documents[m.chunkDoc[id]]; ok {
			d := doc
			links.Document = &d
		}
	case rag.IndexSection:
		s, ok := m.sectionByID[id]
		if !ok {
			return links, fmt.Errorf("section %q not found", id)
		}
		links.Law = s.Law
	default:
		return links, fmt.Errorf("%w: %q", rag.ErrUnknownIndex, index)
	}
	return links, nil
}

// SectionsByNumber returns sections whose number equals number, in fixture order.
func (m *MemoryStore) SectionsByNumber(ctx context.Context, number string) ([]rag.Section, error) {
	out := []rag.Section{}
	for _, id := range m.sectionOrder {
		if s := m.sectionByID[id]; s.Number == number {
			out = append(out, s)
		}
	}
	return out, nil
}

// DocumentNames lists document names in fixture order.
func (m *MemoryStore) DocumentNames(ctx context.Context) ([]string, error) {
	return append([]string{}, m.docNames...), nil
}

// Document returns the named document, or nil.
func (m *MemoryStore) Document(ctx context.Context, name string) (*rag.Document, error) {
	d, ok := m.documents[strings.TrimSpace(name)]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

// Close is a no-op; the graph lives only in memory.
func (m *MemoryStore) Close(ctx context.Context) error {
	return nil
}
