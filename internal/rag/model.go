package rag

import (
	"context"
	"errors"
)

var (
	ErrEmptyQuery       = errors.New("query text cannot be empty")
	ErrInvalidTopK      = errors.New("topK must be positive")
	ErrUnknownIndex     = errors.New("unknown index")
	ErrSearchFailed     = errors.New("similarity search failed")
	ErrStoreUnavailable = errors.New("knowledge graph store unavailable")
	ErrScopeUnsupported = errors.New("document scope applies to the chunk index only")
)

// Index selects which vector index a search runs against.
type Index string

const (
	// IndexChunk holds announcement text chunks linked by NEXT and PART_OF.
	IndexChunk Index = "chunk"
	// IndexSection holds law sections linked to their Law by UNDER.
	IndexSection Index = "section"
)

// Valid reports whether i is a known index.
func (i Index) Valid() bool {
	return i == IndexChunk || i == IndexSection
}

// Chunk is a contiguous span of an announcement document.
type Chunk struct {
	ID   string `json:"id" yaml:"id"`
	Text string `json:"text" yaml:"text"`
}

// Document is a reference document (an announcement) made of chunks.
type Document struct {
	Name            string   `json:"name" yaml:"name"`
	RelatedSections []string `json:"related_sections,omitempty" yaml:"related_sections"`
}

// Section is one numbered section of a law.
type Section struct {
	ID     string `json:"id" yaml:"id"`
	Number string `json:"number" yaml:"number"`
	Text   string `json:"text" yaml:"text"`
	Law    string `json:"law,omitempty" yaml:"law"`
}

// Links are the graph neighbours of a hit. Absent links stay nil or empty.
type Links struct {
	Previous *Chunk    `json:"previous,omitempty"`
	Next     *Chunk    `json:"next,omitempty"`
	Document *Document `json:"document,omitempty"`
	Law      string    `json:"law,omitempty"`
}

// Hit is one similarity search result.
type Hit struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float32 `json:"score"`
	Index Index   `json:"index"`
	Links Links   `json:"links"`
}

// SearchOptions restricts a similarity search.
type SearchOptions struct {
	// Document limits chunk results to those PART_OF the named document.
	// Names are compared after trimming surrounding whitespace.
	Document string `json:"document,omitempty"`
}

// GraphStore is the knowledge graph the assistant reads from.
// Implementations return hits in descending score order.
type GraphStore interface {
	// Search performs top-K similarity search on the selected index.
	Search(ctx context.Context, index Index, vector []float32, topK int, opts *SearchOptions) ([]Hit, error)

	// Links resolves the neighbours of the node with the given id.
	Links(ctx context.Context, index Index, id string) (Links, error)

	// SectionsByNumber returns every section whose number equals number exactly.
	SectionsByNumber(ctx context.Context, number string) ([]Section, error)

	// DocumentNames lists all reference document names.
	DocumentNames(ctx context.Context) ([]string, error)

	// Document returns the named document, or nil when it does not exist.
	Document(ctx context.Context, name string) (*Document, error)

	// Close releases the store session.
	Close(ctx context.Context) error
}
