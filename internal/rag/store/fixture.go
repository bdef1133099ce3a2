package store

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

var ErrInvalidFixture = errors.New("invalid graph fixture")

// Fixture is a pre-embedded snapshot of the knowledge graph. It seeds the
// embedded and Milvus backends; YAML and JSON files are both accepted.
type Fixture struct {
	Documents []FixtureDocument `koanf:"documents"`
	Chunks    []FixtureChunk    `koanf:"chunks"`
	Sections  []FixtureSection  `koanf:"sections"`
}

// FixtureDocument is a Document node.
type FixtureDocument struct {
	Name            string   `koanf:"name"`
	RelatedSections []string `koanf:"related_sections"`
}

// FixtureChunk is a Chunk node with its PART_OF document and NEXT successor.
type FixtureChunk struct {
	ID        string    `koanf:"id"`
	Text      string    `koanf:"text"`
	Document  string    `koanf:"document"`
	Next      string    `koanf:"next"`
	Embedding []float32 `koanf:"embedding"`
}

// FixtureSection is a Section node with the name of the Law it is UNDER.
type FixtureSection struct {
	ID        string    `koanf:"id"`
	Number    string    `koanf:"number"`
	Text      string    `koanf:"text"`
	Law       string    `koanf:"law"`
	Embedding []float32 `koanf:"embedding"`
}

// LoadFixture reads and validates a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return ParseFixture(content)
}

// ParseFixture decodes and validates fixture content.
func ParseFixture(content []byte) (*Fixture, error) {
	k := koanf.New("::")
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFixture, err)
	}

	var fx Fixture
	if err := k.Unmarshal("", &fx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFixture, err)
	}
	if err := fx.Validate(); err != nil {
		return nil, err
	}
	return &fx, nil
}

// Validate checks identifiers, references and embedding dimensions.
func (f *Fixture) Validate() error {
	docs := make(map[string]bool, len(f.Documents))
	for _, d := range f.Documents {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return fmt.Errorf("%w: document with empty name", ErrInvalidFixture)
		}
		if docs[name] {
			return fmt.Errorf("%w: duplicate document %q", ErrInvalidFixture, name)
		}
		docs[name] = true
	}

	chunkIDs := make(map[string]bool, len(f.Chunks))
	for _, c := range f.Chunks {
		if c.ID == "" {
			return fmt.Errorf("%w: chunk with empty id", ErrInvalidFixture)
		}
		if chunkIDs[c.ID] {
			return fmt.Errorf("%w: duplicate chunk %q", ErrInvalidFixture, c.ID)
		}
		chunkIDs[c.ID] = true
		if doc := strings.TrimSpace(c.Document); doc != "" && !docs[doc] {
			return fmt.Errorf("%w: chunk %q is part of unknown document %q", ErrInvalidFixture, c.ID, doc)
		}
	}
	for _, c := range f.Chunks {
		if c.Next != "" && !chunkIDs[c.Next] {
			return fmt.Errorf("%w: chunk %q links to unknown next chunk %q", ErrInvalidFixture, c.ID, c.Next)
		}
	}

	sectionIDs := make(map[string]bool, len(f.Sections))
	for _, s := range f.Sections {
		if s.ID == "" {
			return fmt.Errorf("%w: section with empty id", ErrInvalidFixture)
		}
		if sectionIDs[s.ID] {
			return fmt.Errorf("%w: duplicate section %q", ErrInvalidFixture, s.ID)
		}
		sectionIDs[s.ID] = true
	}

	if _, err := f.Dimension(); err != nil {
		return err
	}
	return nil
}

// Dimension returns the shared embedding dimension of all nodes, or 0 when
// the fixture holds no embedded nodes.
func (f *Fixture) Dimension() (int, error) {
	dim := 0
	check := func(kind, id string, v []float32) error {
		if len(v) == 0 {
			return fmt.Errorf("%w: %s %q has no embedding", ErrInvalidFixture, kind, id)
		}
		if dim == 0 {
			dim = len(v)
			return nil
		}
		if len(v) != dim {
			return fmt.Errorf("%w: %s %q has dimension %d, expected %d", ErrInvalidFixture, kind, id, len(v), dim)
		}
		return nil
	}
	for _, c := range f.Chunks {
		if err := check("chunk", c.ID, c.Embedding); err != nil {
			return 0, err
		}
	}
	for _, s := range f.Sections {
		if err := check("section", s.ID, s.Embedding); err != nil {
			return 0, err
		}
	}
	return dim, nil
}

// previous maps each chunk id to the chunk whose NEXT points at it.
func (f *Fixture) previous() map[string]string {
	prev := make(map[string]string, len(f.Chunks))
	for _, c := range f.Chunks {
		if c.Next != "" {
			prev[c.Next] = c.ID
		}
	}
	return prev
}

func (f *Fixture) document(name string) *FixtureDocument {
	name = strings.TrimSpace(name)
	for i := range f.Documents {
		if strings.TrimSpace(f.Documents[i].Name) == name {
			return &f.Documents[i]
		}
	}
	return nil
}
