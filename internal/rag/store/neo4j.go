package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/Yates-Labs/auditor/internal/rag"
)

// Neo4jConfig holds connection settings and vector index names.
type Neo4jConfig struct {
	URI          string
	User         string
	Password     string
	Database     string
	ChunkIndex   string
	SectionIndex string
}

// Neo4jStore implements rag.GraphStore on a Neo4j graph with native vector indexes.
//
// Expected graph shape:
//
//	(:Chunk {id, text, embedding})-[:NEXT]->(:Chunk)
//	(:Chunk)-[:PART_OF]->(:Document {name, related_sections})
//	(:Section {id, section, text, embedding})-[:UNDER]->(:Law {law_name})
type Neo4jStore struct {
	driver neo4j.DriverWithContext
	config Neo4jConfig
	logger *zap.Logger
}

// NewNeo4jStore connects to Neo4j and verifies the connection.
func NewNeo4jStore(ctx context.Context, config Neo4jConfig, logger *zap.Logger) (*Neo4jStore, error) {
	if config.URI == "" {
		return nil, fmt.Errorf("%w: missing neo4j uri", rag.ErrStoreUnavailable)
	}
	if config.ChunkIndex == "" || config.SectionIndex == "" {
		return nil, fmt.Errorf("%w: vector index names are required", rag.ErrStoreUnavailable)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	driver, err := neo4j.NewDriverWithContext(config.URI, neo4j.BasicAuth(config.User, config.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rag.ErrStoreUnavailable, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("%w: %v", rag.ErrStoreUnavailable, err)
	}

	logger.Info("connected to neo4j", zap.String("uri", config.URI), zap.String("database", config.Database))
	return &Neo4jStore{driver: driver, config: config, logger: logger}, nil
}

func (s *Neo4jStore) read(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	opts := []neo4j.ExecuteQueryConfigurationOption{neo4j.ExecuteQueryWithReadersRouting()}
	if s.config.Database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(s.config.Database))
	}
	result, err := neo4j.ExecuteQuery(ctx, s.driver, cypher, params, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return nil, err
	}
	return result.Records, nil
}

const (
	cypherVectorSearch = `
CALL db.index.vector.queryNodes($index, $k, $vector)
YIELD node, score
RETURN coalesce(node.id, elementId(node)) AS id, node.text AS text, score
ORDER BY score DESC`

	cypherScopedChunkSearch = `
MATCH (node:Chunk)-[:PART_OF]->(doc:Document)
WHERE trim(doc.name) = $document AND node.embedding IS NOT NULL
WITH node, vector.similarity.cosine(node.embedding, $vector) AS score
RETURN coalesce(node.id, elementId(node)) AS id, node.text AS text, score
ORDER BY score DESC
LIMIT $k`

	cypherChunkLinks = `
MATCH (node:Chunk) WHERE coalesce(node.id, elementId(node)) = $id
OPTIONAL MATCH (node)-[:NEXT]->(next:Chunk)
OPTIONAL MATCH (prev:Chunk)-[:NEXT]->(node)
OPTIONAL MATCH (node)-[:PART_OF]->(doc:Document)
RETURN
	coalesce(next.id, elementId(next)) AS nextId, next.text AS nextText,
	coalesce(prev.id, elementId(prev)) AS prevId, prev.text AS prevText,
	doc.name AS documentName, doc.related_sections AS relatedSections
LIMIT 1`

	cypherSectionLinks = `
MATCH (node:Section) WHERE coalesce(node.id, elementId(node)) = $id
OPTIONAL MATCH (node)-[:UNDER]->(law:Law)
RETURN law.law_name AS lawName
LIMIT 1`

	cypherSectionsByNumber = `
MATCH (s:Section {section: $number})
OPTIONAL MATCH (s)-[:UNDER]->(law:Law)
RETURN s.text AS sectionText, coalesce(s.id, elementId(s)) AS sectionId, law.law_name AS lawName`

	cypherDocumentNames = `
MATCH (doc:Document)
RETURN doc.name AS name
ORDER BY name`

	cypherDocument = `
MATCH (doc:Document) WHERE trim(doc.name) = $name
RETURN doc.name AS name, doc.related_sections AS relatedSections
LIMIT 1`
)

// Search runs a vector index query, or a cosine scan over one document's
// chunks when a scope is given.
func (s *Neo4jStore) Search(ctx context.Context, index rag.Index, vector []float32, topK int, opts *rag.SearchOptions) ([]rag.Hit, error) {
	if topK <= 0 {
		return nil, rag.ErrInvalidTopK
	}

	var indexName string
	switch index {
	case rag.IndexChunk:
		indexName = s.config.ChunkIndex
	case rag.IndexSection:
		indexName = s.config.SectionIndex
	default:
		return nil, fmt.Errorf("%w: %q", rag.ErrUnknownIndex, index)
	}

	params := map[string]any{
		"k":      int64(topK),
		"vector": toFloat64(vector),
	}
	cypher := cypherVectorSearch
	if opts != nil && opts.Document != "" {
		if index != rag.IndexChunk {
			return nil, rag.ErrScopeUnsupported
		}
		cypher = cypherScopedChunkSearch
		params["document"] = strings.TrimSpace(opts.Document)
	} else {
		params["index"] = indexName
	}

	records, err := s.read(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rag.ErrSearchFailed, err)
	}

	hits := make([]rag.Hit, 0, len(records))
	for _, rec := range records {
		hits = append(hits, rag.Hit{
			ID:    recordString(rec, "id"),
			Text:  recordString(rec, "text"),
			Score: recordFloat(rec, "score"),
			Index: index,
		})
	}
	return hits, nil
}

// Links resolves a node's neighbours with OPTIONAL MATCH, so missing
// relations come back as absent fields.
func (s *Neo4jStore) Links(ctx context.Context, index rag.Index, id string) (rag.Links, error) {
	var links rag.Links
	params := map[string]any{"id": id}

	switch index {
	case rag.IndexChunk:
		records, err := s.read(ctx, cypherChunkLinks, params)
		if err != nil {
			return links, err
		}
		if len(records) == 0 {
			return links, nil
		}
		rec := records[0]
		if nextID := recordString(rec, "nextId"); nextID != "" {
			links.Next = &rag.Chunk{ID: nextID, Text: recordString(rec, "nextText")}
		}
		if prevID := recordString(rec, "prevId"); prevID != "" {
			links.Previous = &rag.Chunk{ID: prevID, Text: recordString(rec, "prevText")}
		}
		if name := recordString(rec, "documentName"); name != "" {
			links.Document = &rag.Document{Name: name, RelatedSections: recordStrings(rec, "relatedSections")}
		}
	case rag.IndexSection:
		records, err := s.read(ctx, cypherSectionLinks, params)
		if err != nil {
			return links, err
		}
		if len(records) > 0 {
			links.Law = recordString(records[0], "lawName")
		}
	default:
		return links, fmt.Errorf("%w: %q", rag.ErrUnknownIndex, index)
	}
	return links, nil
}

// SectionsByNumber performs the exact lookup on the section property.
func (s *Neo4jStore) SectionsByNumber(ctx context.Context, number string) ([]rag.Section, error) {
	records, err := s.read(ctx, cypherSectionsByNumber, map[string]any{"number": number})
	if err != nil {
		return nil, fmt.Errorf("section lookup failed: %w", err)
	}
	sections := make([]rag.Section, 0, len(records))
	for _, rec := range records {
		sections = append(sections, rag.Section{
			ID:     recordString(rec, "sectionId"),
			Number: number,
			Text:   recordString(rec, "sectionText"),
			Law:    recordString(rec, "lawName"),
		})
	}
	return sections, nil
}

// DocumentNames lists all Document names.
func (s *Neo4jStore) DocumentNames(ctx context.Context) ([]string, error) {
	records, err := s.read(ctx, cypherDocumentNames, nil)
	if err != nil {
		return nil, fmt.Errorf("document list failed: %w", err)
	}
	names := make([]string, 0, len(records))
	for _, rec := range records {
		if name := recordString(rec, "name"); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// Document reads one Document's attributes.
func (s *Neo4jStore) Document(ctx context.Context, name string) (*rag.Document, error) {
	records, err := s.read(ctx, cypherDocument, map[string]any{"name": strings.TrimSpace(name)})
	if err != nil {
		return nil, fmt.Errorf("document lookup failed: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &rag.Document{
		Name:            recordString(records[0], "name"),
		RelatedSections: recordStrings(records[0], "relatedSections"),
	}, nil
}

// Close closes the driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func recordString(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func recordFloat(rec *neo4j.Record, key string) float32 {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return float32(t)
	case int64:
		return float32(t)
	default:
		return 0
	}
}

// recordStrings accepts both list and scalar properties.
func recordStrings(rec *neo4j.Record, key string) []string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if item != nil {
				out = append(out, fmt.Sprint(item))
			}
		}
		return out
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	default:
		return []string{fmt.Sprint(t)}
	}
}
