package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/Yates-Labs/auditor/internal/rag"
)

// Common errors for Milvus operations
var (
	ErrInvalidDimension = errors.New("invalid vector dimension")
	ErrConnectionFailed = errors.New("failed to connect to Milvus")
	ErrInsertFailed     = errors.New("failed to insert records")
)

// relatedSep joins a document's related sections inside one VarChar field.
const relatedSep = "\x1f"

// MilvusConfig holds configuration for the Milvus connection and collections.
type MilvusConfig struct {
	Address           string // Milvus server address (e.g., "localhost:19530")
	ChunkCollection   string
	SectionCollection string
	Dimension         int // Vector dimension (1536 for text-embedding-ada-002)

	// HNSW index parameters
	M              int // HNSW M parameter (default: 16)
	EfConstruction int // HNSW efConstruction (default: 256)
	Ef             int // search-time ef (default: 64)
}

// DefaultMilvusConfig returns defaults for a local Milvus.
func DefaultMilvusConfig() MilvusConfig {
	return MilvusConfig{
		Address:           "localhost:19530",
		ChunkCollection:   "auditor_chunks",
		SectionCollection: "auditor_sections",
		Dimension:         1536,
		M:                 16,
		EfConstruction:    256,
		Ef:                64,
	}
}

// MilvusStore implements rag.GraphStore on two Milvus collections. Graph
// relations are denormalized into scalar fields: chunks carry their document
// name, related sections and neighbour ids; sections carry their law name.
type MilvusStore struct {
	client client.Client
	config MilvusConfig
	logger *zap.Logger
}

// NewMilvusStore connects to Milvus and ensures both collections exist.
func NewMilvusStore(ctx context.Context, config MilvusConfig, logger *zap.Logger) (*MilvusStore, error) {
	if config.Dimension <= 0 {
		return nil, ErrInvalidDimension
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c, err := client.NewGrpcClient(ctx, config.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", rag.ErrStoreUnavailable, ErrConnectionFailed, err)
	}

	store := &MilvusStore{
		client: c,
		config: config,
		logger: logger,
	}

	if err := store.ensureCollection(ctx, store.config.ChunkCollection, store.chunkSchema()); err != nil {
		c.Close()
		return nil, err
	}
	if err := store.ensureCollection(ctx, store.config.SectionCollection, store.sectionSchema()); err != nil {
		c.Close()
		return nil, err
	}

	return store, nil
}

func varchar(name string, maxLen int) *entity.Field {
	return &entity.Field{
		Name:       name,
		DataType:   entity.FieldTypeVarChar,
		TypeParams: map[string]string{"max_length": fmt.Sprintf("%d", maxLen)},
	}
}

func (m *MilvusStore) vectorField() *entity.Field {
	return &entity.Field{
		Name:       "embedding",
		DataType:   entity.FieldTypeFloatVector,
		TypeParams: map[string]string{"dim": fmt.Sprintf("%d", m.config.Dimension)},
	}
}

func primaryKey() *entity.Field {
	f := varchar("id", 256)
	f.PrimaryKey = true
	return f
}

func (m *MilvusStore) chunkSchema() *entity.Schema {
	return &entity.Schema{
		CollectionName: m.config.ChunkCollection,
		Fields: []*entity.Field{
			primaryKey(),
			varchar("text", 65535),
			varchar("document", 1024),
			varchar("related_sections", 8192),
			varchar("next_id", 256),
			varchar("prev_id", 256),
			m.vectorField(),
		},
	}
}

func (m *MilvusStore) sectionSchema() *entity.Schema {
	return &entity.Schema{
		CollectionName: m.config.SectionCollection,
		Fields: []*entity.Field{
			primaryKey(),
			varchar("number", 64),
			varchar("text", 65535),
			varchar("law", 1024),
			m.vectorField(),
		},
	}
}

// ensureCollection creates the collection with schema and index if it doesn't exist
func (m *MilvusStore) ensureCollection(ctx context.Context, name string, schema *entity.Schema) error {
	has, err := m.client.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if !has {
		if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}

		idx, err := entity.NewIndexHNSW(entity.COSINE, m.config.M, m.config.EfConstruction)
		if err != nil {
			return fmt.Errorf("failed to create index config: %w", err)
		}
		if err := m.client.CreateIndex(ctx, name, "embedding", idx, false); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
		m.logger.Info("created milvus collection", zap.String("collection", name))
	}

	if err := m.client.LoadCollection(ctx, name, false); err != nil {
		return fmt.Errorf("failed to load collection %s: %w", name, err)
	}
	return nil
}

// Seed inserts a fixture into both collections and flushes them.
func (m *MilvusStore) Seed(ctx context.Context, fx *Fixture) error {
	if err := fx.Validate(); err != nil {
		return err
	}
	if dim, _ := fx.Dimension(); dim != 0 && dim != m.config.Dimension {
		return fmt.Errorf("%w: fixture has %d, collection has %d", ErrInvalidDimension, dim, m.config.Dimension)
	}

	if len(fx.Chunks) > 0 {
		prev := fx.previous()
		n := len(fx.Chunks)
		ids, texts, docs, related, nexts, prevs := make([]string, n), make([]string, n), make([]string, n), make([]string, n), make([]string, n), make([]string, n)
		vectors := make([][]float32, n)
		for i, c := range fx.Chunks {
			ids[i] = c.ID
			texts[i] = c.Text
			docs[i] = strings.TrimSpace(c.Document)
			if d := fx.document(c.Document); d != nil {
				related[i] = strings.Join(d.RelatedSections, relatedSep)
			}
			nexts[i] = c.Next
			prevs[i] = prev[c.ID]
			vectors[i] = c.Embedding
		}
		columns := []entity.Column{
			entity.NewColumnVarChar("id", ids),
			entity.NewColumnVarChar("text", texts),
			entity.NewColumnVarChar("document", docs),
			entity.NewColumnVarChar("related_sections", related),
			entity.NewColumnVarChar("next_id", nexts),
			entity.NewColumnVarChar("prev_id", prevs),
			entity.NewColumnFloatVector("embedding", m.config.Dimension, vectors),
		}
		if _, err := m.client.Insert(ctx, m.config.ChunkCollection, "", columns...); err != nil {
			return fmt.Errorf("%w: %v", ErrInsertFailed, err)
		}
		if err := m.client.Flush(ctx, m.config.ChunkCollection, false); err != nil {
			return fmt.Errorf("failed to flush data: %w", err)
		}
	}

	if len(fx.Sections) > 0 {
		n := len(fx.Sections)
		ids, numbers, texts, laws := make([]string, n), make([]string, n), make([]string, n), make([]string, n)
		vectors := make([][]float32, n)
		for i, s := range fx.Sections {
			ids[i] = s.ID
			numbers[i] = s.Number
			texts[i] = s.Text
			laws[i] = s.Law
			vectors[i] = s.Embedding
		}
		columns := []entity.Column{
			entity.NewColumnVarChar("id", ids),
			entity.NewColumnVarChar("number", numbers),
			entity.NewColumnVarChar("text", texts),
			entity.NewColumnVarChar("law", laws),
			entity.NewColumnFloatVector("embedding", m.config.Dimension, vectors),
		}
		if _, err := m.client.Insert(ctx, m.config.SectionCollection, "", columns...); err != nil {
			return fmt.Errorf("%w: %v", ErrInsertFailed, err)
		}
		if err := m.client.Flush(ctx, m.config.SectionCollection, false); err != nil {
			return fmt.Errorf("failed to flush data: %w", err)
		}
	}

	m.logger.Info("seeded milvus", zap.Int("chunks", len(fx.Chunks)), zap.Int("sections", len(fx.Sections)))
	return nil
}

// Search performs top-K similarity search with an optional document filter.
func (m *MilvusStore) Search(ctx context.Context, index rag.Index, vector []float32, topK int, opts *rag.SearchOptions) ([]rag.Hit, error) {
	if topK <= 0 {
		return nil, rag.ErrInvalidTopK
	}
	if len(vector) != m.config.Dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, m.config.Dimension, len(vector))
	}

	collection, expr, err := m.searchTarget(index, opts)
	if err != nil {
		return nil, err
	}

	sp, err := entity.NewIndexHNSWSearchParam(m.config.Ef)
	if err != nil {
		return nil, fmt.Errorf("failed to create search params: %w", err)
	}

	results, err := m.client.Search(
		ctx,
		collection,
		nil, // partition names
		expr,
		[]string{"id", "text"},
		[]entity.Vector{entity.FloatVector(vector)},
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rag.ErrSearchFailed, err)
	}

	if len(results) == 0 {
		return []rag.Hit{}, nil
	}

	res := results[0]
	hits := make([]rag.Hit, res.ResultCount)
	for i := range hits {
		hits[i].Score = res.Scores[i]
		hits[i].Index = index
	}
	for _, field := range res.Fields {
		col, ok := field.(*entity.ColumnVarChar)
		if !ok {
			continue
		}
		data := col.Data()
		for i := range hits {
			switch field.Name() {
			case "id":
				hits[i].ID = data[i]
			case "text":
				hits[i].Text = data[i]
			}
		}
	}
	return hits, nil
}

func (m *MilvusStore) searchTarget(index rag.Index, opts *rag.SearchOptions) (string, string, error) {
	scoped := opts != nil && opts.Document != ""
	switch index {
	case rag.IndexChunk:
		if scoped {
			return m.config.ChunkCollection, fmt.Sprintf(`document == "%s"`, escapeExpr(strings.TrimSpace(opts.Document))), nil
		}
		return m.config.ChunkCollection, "", nil
	case rag.IndexSection:
		if scoped {
			return "", "", rag.ErrScopeUnsupported
		}
		return m.config.SectionCollection, "", nil
	default:
		return "", "", fmt.Errorf("%w: %q", rag.ErrUnknownIndex, index)
	}
}

// Links reads the denormalized relation fields of one node.
func (m *MilvusStore) Links(ctx context.Context, index rag.Index, id string) (rag.Links, error) {
	var links rag.Links
	expr := fmt.Sprintf(`id == "%s"`, escapeExpr(id))

	switch index {
	case rag.IndexChunk:
		rows, err := m.queryRows(ctx, m.config.ChunkCollection, expr, []string{"document", "related_sections", "next_id", "prev_id"})
		if err != nil || len(rows) == 0 {
			return links, err
		}
		row := rows[0]
		if row["document"] != "" {
			links.Document = &rag.Document{Name: row["document"], RelatedSections: splitRelated(row["related_sections"])}
		}

		neighbours := []string{}
		for _, nid := range []string{row["next_id"], row["prev_id"]} {
			if nid != "" {
				neighbours = append(neighbours, fmt.Sprintf(`"%s"`, escapeExpr(nid)))
			}
		}
		if len(neighbours) == 0 {
			return links, nil
		}
		texts, err := m.queryRows(ctx, m.config.ChunkCollection, fmt.Sprintf("id in [%s]", strings.Join(neighbours, ", ")), []string{"id", "text"})
		if err != nil {
			return links, err
		}
		for _, t := range texts {
			switch t["id"] {
			case row["next_id"]:
				links.Next = &rag.Chunk{ID: t["id"], Text: t["text"]}
			case row["prev_id"]:
				links.Previous = &rag.Chunk{ID: t["id"], Text: t["text"]}
			}
		}
	case rag.IndexSection:
		rows, err := m.queryRows(ctx, m.config.SectionCollection, expr, []string{"law"})
		if err != nil || len(rows) == 0 {
			return links, err
		}
		links.Law = rows[0]["law"]
	default:
		return links, fmt.Errorf("%w: %q", rag.ErrUnknownIndex, index)
	}
	return links, nil
}

// SectionsByNumber queries sections by their exact number.
func (m *MilvusStore) SectionsByNumber(ctx context.Context, number string) ([]rag.Section, error) {
	rows, err := m.queryRows(ctx, m.config.SectionCollection,
		fmt.Sprintf(`number == "%s"`, escapeExpr(number)), []string{"id", "number", "text", "law"})
	if err != nil {
		return nil, fmt.Errorf("section lookup failed: %w", err)
	}
	sections := make([]rag.Section, 0, len(rows))
	for _, row := range rows {
		sections = append(sections, rag.Section{ID: row["id"], Number: row["number"], Text: row["text"], Law: row["law"]})
	}
	return sections, nil
}

// DocumentNames returns the distinct document names referenced by chunks.
func (m *MilvusStore) DocumentNames(ctx context.Context) ([]string, error) {
	rows, err := m.queryRows(ctx, m.config.ChunkCollection, `document != ""`, []string{"document"})
	if err != nil {
		return nil, fmt.Errorf("document list failed: %w", err)
	}
	seen := make(map[string]bool)
	names := []string{}
	for _, row := range rows {
		if name := row["document"]; !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names, nil
}

// Document rebuilds a document from any of its chunks.
func (m *MilvusStore) Document(ctx context.Context, name string) (*rag.Document, error) {
	name = strings.TrimSpace(name)
	rows, err := m.queryRows(ctx, m.config.ChunkCollection,
		fmt.Sprintf(`document == "%s"`, escapeExpr(name)), []string{"document", "related_sections"})
	if err != nil {
		return nil, fmt.Errorf("document lookup failed: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rag.Document{Name: rows[0]["document"], RelatedSections: splitRelated(rows[0]["related_sections"])}, nil
}

// queryRows runs a scalar query and pivots VarChar columns into rows.
func (m *MilvusStore) queryRows(ctx context.Context, collection, expr string, fields []string) ([]map[string]string, error) {
	results, err := m.client.Query(ctx, collection, nil, expr, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	return pivotColumns(results), nil
}

func pivotColumns(columns []entity.Column) []map[string]string {
	var rows []map[string]string
	for _, column := range columns {
		col, ok := column.(*entity.ColumnVarChar)
		if !ok {
			continue
		}
		data := col.Data()
		for len(rows) < len(data) {
			rows = append(rows, map[string]string{})
		}
		for i, v := range data {
			rows[i][col.Name()] = v
		}
	}
	return rows
}

func splitRelated(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, relatedSep)
}

func escapeExpr(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// Close releases resources and closes the Milvus connection
func (m *MilvusStore) Close(ctx context.Context) error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}
