// Package store provides the knowledge graph backends behind rag.GraphStore:
// Neo4j (the production graph), Milvus and an embedded chromem-go store
// seeded from a fixture file.
package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Yates-Labs/auditor/internal/config"
	"github.com/Yates-Labs/auditor/internal/rag"
)

var (
	_ rag.GraphStore = (*Neo4jStore)(nil)
	_ rag.GraphStore = (*MilvusStore)(nil)
	_ rag.GraphStore = (*MemoryStore)(nil)
)

// Open connects to the backend selected in cfg.Store.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (rag.GraphStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("backend", cfg.Store.Backend))

	switch cfg.Store.Backend {
	case "neo4j":
		return NewNeo4jStore(ctx, Neo4jConfig{
			URI:          cfg.Store.Neo4jURI,
			User:         cfg.Store.Neo4jUser,
			Password:     cfg.Store.Neo4jPassword,
			Database:     cfg.Store.Neo4jDatabase,
			ChunkIndex:   cfg.Retrieval.ChunkIndex,
			SectionIndex: cfg.Retrieval.SectionIndex,
		}, logger)
	case "milvus":
		mc := DefaultMilvusConfig()
		mc.Address = cfg.Store.MilvusAddress
		mc.ChunkCollection = cfg.Store.MilvusChunkCollection
		mc.SectionCollection = cfg.Store.MilvusSectionCollection
		mc.Dimension = cfg.Embedding.Dimension
		return NewMilvusStore(ctx, mc, logger)
	case "memory":
		fx, err := LoadFixture(cfg.Store.MemoryFixture)
		if err != nil {
			return nil, err
		}
		return NewMemoryStore(ctx, fx, logger)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", rag.ErrStoreUnavailable, cfg.Store.Backend)
	}
}
