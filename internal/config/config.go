// Package config provides configuration loading for the auditor assistant.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned by Validate when a field is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root configuration.
type Config struct {
	LLM        LLMConfig        `koanf:"llm"`
	Embedding  EmbeddingConfig  `koanf:"embedding"`
	Store      StoreConfig      `koanf:"store"`
	Retrieval  RetrievalConfig  `koanf:"retrieval"`
	Extraction ExtractionConfig `koanf:"extraction"`
	Server     ServerConfig     `koanf:"server"`
	Log        LogConfig        `koanf:"log"`
}

// LLMConfig selects the completion provider.
type LLMConfig struct {
	Provider    string  `koanf:"provider"` // gemini | openai
	Model       string  `koanf:"model"`
	APIKey      string  `koanf:"api_key"`
	Temperature float32 `koanf:"temperature"`
	MaxTokens   int     `koanf:"max_tokens"`
	// RequestsPerMinute throttles outbound completion calls (0 = unlimited).
	RequestsPerMinute int `koanf:"requests_per_minute"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider  string `koanf:"provider"` // openai | gemini
	Model     string `koanf:"model"`
	APIKey    string `koanf:"api_key"`
	Dimension int    `koanf:"dimension"`
}

// StoreConfig selects and configures the knowledge graph backend.
type StoreConfig struct {
	Backend string `koanf:"backend"` // neo4j | milvus | memory

	Neo4jURI      string `koanf:"neo4j_uri"`
	Neo4jUser     string `koanf:"neo4j_user"`
	Neo4jPassword string `koanf:"neo4j_password"`
	Neo4jDatabase string `koanf:"neo4j_database"`

	MilvusAddress           string `koanf:"milvus_address"`
	MilvusChunkCollection   string `koanf:"milvus_chunk_collection"`
	MilvusSectionCollection string `koanf:"milvus_section_collection"`

	// MemoryFixture is a YAML or JSON file loaded by the embedded backend.
	MemoryFixture string `koanf:"memory_fixture"`
}

// RetrievalConfig holds index names and result sizes.
type RetrievalConfig struct {
	ChunkIndex       string `koanf:"chunk_index"`
	SectionIndex     string `koanf:"section_index"`
	AnnouncementTopN int    `koanf:"announcement_top_n"`
	LawTopN          int    `koanf:"law_top_n"`
	EvidenceTopN     int    `koanf:"evidence_top_n"`
}

// ExtractionConfig configures the document text extraction service.
type ExtractionConfig struct {
	Provider     string        `koanf:"provider"` // azure | local
	Endpoint     string        `koanf:"endpoint"`
	Key          string        `koanf:"key"`
	APIVersion   string        `koanf:"api_version"`
	PollInterval time.Duration `koanf:"poll_interval"`
	MinWords     int           `koanf:"min_words"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr     string `koanf:"addr"`
	RedisURL string `koanf:"redis_url"`
	// MaxUploadBytes caps the size of an uploaded minutes file.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json | console
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:          "gemini",
			Model:             "gemini-1.5-pro-latest",
			MaxTokens:         2048,
			RequestsPerMinute: 60,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-ada-002",
			Dimension: 1536,
		},
		Store: StoreConfig{
			Backend:                 "neo4j",
			Neo4jURI:                "neo4j://localhost:7687",
			Neo4jUser:               "neo4j",
			Neo4jDatabase:           "neo4j",
			MilvusAddress:           "localhost:19530",
			MilvusChunkCollection:   "auditor_chunks",
			MilvusSectionCollection: "auditor_sections",
		},
		Retrieval: RetrievalConfig{
			ChunkIndex:       "chunk_embedding_index",
			SectionIndex:     "section_embedding_index",
			AnnouncementTopN: 10,
			LawTopN:          5,
			EvidenceTopN:     5,
		},
		Extraction: ExtractionConfig{
			Provider:     "azure",
			APIVersion:   "2023-07-31",
			PollInterval: time.Second,
			MinWords:     10,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			MaxUploadBytes: 32 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks the configuration for values the components cannot use.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("%w: llm.provider must be gemini or openai, got %q", ErrInvalidConfig, c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("%w: llm.model is required", ErrInvalidConfig)
	}
	if c.LLM.RequestsPerMinute < 0 {
		return fmt.Errorf("%w: llm.requests_per_minute must be >= 0", ErrInvalidConfig)
	}

	switch c.Embedding.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("%w: embedding.provider must be openai or gemini, got %q", ErrInvalidConfig, c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("%w: embedding.dimension must be positive", ErrInvalidConfig)
	}

	switch c.Store.Backend {
	case "neo4j":
		if c.Store.Neo4jURI == "" {
			return fmt.Errorf("%w: store.neo4j_uri is required for the neo4j backend", ErrInvalidConfig)
		}
	case "milvus":
		if c.Store.MilvusAddress == "" {
			return fmt.Errorf("%w: store.milvus_address is required for the milvus backend", ErrInvalidConfig)
		}
	case "memory":
		if c.Store.MemoryFixture == "" {
			return fmt.Errorf("%w: store.memory_fixture is required for the memory backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: store.backend must be neo4j, milvus or memory, got %q", ErrInvalidConfig, c.Store.Backend)
	}

	r := c.Retrieval
	if r.AnnouncementTopN <= 0 || r.LawTopN <= 0 || r.EvidenceTopN <= 0 {
		return fmt.Errorf("%w: retrieval top_n values must be positive", ErrInvalidConfig)
	}
	if r.ChunkIndex == "" || r.SectionIndex == "" {
		return fmt.Errorf("%w: retrieval index names are required", ErrInvalidConfig)
	}

	switch c.Extraction.Provider {
	case "azure", "local":
	default:
		return fmt.Errorf("%w: extraction.provider must be azure or local, got %q", ErrInvalidConfig, c.Extraction.Provider)
	}
	if c.Extraction.MinWords < 0 {
		return fmt.Errorf("%w: extraction.min_words must be >= 0", ErrInvalidConfig)
	}

	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("%w: log.format must be json or console, got %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}
