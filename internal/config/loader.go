package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables mapped onto the config.
const EnvPrefix = "AUDITOR_"

const maxConfigFileSize = 1024 * 1024

// Load reads configuration from an optional YAML file, then environment variables.
//
// Precedence (highest to lowest):
//  1. AUDITOR_* environment variables (AUDITOR_LLM_API_KEY -> llm.api_key)
//  2. the YAML file at path, when path is not empty
//  3. Default()
//
// Provider variables that other tools already use (GEMINI_API_KEY,
// OPENAI_API_KEY, NEO4J_URI, ...) fill fields that are still empty afterwards.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyProviderEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envKey maps AUDITOR_SECTION_FIELD_NAME to section.field_name.
// Only the first underscore after the prefix separates the section.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

func applyProviderEnv(cfg *Config) {
	fill := func(dst *string, keys ...string) {
		if *dst != "" {
			return
		}
		for _, key := range keys {
			if v := os.Getenv(key); v != "" {
				*dst = v
				return
			}
		}
	}

	switch cfg.LLM.Provider {
	case "gemini":
		fill(&cfg.LLM.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	case "openai":
		fill(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	}
	switch cfg.Embedding.Provider {
	case "openai":
		fill(&cfg.Embedding.APIKey, "OPENAI_API_KEY")
	case "gemini":
		fill(&cfg.Embedding.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	}

	fill(&cfg.Store.Neo4jPassword, "NEO4J_PASSWORD")
	fill(&cfg.Extraction.Endpoint, "AZURE_DI_ENDPOINT")
	fill(&cfg.Extraction.Key, "AZURE_DI_KEY")

	// Address-like fields carry defaults, so the provider variable wins over them.
	if v := os.Getenv("NEO4J_URI"); v != "" && os.Getenv(EnvPrefix+"STORE_NEO4J_URI") == "" {
		cfg.Store.Neo4jURI = v
	}
	if v := os.Getenv("NEO4J_USER"); v != "" && os.Getenv(EnvPrefix+"STORE_NEO4J_USER") == "" {
		cfg.Store.Neo4jUser = v
	}
	if v := os.Getenv("MILVUS_ADDRESS"); v != "" && os.Getenv(EnvPrefix+"STORE_MILVUS_ADDRESS") == "" {
		cfg.Store.MilvusAddress = v
	}
}
