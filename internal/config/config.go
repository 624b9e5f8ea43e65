// Package config provides configuration loading for ragd.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_PORT, GENERATION_MODEL, ...)
//  2. YAML config file
//  3. Hardcoded defaults
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/generation"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/server"
	"github.com/fyrsmithlabs/ragd/internal/telemetry"
)

// Config holds the complete ragd configuration.
type Config struct {
	Server      server.Config     `koanf:"server"`
	Logging     logging.Config    `koanf:"logging"`
	Embedding   embeddings.Config `koanf:"embedding"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Generation  generation.Config `koanf:"generation"`
	Chunking    ChunkingConfig    `koanf:"chunking"`
	Ingest      IngestConfig      `koanf:"ingest"`
	Telemetry   telemetry.Config  `koanf:"telemetry"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	// Backend is "chromem" (default, embedded) or "qdrant".
	Backend string `koanf:"backend"`

	// Path is the data directory for the chromem backend and the document
	// index for the qdrant backend.
	Path string `koanf:"path"`

	// Compress enables gzip compression for chromem storage.
	Compress bool `koanf:"compress"`

	Qdrant QdrantConfig `koanf:"qdrant"`
}

// QdrantConfig holds connection settings for the qdrant backend.
type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	UseTLS bool   `koanf:"use_tls"`
	APIKey string `koanf:"api_key"`
}

// ChunkingConfig controls document chunking.
type ChunkingConfig struct {
	Size    int `koanf:"size"`
	Overlap int `koanf:"overlap"`
}

// IngestConfig controls the optional corpus watcher.
type IngestConfig struct {
	WatchDir    string `koanf:"watch_dir"`
	WatchClient string `koanf:"watch_client"`
}

// ApplyDefaults sets default values for all unset fields.
func (c *Config) ApplyDefaults() {
	c.Server.ApplyDefaults()
	c.Logging.ApplyDefaults()
	c.Embedding.ApplyDefaults()
	c.Generation.ApplyDefaults()
	c.Telemetry.ApplyDefaults()

	if c.VectorStore.Backend == "" {
		c.VectorStore.Backend = "chromem"
	}
	if c.VectorStore.Path == "" {
		c.VectorStore.Path = "./data"
	}
	if c.VectorStore.Qdrant.Host == "" {
		c.VectorStore.Qdrant.Host = "localhost"
	}
	if c.VectorStore.Qdrant.Port == 0 {
		c.VectorStore.Qdrant.Port = 6334
	}
	if c.Chunking.Size == 0 {
		c.Chunking.Size = 200
	}
	if c.Chunking.Overlap == 0 {
		c.Chunking.Overlap = 50
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Generation.Validate(); err != nil {
		return fmt.Errorf("generation: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	switch c.VectorStore.Backend {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("vectorstore: unknown backend %q", c.VectorStore.Backend)
	}

	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking: size must be positive")
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking: overlap must be non-negative and smaller than size")
	}
	if c.Ingest.WatchDir != "" && c.Ingest.WatchClient == "" {
		return fmt.Errorf("ingest: watch_client is required when watch_dir is set")
	}

	return nil
}

// Load reads configuration from the YAML file at path (if it exists), then
// overrides with environment variables. SERVER_PORT maps to server.port,
// GENERATION_MODEL to generation.model, and so on: the first underscore
// separates the section from the field.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		} else if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
