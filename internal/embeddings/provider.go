// Package embeddings provides embedding generation via multiple providers.
//
// Two providers are supported: FastEmbed (local ONNX models, no external
// service) and TEI (any OpenAI-compatible embedding endpoint, including
// Text Embeddings Inference and the OpenAI API itself).
package embeddings

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Provider generates vector embeddings from text.
//
// Embeddings are dense numerical representations that capture semantic
// meaning, enabling similarity search. The vector store treats Dimension
// as an opaque constant fixed at provider initialization.
type Provider interface {
	vectorstore.Embedder

	// Dimension returns the embedding dimension for the current model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}

// Config holds configuration for creating an embedding provider.
type Config struct {
	// Provider is the provider type: "fastembed" (default) or "tei".
	Provider string `koanf:"provider"`

	// Model is the embedding model name.
	Model string `koanf:"model"`

	// BaseURL is the embedding API URL (TEI provider only).
	BaseURL string `koanf:"base_url"`

	// APIKey is the API key (required for OpenAI, optional for TEI).
	APIKey string `koanf:"api_key"`

	// CacheDir is the model cache directory (FastEmbed provider only).
	CacheDir string `koanf:"cache_dir"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = "fastembed"
	}
	if c.Model == "" {
		c.Model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8080/v1"
	}
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg Config) (Provider, error) {
	cfg.ApplyDefaults()

	switch cfg.Provider {
	case "fastembed":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case "tei":
		return NewService(ServiceConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// detectDimension returns the embedding dimension for a model name,
// falling back to 384 for small models.
func detectDimension(model string) int {
	if dim, ok := fastEmbedDimension(model); ok {
		return dim
	}
	switch {
	case strings.Contains(model, "large"):
		return 1024
	case strings.Contains(model, "base"):
		return 768
	default:
		return 384
	}
}
