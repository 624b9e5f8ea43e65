// Package generation provides grounded answer generation through a local
// or remote LLM.
//
// The model endpoint is expensive to warm up and is shared by every client
// and request, so access goes through a Manager that guards one-time
// initialization.
package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrGenerationFailed indicates the model failed to produce text.
	ErrGenerationFailed = errors.New("text generation failed")
)

// Options control sampling for a single generation call.
type Options struct {
	MaxTokens     int
	Temperature   float64
	TopK          int
	TopP          float64
	RepeatPenalty float64
}

// DefaultOptions returns the sampling defaults used for grounded answers.
func DefaultOptions() Options {
	return Options{
		MaxTokens:     256,
		Temperature:   0.7,
		TopK:          40,
		TopP:          0.9,
		RepeatPenalty: 1.1,
	}
}

// Info describes the configured model.
type Info struct {
	Backend string `json:"backend"`
	Model   string `json:"model"`
}

// Generator produces free text from a prompt. Implementations are safe for
// concurrent use after construction.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
	ModelInfo() Info
}

// Config holds configuration for the generation backend.
type Config struct {
	// Backend is "ollama" (default) or "openai".
	Backend string `koanf:"backend"`

	// Model is the model name, e.g. "llama3.2" or "gpt-4o-mini".
	Model string `koanf:"model"`

	// ServerURL is the model server URL (ollama backend).
	ServerURL string `koanf:"server_url"`

	// BaseURL is the API base URL (openai backend).
	BaseURL string `koanf:"base_url"`

	// APIKey authenticates against the openai backend.
	APIKey string `koanf:"api_key"`

	// WarmUp runs a tiny generation after connect so the first real query
	// does not pay the model load cost.
	WarmUp bool `koanf:"warm_up"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = "ollama"
	}
	if c.Model == "" {
		c.Model = "llama3.2"
	}
	if c.ServerURL == "" {
		c.ServerURL = "http://localhost:11434"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Backend {
	case "ollama", "openai":
		return nil
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
}

// llmGenerator wraps a langchaingo model.
type llmGenerator struct {
	llm  llms.Model
	info Info
}

// New creates a generator for the configured backend.
func New(cfg Config) (Generator, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		llm llms.Model
		err error
	)
	switch cfg.Backend {
	case "ollama":
		llm, err = ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.ServerURL),
		)
	case "openai":
		opts := []openai.Option{openai.WithModel(cfg.Model), openai.WithToken(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s client: %w", cfg.Backend, err)
	}

	return &llmGenerator{
		llm:  llm,
		info: Info{Backend: cfg.Backend, Model: cfg.Model},
	}, nil
}

// Generate produces text for the prompt with the given sampling options.
func (g *llmGenerator) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt,
		llms.WithMaxTokens(opts.MaxTokens),
		llms.WithTemperature(opts.Temperature),
		llms.WithTopK(opts.TopK),
		llms.WithTopP(opts.TopP),
		llms.WithRepetitionPenalty(opts.RepeatPenalty),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	return out, nil
}

// ModelInfo describes the configured model.
func (g *llmGenerator) ModelInfo() Info {
	return g.info
}
