package generation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// warmUpTimeout bounds the optional warm-up generation.
const warmUpTimeout = 120 * time.Second

// Manager lazily initializes a shared Generator on first use. A failed
// initialization is retried on the next call instead of being cached, so a
// model server that comes up late does not wedge the process.
type Manager struct {
	cfg    Config
	logger *zap.Logger

	newGenerator func(Config) (Generator, error)

	mu  sync.Mutex
	gen Generator
}

// NewManager creates a manager for the given configuration. The underlying
// generator is not created until Generator is first called.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &Manager{
		cfg:          cfg,
		logger:       logger,
		newGenerator: New,
	}
}

// Generator returns the shared generator, initializing it on first call.
func (m *Manager) Generator(ctx context.Context) (Generator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != nil {
		return m.gen, nil
	}

	m.logger.Info("initializing generation backend",
		zap.String("backend", m.cfg.Backend),
		zap.String("model", m.cfg.Model))

	gen, err := m.newGenerator(m.cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing generator: %w", err)
	}

	if m.cfg.WarmUp {
		if err := m.warmUp(ctx, gen); err != nil {
			// The backend is reachable but slow or cold. Keep the
			// generator; real queries carry their own deadlines.
			m.logger.Warn("generation warm-up failed", zap.Error(err))
		}
	}

	m.gen = gen
	return m.gen, nil
}

// warmUp issues a minimal generation so the model is loaded before the
// first real query.
func (m *Manager) warmUp(ctx context.Context, gen Generator) error {
	ctx, cancel := context.WithTimeout(ctx, warmUpTimeout)
	defer cancel()

	start := time.Now()
	opts := DefaultOptions()
	opts.MaxTokens = 1
	if _, err := gen.Generate(ctx, "OK", opts); err != nil {
		return err
	}
	m.logger.Info("generation backend warmed up", zap.Duration("duration", time.Since(start)))
	return nil
}

// ModelInfo describes the configured model without forcing initialization.
func (m *Manager) ModelInfo() Info {
	return Info{Backend: m.cfg.Backend, Model: m.cfg.Model}
}

// Close releases the generator, if one was created.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen = nil
	return nil
}
