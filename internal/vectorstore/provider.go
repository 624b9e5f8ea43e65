package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/registry"
)

// Provider hands out per-client stores.
//
// The collection identifier is a deterministic function of the client id;
// requesting a store for a client with no prior data transparently
// initializes an empty collection.
type Provider interface {
	// GetClientStore returns the store for a client, creating its
	// collection on first use.
	GetClientStore(ctx context.Context, clientID string) (*ClientStore, error)

	// ListClients returns the sorted ids of clients with existing
	// collections.
	ListClients(ctx context.Context) ([]string, error)

	// Close closes all managed stores.
	Close() error
}

// collectionName derives the per-client collection name.
func collectionName(clientID string) string {
	return fmt.Sprintf("client_%s_docs", clientID)
}

// ChromemProvider manages one chromem database directory per client under
// a common base path.
type ChromemProvider struct {
	basePath string
	compress bool
	embedder Embedder
	logger   *zap.Logger

	mu     sync.RWMutex
	stores map[string]*ClientStore
}

// ChromemProviderConfig holds configuration for ChromemProvider.
type ChromemProviderConfig struct {
	// BasePath is the root directory; each client gets a subdirectory.
	BasePath string

	// Compress enables gzip compression for stored data.
	Compress bool
}

// NewChromemProvider creates a provider backed by chromem-go.
func NewChromemProvider(cfg ChromemProviderConfig, embedder Embedder, logger *zap.Logger) (*ChromemProvider, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("%w: base path required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(cfg.BasePath, 0o700); err != nil {
		return nil, fmt.Errorf("creating base directory: %w", err)
	}

	return &ChromemProvider{
		basePath: cfg.BasePath,
		compress: cfg.Compress,
		embedder: embedder,
		logger:   logger,
		stores:   make(map[string]*ClientStore),
	}, nil
}

// GetClientStore returns a cached store or opens the client's database.
func (p *ChromemProvider) GetClientStore(ctx context.Context, clientID string) (*ClientStore, error) {
	if err := ValidateClientID(clientID); err != nil {
		return nil, err
	}

	p.mu.RLock()
	if store, ok := p.stores[clientID]; ok {
		p.mu.RUnlock()
		return store, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if store, ok := p.stores[clientID]; ok {
		return store, nil
	}

	clientDir := filepath.Join(p.basePath, clientID)

	backend, err := NewChromemStore(ChromemConfig{
		Path:       clientDir,
		Compress:   p.compress,
		Collection: collectionName(clientID),
		ClientID:   clientID,
	}, p.embedder, p.logger)
	if err != nil {
		return nil, fmt.Errorf("creating store for client %s: %w", clientID, err)
	}

	index, err := registry.OpenDocumentIndex(clientDir, clientID)
	if err != nil {
		return nil, fmt.Errorf("opening document index for client %s: %w", clientID, err)
	}

	store := NewClientStore(clientID, backend, index, p.logger)
	p.stores[clientID] = store

	p.logger.Info("opened client store",
		zap.String("client_id", clientID),
		zap.String("path", clientDir),
	)

	return store, nil
}

// ListClients returns clients with a database directory under the base path.
func (p *ChromemProvider) ListClients(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(p.basePath)
	if err != nil {
		return nil, fmt.Errorf("reading base directory: %w", err)
	}

	clients := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() && ValidateClientID(entry.Name()) == nil {
			clients = append(clients, entry.Name())
		}
	}
	sort.Strings(clients)
	return clients, nil
}

// Close closes all managed stores.
func (p *ChromemProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for clientID, store := range p.stores {
		if err := store.Close(); err != nil {
			p.logger.Error("failed to close client store",
				zap.String("client_id", clientID),
				zap.Error(err),
			)
			lastErr = err
		}
	}
	p.stores = make(map[string]*ClientStore)
	return lastErr
}

var _ Provider = (*ChromemProvider)(nil)

// QdrantProvider manages one Qdrant collection per client on a shared
// server. Document indexes live under a local state directory.
type QdrantProvider struct {
	config     QdrantConfig
	statePath  string
	vectorSize uint64
	embedder   Embedder
	logger     *zap.Logger

	mu     sync.RWMutex
	stores map[string]*ClientStore
}

// QdrantProviderConfig holds configuration for QdrantProvider.
type QdrantProviderConfig struct {
	// Host, Port, UseTLS and APIKey configure the shared Qdrant server.
	Host   string
	Port   int
	UseTLS bool
	APIKey string

	// VectorSize is the embedding dimension for new collections.
	VectorSize uint64

	// StatePath is the local directory for per-client document indexes.
	StatePath string
}

// NewQdrantProvider creates a provider backed by a shared Qdrant server.
func NewQdrantProvider(cfg QdrantProviderConfig, embedder Embedder, logger *zap.Logger) (*QdrantProvider, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if cfg.StatePath == "" {
		return nil, fmt.Errorf("%w: state path required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(cfg.StatePath, 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	return &QdrantProvider{
		config: QdrantConfig{
			Host:       cfg.Host,
			Port:       cfg.Port,
			UseTLS:     cfg.UseTLS,
			APIKey:     cfg.APIKey,
			VectorSize: cfg.VectorSize,
		},
		statePath: cfg.StatePath,
		embedder:  embedder,
		logger:    logger,
		stores:    make(map[string]*ClientStore),
	}, nil
}

// GetClientStore returns a cached store or connects to the client's
// collection, creating it on first use.
func (p *QdrantProvider) GetClientStore(ctx context.Context, clientID string) (*ClientStore, error) {
	if err := ValidateClientID(clientID); err != nil {
		return nil, err
	}

	p.mu.RLock()
	if store, ok := p.stores[clientID]; ok {
		p.mu.RUnlock()
		return store, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if store, ok := p.stores[clientID]; ok {
		return store, nil
	}

	cfg := p.config
	cfg.Collection = collectionName(clientID)

	backend, err := NewQdrantStore(ctx, cfg, p.embedder, p.logger)
	if err != nil {
		return nil, fmt.Errorf("creating store for client %s: %w", clientID, err)
	}

	index, err := registry.OpenDocumentIndex(filepath.Join(p.statePath, clientID), clientID)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("opening document index for client %s: %w", clientID, err)
	}

	store := NewClientStore(clientID, backend, index, p.logger)
	p.stores[clientID] = store
	return store, nil
}

// ListClients returns clients with a local document index.
func (p *QdrantProvider) ListClients(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(p.statePath)
	if err != nil {
		return nil, fmt.Errorf("reading state directory: %w", err)
	}

	clients := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() && ValidateClientID(entry.Name()) == nil {
			clients = append(clients, entry.Name())
		}
	}
	sort.Strings(clients)
	return clients, nil
}

// Close closes all managed stores.
func (p *QdrantProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []string
	for clientID, store := range p.stores {
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", clientID, err))
		}
	}
	p.stores = make(map[string]*ClientStore)

	if len(errs) > 0 {
		return fmt.Errorf("closing stores: %s", strings.Join(errs, "; "))
	}
	return nil
}

var _ Provider = (*QdrantProvider)(nil)
