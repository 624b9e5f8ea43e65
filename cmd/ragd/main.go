// Ragd is a multi-tenant retrieval-augmented generation daemon.
//
// It serves an HTTP API for ingesting client documents and answering
// questions grounded in them. Each client's documents live in an isolated
// per-client collection.
//
// Usage:
//
//	# Start with defaults (embedded chromem store, ollama generation)
//	ragd
//
//	# Configure via file and environment
//	ragd -config config.yaml
//	SERVER_PORT=9100 GENERATION_MODEL=llama3.1 ragd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/generation"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/orchestrator"
	"github.com/fyrsmithlabs/ragd/internal/server"
	"github.com/fyrsmithlabs/ragd/internal/telemetry"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ragd\nVersion:    %s\nCommit:     %s\nBuild Date: %s\n", version, gitCommit, buildDate)
		os.Exit(0)
	}

	// Best-effort .env loading for local development.
	_ = godotenv.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// run initializes all dependencies and blocks until the context is
// cancelled, then shuts the server down gracefully.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("starting ragd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("vectorstore", cfg.VectorStore.Backend),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("generation_backend", cfg.Generation.Backend))

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	embedder, err := embeddings.NewProvider(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("initializing embedding provider: %w", err)
	}
	defer func() {
		_ = embedder.Close()
	}()

	provider, err := newStoreProvider(cfg, embedder, logger)
	if err != nil {
		return fmt.Errorf("initializing vector store: %w", err)
	}
	defer func() {
		_ = provider.Close()
	}()

	chunks := chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap)
	ingester := ingest.NewService(provider, chunks, logger)

	manager := generation.NewManager(cfg.Generation, logger)
	defer func() {
		_ = manager.Close()
	}()

	orch := orchestrator.New(provider, manager, logger)

	srv, err := server.New(provider, ingester, orch, manager, logger, cfg.Server)
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	if cfg.Ingest.WatchDir != "" {
		watcher, err := ingest.NewWatcher(ingester, cfg.Ingest.WatchClient, cfg.Ingest.WatchDir, logger)
		if err != nil {
			return fmt.Errorf("initializing corpus watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("starting corpus watcher: %w", err)
		}
		defer watcher.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newStoreProvider builds the configured vector store backend.
func newStoreProvider(cfg *config.Config, embedder embeddings.Provider, logger *zap.Logger) (vectorstore.Provider, error) {
	switch cfg.VectorStore.Backend {
	case "qdrant":
		return vectorstore.NewQdrantProvider(vectorstore.QdrantProviderConfig{
			Host:       cfg.VectorStore.Qdrant.Host,
			Port:       cfg.VectorStore.Qdrant.Port,
			UseTLS:     cfg.VectorStore.Qdrant.UseTLS,
			APIKey:     cfg.VectorStore.Qdrant.APIKey,
			VectorSize: uint64(embedder.Dimension()),
			StatePath:  cfg.VectorStore.Path,
		}, embedder, logger)
	default:
		return vectorstore.NewChromemProvider(vectorstore.ChromemProviderConfig{
			BasePath: cfg.VectorStore.Path,
			Compress: cfg.VectorStore.Compress,
		}, embedder, logger)
	}
}
