// Package ingest turns raw documents into chunked, embedded entries in a
// client's vector store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

var (
	// ErrUnsupportedFile indicates a file extension the pipeline does not read.
	ErrUnsupportedFile = errors.New("unsupported file type")

	// ErrEmptyDocumentName indicates a missing document name.
	ErrEmptyDocumentName = errors.New("document name must not be empty")
)

// textExtensions are the file types the pipeline ingests.
var textExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
}

// Service chunks documents and writes them to per-client stores.
type Service struct {
	provider vectorstore.Provider
	chunks   *chunker.Chunker
	logger   *zap.Logger
}

// NewService creates an ingestion service.
func NewService(provider vectorstore.Provider, chunks *chunker.Chunker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		provider: provider,
		chunks:   chunks,
		logger:   logger,
	}
}

// IngestText chunks the text and stores the chunks for the client under the
// given document name. Extra metadata is merged into every chunk. Returns
// the number of chunks stored; empty text stores nothing.
func (s *Service) IngestText(ctx context.Context, clientID, documentName, sourceFile, text string, extra map[string]interface{}) (int, error) {
	if strings.TrimSpace(documentName) == "" {
		return 0, ErrEmptyDocumentName
	}

	base := map[string]interface{}{
		chunker.MetaDocumentName: documentName,
		chunker.MetaSourceFile:   sourceFile,
	}
	for k, v := range extra {
		base[k] = v
	}

	parts := s.chunks.ChunkText(text, base)
	if len(parts) == 0 {
		return 0, nil
	}

	store, err := s.provider.GetClientStore(ctx, clientID)
	if err != nil {
		return 0, err
	}

	texts := make([]string, len(parts))
	metadatas := make([]map[string]interface{}, len(parts))
	for i, part := range parts {
		texts[i] = part.Text
		metadatas[i] = part.Metadata
	}

	if err := store.Add(ctx, texts, metadatas); err != nil {
		return 0, err
	}

	s.logger.Info("document ingested",
		zap.String("client_id", clientID),
		zap.String("document", documentName),
		zap.Int("chunks", len(parts)))

	return len(parts), nil
}

// IngestFile reads a text file and ingests it under its base name.
func (s *Service) IngestFile(ctx context.Context, clientID, path string) (int, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !textExtensions[ext] {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFile, ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}

	return s.IngestText(ctx, clientID, filepath.Base(path), path, string(data), nil)
}

// DirectoryResult summarizes a bulk ingestion run.
type DirectoryResult struct {
	FilesIngested int
	FilesFailed   int
	ChunksStored  int
	Failures      map[string]error
}

// IngestDirectory ingests every supported file under dir. A failing file is
// recorded and skipped; the walk continues.
func (s *Service) IngestDirectory(ctx context.Context, clientID, dir string) (*DirectoryResult, error) {
	result := &DirectoryResult{Failures: make(map[string]error)}

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !textExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		n, err := s.IngestFile(ctx, clientID, path)
		if err != nil {
			s.logger.Warn("file ingestion failed",
				zap.String("client_id", clientID),
				zap.String("path", path),
				zap.Error(err))
			result.FilesFailed++
			result.Failures[path] = err
			continue
		}
		result.FilesIngested++
		result.ChunksStored += n
	}

	return result, nil
}
