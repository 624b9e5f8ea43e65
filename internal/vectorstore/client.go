package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/registry"
)

// ClientStore is the per-client vector store facade.
//
// It adds the spec-level operations the backends do not provide natively:
// parallel text/metadata batches with stable ids, document-name listing and
// whole-collection clearing, all scoped to a single client.
type ClientStore struct {
	clientID string
	store    Store
	index    *registry.DocumentIndex
	logger   *zap.Logger
}

// NewClientStore wraps a backend store and its document index.
func NewClientStore(clientID string, store Store, index *registry.DocumentIndex, logger *zap.Logger) *ClientStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClientStore{
		clientID: clientID,
		store:    store,
		index:    index,
		logger:   logger.With(zap.String("client_id", clientID)),
	}
}

// ClientID returns the owning client id.
func (c *ClientStore) ClientID() string {
	return c.clientID
}

// stableID derives the document id from the document name, chunk id and a
// content fingerprint, so identical content re-ingested at the same
// position upserts instead of duplicating.
func stableID(metadata map[string]interface{}, position int, text string) string {
	docName := "unknown"
	if v, ok := metadata["document_name"]; ok {
		docName = fmt.Sprintf("%v", v)
	}

	chunkID := fmt.Sprintf("%d", position)
	if v, ok := metadata["chunk_id"]; ok {
		chunkID = fmt.Sprintf("%v", v)
	}

	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s_%s_%s", docName, chunkID, hex.EncodeToString(sum[:])[:8])
}

// Add embeds and stores a batch of texts with their parallel metadata.
//
// Returns ErrBatchMismatch before any embedding work when the slices differ
// in length. Empty input is a no-op. The batch is all-or-nothing: the
// embedding call covers every text and happens before any write.
func (c *ClientStore) Add(ctx context.Context, texts []string, metadatas []map[string]interface{}) error {
	if len(texts) != len(metadatas) {
		return ErrBatchMismatch
	}
	if len(texts) == 0 {
		return nil
	}

	docs := make([]Document, len(texts))
	for i, text := range texts {
		docs[i] = Document{
			ID:       stableID(metadatas[i], i+1, text),
			Content:  text,
			Metadata: metadatas[i],
		}
	}

	ids, err := c.store.AddDocuments(ctx, docs)
	if err != nil {
		return err
	}

	// Mirror ids into the per-document index so ListDocuments and Clear
	// can enumerate them later.
	byDocument := make(map[string][]string)
	for i, doc := range docs {
		name := "unknown"
		if v, ok := doc.Metadata["document_name"]; ok {
			name = fmt.Sprintf("%v", v)
		}
		byDocument[name] = append(byDocument[name], ids[i])
	}
	for name, docIDs := range byDocument {
		if err := c.index.Record(name, docIDs); err != nil {
			return fmt.Errorf("recording document index: %w", err)
		}
	}

	c.logger.Debug("added chunks", zap.Int("count", len(texts)))
	return nil
}

// Search returns up to topK chunks ranked by descending similarity.
func (c *ClientStore) Search(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	return c.store.Search(ctx, query, topK)
}

// Count returns the number of indexed chunks for this client.
func (c *ClientStore) Count(ctx context.Context) (int, error) {
	return c.store.Count(ctx)
}

// ListDocuments returns the sorted distinct document names indexed for
// this client.
func (c *ClientStore) ListDocuments(ctx context.Context) ([]string, error) {
	return c.index.Documents(), nil
}

// Clear deletes every chunk in this client's collection and returns the
// number removed. Clearing an empty collection returns 0. The collection
// itself survives.
func (c *ClientStore) Clear(ctx context.Context) (int, error) {
	ids := c.index.IDs()
	if len(ids) == 0 {
		return 0, nil
	}

	if err := c.store.DeleteDocuments(ctx, ids); err != nil {
		return 0, err
	}
	if err := c.index.Reset(); err != nil {
		return 0, fmt.Errorf("resetting document index: %w", err)
	}

	c.logger.Info("cleared collection", zap.Int("removed", len(ids)))
	return len(ids), nil
}

// Close closes the underlying backend store.
func (c *ClientStore) Close() error {
	return c.store.Close()
}
