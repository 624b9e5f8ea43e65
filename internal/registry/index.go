// Package registry tracks which documents and chunk ids belong to a
// client's collection.
//
// The vector backends can count and delete by id but cannot enumerate the
// distinct documents they hold, so every mutation of a client collection is
// mirrored into a small JSON index next to the client's data:
//
//	{basePath}/{clientID}/documents.json
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// ErrIndexCorrupted is returned when the index file cannot be parsed.
var ErrIndexCorrupted = errors.New("document index corrupted")

// indexData is the persisted structure.
type indexData struct {
	Version   int                 `json:"version"`
	ClientID  string              `json:"client_id"`
	UpdatedAt time.Time           `json:"updated_at"`
	Documents map[string][]string `json:"documents"` // document name -> chunk ids
}

// DocumentIndex is a mutex-guarded, persisted map of document names to the
// chunk ids stored under them.
type DocumentIndex struct {
	mu       sync.RWMutex
	filePath string
	data     *indexData
}

// OpenDocumentIndex loads (or initializes) the index for a client.
func OpenDocumentIndex(dir, clientID string) (*DocumentIndex, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	idx := &DocumentIndex{
		filePath: filepath.Join(dir, "documents.json"),
		data: &indexData{
			Version:   1,
			ClientID:  clientID,
			Documents: make(map[string][]string),
		},
	}

	if err := idx.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading document index: %w", err)
	}
	return idx, nil
}

// Record associates chunk ids with a document name and persists the index.
// Already-recorded ids are kept unique.
func (idx *DocumentIndex) Record(documentName string, ids []string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	existing := idx.data.Documents[documentName]
	seen := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		seen[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			existing = append(existing, id)
			seen[id] = struct{}{}
		}
	}
	idx.data.Documents[documentName] = existing

	return idx.save()
}

// Documents returns the sorted distinct document names.
func (idx *DocumentIndex) Documents() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	names := make([]string, 0, len(idx.data.Documents))
	for name := range idx.data.Documents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IDs returns every chunk id across all documents.
func (idx *DocumentIndex) IDs() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var ids []string
	for _, docIDs := range idx.data.Documents {
		ids = append(ids, docIDs...)
	}
	return ids
}

// Reset drops all recorded documents and persists the empty index.
func (idx *DocumentIndex) Reset() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.data.Documents = make(map[string][]string)
	return idx.save()
}

// load reads the index file. Missing files are not an error.
func (idx *DocumentIndex) load() error {
	content, err := os.ReadFile(idx.filePath)
	if err != nil {
		return err
	}

	var data indexData
	if err := json.Unmarshal(content, &data); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexCorrupted, err)
	}
	if data.Documents == nil {
		data.Documents = make(map[string][]string)
	}
	idx.data = &data
	return nil
}

// save writes the index atomically (temp file + rename).
func (idx *DocumentIndex) save() error {
	idx.data.UpdatedAt = time.Now().UTC()

	content, err := json.MarshalIndent(idx.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling document index: %w", err)
	}

	tmp := idx.filePath + ".tmp"
	if err := os.WriteFile(tmp, content, 0o600); err != nil {
		return fmt.Errorf("writing document index: %w", err)
	}
	if err := os.Rename(tmp, idx.filePath); err != nil {
		return fmt.Errorf("replacing document index: %w", err)
	}
	return nil
}
