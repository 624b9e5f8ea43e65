// Package vectorstore provides client-isolated vector storage.
//
// Each client gets its own collection, derived deterministically from the
// client id. No operation can address another client's collection without
// that client's id: with the chromem backend isolation is physical (one
// database directory per client), with the qdrant backend it is one
// collection per client on a shared server.
package vectorstore

import (
	"context"
	"errors"
	"regexp"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidClientID indicates a client id that fails validation.
	ErrInvalidClientID = errors.New("invalid client id")

	// ErrBatchMismatch is returned when texts and metadatas differ in length.
	ErrBatchMismatch = errors.New("texts and metadatas must have the same length")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrConnectionFailed indicates a vector database connection failure.
	ErrConnectionFailed = errors.New("failed to connect to vector database")

	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")
)

// Embedder generates vector embeddings from text.
//
// Implementations can use local models (FastEmbed) or HTTP APIs (TEI,
// OpenAI). Batch embedding is atomic: either every text in the batch is
// embedded or the call fails, which is what makes AddDocuments all-or-nothing.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	// Returns one embedding per input text, in the same order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is a vector index scoped to a single client collection, fixed at
// construction time.
//
// Implementations:
//   - ChromemStore: embedded chromem-go, one database directory per client
//   - QdrantStore: external Qdrant over gRPC, one collection per client
type Store interface {
	// AddDocuments embeds and stores documents as one batch. The embedding
	// call happens before any write, so a failure stores nothing.
	// Returns the ids of the stored documents.
	AddDocuments(ctx context.Context, docs []Document) ([]string, error)

	// Search returns up to k documents ranked by descending similarity.
	// An empty collection returns an empty slice, never an error.
	Search(ctx context.Context, query string, k int) ([]SearchResult, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	// DeleteDocuments removes documents by id. Unknown ids are ignored.
	DeleteDocuments(ctx context.Context, ids []string) error

	// Close releases resources held by the store.
	Close() error
}

// clientIDPattern validates client ids before they are used to derive
// filesystem paths or collection names. Rejects path separators, dots and
// anything else that could escape the per-client namespace.
var clientIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)

// ValidateClientID checks that a client id is safe to use as a namespace.
func ValidateClientID(clientID string) error {
	if !clientIDPattern.MatchString(clientID) {
		return ErrInvalidClientID
	}
	return nil
}
