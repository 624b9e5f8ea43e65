package vectorstore_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// hashEmbedder returns deterministic normalized vectors for testing.
type hashEmbedder struct {
	vectorSize int
	calls      int
}

func (e *hashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = e.makeEmbedding(text)
	}
	return embeddings, nil
}

func (e *hashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	return e.makeEmbedding(text), nil
}

// makeEmbedding creates a normalized embedding seeded by the text.
func (e *hashEmbedder) makeEmbedding(text string) []float32 {
	embedding := make([]float32, e.vectorSize)
	hash := 0
	for _, c := range text {
		hash = (hash*31 + int(c)) % 1000
	}
	var sumSq float64
	for i := range embedding {
		embedding[i] = float32((hash+i)%100) / 100.0
		sumSq += float64(embedding[i]) * float64(embedding[i])
	}
	if sumSq > 0 {
		norm := float32(1.0 / math.Sqrt(sumSq))
		for i := range embedding {
			embedding[i] *= norm
		}
	}
	return embedding
}

// failingEmbedder fails every call; used to verify atomicity and that
// validation happens before embedding.
type failingEmbedder struct{}

var errEmbedderDown = errors.New("embedder down")

func (e *failingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errEmbedderDown
}

func (e *failingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return nil, errEmbedderDown
}

// newTestProvider creates a chromem provider over a temp directory.
func newTestProvider(t *testing.T, embedder vectorstore.Embedder) *vectorstore.ChromemProvider {
	t.Helper()

	provider, err := vectorstore.NewChromemProvider(vectorstore.ChromemProviderConfig{
		BasePath: t.TempDir(),
	}, embedder, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Close() })

	return provider
}
