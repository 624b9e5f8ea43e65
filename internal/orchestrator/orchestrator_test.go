package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/generation"
	"github.com/fyrsmithlabs/ragd/internal/orchestrator"
	"github.com/fyrsmithlabs/ragd/internal/registry"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// hashEmbedder produces deterministic normalized vectors from text content.
type hashEmbedder struct {
	vectorSize int
}

func (e *hashEmbedder) embed(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, e.vectorSize)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed>>32)) / float64(math.MaxInt32)
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func (e *hashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

type fakeGenerator struct {
	response string
	err      error
	prompts  []string
	lastOpts generation.Options
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string, opts generation.Options) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.lastOpts = opts
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeGenerator) ModelInfo() generation.Info {
	return generation.Info{Backend: "fake", Model: "fake-model"}
}

type fakeSource struct {
	gen     generation.Generator
	initErr error
}

func (f *fakeSource) Generator(context.Context) (generation.Generator, error) {
	if f.initErr != nil {
		return nil, f.initErr
	}
	return f.gen, nil
}

func (f *fakeSource) ModelInfo() generation.Info {
	return generation.Info{Backend: "fake", Model: "fake-model"}
}

func newTestOrchestrator(t *testing.T, gen *fakeGenerator) (*orchestrator.Orchestrator, vectorstore.Provider) {
	t.Helper()

	provider, err := vectorstore.NewChromemProvider(
		vectorstore.ChromemProviderConfig{BasePath: t.TempDir()},
		&hashEmbedder{vectorSize: 16}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Close() })

	return orchestrator.New(provider, &fakeSource{gen: gen}, zap.NewNop()), provider
}

func ingestChunks(t *testing.T, provider vectorstore.Provider, clientID, docName string, texts ...string) {
	t.Helper()

	store, err := provider.GetClientStore(context.Background(), clientID)
	require.NoError(t, err)

	metadatas := make([]map[string]interface{}, len(texts))
	for i := range texts {
		metadatas[i] = map[string]interface{}{
			"document_name": docName,
			"chunk_id":      i + 1,
		}
	}
	require.NoError(t, store.Add(context.Background(), texts, metadatas))
}

func TestAnswerQuery_Validation(t *testing.T) {
	gen := &fakeGenerator{response: "answer"}
	orch, _ := newTestOrchestrator(t, gen)
	ctx := context.Background()

	_, err := orch.AnswerQuery(ctx, "acme", "   ", orchestrator.Options{})
	assert.ErrorIs(t, err, orchestrator.ErrEmptyQuery)

	_, err = orch.AnswerQuery(ctx, "acme", "question", orchestrator.Options{TopK: 21})
	assert.ErrorIs(t, err, orchestrator.ErrInvalidTopK)

	_, err = orch.AnswerQuery(ctx, "acme", "question", orchestrator.Options{TopK: -1})
	assert.ErrorIs(t, err, orchestrator.ErrInvalidTopK)

	_, err = orch.AnswerQuery(ctx, "../etc", "question", orchestrator.Options{})
	assert.ErrorIs(t, err, vectorstore.ErrInvalidClientID)

	assert.Empty(t, gen.prompts, "no generation should happen on invalid input")
}

func TestAnswerQuery_EmptyCollection(t *testing.T) {
	gen := &fakeGenerator{response: "answer"}
	orch, _ := newTestOrchestrator(t, gen)

	result, err := orch.AnswerQuery(context.Background(), "acme", "what is the policy?",
		orchestrator.Options{IncludeChunks: true})
	require.NoError(t, err)

	assert.Equal(t, "No documents found for this client. Please ingest some documents first.", result.Answer)
	assert.Empty(t, result.Sources)
	assert.Zero(t, result.ContextChunksUsed)
	assert.NotNil(t, result.RetrievedChunks)
	assert.Empty(t, result.RetrievedChunks)
	assert.Empty(t, gen.prompts)
}

// emptySearchStore reports documents present but never returns a match,
// exercising the no-relevant-information terminal state.
type emptySearchStore struct{}

func (emptySearchStore) AddDocuments(_ context.Context, docs []vectorstore.Document) ([]string, error) {
	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	return ids, nil
}

func (emptySearchStore) Search(context.Context, string, int) ([]vectorstore.SearchResult, error) {
	return []vectorstore.SearchResult{}, nil
}

func (emptySearchStore) Count(context.Context) (int, error) { return 3, nil }

func (emptySearchStore) DeleteDocuments(context.Context, []string) error { return nil }

func (emptySearchStore) Close() error { return nil }

type singleStoreProvider struct {
	store *vectorstore.ClientStore
}

func (p *singleStoreProvider) GetClientStore(_ context.Context, clientID string) (*vectorstore.ClientStore, error) {
	if err := vectorstore.ValidateClientID(clientID); err != nil {
		return nil, err
	}
	return p.store, nil
}

func (p *singleStoreProvider) ListClients(context.Context) ([]string, error) {
	return []string{p.store.ClientID()}, nil
}

func (p *singleStoreProvider) Close() error { return nil }

func TestAnswerQuery_NoMatches(t *testing.T) {
	index, err := registry.OpenDocumentIndex(t.TempDir(), "acme")
	require.NoError(t, err)
	store := vectorstore.NewClientStore("acme", emptySearchStore{}, index, zap.NewNop())

	gen := &fakeGenerator{response: "unused"}
	orch := orchestrator.New(&singleStoreProvider{store: store}, &fakeSource{gen: gen}, zap.NewNop())

	result, err := orch.AnswerQuery(context.Background(), "acme", "anything relevant?",
		orchestrator.Options{IncludeChunks: true})
	require.NoError(t, err)

	assert.Equal(t, "No relevant information found in the documents.", result.Answer)
	assert.Empty(t, result.Sources)
	assert.Zero(t, result.ContextChunksUsed)
	assert.NotNil(t, result.RetrievedChunks)
	assert.Empty(t, result.RetrievedChunks)
	assert.Empty(t, gen.prompts, "no generation should happen without matches")
}

func TestAnswerQuery_GroundedAnswer(t *testing.T) {
	gen := &fakeGenerator{response: "Refunds are processed within 30 days."}
	orch, provider := newTestOrchestrator(t, gen)
	ingestChunks(t, provider, "acme", "policy.md",
		"Refunds are processed within 30 days of purchase.",
		"Support is available on weekdays from 9 to 5.")

	result, err := orch.AnswerQuery(context.Background(), "acme", "How long do refunds take?",
		orchestrator.Options{TopK: 2})
	require.NoError(t, err)
	require.NoError(t, result.Err)

	assert.Equal(t, "Refunds are processed within 30 days.", result.Answer)
	assert.Equal(t, []string{"policy.md"}, result.Sources)
	assert.Equal(t, 2, result.ContextChunksUsed)
	assert.Equal(t, "fake-model", result.Model)
	assert.GreaterOrEqual(t, result.GenerationTimeSeconds, 0.0)
	assert.Nil(t, result.RetrievedChunks, "chunks omitted unless requested")

	require.Len(t, gen.prompts, 1)
	prompt := gen.prompts[0]
	assert.True(t, strings.HasPrefix(prompt, "You are a helpful AI assistant that answers questions based on provided document context."))
	assert.Contains(t, prompt, "CONTEXT:\n")
	assert.Contains(t, prompt, "Refunds are processed within 30 days of purchase.")
	assert.Contains(t, prompt, "QUESTION: How long do refunds take?")
	assert.Contains(t, prompt, "INSTRUCTIONS:\n")
	assert.Contains(t, prompt, "ONLY the information from the provided context")
	assert.Contains(t, prompt, "Cite specific document names when relevant")
	assert.True(t, strings.HasSuffix(prompt, "ANSWER:"))
}

func TestAnswerQuery_IncludeChunks(t *testing.T) {
	gen := &fakeGenerator{response: "answer"}
	orch, provider := newTestOrchestrator(t, gen)
	ingestChunks(t, provider, "acme", "guide.md", "The first rule of the guide.")

	result, err := orch.AnswerQuery(context.Background(), "acme", "what is the rule?",
		orchestrator.Options{TopK: 1, IncludeChunks: true})
	require.NoError(t, err)

	require.Len(t, result.RetrievedChunks, 1)
	assert.Equal(t, "The first rule of the guide.", result.RetrievedChunks[0].Content)
}

func TestAnswerQuery_SourcesSortedDistinct(t *testing.T) {
	gen := &fakeGenerator{response: "answer"}
	orch, provider := newTestOrchestrator(t, gen)
	ingestChunks(t, provider, "acme", "zulu.md", "zulu content one", "zulu content two")
	ingestChunks(t, provider, "acme", "alpha.md", "alpha content")

	result, err := orch.AnswerQuery(context.Background(), "acme", "content",
		orchestrator.Options{TopK: 3})
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha.md", "zulu.md"}, result.Sources)
}

func TestAnswerQuery_GenerationFailureDegrades(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model timed out")}
	orch, provider := newTestOrchestrator(t, gen)
	ingestChunks(t, provider, "acme", "policy.md", "Refunds are processed within 30 days.")

	result, err := orch.AnswerQuery(context.Background(), "acme", "How long do refunds take?",
		orchestrator.Options{})
	require.NoError(t, err, "generation failure must not fail the query")

	assert.Equal(t, "I apologize, but I was unable to generate an answer. Please try again.", result.Answer)
	assert.Error(t, result.Err)
	assert.Equal(t, []string{"policy.md"}, result.Sources, "retrieval results survive generation failure")
	assert.Equal(t, 1, result.ContextChunksUsed)
}

func TestAnswerQuery_GeneratorInitFailureDegrades(t *testing.T) {
	provider, err := vectorstore.NewChromemProvider(
		vectorstore.ChromemProviderConfig{BasePath: t.TempDir()},
		&hashEmbedder{vectorSize: 16}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Close() })
	ingestChunks(t, provider, "acme", "policy.md", "Refunds are processed within 30 days.")

	orch := orchestrator.New(provider, &fakeSource{initErr: errors.New("backend down")}, zap.NewNop())

	result, err := orch.AnswerQuery(context.Background(), "acme", "refunds?", orchestrator.Options{})
	require.NoError(t, err)

	assert.Equal(t, "I apologize, but I was unable to generate an answer. Please try again.", result.Answer)
	assert.Error(t, result.Err)
	assert.Equal(t, []string{"policy.md"}, result.Sources)
}

func TestAnswerQuery_StripsPromptEcho(t *testing.T) {
	gen := &fakeGenerator{response: "CONTEXT: stuff\n\nQUESTION: q\n\nANSWER: The real answer."}
	orch, provider := newTestOrchestrator(t, gen)
	ingestChunks(t, provider, "acme", "doc.md", "some content here")

	result, err := orch.AnswerQuery(context.Background(), "acme", "q?", orchestrator.Options{})
	require.NoError(t, err)

	assert.Equal(t, "The real answer.", result.Answer)
}

func TestAnswerQuery_KeepsAnswerMarkerInsideText(t *testing.T) {
	gen := &fakeGenerator{response: "ANSWER: The form has a field labeled ANSWER: that must be filled in."}
	orch, provider := newTestOrchestrator(t, gen)
	ingestChunks(t, provider, "acme", "doc.md", "some content here")

	result, err := orch.AnswerQuery(context.Background(), "acme", "q?", orchestrator.Options{})
	require.NoError(t, err)

	assert.Equal(t, "The form has a field labeled ANSWER: that must be filled in.", result.Answer)
}

func TestAnswerQuery_TruncatesRunawayAnswer(t *testing.T) {
	var b strings.Builder
	for i := 0; b.Len() < 2600; i++ {
		fmt.Fprintf(&b, "Sentence number %d fills space in the runaway answer. ", i)
	}
	gen := &fakeGenerator{response: b.String()}
	orch, provider := newTestOrchestrator(t, gen)
	ingestChunks(t, provider, "acme", "doc.md", "some content here")

	result, err := orch.AnswerQuery(context.Background(), "acme", "q?", orchestrator.Options{})
	require.NoError(t, err)

	assert.LessOrEqual(t, len(result.Answer), 2000)
	assert.GreaterOrEqual(t, len(result.Answer), 1500)
	assert.True(t, strings.HasSuffix(result.Answer, "."), "answer should end at a sentence boundary")
}

func TestAnswerQuery_TruncationKeepsRunesIntact(t *testing.T) {
	// Multi-byte text with no sentence boundaries forces the hard-cut
	// fallback, which must not split a rune.
	gen := &fakeGenerator{response: strings.Repeat("日本語のテキスト", 120)}
	orch, provider := newTestOrchestrator(t, gen)
	ingestChunks(t, provider, "acme", "doc.md", "some content here")

	result, err := orch.AnswerQuery(context.Background(), "acme", "q?", orchestrator.Options{})
	require.NoError(t, err)

	assert.LessOrEqual(t, len(result.Answer), 2000)
	assert.True(t, utf8.ValidString(result.Answer), "truncation must not split a rune")
}

func TestAnswerQuery_GenerationOverrides(t *testing.T) {
	gen := &fakeGenerator{response: "ok"}
	orch, provider := newTestOrchestrator(t, gen)
	ingestChunks(t, provider, "acme", "doc.md", "some content here")

	custom := generation.DefaultOptions()
	custom.MaxTokens = 64
	custom.Temperature = 0.1

	_, err := orch.AnswerQuery(context.Background(), "acme", "q?",
		orchestrator.Options{Generation: &custom})
	require.NoError(t, err)

	assert.Equal(t, 64, gen.lastOpts.MaxTokens)
	assert.InDelta(t, 0.1, gen.lastOpts.Temperature, 1e-9)
}
