package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/generation"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/orchestrator"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

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
}

func (f *fakeGenerator) Generate(context.Context, string, generation.Options) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeGenerator) ModelInfo() generation.Info {
	return generation.Info{Backend: "fake", Model: "fake-model"}
}

type fakeSource struct {
	gen generation.Generator
}

func (f *fakeSource) Generator(context.Context) (generation.Generator, error) {
	return f.gen, nil
}

func (f *fakeSource) ModelInfo() generation.Info {
	return generation.Info{Backend: "fake", Model: "fake-model"}
}

func newTestServer(t *testing.T, gen *fakeGenerator) *Server {
	t.Helper()

	provider, err := vectorstore.NewChromemProvider(
		vectorstore.ChromemProviderConfig{BasePath: t.TempDir()},
		&hashEmbedder{vectorSize: 16}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Close() })

	source := &fakeSource{gen: gen}
	ingester := ingest.NewService(provider, chunker.New(50, 10), zap.NewNop())
	orch := orchestrator.New(provider, source, zap.NewNop())

	srv, err := New(provider, ingester, orch, source, zap.NewNop(), Config{})
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresDependencies(t *testing.T) {
	srv := newTestServer(t, &fakeGenerator{response: "ok"})

	_, err := New(nil, srv.ingester, srv.orch, srv.manager, zap.NewNop(), Config{})
	assert.Error(t, err)

	_, err = New(srv.provider, srv.ingester, srv.orch, srv.manager, nil, Config{})
	assert.ErrorContains(t, err, "logger is required")
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 8000, cfg.Port)
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, &fakeGenerator{response: "ok"})

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "fake-model", resp.Model)
}

func TestHandleIngest(t *testing.T) {
	srv := newTestServer(t, &fakeGenerator{response: "ok"})

	rec := doJSON(t, srv, http.MethodPost, "/clients/acme/ingest", IngestRequest{
		DocumentName: "policy.md",
		Text:         "Refunds are processed within 30 days.",
		Metadata:     map[string]interface{}{"team": "support"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "acme", resp.ClientID)
	assert.Equal(t, "policy.md", resp.DocumentName)
	assert.Equal(t, 1, resp.ChunksStored)
}

func TestHandleIngest_Validation(t *testing.T) {
	srv := newTestServer(t, &fakeGenerator{response: "ok"})

	tests := []struct {
		name string
		path string
		body IngestRequest
	}{
		{
			name: "missing document name",
			path: "/clients/acme/ingest",
			body: IngestRequest{Text: "some text"},
		},
		{
			name: "missing text",
			path: "/clients/acme/ingest",
			body: IngestRequest{DocumentName: "doc.md"},
		},
		{
			name: "invalid client id",
			path: "/clients/bad!id/ingest",
			body: IngestRequest{DocumentName: "doc.md", Text: "some text"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleQuery(t *testing.T) {
	srv := newTestServer(t, &fakeGenerator{response: "Refunds take 30 days."})

	rec := doJSON(t, srv, http.MethodPost, "/clients/acme/ingest", IngestRequest{
		DocumentName: "policy.md",
		Text:         "Refunds are processed within 30 days.",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/clients/acme/query", QueryRequest{
		Query: "How long do refunds take?",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Refunds take 30 days.", resp.Answer)
	assert.Equal(t, []string{"policy.md"}, resp.Sources)
	assert.Equal(t, 1, resp.ContextChunksUsed)
	require.Len(t, resp.RetrievedChunks, 1)
	assert.Equal(t, "Refunds are processed within 30 days.", resp.RetrievedChunks[0].Content)
	assert.False(t, resp.Degraded)
	assert.Empty(t, resp.Error)
}

func TestHandleQuery_EmptyCollection(t *testing.T) {
	srv := newTestServer(t, &fakeGenerator{response: "unused"})

	rec := doJSON(t, srv, http.MethodPost, "/clients/acme/query", QueryRequest{Query: "anything?"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "No documents found for this client. Please ingest some documents first.", resp.Answer)
	assert.NotNil(t, resp.RetrievedChunks)
	assert.Empty(t, resp.RetrievedChunks)
	assert.Contains(t, rec.Body.String(), `"retrieved_chunks":[]`)
}

func TestHandleQuery_Validation(t *testing.T) {
	srv := newTestServer(t, &fakeGenerator{response: "ok"})

	rec := doJSON(t, srv, http.MethodPost, "/clients/acme/query", QueryRequest{Query: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/clients/acme/query", QueryRequest{Query: "q", TopK: 99})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleQuery_GenerationFailureIsDegraded200(t *testing.T) {
	srv := newTestServer(t, &fakeGenerator{err: errors.New("model down")})

	rec := doJSON(t, srv, http.MethodPost, "/clients/acme/ingest", IngestRequest{
		DocumentName: "policy.md",
		Text:         "Refunds are processed within 30 days.",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/clients/acme/query", QueryRequest{Query: "refunds?"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Degraded)
	assert.Contains(t, resp.Error, "model down")
	assert.Equal(t, "I apologize, but I was unable to generate an answer. Please try again.", resp.Answer)
	assert.Equal(t, []string{"policy.md"}, resp.Sources)
	assert.Len(t, resp.RetrievedChunks, 1, "retrieval results survive generation failure")
}

func TestHandleDocumentsLifecycle(t *testing.T) {
	srv := newTestServer(t, &fakeGenerator{response: "ok"})

	rec := doJSON(t, srv, http.MethodGet, "/clients/acme/documents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var docs DocumentsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	assert.Empty(t, docs.Documents)

	rec = doJSON(t, srv, http.MethodPost, "/clients/acme/ingest", IngestRequest{
		DocumentName: "guide.md", Text: "Guide content here.",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/clients/acme/documents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	assert.Equal(t, []string{"guide.md"}, docs.Documents)

	rec = doJSON(t, srv, http.MethodDelete, "/clients/acme/documents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cleared ClearResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cleared))
	assert.Equal(t, 1, cleared.Removed)
	assert.Equal(t, "acme", cleared.ClientID)

	rec = doJSON(t, srv, http.MethodDelete, "/clients/acme/documents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cleared))
	assert.Zero(t, cleared.Removed)
}

func TestHandleListClients(t *testing.T) {
	srv := newTestServer(t, &fakeGenerator{response: "ok"})

	rec := doJSON(t, srv, http.MethodGet, "/clients", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ClientsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Clients)

	for _, id := range []string{"zulu", "alpha"} {
		rec = doJSON(t, srv, http.MethodPost, "/clients/"+id+"/ingest", IngestRequest{
			DocumentName: "doc.md", Text: "Shared content.",
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/clients", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"alpha", "zulu"}, resp.Clients)
}

func TestHandleMetrics(t *testing.T) {
	srv := newTestServer(t, &fakeGenerator{response: "ok"})

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ragd_http_requests_total")
}
