package server

import "github.com/fyrsmithlabs/ragd/internal/vectorstore"

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

// ClientsResponse is the response body for GET /clients.
type ClientsResponse struct {
	Clients []string `json:"clients"`
}

// IngestRequest is the request body for POST /clients/:client_id/ingest.
type IngestRequest struct {
	DocumentName string                 `json:"document_name"`
	Text         string                 `json:"text"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// IngestResponse is the response body for a successful ingest.
type IngestResponse struct {
	ClientID     string `json:"client_id"`
	DocumentName string `json:"document_name"`
	ChunksStored int    `json:"chunks_stored"`
}

// QueryRequest is the request body for POST /clients/:client_id/query.
type QueryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// QueryResponse is the response body for a query. Error carries the
// generation failure detail when Degraded is set.
type QueryResponse struct {
	Query                 string                     `json:"query"`
	Answer                string                     `json:"answer"`
	Sources               []string                   `json:"sources"`
	RetrievedChunks       []vectorstore.SearchResult `json:"retrieved_chunks"`
	ContextChunksUsed     int                        `json:"context_chunks_used"`
	GenerationTimeSeconds float64                    `json:"generation_time_seconds"`
	Model                 string                     `json:"model"`
	Degraded              bool                       `json:"degraded,omitempty"`
	Error                 string                     `json:"error,omitempty"`
}

// DocumentsResponse is the response body for GET /clients/:client_id/documents.
type DocumentsResponse struct {
	ClientID  string   `json:"client_id"`
	Documents []string `json:"documents"`
}

// ClearResponse is the response body for DELETE /clients/:client_id/documents.
type ClearResponse struct {
	Message  string `json:"message"`
	ClientID string `json:"client_id"`
	Removed  int    `json:"removed"`
}
