package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var topK int

// Request/response bodies mirror internal/server/types.go.

type ingestRequest struct {
	DocumentName string `json:"document_name"`
	Text         string `json:"text"`
}

type ingestResponse struct {
	ClientID     string `json:"client_id"`
	DocumentName string `json:"document_name"`
	ChunksStored int    `json:"chunks_stored"`
}

type queryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

type queryResponse struct {
	Answer                string   `json:"answer"`
	Sources               []string `json:"sources"`
	ContextChunksUsed     int      `json:"context_chunks_used"`
	GenerationTimeSeconds float64  `json:"generation_time_seconds"`
	Model                 string   `json:"model"`
	Degraded              bool     `json:"degraded"`
	Error                 string   `json:"error"`
}

type documentsResponse struct {
	ClientID  string   `json:"client_id"`
	Documents []string `json:"documents"`
}

type clearResponse struct {
	Message  string `json:"message"`
	ClientID string `json:"client_id"`
	Removed  int    `json:"removed"`
}

type clientsResponse struct {
	Clients []string `json:"clients"`
}

type healthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file-or-directory>",
	Short: "Ingest a text file or directory into the client's collection",
	Long: `Ingest a text file (.txt, .md) or every supported file in a directory
into the client's collection.

Examples:
  # Ingest a single file
  ragctl ingest handbook.md

  # Ingest a directory for a specific client
  ragctl --client acme ingest ./corpus`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var queryCmd = &cobra.Command{
	Use:   "query \"<question>\"",
	Short: "Ask a question over the client's documents",
	Long: `Ask a natural-language question answered from the client's ingested
documents.

Examples:
  ragctl --client acme query "How long do refunds take?"
  ragctl query --top-k 5 "What is the support schedule?"`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List the client's ingested documents",
	RunE:  runDocuments,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all documents from the client's collection",
	RunE:  runClear,
}

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "List clients with existing collections",
	RunE:  runClients,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check ragd server health",
	RunE:  runHealth,
}

func init() {
	queryCmd.Flags().IntVar(&topK, "top-k", 0, "number of chunks to retrieve (default server-side)")
}

var textExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
}

func runIngest(cmd *cobra.Command, args []string) error {
	info, err := os.Stat(args[0])
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", args[0], err)
	}

	paths := []string{args[0]}
	if info.IsDir() {
		paths = paths[:0]
		err := filepath.WalkDir(args[0], func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && textExtensions[strings.ToLower(filepath.Ext(path))] {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to walk %s: %w", args[0], err)
		}
		if len(paths) == 0 {
			return fmt.Errorf("no text files found under %s", args[0])
		}
	}

	total := 0
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		var resp ingestResponse
		err = postJSON(fmt.Sprintf("%s/clients/%s/ingest", serverURL, clientID), ingestRequest{
			DocumentName: filepath.Base(path),
			Text:         string(content),
		}, &resp)
		if err != nil {
			return err
		}

		fmt.Printf("Ingested %s: %d chunk(s)\n", resp.DocumentName, resp.ChunksStored)
		total += resp.ChunksStored
	}

	if len(paths) > 1 {
		fmt.Printf("Done: %d file(s), %d chunk(s) total\n", len(paths), total)
	}
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	var resp queryResponse
	err := postJSON(fmt.Sprintf("%s/clients/%s/query", serverURL, clientID), queryRequest{
		Query: args[0],
		TopK:  topK,
	}, &resp)
	if err != nil {
		return err
	}

	fmt.Println(resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Fprintf(os.Stderr, "\nSources: %s\n", strings.Join(resp.Sources, ", "))
		fmt.Fprintf(os.Stderr, "Model: %s, chunks used: %d, generation: %.2fs\n",
			resp.Model, resp.ContextChunksUsed, resp.GenerationTimeSeconds)
	}
	if resp.Degraded {
		fmt.Fprintf(os.Stderr, "[ragctl] Warning: generation failed (%s), answer is a fallback\n", resp.Error)
	}
	return nil
}

func runDocuments(cmd *cobra.Command, args []string) error {
	var resp documentsResponse
	if err := getJSON(fmt.Sprintf("%s/clients/%s/documents", serverURL, clientID), &resp); err != nil {
		return err
	}

	if len(resp.Documents) == 0 {
		fmt.Printf("No documents for client %s\n", clientID)
		return nil
	}
	for _, doc := range resp.Documents {
		fmt.Println(doc)
	}
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	var resp clearResponse
	if err := doJSON(http.MethodDelete, fmt.Sprintf("%s/clients/%s/documents", serverURL, clientID), nil, &resp); err != nil {
		return err
	}

	fmt.Printf("Cleared %d document chunk(s) for client %s\n", resp.Removed, resp.ClientID)
	return nil
}

func runClients(cmd *cobra.Command, args []string) error {
	var resp clientsResponse
	if err := getJSON(fmt.Sprintf("%s/clients", serverURL), &resp); err != nil {
		return err
	}

	if len(resp.Clients) == 0 {
		fmt.Println("No clients registered")
		return nil
	}
	for _, id := range resp.Clients {
		fmt.Println(id)
	}
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	var resp healthResponse
	if err := getJSON(fmt.Sprintf("%s/health", serverURL), &resp); err != nil {
		return err
	}

	fmt.Printf("Server Status: %s\nModel: %s\n", resp.Status, resp.Model)
	return nil
}

func postJSON(url string, body, out interface{}) error {
	return doJSON(http.MethodPost, url, body, out)
}

func getJSON(url string, out interface{}) error {
	return doJSON(http.MethodGet, url, nil, out)
}

func doJSON(method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 120 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
