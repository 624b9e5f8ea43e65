// Package orchestrator answers natural-language questions over a client's
// ingested documents by retrieving the most relevant chunks and handing them
// to the generation backend as grounding context.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/generation"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

var tracer = otel.Tracer("ragd.orchestrator")

var (
	// ErrEmptyQuery indicates an empty or whitespace-only question.
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrInvalidTopK indicates a retrieval depth outside the allowed range.
	ErrInvalidTopK = errors.New("top_k must be between 1 and 20")

	// ErrRetrievalFailed indicates the vector search could not complete.
	ErrRetrievalFailed = errors.New("retrieval failed")
)

const (
	// MinTopK and MaxTopK bound the retrieval depth per query.
	MinTopK = 1
	MaxTopK = 20

	// DefaultTopK is the retrieval depth when the caller does not set one.
	DefaultTopK = 3

	// maxAnswerLength is the hard ceiling on answer size before the
	// response is truncated at a sentence boundary.
	maxAnswerLength = 2000

	// truncateTarget is where truncation looks for a sentence boundary.
	truncateTarget = 1500
)

// Canned answers returned without invoking the model.
const (
	answerNoDocuments = "No documents found for this client. Please ingest some documents first."
	answerNoMatches   = "No relevant information found in the documents."
	answerDegraded    = "I apologize, but I was unable to generate an answer. Please try again."
)

// Result is the outcome of a single question.
type Result struct {
	Answer                string                     `json:"answer"`
	Sources               []string                   `json:"sources"`
	RetrievedChunks       []vectorstore.SearchResult `json:"retrieved_chunks,omitempty"`
	ContextChunksUsed     int                        `json:"context_chunks_used"`
	GenerationTimeSeconds float64                    `json:"generation_time_seconds"`
	Model                 string                     `json:"model"`

	// Err is set when generation failed and Answer carries the degraded
	// fallback. Retrieval results are still valid in that case.
	Err error `json:"-"`
}

// Options control a single query.
type Options struct {
	// TopK is how many chunks to retrieve. Zero means DefaultTopK.
	TopK int

	// IncludeChunks attaches the raw retrieved chunks to the result.
	IncludeChunks bool

	// Generation overrides the sampling defaults when non-nil.
	Generation *generation.Options
}

// GeneratorSource yields the shared generator. *generation.Manager
// satisfies it.
type GeneratorSource interface {
	Generator(ctx context.Context) (generation.Generator, error)
	ModelInfo() generation.Info
}

// Orchestrator wires retrieval to generation.
type Orchestrator struct {
	provider vectorstore.Provider
	manager  GeneratorSource
	logger   *zap.Logger
}

// New creates an orchestrator over the given store provider and generation
// manager.
func New(provider vectorstore.Provider, manager GeneratorSource, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		provider: provider,
		manager:  manager,
		logger:   logger,
	}
}

// AnswerQuery retrieves context for the question from the client's store and
// generates a grounded answer.
//
// Generation failure is not a query failure: the result then carries a
// fallback answer, the retrieved sources, and the generation error in Err.
func (o *Orchestrator) AnswerQuery(ctx context.Context, clientID, query string, opts Options) (*Result, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.AnswerQuery")
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if opts.TopK == 0 {
		opts.TopK = DefaultTopK
	}
	if opts.TopK < MinTopK || opts.TopK > MaxTopK {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, opts.TopK)
	}
	if err := vectorstore.ValidateClientID(clientID); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("client.id", clientID),
		attribute.Int("query.top_k", opts.TopK),
	)

	store, err := o.provider.GetClientStore(ctx, clientID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "client store unavailable")
		return nil, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}

	info := o.manager.ModelInfo()

	count, err := store.Count(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "count failed")
		return nil, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}
	if count == 0 {
		return cannedResult(answerNoDocuments, info.Model, opts), nil
	}

	chunks, err := store.Search(ctx, query, opts.TopK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}
	if len(chunks) == 0 {
		return cannedResult(answerNoMatches, info.Model, opts), nil
	}

	span.SetAttributes(attribute.Int("query.chunks_retrieved", len(chunks)))

	contextText, sources := assembleContext(chunks)
	prompt := buildPrompt(contextText, query)

	result := &Result{
		Sources:           sources,
		ContextChunksUsed: len(chunks),
		Model:             info.Model,
	}
	if opts.IncludeChunks {
		result.RetrievedChunks = chunks
	}

	gen, err := o.manager.Generator(ctx)
	if err != nil {
		o.logger.Error("generation backend unavailable",
			zap.String("client_id", clientID), zap.Error(err))
		span.RecordError(err)
		result.Answer = answerDegraded
		result.Err = err
		return result, nil
	}

	genOpts := generation.DefaultOptions()
	if opts.Generation != nil {
		genOpts = *opts.Generation
	}

	start := time.Now()
	raw, err := gen.Generate(ctx, prompt, genOpts)
	result.GenerationTimeSeconds = time.Since(start).Seconds()
	if err != nil {
		o.logger.Error("generation failed",
			zap.String("client_id", clientID),
			zap.Float64("duration_seconds", result.GenerationTimeSeconds),
			zap.Error(err))
		span.RecordError(err)
		result.Answer = answerDegraded
		result.Err = err
		return result, nil
	}

	result.Answer = cleanResponse(raw)

	o.logger.Debug("query answered",
		zap.String("client_id", clientID),
		zap.Int("chunks_used", result.ContextChunksUsed),
		zap.Int("sources", len(result.Sources)),
		zap.Float64("generation_seconds", result.GenerationTimeSeconds))

	return result, nil
}

// cannedResult builds a terminal-state result that skips generation.
func cannedResult(answer, model string, opts Options) *Result {
	result := &Result{Answer: answer, Sources: []string{}, Model: model}
	if opts.IncludeChunks {
		result.RetrievedChunks = []vectorstore.SearchResult{}
	}
	return result
}

// assembleContext joins the retrieved chunks into the grounding context and
// collects their distinct source document names, sorted.
func assembleContext(chunks []vectorstore.SearchResult) (string, []string) {
	parts := make([]string, 0, len(chunks))
	seen := make(map[string]struct{})
	sources := make([]string, 0, len(chunks))

	for _, chunk := range chunks {
		parts = append(parts, chunk.Content)
		name := "unknown"
		if v, ok := chunk.Metadata["document_name"].(string); ok && v != "" {
			name = v
		}
		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			sources = append(sources, name)
		}
	}
	sort.Strings(sources)

	return strings.Join(parts, "\n\n"), sources
}

// buildPrompt frames the retrieved context and question for the model.
func buildPrompt(contextText, query string) string {
	var b strings.Builder
	b.WriteString("You are a helpful AI assistant that answers questions based on provided document context.\n\n")
	b.WriteString("CONTEXT:\n")
	b.WriteString(contextText)
	b.WriteString("\n\nQUESTION: ")
	b.WriteString(query)
	b.WriteString("\n\nINSTRUCTIONS:\n")
	b.WriteString("- Answer the question using ONLY the information from the provided context\n")
	b.WriteString("- Be concise but comprehensive\n")
	b.WriteString("- If the context doesn't contain enough information to answer fully, say so\n")
	b.WriteString("- Cite specific document names when relevant\n")
	b.WriteString("- Keep your answer focused and relevant\n\n")
	b.WriteString("ANSWER:")
	return b.String()
}

// cleanResponse strips prompt echo and bounds runaway generations.
func cleanResponse(raw string) string {
	answer := raw

	// Some models echo the prompt framing back; keep only what follows
	// the first marker so an "ANSWER:" inside the generated text survives.
	if idx := strings.Index(answer, "ANSWER:"); idx >= 0 {
		answer = answer[idx+len("ANSWER:"):]
	}
	answer = strings.TrimSpace(answer)

	if len(answer) > maxAnswerLength {
		answer = truncateAtSentence(answer, truncateTarget)
	}
	return answer
}

// truncateAtSentence cuts the text at the last sentence boundary at or after
// target, falling back to a hard cut when no boundary is found.
func truncateAtSentence(text string, target int) string {
	if len(text) <= target {
		return text
	}
	window := trimToRuneBoundary(text, maxAnswerLength)
	cut := -1
	for _, mark := range []string{". ", "! ", "? "} {
		if idx := strings.LastIndex(window, mark); idx >= target && idx > cut {
			cut = idx
		}
	}
	if cut < 0 {
		// Also accept a terminal punctuation mark with no trailing space.
		last := window[len(window)-1]
		if last == '.' || last == '!' || last == '?' {
			return window
		}
		return strings.TrimSpace(window)
	}
	return text[:cut+1]
}

// trimToRuneBoundary cuts text to at most max bytes without splitting a
// multi-byte rune.
func trimToRuneBoundary(text string, max int) string {
	if len(text) <= max {
		return text
	}
	for max > 0 && !utf8.RuneStart(text[max]) {
		max--
	}
	return text[:max]
}
