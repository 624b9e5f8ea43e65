package chunker

import (
	"fmt"
	"regexp"
	"strings"
)

// Metadata keys attached to every chunk.
const (
	MetaDocumentName = "document_name"
	MetaSourceFile   = "source_file"
	MetaChunkID      = "chunk_id"
	MetaWordCount    = "word_count"
	MetaSection      = "section"
	MetaTotalChunks  = "total_chunks"
)

// Chunk is a contiguous span of a document's text, sized to a word budget.
//
// Chunks are created in one batch per chunking call and are immutable
// afterwards. ChunkID values are dense and 1-based within a document, and
// every chunk of the same call carries the same total_chunks value.
type Chunk struct {
	Text     string
	Metadata map[string]interface{}
}

// whitespaceRun collapses runs of whitespace to a single space.
var whitespaceRun = regexp.MustCompile(`\s+`)

// Chunker accumulates sentences into chunks of roughly ChunkSize words,
// seeding each new chunk with the last Overlap words of the previous one.
type Chunker struct {
	// ChunkSize is the target number of words per chunk.
	ChunkSize int

	// Overlap is the number of words carried over between adjacent chunks.
	Overlap int

	splitter SentenceSplitter
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithSplitter replaces the default sentence splitter.
func WithSplitter(s SentenceSplitter) Option {
	return func(c *Chunker) {
		if s != nil {
			c.splitter = s
		}
	}
}

// New creates a Chunker. Non-positive chunkSize falls back to 200 words and
// negative overlap to 50, the defaults of the ingestion pipeline.
func New(chunkSize, overlap int, opts ...Option) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 200
	}
	if overlap < 0 {
		overlap = 50
	}
	c := &Chunker{
		ChunkSize: chunkSize,
		Overlap:   overlap,
		splitter:  NewRegexpSplitter(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChunkText splits text into chunks, copying base metadata into each chunk
// and adding chunk_id, word_count, section and total_chunks.
//
// A single sentence longer than ChunkSize is never split mid-sentence; it
// becomes its own oversized chunk. Overlap >= ChunkSize degenerates to
// near-total overlap but always terminates, since overlap only re-injects
// already-consumed words. Empty input yields nil.
func (c *Chunker) ChunkText(text string, base map[string]interface{}) []Chunk {
	normalized := normalize(text)
	if normalized == "" {
		return nil
	}

	sentences := c.splitter.Split(normalized)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []Chunk
	var buf []string
	chunkID := 1

	for _, sentence := range sentences {
		words := strings.Fields(sentence)
		if len(words) == 0 {
			continue
		}

		if len(buf) > 0 && len(buf)+len(words) > c.ChunkSize {
			chunks = append(chunks, c.emit(buf, chunkID, base))
			buf = append(overlapWords(buf, c.Overlap), words...)
			chunkID++
			continue
		}
		buf = append(buf, words...)
	}

	if len(buf) > 0 {
		chunks = append(chunks, c.emit(buf, chunkID, base))
	}

	for i := range chunks {
		chunks[i].Metadata[MetaTotalChunks] = len(chunks)
	}
	return chunks
}

// ChunkDocument chunks a document with the standard name/source metadata.
func (c *Chunker) ChunkDocument(text, documentName, sourceFile string) []Chunk {
	return c.ChunkText(text, map[string]interface{}{
		MetaDocumentName: documentName,
		MetaSourceFile:   sourceFile,
	})
}

// emit builds a chunk from the buffered words.
func (c *Chunker) emit(words []string, chunkID int, base map[string]interface{}) Chunk {
	metadata := make(map[string]interface{}, len(base)+4)
	for k, v := range base {
		metadata[k] = v
	}
	metadata[MetaChunkID] = chunkID
	metadata[MetaWordCount] = len(words)
	metadata[MetaSection] = fmt.Sprintf("chunk_%03d", chunkID)

	return Chunk{
		Text:     strings.Join(words, " "),
		Metadata: metadata,
	}
}

// overlapWords returns a copy of the last n words, or all of them when the
// buffer is shorter than n.
func overlapWords(words []string, n int) []string {
	start := len(words) - n
	if start < 0 {
		start = 0
	}
	out := make([]string, len(words)-start)
	copy(out, words[start:])
	return out
}

// normalize collapses whitespace runs to single spaces and trims the result.
func normalize(text string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}
