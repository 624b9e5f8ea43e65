// Package chunker splits document text into overlapping, sentence-respecting
// chunks with positional metadata.
package chunker

import (
	"regexp"
	"strings"
)

// SentenceSplitter splits text into an ordered sequence of sentences.
//
// The default implementation is a punctuation heuristic. It can be swapped
// for a locale-aware tokenizer without touching the chunk accumulation
// algorithm.
type SentenceSplitter interface {
	Split(text string) []string
}

// boundaryPattern matches sentence-ending punctuation followed by whitespace.
// Abbreviations and decimal numbers are not special-cased; this is acceptable
// for ordinary prose.
var boundaryPattern = regexp.MustCompile(`([.!?])\s+`)

// RegexpSplitter splits on `.`, `!` or `?` followed by whitespace.
type RegexpSplitter struct{}

// NewRegexpSplitter creates the default punctuation-based splitter.
func NewRegexpSplitter() *RegexpSplitter {
	return &RegexpSplitter{}
}

// Split returns the non-empty sentences of text in order.
func (s *RegexpSplitter) Split(text string) []string {
	// Keep the terminator with its sentence by inserting a marker after it.
	marked := boundaryPattern.ReplaceAllString(text, "$1\x00")
	parts := strings.Split(marked, "\x00")

	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			sentences = append(sentences, p)
		}
	}
	return sentences
}
