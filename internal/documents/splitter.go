package documents

import "strings"

// Splitter cuts text into overlapping fixed-size windows, preferring to
// break at paragraph, line, sentence, and word boundaries before falling
// back to a hard cut. Chunks are verbatim slices of the input: every
// non-whitespace character appears in at least one chunk, and the
// overlap region is repeated unchanged at the start of the following
// chunk. Whitespace-only windows are dropped; embedders reject blank
// text, and a trailing run of blank lines must not fail the document.
type Splitter struct {
	chunkSize int
	overlap   int
}

// NewSplitter creates a splitter with the given chunk size and overlap
// in characters. An overlap at or above the chunk size is clamped to a
// quarter of it.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}
}

// Split returns the chunks for text. Empty or whitespace-only input
// yields no chunks.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= s.chunkSize {
		return appendChunk(nil, text)
	}

	var chunks []string
	start := 0
	for {
		end := start + s.chunkSize
		if end >= n {
			chunks = appendChunk(chunks, string(runes[start:]))
			break
		}
		end = s.breakPoint(runes, start, end)
		chunks = appendChunk(chunks, string(runes[start:end]))

		next := end - s.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// appendChunk adds chunk unless it carries no text at all.
func appendChunk(chunks []string, chunk string) []string {
	if strings.TrimSpace(chunk) == "" {
		return chunks
	}
	return append(chunks, chunk)
}

// breakPoint picks the cut position for a chunk spanning [start, end).
// It scans backward for the best boundary, never cutting the chunk below
// half the target size.
func (s *Splitter) breakPoint(runes []rune, start, end int) int {
	min := start + s.chunkSize/2

	// Paragraph break: cut just after a blank line.
	for i := end; i > min; i-- {
		if i >= 2 && runes[i-1] == '\n' && runes[i-2] == '\n' {
			return i
		}
	}
	// Line break.
	for i := end; i > min; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}
	// Sentence end followed by a space.
	for i := end; i > min; i-- {
		if i >= 2 && runes[i-1] == ' ' && isSentenceEnd(runes[i-2]) {
			return i
		}
	}
	// Word boundary.
	for i := end; i > min; i-- {
		if runes[i-1] == ' ' {
			return i
		}
	}
	// Hard cut.
	return end
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
