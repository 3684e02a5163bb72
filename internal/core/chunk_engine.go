// ABOUTME: ChunkEngine splits extracted document text into overlapping windows for embedding
// ABOUTME: Windows are measured in runes so CJK text is never cut mid-character
package core

import (
	"strings"
)

const (
	DefaultChunkSize    = 300
	DefaultChunkOverlap = 50
)

// ChunkText cuts text into windows of size runes, each starting size-overlap
// runes after the previous one. Whitespace-only windows are dropped.
func ChunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	step := size - overlap

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		piece := string(runes[start:end])
		if strings.TrimSpace(piece) != "" {
			chunks = append(chunks, piece)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}
