package knowledge

import "strings"

// Chunker splits document text into fixed-size overlapping windows.
// Sizes are in runes so multi-byte text chunks evenly.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker. Invalid values fall back to 500/50.
// Overlap must be smaller than size.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 500
	}
	if overlap < 0 || overlap >= size {
		overlap = 50
		if overlap >= size {
			overlap = size / 10
		}
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split cuts text into chunks of the configured size, each window
// starting size-overlap runes after the previous one. Whitespace-only
// chunks are dropped. Empty input yields no chunks.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := c.size - c.overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunk := string(runes[start:end])
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}
