package chunker

import (
	"context"
	"strings"
)

// FixedChunker emits windows of exactly chunkSize runes with a fixed
// stride of chunkSize - chunkOverlap. The last chunk may be shorter.
type FixedChunker struct {
	chunkSize    int
	chunkOverlap int
}

var _ Chunker = (*FixedChunker)(nil)

// NewFixedChunker creates a fixed-window chunker.
func NewFixedChunker(chunkSize, chunkOverlap int) (*FixedChunker, error) {
	if err := validateSizes(chunkSize, chunkOverlap); err != nil {
		return nil, err
	}
	return &FixedChunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

func (c *FixedChunker) Chunk(_ context.Context, text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	runes := []rune(text)
	stride := c.chunkSize - c.chunkOverlap

	var spans []span
	for start := 0; start < len(runes); start += stride {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		spans = append(spans, span{start: start, end: end})
		if end == len(runes) {
			break
		}
	}
	return spansToChunks(runes, spans, "fixed"), nil
}
