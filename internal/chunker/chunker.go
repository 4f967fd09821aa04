// Package chunker splits parsed text into overlapping, position-tagged
// pieces. Offsets are rune offsets into the parsed text; -1 means the
// offset is not derivable for that chunk.
package chunker

import (
	"context"
	"fmt"
	"strings"

	"github.com/ragline/ragline/internal/errors"
)

// Chunk is one positioned piece of a document's text.
type Chunk struct {
	Content   string
	Index     int
	StartChar int
	EndChar   int
	Metadata  map[string]any
}

// Chunker splits text into chunks. Empty or whitespace-only input
// yields zero chunks.
type Chunker interface {
	Chunk(ctx context.Context, text string) ([]Chunk, error)
}

// Embedder is the minimal embedding surface the semantic chunker needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// validateSizes enforces the shared size/overlap contract.
func validateSizes(chunkSize, chunkOverlap int) error {
	if chunkSize <= 0 {
		return errors.Validation(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("chunk_size must be positive, got %d", chunkSize))
	}
	if chunkOverlap < 0 {
		return errors.Validation(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("chunk_overlap must be non-negative, got %d", chunkOverlap))
	}
	if chunkOverlap >= chunkSize {
		return errors.Validation(errors.ErrCodeChunkOverlap,
			fmt.Sprintf("chunk_overlap (%d) must be smaller than chunk_size (%d)", chunkOverlap, chunkSize))
	}
	return nil
}

// span is a [start, end) rune range into the source text.
type span struct {
	start, end int
}

// spansToChunks materializes spans as chunks over the source runes,
// skipping whitespace-only windows.
func spansToChunks(runes []rune, spans []span, kind string) []Chunk {
	chunks := make([]Chunk, 0, len(spans))
	for _, s := range spans {
		content := string(runes[s.start:s.end])
		if strings.TrimSpace(content) == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Content:   content,
			Index:     len(chunks),
			StartChar: s.start,
			EndChar:   s.end,
			Metadata:  map[string]any{"chunker": kind},
		})
	}
	return chunks
}
