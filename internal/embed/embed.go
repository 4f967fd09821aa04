// Package embed maps text to fixed-dimension dense vectors via remote
// or local embedders, with LRU caching and instance pooling.
package embed

import (
	"context"
)

// DefaultBatchSize is the default batch size for embedding requests.
const DefaultBatchSize = 64

// Embedder generates dense vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch generates embeddings for multiple texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the embedding dimension.
	Dimensions() int
	// ModelName returns the model identifier recorded on indexed chunks.
	ModelName() string
	// Close releases embedder resources.
	Close() error
}
