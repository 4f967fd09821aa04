// Package indexer persists embedded chunks into named collections of
// a vector (ANN) store and a text (inverted) index.
package indexer

import (
	"context"
	"fmt"
)

// Record is one indexable item.
type Record struct {
	ID       string
	Content  string
	Vector   []float32
	Metadata map[string]any
}

// Indexer is the collection-scoped indexing surface shared by the
// vector and text implementations.
//
// EnsureCollection is idempotent. Index is atomic per batch: either
// every record in the batch becomes queryable or none does.
type Indexer interface {
	EnsureCollection(ctx context.Context, name string, dimension int, indexType, metric string) error
	Index(ctx context.Context, collection string, records []Record) error
	Delete(ctx context.Context, collection string, ids []string) error
	Exists(ctx context.Context, collection string) (bool, error)
	Close() error
}

// CollectionName is the physical, deployment-prefixed name for a
// logical collection. Indexers apply it at every entry point, so
// callers always speak logical names.
func CollectionName(prefix, logical string) string {
	return prefix + logical
}

// LogicalCollection is the un-prefixed collection name for a KB.
func LogicalCollection(tenantID, kbID string) string {
	return fmt.Sprintf("kb_%s_%s", tenantID, kbID)
}
