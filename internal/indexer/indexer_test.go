package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/internal/errors"
)

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "kb_t1_kb1", CollectionName("", LogicalCollection("t1", "kb1")))
	assert.Equal(t, "prod_kb_t1_kb1", CollectionName("prod_", LogicalCollection("t1", "kb1")))
}

func TestVectorIndexer_CollectionPrefix(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	v := NewVectorIndexer(VectorConfig{DataDir: dir, CollectionPrefix: "prod_"})
	require.NoError(t, v.EnsureCollection(ctx, "kb_t1_kb1", 2, "hnsw", "cosine"))
	require.NoError(t, v.Index(ctx, "kb_t1_kb1", []Record{
		{ID: "a", Content: "alpha", Vector: []float32{1, 0}},
	}))

	// Callers keep using the logical name; only the physical name is
	// prefixed.
	assert.Equal(t, 1, v.Count("kb_t1_kb1"))
	_, err := os.Stat(filepath.Join(dir, "prod_kb_t1_kb1.graph"))
	require.NoError(t, err)

	// A reload under the same prefix finds the persisted graph.
	require.NoError(t, v.Close())
	reloaded := NewVectorIndexer(VectorConfig{DataDir: dir, CollectionPrefix: "prod_"})
	require.NoError(t, reloaded.EnsureCollection(ctx, "kb_t1_kb1", 2, "hnsw", "cosine"))
	assert.Equal(t, 1, reloaded.Count("kb_t1_kb1"))

	// A different prefix is a different namespace.
	other := NewVectorIndexer(VectorConfig{DataDir: dir, CollectionPrefix: "staging_"})
	exists, err := other.Exists(ctx, "kb_t1_kb1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestTextIndexer_CollectionPrefix(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	ti := NewTextIndexer(TextConfig{DataDir: dir, CollectionPrefix: "prod_"})
	t.Cleanup(func() { ti.Close() })
	require.NoError(t, ti.EnsureCollection(ctx, "kb_t1_kb1", 0, "bm25", ""))
	require.NoError(t, ti.Index(ctx, "kb_t1_kb1", []Record{
		{ID: "1", Content: "the cat sat"},
	}))

	hits, err := ti.Search(ctx, "kb_t1_kb1", "cat", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	_, err = os.Stat(filepath.Join(dir, "prod_kb_t1_kb1.bleve"))
	require.NoError(t, err)
}

func TestVectorIndexer_EnsureIdempotent(t *testing.T) {
	ctx := context.Background()
	v := NewVectorIndexer(VectorConfig{})

	require.NoError(t, v.EnsureCollection(ctx, "kb_t1_kb1", 4, "hnsw", "cosine"))
	require.NoError(t, v.EnsureCollection(ctx, "kb_t1_kb1", 4, "hnsw", "cosine"))

	// Conflicting dimension is rejected.
	err := v.EnsureCollection(ctx, "kb_t1_kb1", 8, "hnsw", "cosine")
	assert.True(t, errors.IsKind(err, errors.KindValidation))

	exists, err := v.Exists(ctx, "kb_t1_kb1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = v.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestVectorIndexer_IndexSearchDelete(t *testing.T) {
	ctx := context.Background()
	v := NewVectorIndexer(VectorConfig{})
	require.NoError(t, v.EnsureCollection(ctx, "c", 2, "hnsw", "cosine"))

	records := []Record{
		{ID: "a", Content: "alpha", Vector: []float32{1, 0}, Metadata: map[string]any{"doc": "d1"}},
		{ID: "b", Content: "beta", Vector: []float32{0, 1}},
		{ID: "c", Content: "gamma", Vector: []float32{0.9, 0.1}},
	}
	require.NoError(t, v.Index(ctx, "c", records))
	assert.Equal(t, 3, v.Count("c"))

	hits, err := v.Search(ctx, "c", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "alpha", hits[0].Content)
	assert.Equal(t, "d1", hits[0].Metadata["doc"])
	assert.Equal(t, "c", hits[1].ID)

	require.NoError(t, v.Delete(ctx, "c", []string{"a"}))
	assert.Equal(t, 2, v.Count("c"))

	hits, err = v.Search(ctx, "c", []float32{1, 0}, 3)
	require.NoError(t, err)
	for _, hit := range hits {
		assert.NotEqual(t, "a", hit.ID, "deleted ids never surface")
	}
}

func TestVectorIndexer_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	v := NewVectorIndexer(VectorConfig{})
	require.NoError(t, v.EnsureCollection(ctx, "c", 4, "hnsw", "cosine"))

	err := v.Index(ctx, "c", []Record{{ID: "a", Vector: []float32{1, 0}}})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDimensionMismatch, errors.CodeOf(err))
	assert.Equal(t, 0, v.Count("c"), "batch must be all-or-nothing")
}

func TestVectorIndexer_UnknownCollection(t *testing.T) {
	v := NewVectorIndexer(VectorConfig{})
	err := v.Index(context.Background(), "nope", []Record{{ID: "a", Vector: []float32{1}}})
	assert.Equal(t, errors.ErrCodeCollectionNotFound, errors.CodeOf(err))
}

func TestVectorIndexer_PersistAndReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	v := NewVectorIndexer(VectorConfig{DataDir: dir})
	require.NoError(t, v.EnsureCollection(ctx, "c", 2, "hnsw", "cosine"))
	require.NoError(t, v.Index(ctx, "c", []Record{
		{ID: "a", Content: "alpha", Vector: []float32{1, 0}},
		{ID: "b", Content: "beta", Vector: []float32{0, 1}},
	}))
	require.NoError(t, v.Close())

	reloaded := NewVectorIndexer(VectorConfig{DataDir: dir})
	require.NoError(t, reloaded.EnsureCollection(ctx, "c", 2, "hnsw", "cosine"))
	assert.Equal(t, 2, reloaded.Count("c"))

	hits, err := reloaded.Search(ctx, "c", []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "alpha", hits[0].Content)
}

func TestVectorIndexer_IPMetricOrdersByDotProduct(t *testing.T) {
	ctx := context.Background()
	v := NewVectorIndexer(VectorConfig{})
	require.NoError(t, v.EnsureCollection(ctx, "c", 2, "hnsw", "ip"))
	require.NoError(t, v.Index(ctx, "c", []Record{
		{ID: "small", Vector: []float32{0.1, 0}},
		{ID: "large", Vector: []float32{0.9, 0}},
	}))

	hits, err := v.Search(ctx, "c", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "large", hits[0].ID)
}

func TestTextIndexer_IndexSearchDelete(t *testing.T) {
	ctx := context.Background()
	ti := NewTextIndexer(TextConfig{})
	require.NoError(t, ti.EnsureCollection(ctx, "c", 0, "bm25", ""))
	require.NoError(t, ti.EnsureCollection(ctx, "c", 0, "bm25", ""), "idempotent")

	require.NoError(t, ti.Index(ctx, "c", []Record{
		{ID: "1", Content: "the cat sat on the mat"},
		{ID: "2", Content: "stocks fell sharply on tuesday"},
		{ID: "3", Content: "a cat and a dog"},
	}))

	count, err := ti.Count("c")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)

	hits, err := ti.Search(ctx, "c", "cat", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	ids := []string{hits[0].ID, hits[1].ID}
	assert.ElementsMatch(t, []string{"1", "3"}, ids)
	assert.NotEmpty(t, hits[0].Content)
	assert.Greater(t, hits[0].Score, 0.0)

	// Empty query matches nothing.
	hits, err = ti.Search(ctx, "c", "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, ti.Delete(ctx, "c", []string{"1"}))
	hits, err = ti.Search(ctx, "c", "cat", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "3", hits[0].ID)
}

func TestTextIndexer_UnknownCollection(t *testing.T) {
	ti := NewTextIndexer(TextConfig{})
	_, err := ti.Search(context.Background(), "nope", "query", 5)
	assert.Equal(t, errors.ErrCodeCollectionNotFound, errors.CodeOf(err))
}
