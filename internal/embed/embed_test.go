package embed

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalEmbedder_Deterministic(t *testing.T) {
	e, err := NewLocalEmbedder(4, true)
	require.NoError(t, err)

	a, err := e.Embed(context.Background(), "the cat sat on the mat")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "the cat sat on the mat")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 4)
	assert.Equal(t, 4, e.Dimensions())

	// Unit norm when normalization is on.
	var sum float64
	for _, x := range a {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}

func TestLocalEmbedder_EmptyTextIsZeroVector(t *testing.T) {
	e, err := NewLocalEmbedder(8, true)
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), vec)
}

func TestLocalEmbedder_ClosedRejects(t *testing.T) {
	e, err := NewLocalEmbedder(4, false)
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, err = e.Embed(context.Background(), "text")
	assert.Error(t, err)
}

func TestLocalEmbedder_BatchPreservesOrder(t *testing.T) {
	e, err := NewLocalEmbedder(16, false)
	require.NoError(t, err)

	texts := []string{"alpha", "beta", "gamma"}
	vectors, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	for i, text := range texts {
		single, err := e.Embed(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, single, vectors[i])
	}
}

// countingEmbedder counts backend calls behind the cache.
type countingEmbedder struct {
	*LocalEmbedder
	calls atomic.Int64
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return c.LocalEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	return c.LocalEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_HitsSkipBackend(t *testing.T) {
	local, err := NewLocalEmbedder(4, false)
	require.NoError(t, err)
	counting := &countingEmbedder{LocalEmbedder: local}
	cached := NewCachedEmbedder(counting, 16)

	ctx := context.Background()
	first, err := cached.Embed(ctx, "query text")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "query text")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), counting.calls.Load())
	assert.Equal(t, 1, cached.Len())
}

func TestCachedEmbedder_BatchOnlyEmbedsMisses(t *testing.T) {
	local, err := NewLocalEmbedder(4, false)
	require.NoError(t, err)
	counting := &countingEmbedder{LocalEmbedder: local}
	cached := NewCachedEmbedder(counting, 16)

	ctx := context.Background()
	_, err = cached.Embed(ctx, "a")
	require.NoError(t, err)
	counting.calls.Store(0)

	vectors, err := cached.EmbedBatch(ctx, []string{"a", "b", "a"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, vectors[0], vectors[2])
	// One backend batch call for the single miss "b".
	assert.Equal(t, int64(1), counting.calls.Load())
}

func TestPool_KeepKEviction(t *testing.T) {
	var closed []string
	factory := func(key string) (Embedder, error) {
		local, err := NewLocalEmbedder(4, false)
		if err != nil {
			return nil, err
		}
		return &trackingEmbedder{LocalEmbedder: local, key: key, closed: &closed}, nil
	}

	pool := NewPool(2, factory)
	_, err := pool.Get("a")
	require.NoError(t, err)
	_, err = pool.Get("b")
	require.NoError(t, err)
	_, err = pool.Get("c") // evicts "a"
	require.NoError(t, err)

	assert.Equal(t, 2, pool.Len())
	assert.Equal(t, []string{"a"}, closed)

	// "b" is still live and returned without reconstruction.
	b1, err := pool.Get("b")
	require.NoError(t, err)
	b2, err := pool.Get("b")
	require.NoError(t, err)
	assert.Same(t, b1.(*trackingEmbedder), b2.(*trackingEmbedder))

	require.NoError(t, pool.Close())
	assert.Len(t, closed, 3)
}

type trackingEmbedder struct {
	*LocalEmbedder
	key    string
	closed *[]string
}

func (e *trackingEmbedder) Close() error {
	*e.closed = append(*e.closed, e.key)
	return e.LocalEmbedder.Close()
}

func TestPool_FactoryErrorPropagates(t *testing.T) {
	pool := NewPool(2, func(key string) (Embedder, error) {
		return nil, fmt.Errorf("no such model %q", key)
	})
	_, err := pool.Get("missing")
	assert.ErrorContains(t, err, "missing")
}
