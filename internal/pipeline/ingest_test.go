package pipeline

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/internal/blob"
	"github.com/ragline/ragline/internal/component"
	"github.com/ragline/ragline/internal/indexer"
	"github.com/ragline/ragline/internal/store"
)

type testEnv struct {
	orch     *Orchestrator
	store    *store.Store
	blob     *blob.MemoryClient
	vector   *indexer.VectorIndexer
	text     *indexer.TextIndexer
	registry *component.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	env := &testEnv{
		store:  s,
		blob:   blob.NewMemoryClient(),
		vector: indexer.NewVectorIndexer(indexer.VectorConfig{}),
		text:   indexer.NewTextIndexer(indexer.TextConfig{}),
	}

	env.registry = component.NewRegistry()
	require.NoError(t, component.RegisterBuiltins(env.registry))

	env.orch, err = New(env.deps(env.blob), Options{ManagedBucket: "managed"})
	require.NoError(t, err)
	t.Cleanup(func() { env.orch.Close() })
	return env
}

func (e *testEnv) deps(blobClient blob.Client) Deps {
	return Deps{
		Store:    e.store,
		Blob:     blobClient,
		Vector:   e.vector,
		Text:     e.text,
		Registry: e.registry,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (e *testEnv) putObject(t *testing.T, uri string, data []byte) {
	t.Helper()
	require.NoError(t, e.blob.Put(context.Background(), uri, data, ""))
}

func fixedLocalConfig() IngestionConfig {
	return IngestionConfig{
		Parser:   ComponentConfig{Type: "text"},
		Chunker:  ComponentConfig{Type: "fixed", Params: map[string]any{"chunk_size": 20, "chunk_overlap": 5}},
		Embedder: ComponentConfig{Type: "local", Params: map[string]any{"dimension": 4}},
		Indexer:  ComponentConfig{Type: "vector", Params: map[string]any{"metric_type": "cosine"}},
	}
}

func TestIngest_HappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	content := "The cat sat. The cat sat on the mat. Goodbye."
	env.putObject(t, "blob://src/docs/cats.txt", []byte(content))

	result, err := env.orch.Ingest(ctx, "t1", "kb1",
		[]DocumentInput{{StorageURI: "blob://src/docs/cats.txt", Filename: "cats.txt"}},
		fixedLocalConfig())
	require.NoError(t, err)
	require.Len(t, result.Documents, 1)
	assert.Equal(t, 1, result.Indexed)

	docResult := result.Documents[0]
	assert.Equal(t, store.StatusIndexed, docResult.Status)
	assert.Equal(t, 3, docResult.ChunkCount)

	doc, err := env.store.GetDocument(ctx, docResult.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusIndexed, doc.Status)
	assert.Equal(t, 3, doc.ChunkCount)
	assert.Equal(t, 1, doc.Version)
	require.NotNil(t, doc.ProcessedAt)
	assert.Contains(t, doc.StorageURI, "tenant-t1/kb-kb1/doc-"+doc.ID+"/v1/cats.txt")

	chunks, err := env.store.ChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	starts := make([]int, len(chunks))
	for i, c := range chunks {
		require.NotNil(t, c.StartChar)
		starts[i] = *c.StartChar
		assert.Equal(t, "local-hash", c.EmbeddingModel)
		assert.NotEmpty(t, c.VectorID)
	}
	assert.Equal(t, []int{0, 15, 30}, starts)

	exists, err := env.vector.Exists(ctx, "kb_t1_kb1")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 3, env.vector.Count("kb_t1_kb1"))

	run, err := env.store.GetRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunCompleted, run.Status)
	assert.Equal(t, 1.0, run.Metrics["documents_indexed"])
	assert.Equal(t, "fixed", run.Config["chunker"].(map[string]any)["type"])
}

func TestIngest_DuplicateRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.putObject(t, "blob://src/a.txt", []byte("same bytes"))
	env.putObject(t, "blob://src/b.txt", []byte("same bytes"))

	first, err := env.orch.Ingest(ctx, "t1", "kb1",
		[]DocumentInput{{StorageURI: "blob://src/a.txt", Filename: "a.txt"}},
		fixedLocalConfig())
	require.NoError(t, err)
	require.Equal(t, 1, first.Indexed)
	existingID := first.Documents[0].DocumentID

	second, err := env.orch.Ingest(ctx, "t1", "kb1",
		[]DocumentInput{{StorageURI: "blob://src/b.txt", Filename: "b.txt"}},
		fixedLocalConfig())
	require.NoError(t, err)
	require.Equal(t, 1, second.Failed)
	assert.Contains(t, second.Documents[0].Error, "already exists")
	assert.Contains(t, second.Documents[0].Error, existingID)

	// The run itself still completes; failures are per-document.
	run, err := env.store.GetRun(ctx, second.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunCompleted, run.Status)
}

func TestIngest_EmptyChunksStillIndexed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.putObject(t, "blob://src/blank.txt", []byte("   \n\t  "))

	result, err := env.orch.Ingest(ctx, "t1", "kb1",
		[]DocumentInput{{StorageURI: "blob://src/blank.txt", Filename: "blank.txt"}},
		fixedLocalConfig())
	require.NoError(t, err)
	require.Equal(t, 1, result.Indexed)
	assert.Equal(t, 0, result.Documents[0].ChunkCount)

	doc, err := env.store.GetDocument(ctx, result.Documents[0].DocumentID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusIndexed, doc.Status)
	assert.Equal(t, 0, doc.ChunkCount)
}

func TestIngest_PerDocumentIsolation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.putObject(t, "blob://src/good.txt", []byte("a perfectly fine document"))

	result, err := env.orch.Ingest(ctx, "t1", "kb1", []DocumentInput{
		{StorageURI: "blob://src/missing.txt", Filename: "missing.txt"},
		{StorageURI: "blob://src/good.txt", Filename: "good.txt"},
	}, fixedLocalConfig())
	require.NoError(t, err)

	require.Len(t, result.Documents, 2)
	assert.Equal(t, store.StatusFailed, result.Documents[0].Status)
	assert.Equal(t, store.StatusIndexed, result.Documents[1].Status)
	assert.Equal(t, 1, result.Indexed)
	assert.Equal(t, 1, result.Failed)

	run, err := env.store.GetRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunCompleted, run.Status, "one bad document never fails the run")
}

// cancelOnGet cancels the batch context once a marked URI is fetched,
// simulating cancellation arriving mid-batch.
type cancelOnGet struct {
	blob.Client
	cancel  context.CancelFunc
	trigger string
}

func (c *cancelOnGet) Get(ctx context.Context, uri string) ([]byte, error) {
	data, err := c.Client.Get(ctx, uri)
	if uri == c.trigger {
		c.cancel()
	}
	return data, err
}

func TestIngest_CancellationMidBatch(t *testing.T) {
	env := newTestEnv(t)

	env.putObject(t, "blob://src/a.txt", []byte("document a"))
	env.putObject(t, "blob://src/b.txt", []byte("document b"))
	env.putObject(t, "blob://src/c.txt", []byte("document c"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	orch, err := New(env.deps(&cancelOnGet{Client: env.blob, cancel: cancel, trigger: "blob://src/a.txt"}),
		Options{ManagedBucket: "managed"})
	require.NoError(t, err)

	result, err := orch.Ingest(ctx, "t1", "kb1", []DocumentInput{
		{StorageURI: "blob://src/a.txt", Filename: "a.txt"},
		{StorageURI: "blob://src/b.txt", Filename: "b.txt"},
		{StorageURI: "blob://src/c.txt", Filename: "c.txt"},
	}, fixedLocalConfig())
	require.NoError(t, err)

	// The in-flight document ran best-effort; the remainder was skipped.
	require.Len(t, result.Documents, 3)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, StatusSkipped, result.Documents[1].Status)
	assert.Equal(t, "cancelled", result.Documents[1].Error)
	assert.Equal(t, StatusSkipped, result.Documents[2].Status)

	run, err := env.store.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunFailed, run.Status)
	assert.Equal(t, "cancelled", run.Error)
}

func TestIngest_UnknownComponentFailsRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cfg := fixedLocalConfig()
	cfg.Chunker.Type = "paragraph"
	_, err := env.orch.Ingest(ctx, "t1", "kb1",
		[]DocumentInput{{StorageURI: "blob://src/x.txt", Filename: "x.txt"}}, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown component")
}
