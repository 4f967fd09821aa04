package ssot

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/internal/blob"
	"github.com/ragline/ragline/internal/store"
)

type syncEnv struct {
	sync  *Synchronizer
	store *store.Store
	blob  *blob.MemoryClient
}

func newSyncEnv(t *testing.T) *syncEnv {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	client := blob.NewMemoryClient()
	return &syncEnv{
		sync:  New(s, client, slog.New(slog.NewTextHandler(io.Discard, nil))),
		store: s,
		blob:  client,
	}
}

func (e *syncEnv) put(t *testing.T, uri string, data []byte) {
	t.Helper()
	require.NoError(t, e.blob.Put(context.Background(), uri, data, ""))
}

func syncConfig() Config {
	return Config{
		SourceBucket:  "source",
		Prefix:        "docs/",
		TenantID:      "t1",
		KBID:          "kb1",
		ManagedBucket: "managed",
	}
}

func TestSync_VersionSemantics(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	// First sweep: one new object becomes an ssot document at v1.
	env.put(t, "blob://source/docs/a.pdf", []byte("original bytes"))
	result, err := env.sync.Sync(ctx, syncConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, result.New)
	assert.Empty(t, result.Errors)

	run, err := env.store.GetRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunCompleted, run.Status)
	assert.Equal(t, 1.0, run.Result["new"])

	doc, err := env.store.FindDocumentBySourcePath(ctx, "kb1", "docs/a.pdf")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, store.SourceSSOT, doc.SourceType)
	assert.Equal(t, store.StatusPending, doc.Status)
	assert.Equal(t, 1, doc.Version)
	firstETag := doc.Metadata["source_etag"]
	assert.Contains(t, doc.StorageURI, "/v1/")

	// Second sweep: same bytes behind a new ETag refreshes metadata
	// without a version bump.
	require.NoError(t, env.blob.SetETag("blob://source/docs/a.pdf", "rotated-etag"))
	result, err = env.sync.Sync(ctx, syncConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Unchanged)
	assert.Equal(t, 0, result.Modified)

	doc, err = env.store.FindDocumentBySourcePath(ctx, "kb1", "docs/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Version)
	assert.Equal(t, "rotated-etag", doc.Metadata["source_etag"])
	assert.NotEqual(t, firstETag, doc.Metadata["source_etag"])

	// Third sweep: new bytes bump the version and reset to pending.
	env.put(t, "blob://source/docs/a.pdf", []byte("revised bytes"))
	result, err = env.sync.Sync(ctx, syncConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Modified)

	doc, err = env.store.FindDocumentBySourcePath(ctx, "kb1", "docs/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Version)
	assert.Equal(t, store.StatusPending, doc.Status)
	assert.Contains(t, doc.StorageURI, "/v2/")
	assert.Equal(t, 1.0, doc.Metadata["previous_version"])

	// The v1 bytes stay addressable under the old path.
	old, err := env.blob.Get(ctx, "blob://managed/"+blob.ManagedPath("t1", "kb1", doc.ID, 1, "a.pdf"))
	require.NoError(t, err)
	assert.Equal(t, []byte("original bytes"), old)
}

func TestSync_NoChangesIsIdempotent(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	env.put(t, "blob://source/docs/a.txt", []byte("alpha"))
	env.put(t, "blob://source/docs/b.txt", []byte("beta"))

	result, err := env.sync.Sync(ctx, syncConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, result.New)

	result, err = env.sync.Sync(ctx, syncConfig())
	require.NoError(t, err)
	assert.Equal(t, 0, result.New)
	assert.Equal(t, 2, result.Unchanged)
}

func TestSync_FullStrategyRechecksums(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	env.put(t, "blob://source/docs/a.txt", []byte("alpha"))
	_, err := env.sync.Sync(ctx, syncConfig())
	require.NoError(t, err)

	// Full strategy re-downloads despite a matching ETag; identical
	// bytes still land in unchanged.
	cfg := syncConfig()
	cfg.Strategy = StrategyFull
	result, err := env.sync.Sync(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Unchanged)
	assert.Equal(t, 0, result.Modified)
}

func TestSync_DeletedTombstones(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	env.put(t, "blob://source/docs/gone.txt", []byte("ephemeral"))
	_, err := env.sync.Sync(ctx, syncConfig())
	require.NoError(t, err)

	doc, err := env.store.FindDocumentBySourcePath(ctx, "kb1", "docs/gone.txt")
	require.NoError(t, err)
	require.NotNil(t, doc)

	require.NoError(t, env.blob.Delete(ctx, "blob://source/docs/gone.txt"))
	result, err := env.sync.Sync(ctx, syncConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)

	doc, err = env.store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, doc.Status)
	assert.Equal(t, true, doc.Metadata["tombstone"])
	assert.Equal(t, "source object deleted", doc.Error)

	// A tombstoned document does not count as deleted again.
	result, err = env.sync.Sync(ctx, syncConfig())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Deleted)
}

func TestSync_RestoredObjectClearsTombstone(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	env.put(t, "blob://source/docs/back.txt", []byte("stable bytes"))
	_, err := env.sync.Sync(ctx, syncConfig())
	require.NoError(t, err)

	require.NoError(t, env.blob.Delete(ctx, "blob://source/docs/back.txt"))
	_, err = env.sync.Sync(ctx, syncConfig())
	require.NoError(t, err)

	doc, err := env.store.FindDocumentBySourcePath(ctx, "kb1", "docs/back.txt")
	require.NoError(t, err)
	require.Equal(t, true, doc.Metadata["tombstone"])

	// The object reappears with identical bytes. A full sweep
	// re-checksums it and resurrects the document without a version
	// bump.
	env.put(t, "blob://source/docs/back.txt", []byte("stable bytes"))
	cfg := syncConfig()
	cfg.Strategy = StrategyFull
	result, err := env.sync.Sync(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Unchanged)
	assert.Equal(t, 0, result.Deleted)

	doc, err = env.store.FindDocumentBySourcePath(ctx, "kb1", "docs/back.txt")
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, doc.Status)
	assert.NotContains(t, doc.Metadata, "tombstone")
	assert.Empty(t, doc.Error)
	assert.Equal(t, 1, doc.Version)
}

func TestSync_FilePattern(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	env.put(t, "blob://source/docs/keep.pdf", []byte("pdf bytes"))
	env.put(t, "blob://source/docs/skip.tmp", []byte("tmp bytes"))

	cfg := syncConfig()
	cfg.FilePattern = "*.pdf"
	result, err := env.sync.Sync(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, result.New)

	doc, err := env.store.FindDocumentBySourcePath(ctx, "kb1", "docs/skip.tmp")
	require.NoError(t, err)
	assert.Nil(t, doc, "filtered objects are never registered")
}

func TestSync_RequiresConfig(t *testing.T) {
	env := newSyncEnv(t)
	_, err := env.sync.Sync(context.Background(), Config{})
	assert.Error(t, err)
}
