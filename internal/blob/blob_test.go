package blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/internal/errors"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		bucket  string
		path    string
		wantErr bool
	}{
		{"canonical", "blob://docs/a/b.pdf", "docs", "a/b.pdf", false},
		{"legacy bare", "docs/a/b.pdf", "docs", "a/b.pdf", false},
		{"legacy leading slash", "/docs/a/b.pdf", "docs", "a/b.pdf", false},
		{"no path", "blob://docs", "", "", true},
		{"empty", "", "", "", true},
		{"bucket only with slash", "docs/", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, path, err := ParseURI(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.ErrCodeInvalidURI, errors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.path, path)
		})
	}
}

func TestManagedPath(t *testing.T) {
	got := ManagedPath("t1", "kb1", "doc-9", 2, "report.pdf")
	assert.Equal(t, "tenant-t1/kb-kb1/doc-doc-9/v2/report.pdf", got)
}

func TestMemoryClient_RoundTrip(t *testing.T) {
	ctx := context.Background()
	client := NewMemoryClient()

	uri := FormatURI("docs", "a/hello.txt")
	require.NoError(t, client.Put(ctx, uri, []byte("hello"), "text/plain"))

	data, err := client.Get(ctx, uri)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	info, err := client.Stat(ctx, uri)
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
	assert.NotEmpty(t, info.ETag)

	objects, err := client.List(ctx, "docs", "a/")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "a/hello.txt", objects[0].Key)

	require.NoError(t, client.Delete(ctx, uri))
	_, err = client.Get(ctx, uri)
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
}

func TestMemoryClient_ETagChangesWithContent(t *testing.T) {
	ctx := context.Background()
	client := NewMemoryClient()
	uri := FormatURI("docs", "x.txt")

	require.NoError(t, client.Put(ctx, uri, []byte("one"), ""))
	first, err := client.Stat(ctx, uri)
	require.NoError(t, err)

	require.NoError(t, client.Put(ctx, uri, []byte("two"), ""))
	second, err := client.Stat(ctx, uri)
	require.NoError(t, err)

	assert.NotEqual(t, first.ETag, second.ETag)
}
