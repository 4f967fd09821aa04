package blob

import (
	"context"
	"time"
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// Client is the blob store interface used by the orchestrators and the
// SSOT synchronizer. URIs passed to Get/Put/Delete/Stat are full storage
// URIs in any accepted form.
type Client interface {
	// Get downloads the object bytes.
	Get(ctx context.Context, uri string) ([]byte, error)
	// Put uploads the object bytes, creating or replacing it.
	Put(ctx context.Context, uri string, data []byte, contentType string) error
	// List enumerates objects under a bucket prefix.
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, uri string) error
	// Stat returns object metadata without the body.
	Stat(ctx context.Context, uri string) (*ObjectInfo, error)
	// Close releases client resources.
	Close() error
}
