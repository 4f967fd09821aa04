package blob

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ragline/ragline/internal/errors"
)

// MemoryClient is an in-memory blob Client for tests and local runs.
type MemoryClient struct {
	mu      sync.RWMutex
	objects map[string]memoryObject // key: bucket + "/" + path
}

type memoryObject struct {
	data     []byte
	etag     string
	modified time.Time
}

var _ Client = (*MemoryClient)(nil)

// NewMemoryClient creates an empty in-memory blob client.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{objects: make(map[string]memoryObject)}
}

func (c *MemoryClient) Get(_ context.Context, uri string) ([]byte, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	obj, ok := c.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.NotFound(errors.ErrCodeDocumentNotFound, "object", uri)
	}
	data := make([]byte, len(obj.data))
	copy(data, obj.data)
	return data, nil
}

func (c *MemoryClient) Put(_ context.Context, uri string, data []byte, _ string) error {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return err
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	sum := md5.Sum(stored)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[bucket+"/"+key] = memoryObject{
		data:     stored,
		etag:     hex.EncodeToString(sum[:]),
		modified: time.Now().UTC(),
	}
	return nil
}

func (c *MemoryClient) List(_ context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var objects []ObjectInfo
	want := bucket + "/"
	for full, obj := range c.objects {
		if !strings.HasPrefix(full, want) {
			continue
		}
		key := full[len(want):]
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		objects = append(objects, ObjectInfo{
			Key:          key,
			Size:         int64(len(obj.data)),
			ETag:         obj.etag,
			LastModified: obj.modified,
		})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (c *MemoryClient) Delete(_ context.Context, uri string) error {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, bucket+"/"+key)
	return nil
}

func (c *MemoryClient) Stat(_ context.Context, uri string) (*ObjectInfo, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	obj, ok := c.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.NotFound(errors.ErrCodeDocumentNotFound, "object", uri)
	}
	return &ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		ETag:         obj.etag,
		LastModified: obj.modified,
	}, nil
}

func (c *MemoryClient) Close() error {
	return nil
}

// SetETag overrides the stored ETag for an object. Test hook for
// exercising source-change detection without changing bytes.
func (c *MemoryClient) SetETag(uri, etag string) error {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.objects[bucket+"/"+key]
	if !ok {
		return fmt.Errorf("object %s not found", uri)
	}
	obj.etag = etag
	obj.modified = time.Now().UTC()
	c.objects[bucket+"/"+key] = obj
	return nil
}
