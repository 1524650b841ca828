// Package memory provides an in-process storage backend for dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"sync"
)

// Object is a stored object.
type Object struct {
	Key         string
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

// Backend keeps objects in a map.
type Backend struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]Object
}

// New creates an empty backend whose URLs are qualified by bucket.
func New(bucket string) *Backend {
	return &Backend{
		bucket:  bucket,
		objects: make(map[string]Object),
	}
}

// PutObject stores a copy of body under key.
func (b *Backend) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string, metadata map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if size > 0 && int64(len(data)) != size {
		return fmt.Errorf("put %s: got %d bytes, expected %d", key, len(data), size)
	}

	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}

	b.mu.Lock()
	b.objects[key] = Object{Key: key, Data: data, ContentType: contentType, Metadata: meta}
	b.mu.Unlock()
	return nil
}

// Get returns the object stored under key.
func (b *Backend) Get(key string) (Object, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obj, ok := b.objects[key]
	return obj, ok
}

// Keys returns the stored keys in order.
func (b *Backend) Keys() []string {
	b.mu.RLock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	b.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// PublicURL returns memory://<bucket>/<key>.
func (b *Backend) PublicURL(key string) string {
	return "memory://" + b.bucket + "/" + url.PathEscape(key)
}

// Type returns "memory".
func (b *Backend) Type() string { return "memory" }

// Close is a no-op.
func (b *Backend) Close() error { return nil }
