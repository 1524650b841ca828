// Package storage defines the Backend interface for the object store that
// holds uploaded files and their thumbnails.
package storage

import (
	"context"
	"io"
)

// Backend is the interface for object storage backends.
type Backend interface {
	// PutObject uploads size bytes from body under key with the given content
	// type and user metadata.
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string, metadata map[string]string) error

	// PublicURL returns the URL under which key is publicly readable. It is
	// computed from configuration and never performs a round trip.
	PublicURL(key string) string

	// Type returns the backend type identifier ("s3", "local", "memory").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}
