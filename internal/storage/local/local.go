// Package local provides a local filesystem storage backend.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Config holds local filesystem backend settings.
type Config struct {
	RootPath   string `json:"root_path"`
	PublicURL  string `json:"public_url"`
	CreateDirs bool   `json:"create_dirs"`
}

// ObjectInfo is stored next to every object as <key>.meta.json.
type ObjectInfo struct {
	ContentType string            `json:"content_type"`
	Size        int64             `json:"size"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// LocalBackend implements storage.Backend using the local filesystem.
type LocalBackend struct {
	rootPath   string
	publicURL  string
	createDirs bool
}

// New creates a new local filesystem backend.
func New(cfg Config) (*LocalBackend, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root_path is required")
	}

	info, err := os.Stat(cfg.RootPath)
	if err != nil {
		if os.IsNotExist(err) && cfg.CreateDirs {
			if mkErr := os.MkdirAll(cfg.RootPath, 0755); mkErr != nil {
				return nil, fmt.Errorf("create root path %s: %w", cfg.RootPath, mkErr)
			}
		} else {
			return nil, fmt.Errorf("stat root path %s: %w", cfg.RootPath, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", cfg.RootPath)
	}

	return &LocalBackend{
		rootPath:   cfg.RootPath,
		publicURL:  strings.TrimRight(cfg.PublicURL, "/"),
		createDirs: cfg.CreateDirs,
	}, nil
}

func (b *LocalBackend) fullPath(key string) (string, error) {
	rel := filepath.FromSlash(key)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(b.rootPath, rel), nil
}

// PutObject writes content and its info sidecar atomically.
func (b *LocalBackend) PutObject(_ context.Context, key string, body io.Reader, size int64, contentType string, metadata map[string]string) error {
	path, err := b.fullPath(key)
	if err != nil {
		return err
	}

	if b.createDirs {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("create dirs for %s: %w", key, err)
		}
	}

	written, err := writeAtomic(path, body)
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if size > 0 && written != size {
		os.Remove(path)
		return fmt.Errorf("write %s: got %d bytes, expected %d", key, written, size)
	}

	info, err := json.Marshal(ObjectInfo{
		ContentType: contentType,
		Size:        written,
		Metadata:    metadata,
	})
	if err != nil {
		return fmt.Errorf("encode info for %s: %w", key, err)
	}
	if _, err := writeAtomic(path+".meta.json", strings.NewReader(string(info))); err != nil {
		return fmt.Errorf("write info for %s: %w", key, err)
	}

	return nil
}

// stat returns the stored info of key.
func (b *LocalBackend) stat(key string) (*ObjectInfo, error) {
	path, err := b.fullPath(key)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path + ".meta.json")
	if err != nil {
		return nil, fmt.Errorf("read info for %s: %w", key, err)
	}
	var info ObjectInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("parse info for %s: %w", key, err)
	}
	return &info, nil
}

// PublicURL returns the configured base URL joined with key.
func (b *LocalBackend) PublicURL(key string) string {
	return b.publicURL + "/" + url.PathEscape(key)
}

// Type returns "local".
func (b *LocalBackend) Type() string { return "local" }

// Close is a no-op for local backends.
func (b *LocalBackend) Close() error { return nil }

// writeAtomic writes to a temp file then renames it over path.
func writeAtomic(path string, body io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".uploader-*.tmp")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, body)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return 0, err
	}
	return n, nil
}
