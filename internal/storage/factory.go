package storage

import (
	"context"
	"fmt"

	"github.com/fruitsalade/uploader/internal/storage/local"
	"github.com/fruitsalade/uploader/internal/storage/memory"
	s3backend "github.com/fruitsalade/uploader/internal/storage/s3"
)

// Config selects and configures a backend.
type Config struct {
	Type  string // "s3", "local" or "memory"
	S3    s3backend.Config
	Local local.Config
}

// NewBackend creates the Backend described by cfg.
func NewBackend(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Type {
	case "s3":
		b, err := s3backend.New(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "local":
		b, err := local.New(cfg.Local)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "memory":
		return memory.New(cfg.S3.Bucket), nil
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}
