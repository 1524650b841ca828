package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/uploader/internal/storage/local"
	s3backend "github.com/fruitsalade/uploader/internal/storage/s3"
)

func TestNewBackend(t *testing.T) {
	ctx := context.Background()

	mem, err := NewBackend(ctx, Config{Type: "memory", S3: s3backend.Config{Bucket: "b"}})
	require.NoError(t, err)
	assert.Equal(t, "memory", mem.Type())
	assert.Equal(t, "memory://b/k", mem.PublicURL("k"))

	loc, err := NewBackend(ctx, Config{Type: "local", Local: local.Config{
		RootPath:   filepath.Join(t.TempDir(), "objects"),
		PublicURL:  "http://files.test",
		CreateDirs: true,
	}})
	require.NoError(t, err)
	assert.Equal(t, "local", loc.Type())
	assert.Equal(t, "http://files.test/k", loc.PublicURL("k"))
	assert.NoError(t, loc.Close())

	_, err = NewBackend(ctx, Config{Type: "smb"})
	assert.Error(t, err)
}
