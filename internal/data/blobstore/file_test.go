package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "snapshots")
	s, err := NewFileStore(root)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "abc/grid.bin", []byte{1, 2, 3}))
	require.NoError(t, s.Put(ctx, "abc/grid.bin", []byte{4, 5}))

	got, err := s.Get(ctx, "abc/grid.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 5}, got)

	entries, err := os.ReadDir(filepath.Join(root, "abc"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	require.NoError(t, s.Delete(ctx, "abc/grid.bin"))
	_, err = s.Get(ctx, "abc/grid.bin")
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NoDirExists(t, filepath.Join(root, "abc"))
	assert.NoError(t, s.Delete(ctx, "abc/grid.bin"))
}

func TestFileStoreRejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", ".", "..", "../x", "a/../../x", "/etc/passwd"} {
		t.Run(key, func(t *testing.T) {
			assert.ErrorIs(t, s.Put(ctx, key, []byte("x")), ErrInvalidKey)
		})
	}
}

func TestFileStoreHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	assert.ErrorIs(t, s.Put(ctx, "k", nil), context.Canceled)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}
