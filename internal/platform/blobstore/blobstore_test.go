package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	art, err := s.Put(ctx, "exports/req-1.zip", "application/zip", []byte("bundle"))
	require.NoError(t, err)
	assert.Equal(t, "memory://exports/req-1.zip", art.URL)
	assert.Equal(t, int64(6), art.Size)
	assert.Len(t, art.SHA256, 64)

	data, err := s.Get(ctx, "exports/req-1.zip")
	require.NoError(t, err)
	assert.Equal(t, []byte("bundle"), data)
}

func TestMemoryStoreGetMissing(t *testing.T) {
	s := NewMemory()
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorePutOverwrites(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	_, err := s.Put(ctx, "k", "text/plain", []byte("v1"))
	require.NoError(t, err)
	art, err := s.Put(ctx, "k", "text/plain", []byte("v2"))
	require.NoError(t, err)

	data, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)
	assert.Equal(t, digest([]byte("v2")), art.SHA256)
}

func TestFSStoreRoundTrip(t *testing.T) {
	s, err := NewFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	art, err := s.Put(ctx, "pia/req-2.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", []byte("xlsx"))
	require.NoError(t, err)
	assert.Contains(t, art.URL, "file://")

	data, err := s.Get(ctx, "pia/req-2.xlsx")
	require.NoError(t, err)
	assert.Equal(t, []byte("xlsx"), data)
}

func TestFSStoreRejectsTraversal(t *testing.T) {
	s, err := NewFS(t.TempDir())
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "../escape", "text/plain", []byte("x"))
	assert.Error(t, err)
}

func TestFSStoreGetMissing(t *testing.T) {
	s, err := NewFS(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}
