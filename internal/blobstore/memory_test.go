package blobstore

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelhub/internal/apperr"
)

func TestMemoryStorePutOpen(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	info, err := store.Put(ctx, strings.NewReader("image-bytes"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, HashBytes([]byte("image-bytes")), info.ID)
	assert.Equal(t, "image/png", info.ContentType)
	assert.Equal(t, int64(len("image-bytes")), info.Size)
	assert.Equal(t, 1, info.RefCount)

	rc, got, err := store.Open(ctx, info.ID)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))
	assert.Equal(t, info.ID, got.ID)
}

func TestMemoryStoreDedup(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, err := store.Put(ctx, bytes.NewReader([]byte("same")), "image/png")
	require.NoError(t, err)
	second, err := store.Put(ctx, bytes.NewReader([]byte("same")), "image/png")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.RefCount)
	assert.Equal(t, 1, store.Len())

	// One release keeps the blob alive for the other reference.
	require.NoError(t, store.Release(ctx, first.ID))
	_, err = store.Stat(ctx, first.ID)
	require.NoError(t, err)

	require.NoError(t, store.Release(ctx, first.ID))
	_, err = store.Stat(ctx, first.ID)
	assert.True(t, apperr.NotFound.Has(err))
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStoreReleaseIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	assert.NoError(t, store.Release(ctx, "never-stored"))
	assert.NoError(t, store.Release(ctx, "never-stored"))
}

func TestMemoryStoreRetain(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	info, err := store.Put(ctx, strings.NewReader("shared"), "image/jpeg")
	require.NoError(t, err)

	require.NoError(t, store.Retain(ctx, info.ID))
	require.NoError(t, store.Release(ctx, info.ID))

	// Still one reference left.
	stat, err := store.Stat(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stat.RefCount)

	err = store.Retain(ctx, "missing")
	assert.True(t, apperr.NotFound.Has(err))
}

func TestMemoryStoreErrors(t *testing.T) {
	store := NewMemoryStore()

	t.Run("empty blob rejected", func(t *testing.T) {
		_, err := store.Put(context.Background(), strings.NewReader(""), "image/png")
		assert.True(t, apperr.Validation.Has(err))
	})

	t.Run("open unknown id", func(t *testing.T) {
		_, _, err := store.Open(context.Background(), "nope")
		assert.True(t, apperr.NotFound.Has(err))
	})

	t.Run("unavailable backend", func(t *testing.T) {
		store.Unavailable = true
		defer func() { store.Unavailable = false }()
		_, err := store.Put(context.Background(), strings.NewReader("x"), "image/png")
		assert.True(t, apperr.StorageUnavailable.Has(err))
	})

	t.Run("expired context maps to timeout", func(t *testing.T) {
		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		defer cancel()
		_, err := store.Put(ctx, strings.NewReader("x"), "image/png")
		assert.True(t, apperr.StorageTimeout.Has(err))
	})
}
