package ports

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/baton/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBlobStoreContract runs a suite of tests to verify that a BlobStore implementation
// adheres to the defined interface contract.
func RunBlobStoreContract(t *testing.T, store BlobStore) {
	ctx := context.Background()
	bucket := "contract-" + time.Now().Format("20060102150405")

	t.Run("EnsureBucket is idempotent", func(t *testing.T) {
		exists, err := store.BucketExists(ctx, bucket)
		require.NoError(t, err)
		assert.False(t, exists, "bucket should not exist before EnsureBucket")

		require.NoError(t, store.EnsureBucket(ctx, bucket))
		require.NoError(t, store.EnsureBucket(ctx, bucket), "second EnsureBucket must be a no-op")

		exists, err = store.BucketExists(ctx, bucket)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("Put and Get round trip", func(t *testing.T) {
		require.NoError(t, store.EnsureBucket(ctx, bucket))
		payload := []byte{0x00, 0x01, 0xfe, 0xff, 'o', 'k'}

		err := store.PutObject(ctx, bucket, "result", bytes.NewReader(payload), int64(len(payload)))
		require.NoError(t, err)

		got, err := store.GetObject(ctx, bucket, "result")
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})

	t.Run("Put with unknown length", func(t *testing.T) {
		require.NoError(t, store.EnsureBucket(ctx, bucket))
		payload := strings.Repeat("streamed ", 1024)

		err := store.PutObject(ctx, bucket, "streamed", strings.NewReader(payload), -1)
		require.NoError(t, err)

		got, err := store.GetObject(ctx, bucket, "streamed")
		require.NoError(t, err)
		assert.Equal(t, payload, string(got))
	})

	t.Run("Put overwrites", func(t *testing.T) {
		require.NoError(t, store.EnsureBucket(ctx, bucket))
		require.NoError(t, store.PutObject(ctx, bucket, "over", strings.NewReader("first"), 5))
		require.NoError(t, store.PutObject(ctx, bucket, "over", strings.NewReader("second"), 6))

		got, err := store.GetObject(ctx, bucket, "over")
		require.NoError(t, err)
		assert.Equal(t, "second", string(got))
	})

	t.Run("Nested keys", func(t *testing.T) {
		require.NoError(t, store.EnsureBucket(ctx, bucket))
		require.NoError(t, store.PutObject(ctx, bucket, "run-1/result", strings.NewReader("scoped"), -1))

		got, err := store.GetObject(ctx, bucket, "run-1/result")
		require.NoError(t, err)
		assert.Equal(t, "scoped", string(got))
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		require.NoError(t, store.EnsureBucket(ctx, bucket))
		_, err := store.GetObject(ctx, bucket, "missing")
		assert.ErrorIs(t, err, domain.ErrArtifactNotFound)

		err = store.GetFile(ctx, bucket, "missing", filepath.Join(t.TempDir(), "missing"))
		assert.ErrorIs(t, err, domain.ErrArtifactNotFound)
	})

	t.Run("Put into missing bucket", func(t *testing.T) {
		err := store.PutObject(ctx, bucket+"-absent", "result", strings.NewReader("x"), 1)
		assert.ErrorIs(t, err, domain.ErrBucketNotFound)
	})

	t.Run("File round trip", func(t *testing.T) {
		require.NoError(t, store.EnsureBucket(ctx, bucket))
		dir := t.TempDir()
		src := filepath.Join(dir, "model.bin")
		require.NoError(t, os.WriteFile(src, []byte("weights"), 0o644))

		require.NoError(t, store.PutFile(ctx, bucket, "model", src))

		dst := filepath.Join(dir, "out", "model.bin")
		require.NoError(t, store.GetFile(ctx, bucket, "model", dst))

		got, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "weights", string(got))

		// File uploads are plain objects for every other reader.
		raw, err := store.GetObject(ctx, bucket, "model")
		require.NoError(t, err)
		assert.Equal(t, "weights", string(raw))
	})
}
