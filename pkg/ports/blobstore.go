package ports

import (
	"context"
	"io"
)

// BlobStore is the object storage the pipeline hands artifacts through.
//
// Writes are full overwrites and are visible to every reader as soon as the call
// returns. GetObject and GetFile return domain.ErrArtifactNotFound for missing
// objects; writes into a missing bucket return domain.ErrBucketNotFound.
type BlobStore interface {
	// BucketExists reports whether the bucket exists.
	BucketExists(ctx context.Context, bucket string) (bool, error)

	// EnsureBucket creates the bucket if absent. Existing buckets are not an error.
	EnsureBucket(ctx context.Context, bucket string) error

	// PutObject stores r under bucket/key. size may be -1 when the length is unknown.
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64) error

	// GetObject returns the full object payload.
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)

	// PutFile uploads a local file.
	PutFile(ctx context.Context, bucket, key, path string) error

	// GetFile downloads an object into a local file, creating parent directories.
	GetFile(ctx context.Context, bucket, key, path string) error
}
