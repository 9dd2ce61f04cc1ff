package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/aretw0/baton/pkg/domain"
)

// Store implements ports.BlobStore on the local filesystem.
// Buckets are directories under BasePath; keys may contain "/" and map to nested files.
type Store struct {
	BasePath string
}

// New creates a new Store rooted at basePath.
// If basePath is empty, it defaults to ".baton/blobs".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".baton", "blobs")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) bucketPath(bucket string) (string, error) {
	if bucket == "" || !filepath.IsLocal(bucket) || filepath.Base(bucket) != bucket {
		return "", fmt.Errorf("invalid bucket name %q", bucket)
	}
	return filepath.Join(s.BasePath, bucket), nil
}

func (s *Store) objectPath(bucket, key string) (string, string, error) {
	dir, err := s.bucketPath(bucket)
	if err != nil {
		return "", "", err
	}
	local := filepath.FromSlash(key)
	if key == "" || !filepath.IsLocal(local) {
		return "", "", fmt.Errorf("invalid object key %q", key)
	}
	return dir, filepath.Join(dir, local), nil
}

// BucketExists reports whether the bucket directory exists.
func (s *Store) BucketExists(ctx context.Context, bucket string) (bool, error) {
	dir, err := s.bucketPath(bucket)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat bucket: %w", err)
	}
	return info.IsDir(), nil
}

// EnsureBucket creates the bucket directory if absent.
func (s *Store) EnsureBucket(ctx context.Context, bucket string) error {
	dir, err := s.bucketPath(bucket)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// PutObject writes the reader's content atomically: readers never observe a partial object.
func (s *Store) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64) error {
	dir, dest, err := s.objectPath(bucket, key)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", domain.ErrBucketNotFound, bucket)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to ensure object directory: %w", err)
	}
	return writeAtomic(dest, r)
}

// writeAtomic writes to a temp file in the destination directory (same filesystem,
// required for rename), fsyncs it and renames it over dest.
func writeAtomic(dest string, r io.Reader) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(dest), ".tmp-"+filepath.Base(dest)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := io.Copy(tmpFile, r); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// os.Rename fails on Windows if dest exists.
	if _, err := os.Stat(dest); err == nil {
		if err := os.Remove(dest); err != nil {
			return fmt.Errorf("failed to remove existing object for overwrite: %w", err)
		}
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// GetObject reads the whole object.
func (s *Store) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	_, src, err := s.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", domain.ErrArtifactNotFound, bucket, key)
		}
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

// PutFile uploads a local file.
func (s *Store) PutFile(ctx context.Context, bucket, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return s.PutObject(ctx, bucket, key, f, -1)
}

// GetFile copies the object to path, creating parent directories.
func (s *Store) GetFile(ctx context.Context, bucket, key, path string) error {
	_, src, err := s.objectPath(bucket, key)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s/%s", domain.ErrArtifactNotFound, bucket, key)
		}
		return fmt.Errorf("failed to open object: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to prepare %s: %w", path, err)
	}
	return writeAtomic(path, in)
}
