package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/baton/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Store implements ports.BlobStore on Redis.
// Buckets are members of a set; every object is a plain string key.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for objects. Buckets never expire.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// NewFromClient creates a Redis store on an existing client, which a Locker may share.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "baton:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) bucketsKey() string {
	return s.prefix + "buckets"
}

func (s *Store) objectKey(bucket, key string) string {
	return s.prefix + "obj:" + bucket + ":" + key
}

// BucketExists reports whether the bucket was created.
func (s *Store) BucketExists(ctx context.Context, bucket string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.bucketsKey(), bucket).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check bucket: %w", err)
	}
	return ok, nil
}

// EnsureBucket adds the bucket to the set. SADD is a no-op for existing members.
func (s *Store) EnsureBucket(ctx context.Context, bucket string) error {
	if err := s.client.SAdd(ctx, s.bucketsKey(), bucket).Err(); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// PutObject stores the whole reader as one value.
func (s *Store) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}
	return s.put(ctx, bucket, key, data)
}

func (s *Store) put(ctx context.Context, bucket, key string, data []byte) error {
	exists, err := s.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", domain.ErrBucketNotFound, bucket)
	}
	if err := s.client.Set(ctx, s.objectKey(bucket, key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// GetObject retrieves the object bytes.
func (s *Store) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.objectKey(bucket, key)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, fmt.Errorf("%w: %s/%s", domain.ErrArtifactNotFound, bucket, key)
		}
		return nil, fmt.Errorf("failed to load from redis: %w", err)
	}
	return data, nil
}

// PutFile uploads a local file.
func (s *Store) PutFile(ctx context.Context, bucket, key, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return s.put(ctx, bucket, key, data)
}

// GetFile writes the object to path.
func (s *Store) GetFile(ctx context.Context, bucket, key, path string) error {
	data, err := s.GetObject(ctx, bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to prepare %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
