package minio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aretw0/baton/pkg/domain"
	backend "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DefaultPartSize is the multipart chunk used for uploads of unknown length.
const DefaultPartSize = 10 << 20

// Config holds the connection settings for an S3-compatible endpoint.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
	Region    string
}

// Store implements ports.BlobStore on MinIO or any S3-compatible service.
type Store struct {
	client   *backend.Client
	region   string
	partSize uint64
}

type Option func(*Store)

// WithPartSize overrides the multipart chunk size.
func WithPartSize(size uint64) Option {
	return func(s *Store) {
		s.partSize = size
	}
}

// New connects to the endpoint described by cfg.
func New(cfg Config, opts ...Option) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: minio endpoint is required", domain.ErrConfiguration)
	}
	client, err := backend.New(cfg.Endpoint, &backend.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: minio client: %w", domain.ErrConfiguration, err)
	}
	return NewFromClient(client, cfg.Region, opts...), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *backend.Client, region string, opts ...Option) *Store {
	s := &Store{
		client:   client,
		region:   region,
		partSize: DefaultPartSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BucketExists reports whether the bucket exists.
func (s *Store) BucketExists(ctx context.Context, bucket string) (bool, error) {
	ok, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return false, classify(err, bucket, "")
	}
	return ok, nil
}

// EnsureBucket creates the bucket if absent. Losing a creation race to another
// stage is not an error.
func (s *Store) EnsureBucket(ctx context.Context, bucket string) error {
	ok, err := s.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	err = s.client.MakeBucket(ctx, bucket, backend.MakeBucketOptions{Region: s.region})
	if err != nil && !alreadyOwned(err) {
		return classify(err, bucket, "")
	}
	return nil
}

// PutObject uploads the reader. size -1 streams with multipart uploads of partSize.
func (s *Store) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, bucket, key, r, size, backend.PutObjectOptions{
		PartSize:    s.partSize,
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return classify(err, bucket, key)
	}
	return nil
}

// GetObject downloads the whole object.
func (s *Store) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, backend.GetObjectOptions{})
	if err != nil {
		return nil, classify(err, bucket, key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classify(err, bucket, key)
	}
	return data, nil
}

// PutFile uploads a local file.
func (s *Store) PutFile(ctx context.Context, bucket, key, path string) error {
	_, err := s.client.FPutObject(ctx, bucket, key, path, backend.PutObjectOptions{
		PartSize:    s.partSize,
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return classify(err, bucket, key)
	}
	return nil
}

// GetFile downloads the object to path.
func (s *Store) GetFile(ctx context.Context, bucket, key, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to prepare %s: %w", path, err)
	}
	if err := s.client.FGetObject(ctx, bucket, key, path, backend.GetObjectOptions{}); err != nil {
		return classify(err, bucket, key)
	}
	return nil
}
