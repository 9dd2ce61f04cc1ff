package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/aretw0/baton/pkg/domain"
)

// Op names a BlobStore operation, for fault injection and call counting.
type Op string

const (
	OpBucketExists Op = "bucket_exists"
	OpEnsureBucket Op = "ensure_bucket"
	OpPut          Op = "put"
	OpGet          Op = "get"
)

// Store implements ports.BlobStore in memory.
// Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
	calls   map[Op]int
	faults  map[Op]error
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		buckets: make(map[string]map[string][]byte),
		calls:   make(map[Op]int),
		faults:  make(map[Op]error),
	}
}

// Fail makes every subsequent call of op return err. A nil err clears the fault.
func (s *Store) Fail(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// Calls returns how many times op was called.
func (s *Store) Calls(op Op) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[op]
}

// Buckets returns the sorted bucket names.
func (s *Store) Buckets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.buckets))
	for b := range s.buckets {
		names = append(names, b)
	}
	sort.Strings(names)
	return names
}

// Keys returns the sorted object keys of a bucket.
func (s *Store) Keys(bucket string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.buckets[bucket]))
	for k := range s.buckets[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// begin counts the call and returns any injected fault. Caller holds s.mu.
func (s *Store) begin(op Op) error {
	s.calls[op]++
	return s.faults[op]
}

// BucketExists reports whether the bucket exists.
func (s *Store) BucketExists(ctx context.Context, bucket string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpBucketExists); err != nil {
		return false, err
	}
	_, ok := s.buckets[bucket]
	return ok, nil
}

// EnsureBucket creates the bucket if absent.
func (s *Store) EnsureBucket(ctx context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpEnsureBucket); err != nil {
		return err
	}
	if _, ok := s.buckets[bucket]; !ok {
		s.buckets[bucket] = make(map[string][]byte)
	}
	return nil
}

// PutObject stores a copy of the reader's content.
func (s *Store) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	return s.put(bucket, key, data)
}

func (s *Store) put(bucket, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpPut); err != nil {
		return err
	}
	objects, ok := s.buckets[bucket]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrBucketNotFound, bucket)
	}
	objects[key] = bytes.Clone(data)
	return nil
}

// GetObject returns a copy so callers can't mutate stored payloads.
func (s *Store) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpGet); err != nil {
		return nil, err
	}
	data, ok := s.buckets[bucket][key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", domain.ErrArtifactNotFound, bucket, key)
	}
	return bytes.Clone(data), nil
}

// PutFile uploads a local file.
func (s *Store) PutFile(ctx context.Context, bucket, key, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return s.put(bucket, key, data)
}

// GetFile writes the object to path.
func (s *Store) GetFile(ctx context.Context, bucket, key, path string) error {
	data, err := s.GetObject(ctx, bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("prepare %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o644)
}
