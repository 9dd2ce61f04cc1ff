package redis_test

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/baton/pkg/adapters/redis"
	"github.com/aretw0/baton/pkg/domain"
	"github.com/aretw0/baton/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)
	ports.RunBlobStoreContract(t, redis.NewFromClient(client))
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	require.NoError(t, store.EnsureBucket(ctx, "mnist-normalize"))
	require.NoError(t, store.PutObject(ctx, "mnist-normalize", "X_Train4D_normalize", bytes.NewReader([]byte("x")), 1))

	assert.True(t, mr.Exists("custom:app:buckets"))
	assert.True(t, mr.Exists("custom:app:obj:mnist-normalize:X_Train4D_normalize"))
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client, redis.WithTTL(time.Second))
	ctx := context.Background()

	require.NoError(t, store.EnsureBucket(ctx, "tmp"))
	require.NoError(t, store.PutObject(ctx, "tmp", "result", bytes.NewReader([]byte("x")), 1))

	mr.FastForward(2 * time.Second)

	_, err := store.GetObject(ctx, "tmp", "result")
	assert.ErrorIs(t, err, domain.ErrArtifactNotFound)

	exists, err := store.BucketExists(ctx, "tmp")
	require.NoError(t, err)
	assert.True(t, exists, "buckets do not expire")
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client)
	mr.Close()

	_, err := store.GetObject(context.Background(), "b", "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrArtifactNotFound)
}

func TestRedisLocker_LockUnlock(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "stage:a", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:stage:a"))

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:stage:a"))
}

func TestRedisLocker_Contention(t *testing.T) {
	_, client := newClient(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	var inside atomic.Int32
	var maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "shared", 5*time.Second)
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			if n > maxInside.Load() {
				maxInside.Store(n)
			}
			time.Sleep(20 * time.Millisecond)
			inside.Add(-1)
			assert.NoError(t, unlock(ctx))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestRedisLocker_ContextCancel(t *testing.T) {
	_, client := newClient(t)
	locker := redis.NewLocker(client, "test:")

	_, err := locker.Lock(context.Background(), "held", 5*time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "held", 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
