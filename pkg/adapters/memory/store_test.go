package memory_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/baton/pkg/adapters/memory"
	"github.com/aretw0/baton/pkg/domain"
	"github.com/aretw0/baton/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.BlobStore = (*memory.Store)(nil)
var _ ports.Invoker = (*memory.Invoker)(nil)

func TestMemoryStore_Contract(t *testing.T) {
	ports.RunBlobStoreContract(t, memory.NewStore())
}

func TestMemoryStore_Isolation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.EnsureBucket(ctx, "b"))
	require.NoError(t, store.PutObject(ctx, "b", "k", strings.NewReader("abc"), 3))

	got, err := store.GetObject(ctx, "b", "k")
	require.NoError(t, err)
	got[0] = 'z'

	again, err := store.GetObject(ctx, "b", "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again), "mutating a read must not change the store")
}

func TestMemoryStore_Faults(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	boom := errors.New("boom")

	store.Fail(memory.OpEnsureBucket, boom)
	assert.ErrorIs(t, store.EnsureBucket(ctx, "b"), boom)
	assert.Equal(t, 1, store.Calls(memory.OpEnsureBucket))

	store.Fail(memory.OpEnsureBucket, nil)
	assert.NoError(t, store.EnsureBucket(ctx, "b"))
	assert.Equal(t, []string{"b"}, store.Buckets())
}

func TestInvoker_RecordsAndWaits(t *testing.T) {
	inv := memory.NewInvoker()
	inv.Delay = 10 * time.Millisecond

	go func() {
		_ = inv.Invoke(context.Background(), domain.TriggerRequest{NextStage: "b"})
	}()

	require.True(t, inv.Wait(1, time.Second))
	assert.Equal(t, "b", inv.Calls()[0].NextStage)
	assert.False(t, inv.Wait(2, 20*time.Millisecond))
}
