package contextstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rick1330/cybersage/internal/types"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client), mr
}

func TestRedisStoreCreateAndGet(t *testing.T) {
	store, mr := newTestRedisStore(t)
	id := types.NewID()

	created, err := store.CreateContext(context.Background(), id, types.ContextTypeIncidentResponse, types.SecurityLevelCritical)
	require.NoError(t, err)
	assert.Equal(t, id, created.WorkflowID)

	assert.True(t, mr.Exists("workflow:ctx:"+id.String()))

	got, err := store.GetContext(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.ContextTypeIncidentResponse, got.Type)
	assert.Equal(t, types.SecurityLevelCritical, got.SecurityLevel)
	assert.Equal(t, "initialized", got.State["status"])
}

func TestRedisStoreCreateDuplicate(t *testing.T) {
	store, _ := newTestRedisStore(t)
	id := types.NewID()

	_, err := store.CreateContext(context.Background(), id, types.ContextTypeSecurityScan, types.SecurityLevelLow)
	require.NoError(t, err)

	_, err = store.CreateContext(context.Background(), id, types.ContextTypeSecurityScan, types.SecurityLevelLow)
	assert.ErrorIs(t, err, types.NewError(types.CONTEXT_CREATE_FAILED, ""))
}

func TestRedisStoreGetMissing(t *testing.T) {
	store, _ := newTestRedisStore(t)

	_, err := store.GetContext(context.Background(), types.NewID())
	assert.ErrorIs(t, err, types.NewError(types.CONTEXT_NOT_FOUND, ""))
}

func TestRedisStoreUpdateMerges(t *testing.T) {
	store, _ := newTestRedisStore(t)
	id := types.NewID()

	_, err := store.CreateContext(context.Background(), id, types.ContextTypeSecurityScan, types.SecurityLevelLow)
	require.NoError(t, err)

	require.NoError(t, store.UpdateContext(context.Background(), id, map[string]any{
		"step_0": map[string]any{"open_ports": float64(2)},
	}))

	got, err := store.GetContext(context.Background(), id)
	require.NoError(t, err)
	assert.Contains(t, got.State, "step_0")
	assert.Equal(t, "initialized", got.State["status"])
}

func TestRedisStoreUpdateMissing(t *testing.T) {
	store, _ := newTestRedisStore(t)

	err := store.UpdateContext(context.Background(), types.NewID(), map[string]any{"k": "v"})
	assert.ErrorIs(t, err, types.NewError(types.CONTEXT_NOT_FOUND, ""))
}

func TestRedisStoreExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := NewRedisStore(client, WithRedisTTL(time.Minute))
	id := types.NewID()

	_, err := store.CreateContext(context.Background(), id, types.ContextTypeSecurityScan, types.SecurityLevelLow)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = store.GetContext(context.Background(), id)
	assert.ErrorIs(t, err, types.NewError(types.CONTEXT_NOT_FOUND, ""))
}

func TestRedisStoreClear(t *testing.T) {
	store, mr := newTestRedisStore(t)
	id := types.NewID()

	_, err := store.CreateContext(context.Background(), id, types.ContextTypeSecurityScan, types.SecurityLevelLow)
	require.NoError(t, err)

	require.NoError(t, store.ClearContext(context.Background(), id))
	assert.False(t, mr.Exists("workflow:ctx:"+id.String()))

	// Clearing a missing context is not an error.
	assert.NoError(t, store.ClearContext(context.Background(), types.NewID()))
}
