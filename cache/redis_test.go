package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "router:test:")
}

func TestRedisStore_SetGetRoundTrip(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k1", []byte("v1"), time.Minute))
	entry, ok, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v1"), entry.Value)
}

func TestRedisStore_MissIsNotAnError(t *testing.T) {
	s := newTestRedisStore(t)
	_, ok, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisStore_DeleteRemovesKey(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, s.Delete(ctx, "k"))
	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisStore_ClearAllRemovesOnlyOwnPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	request := NewRedisStore(client, "router:request:")
	structural := NewRedisStore(client, "router:structural:")
	ctx := context.Background()

	require.NoError(t, request.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, structural.Set(ctx, "b", []byte("2"), time.Minute))

	require.NoError(t, request.ClearAll(ctx))

	_, ok, err := request.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = structural.Get(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok, "clearing one tier must not affect the other's namespace")
}

func TestRedisStore_StatsCountsLiveKeys(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), time.Minute))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.ActiveEntries)
}
