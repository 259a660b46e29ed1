package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisFromClient(client, "bv:"), mr
}

func TestRedis_SetGet(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)

	require.NoError(t, r.Set(ctx, "search:acme", []byte(`{"ok":true}`), time.Hour))
	assert.True(t, mr.Exists("bv:search:acme"))

	v, ok, err := r.Get(ctx, "search:acme")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"ok":true}`, string(v))

	_, ok, err = r.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_TTL(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)

	require.NoError(t, r.Set(ctx, "k", []byte("v"), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, ok, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_LenClearRespectPrefix(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)

	require.NoError(t, mr.Set("other:key", "x"))
	require.NoError(t, r.Set(ctx, "a", []byte("1"), time.Hour))
	require.NoError(t, r.Set(ctx, "b", []byte("2"), time.Hour))

	n, err := r.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, r.Clear(ctx))
	n, err = r.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.True(t, mr.Exists("other:key"))
}

func TestRedis_Delete(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRedis(t)

	require.NoError(t, r.Set(ctx, "a", []byte("1"), time.Hour))
	require.NoError(t, r.Delete(ctx, "a"))
	_, ok, err := r.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRedis_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewRedis(ctx, RedisOptions{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
