package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r := NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "brewmap:")
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

func TestRedisGetSetExpiry(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)

	_, ok, err := r.Get(ctx, "cafe:1")
	require.NoError(t, err)
	assert.False(t, ok, "missing key is a miss, not an error")

	require.NoError(t, r.Set(ctx, "cafe:1", []byte(`{"id":"c1"}`), time.Minute))
	assert.True(t, mr.Exists("brewmap:cafe:1"), "keys carry the prefix")

	v, ok, err := r.Get(ctx, "cafe:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"id":"c1"}`, string(v))

	mr.FastForward(2 * time.Minute)
	_, ok, err = r.Get(ctx, "cafe:1")
	require.NoError(t, err)
	assert.False(t, ok, "entry should expire with its ttl")
}

func TestRedisDelete(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)
	require.NoError(t, r.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, r.Set(ctx, "b", []byte("2"), 0))

	require.NoError(t, r.Delete(ctx, "a", "missing"))
	require.NoError(t, r.Delete(ctx))
	assert.False(t, mr.Exists("brewmap:a"))
	assert.True(t, mr.Exists("brewmap:b"))
}

func TestRedisDeletePrefixBatches(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)
	for i := 0; i < 250; i++ {
		require.NoError(t, r.Set(ctx, fmt.Sprintf("cafes:list:%d", i), []byte("[]"), time.Minute))
	}
	require.NoError(t, r.Set(ctx, "cafe:1", []byte("{}"), time.Minute))
	require.NoError(t, mr.Set("other:cafes:list:1", "x"))

	require.NoError(t, r.DeletePrefix(ctx, "cafes:list:"))
	assert.ElementsMatch(t, []string{"brewmap:cafe:1", "other:cafes:list:1"}, mr.Keys())
}

func TestRedisJSONHelpers(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRedis(t)

	require.NoError(t, SetJSON(ctx, r, "k", map[string]string{"name": "Bean There"}, time.Minute))
	var got map[string]string
	ok, err := GetJSON(ctx, r, "k", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Bean There", got["name"])
}

func TestRedisServerDown(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)
	mr.Close()

	_, _, err := r.Get(ctx, "cafe:1")
	assert.Error(t, err)
	assert.Error(t, r.DeletePrefix(ctx, "cafes:"))
}

func TestNewRedisPings(t *testing.T) {
	mr := miniredis.RunT(t)
	r, err := NewRedis(context.Background(), "redis://"+mr.Addr()+"/0", "brewmap:")
	require.NoError(t, err)
	require.NoError(t, r.Close())

	mr.Close()
	_, err = NewRedis(context.Background(), "redis://"+mr.Addr()+"/0", "brewmap:")
	assert.Error(t, err)
}

func TestNewRedisRejectsBadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "not-a-redis-url", "brewmap:")
	assert.Error(t, err)
}
