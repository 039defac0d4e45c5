package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaforum/internal/observability"
	"github.com/vyrodovalexey/avaforum/internal/util"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), RedisConfig{
		URL:       "redis://" + mr.Addr(),
		KeyPrefix: "test:",
	}, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStore_SetGetRemove(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	assert.True(t, mr.Exists("test:k"), "keys carry the configured prefix")

	require.NoError(t, s.Remove(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Expiry(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	mr.FastForward(61 * time.Second)

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Increment(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := s.Increment(ctx, "counter", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	ttl := mr.TTL("test:counter")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)

	count, err := GetCounter(ctx, s, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	mr.FastForward(time.Minute + time.Second)
	count, err = GetCounter(ctx, s, "counter")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRedisStore_GetOrCreate(t *testing.T) {
	t.Parallel()

	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	calls := 0
	create := func(context.Context) ([]byte, error) {
		calls++
		return []byte("created"), nil
	}

	v, err := s.GetOrCreate(ctx, "k", time.Minute, create)
	require.NoError(t, err)
	assert.Equal(t, []byte("created"), v)

	v, err = s.GetOrCreate(ctx, "k", time.Minute, create)
	require.NoError(t, err)
	assert.Equal(t, []byte("created"), v)
	assert.Equal(t, 1, calls)
}

func TestRedisStore_GetOrCreate_LosesRace(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	v, err := s.GetOrCreate(ctx, "k", time.Minute, func(context.Context) ([]byte, error) {
		// Another process stores the key between our GET and SETNX.
		require.NoError(t, mr.Set("test:k", "winner"))
		return []byte("loser"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("winner"), v)
}

func TestRedisStore_RemovePattern(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	for _, k := range []string{"posts:1", "posts:2", "users:1"} {
		require.NoError(t, s.Set(ctx, k, []byte("v"), 0))
	}
	require.NoError(t, mr.Set("other:posts:9", "foreign"))

	removed, err := s.RemovePattern(ctx, "posts:*")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.True(t, mr.Exists("test:users:1"))
	assert.True(t, mr.Exists("other:posts:9"), "keys outside the prefix are untouched")
}

func TestRedisStore_ErrorsAreStorageErrors(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t)
	mr.Close()

	err := s.Set(context.Background(), "k", []byte("v"), 0)
	require.Error(t, err)

	var storageErr *util.StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, BackendRedis, storageErr.Backend)
	assert.ErrorIs(t, err, util.ErrStorage)
	assert.Error(t, s.Ping(context.Background()))
}

func TestRedisStore_Ping(t *testing.T) {
	t.Parallel()

	s, _ := newTestRedisStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestNewRedisStore_ConnectFails(t *testing.T) {
	t.Parallel()

	_, err := NewRedisStore(context.Background(), RedisConfig{
		URL:               "redis://127.0.0.1:1",
		DialTimeout:       50 * time.Millisecond,
		ConnectionRetries: 1,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        time.Millisecond,
	}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrStorage)
}

func TestNewRedisStore_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := NewRedisStore(context.Background(), RedisConfig{URL: "http://nope"}, nil)
	assert.Error(t, err)
}

func TestRedisStore_CloseIdempotent(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	s := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "", nil)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestDecorrelatedJitterBackoff(t *testing.T) {
	t.Parallel()

	b := newDecorrelatedJitterBackoff(10*time.Millisecond, 50*time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, b.next(0))
	for attempt := 1; attempt < 10; attempt++ {
		d := b.next(attempt)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 50*time.Millisecond)
	}
}
