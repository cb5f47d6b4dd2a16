package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStoreFromClient(client), mr
}

func TestRedisStore_FixedWindow(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)
	l := New(store, time.Minute, 10)

	for i := 1; i <= 10; i++ {
		res, err := l.Check(ctx, "1.2.3.4")
		require.NoError(t, err)
		require.True(t, res.Allowed)
		assert.Equal(t, 10-i, *res.RemainingRequests)
	}

	res, err := l.Check(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Nil(t, res.RemainingRequests)

	count, err := mr.Get(redisLimiterPrefix + "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "10", count)

	mr.FastForward(time.Minute + time.Millisecond)

	res, err = l.Check(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 9, *res.RemainingRequests)
}

func TestRedisStore_ResetAtFollowsTTL(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)
	now := time.Unix(1_700_000_000, 0)

	entry, allowed, err := store.Hit(ctx, "client", time.Minute, 10, now)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, entry.Count)
	assert.Equal(t, now.Add(time.Minute), entry.WindowResetAt)
}

func TestRedisStore_ConcurrentHitsNeverExceedCap(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)
	l := New(store, time.Minute, 10)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res, err := l.Check(ctx, "shared"); err == nil && res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), allowed.Load())
}
