package store

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

func newTestRedisLedger(t *testing.T) (*RedisLedger, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisLedgerFromClient(client, RetentionFor(10*time.Minute, 30*time.Second, 10*time.Second)), mr
}

func TestRedisLedger_ReserveMarkUsed(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestRedisLedger(t)

	require.NoError(t, l.Ping(ctx))

	ok, err := l.Reserve(ctx, testHash)
	require.NoError(t, err)
	require.True(t, ok)

	used, err := l.HasBeenUsed(ctx, testHash)
	require.NoError(t, err)
	assert.False(t, used)

	require.NoError(t, l.MarkUsed(ctx, testHash))

	used, err = l.HasBeenUsed(ctx, testHash)
	require.NoError(t, err)
	assert.True(t, used)

	ok, err = l.Reserve(ctx, testHash)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 10*time.Minute+30*time.Second, mr.TTL(redisLedgerPrefix+testHash))
}

func TestRedisLedger_ReleaseOnlyDropsReservations(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestRedisLedger(t)

	ok, _ := l.Reserve(ctx, testHash)
	require.True(t, ok)
	require.NoError(t, l.Release(ctx, testHash))
	assert.False(t, mr.Exists(redisLedgerPrefix+testHash))

	require.NoError(t, l.MarkUsed(ctx, testHash))
	require.NoError(t, l.Release(ctx, testHash))

	used, err := l.HasBeenUsed(ctx, testHash)
	require.NoError(t, err)
	assert.True(t, used)
}

func TestRedisLedger_EntriesExpire(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestRedisLedger(t)

	require.NoError(t, l.MarkUsed(ctx, testHash))
	mr.FastForward(11 * time.Minute)

	used, err := l.HasBeenUsed(ctx, testHash)
	require.NoError(t, err)
	assert.False(t, used)
}

func TestRedisLedger_ConcurrentReserveSingleWinner(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestRedisLedger(t)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := l.Reserve(ctx, testHash); err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestRedisLedger_ErrorsWhenUnavailable(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestRedisLedger(t)
	mr.Close()

	_, err := l.Reserve(ctx, testHash)
	assert.Error(t, err)
}

func TestRedisLedger_ReservationOutlivesSlowLookup(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l := NewRedisLedgerFromClient(client, RetentionFor(10*time.Minute, 30*time.Second, 5*time.Minute))

	ok, err := l.Reserve(ctx, testHash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10*time.Minute+30*time.Second, mr.TTL(redisLedgerPrefix+testHash))

	mr.FastForward(3 * time.Minute)
	ok, err = l.Reserve(ctx, testHash)
	require.NoError(t, err)
	assert.False(t, ok)
}
