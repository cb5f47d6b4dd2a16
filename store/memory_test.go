package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHash = "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLedger(clock *fakeClock) *MemoryLedger {
	return NewMemoryLedger(RetentionFor(10*time.Minute, 30*time.Second, 10*time.Second), WithClock(clock.Now))
}

func TestMemoryLedger_UnknownHashIsUnused(t *testing.T) {
	l := newTestLedger(newFakeClock())

	used, err := l.HasBeenUsed(context.Background(), testHash)
	require.NoError(t, err)
	assert.False(t, used)
}

func TestMemoryLedger_ReserveThenMarkUsed(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(newFakeClock())

	ok, err := l.Reserve(ctx, testHash)
	require.NoError(t, err)
	require.True(t, ok)

	// A reservation alone is not a consumed payment.
	used, _ := l.HasBeenUsed(ctx, testHash)
	assert.False(t, used)

	require.NoError(t, l.MarkUsed(ctx, testHash))

	used, _ = l.HasBeenUsed(ctx, testHash)
	assert.True(t, used)

	ok, err = l.Reserve(ctx, testHash)
	require.NoError(t, err)
	assert.False(t, ok, "used hash must not be reservable")
}

func TestMemoryLedger_HashCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(newFakeClock())

	require.NoError(t, l.MarkUsed(ctx, testHash))

	used, _ := l.HasBeenUsed(ctx, "0x5C504ED432CB51138BCF09AA5E8A410DD4A1E204EF84BFED1BE16DFBA1B22060")
	assert.True(t, used)
}

func TestMemoryLedger_ReleaseFreesReservation(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(newFakeClock())

	ok, _ := l.Reserve(ctx, testHash)
	require.True(t, ok)

	ok, _ = l.Reserve(ctx, testHash)
	require.False(t, ok)

	require.NoError(t, l.Release(ctx, testHash))

	ok, _ = l.Reserve(ctx, testHash)
	assert.True(t, ok)
}

func TestMemoryLedger_ReleaseKeepsUsedHash(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(newFakeClock())

	require.NoError(t, l.MarkUsed(ctx, testHash))
	require.NoError(t, l.Release(ctx, testHash))

	used, _ := l.HasBeenUsed(ctx, testHash)
	assert.True(t, used)
}

func TestMemoryLedger_ConcurrentReserveSingleWinner(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(newFakeClock())

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Reserve(ctx, testHash); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestMemoryLedger_UsedHashExpiresAfterRetention(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := newTestLedger(clock)

	require.NoError(t, l.MarkUsed(ctx, testHash))

	clock.Advance(10*time.Minute + 30*time.Second)
	used, _ := l.HasBeenUsed(ctx, testHash)
	assert.True(t, used, "still retained at the boundary")

	clock.Advance(time.Second)
	used, _ = l.HasBeenUsed(ctx, testHash)
	assert.False(t, used)
}

func TestMemoryLedger_StaleReservationExpires(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := newTestLedger(clock)

	ok, _ := l.Reserve(ctx, testHash)
	require.True(t, ok)

	clock.Advance(DefaultReservationTTL + time.Second)

	ok, _ = l.Reserve(ctx, testHash)
	assert.True(t, ok)
}

func TestRetentionFor(t *testing.T) {
	r := RetentionFor(10*time.Minute, 30*time.Second, 10*time.Second)
	assert.Equal(t, 10*time.Minute+30*time.Second, r.Used)
	assert.Equal(t, DefaultReservationTTL, r.Reservation)

	r = RetentionFor(10*time.Minute, 30*time.Second, 5*time.Minute)
	assert.Equal(t, 10*time.Minute+30*time.Second, r.Reservation)
}

func TestMemoryLedger_ReservationOutlivesSlowLookup(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := NewMemoryLedger(RetentionFor(10*time.Minute, 30*time.Second, 5*time.Minute), WithClock(clock.Now))

	ok, _ := l.Reserve(ctx, testHash)
	require.True(t, ok)

	// Still inside a 5m lookup.
	clock.Advance(3 * time.Minute)
	ok, _ = l.Reserve(ctx, testHash)
	assert.False(t, ok)

	clock.Advance(5*time.Minute + time.Second)
	ok, _ = l.Reserve(ctx, testHash)
	assert.True(t, ok)
}

func TestMemoryLedger_Sweep(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := newTestLedger(clock)

	require.NoError(t, l.MarkUsed(ctx, testHash))
	_, _ = l.Reserve(ctx, "0x0000000000000000000000000000000000000000000000000000000000000001")
	require.Equal(t, 2, l.Len())

	assert.Equal(t, 0, l.Sweep())

	clock.Advance(DefaultReservationTTL + time.Second)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())

	clock.Advance(10 * time.Minute)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 0, l.Len())
}

func TestMemoryLedger_CloseIsIdempotent(t *testing.T) {
	l := newTestLedger(newFakeClock())
	l.StartSweeper(time.Millisecond)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
}
