package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vitwit/paygate/utils"
)

var _ Ledger = (*RedisLedger)(nil)

const (
	redisLedgerPrefix = "paygate:ledger:"
	valueReserved     = "reserved"
	valueUsed         = "used"
)

// redisReleaseScript deletes a reservation only if it was not committed in
// the meantime.
// KEYS[1] = ledger key
var redisReleaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == "reserved" then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLedger implements Ledger on Redis so consumed payments survive
// restarts and are shared between replicas.
type RedisLedger struct {
	client    redis.UniversalClient
	retention Retention
	owned     bool
}

// NewRedisLedger creates a ledger backed by a new Redis client.
func NewRedisLedger(addr, password string, db int, retention Retention) *RedisLedger {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	l := NewRedisLedgerFromClient(rdb, retention)
	l.owned = true
	return l
}

// NewRedisLedgerFromClient wraps an existing client. Close does not close it.
func NewRedisLedgerFromClient(client redis.UniversalClient, retention Retention) *RedisLedger {
	if retention.Reservation <= 0 {
		retention.Reservation = DefaultReservationTTL
	}
	return &RedisLedger{client: client, retention: retention}
}

// Ping checks connectivity.
func (r *RedisLedger) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisLedger) HasBeenUsed(ctx context.Context, txHash string) (bool, error) {
	v, err := r.client.Get(ctx, ledgerKey(txHash)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis ledger get: %w", err)
	}
	return v == valueUsed, nil
}

func (r *RedisLedger) Reserve(ctx context.Context, txHash string) (bool, error) {
	ok, err := r.client.SetNX(ctx, ledgerKey(txHash), valueReserved, r.retention.Reservation).Result()
	if err != nil {
		return false, fmt.Errorf("redis ledger reserve: %w", err)
	}
	return ok, nil
}

func (r *RedisLedger) MarkUsed(ctx context.Context, txHash string) error {
	if err := r.client.Set(ctx, ledgerKey(txHash), valueUsed, r.retention.Used).Err(); err != nil {
		return fmt.Errorf("redis ledger mark used: %w", err)
	}
	return nil
}

func (r *RedisLedger) Release(ctx context.Context, txHash string) error {
	if err := redisReleaseScript.Run(ctx, r.client, []string{ledgerKey(txHash)}).Err(); err != nil {
		return fmt.Errorf("redis ledger release: %w", err)
	}
	return nil
}

func (r *RedisLedger) Close() error {
	if r.owned {
		return r.client.Close()
	}
	return nil
}

func ledgerKey(txHash string) string {
	return redisLedgerPrefix + utils.NormalizeTransactionHash(txHash)
}
