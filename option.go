package paygate

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vitwit/paygate/clients"
	"github.com/vitwit/paygate/logger"
	"github.com/vitwit/paygate/metrics"
	"github.com/vitwit/paygate/ratelimit"
	"github.com/vitwit/paygate/store"
)

type Option func(*PayGate)

func WithLogger(l logger.Logger) Option {
	return func(p *PayGate) {
		p.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(p *PayGate) {
		p.metrics = r
	}
}

// WithTimeout overrides the per-lookup chain timeout from the config.
func WithTimeout(t time.Duration) Option {
	return func(p *PayGate) {
		p.timeout = t
	}
}

// WithClock replaces time.Now for freshness and rate-limit windows.
func WithClock(now func() time.Time) Option {
	return func(p *PayGate) {
		p.now = now
	}
}

// WithChainClient replaces the explorer or RPC client built from the config.
func WithChainClient(c clients.ChainClient) Option {
	return func(p *PayGate) {
		p.chain = c
	}
}

// WithLedger replaces the replay ledger built from the config.
func WithLedger(l store.Ledger) Option {
	return func(p *PayGate) {
		p.ledger = l
	}
}

// WithRateLimitStore replaces the free-tier store built from the config.
func WithRateLimitStore(s ratelimit.Store) Option {
	return func(p *PayGate) {
		p.rateStore = s
	}
}

// WithRedisClient uses an existing Redis client for both the ledger and the
// rate-limit store. The caller keeps ownership of the client.
func WithRedisClient(c redis.UniversalClient) Option {
	return func(p *PayGate) {
		p.redis = c
	}
}
