package ratelimit

import (
	"context"
	"time"

	"github.com/vitwit/paygate/logger"
	"github.com/vitwit/paygate/metrics"
	"github.com/vitwit/paygate/types"
)

// Limiter answers whether a client still has free requests left.
type Limiter struct {
	store   Store
	window  time.Duration
	max     int
	now     func() time.Time
	log     logger.Logger
	metrics metrics.Recorder
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

func WithLogger(log logger.Logger) Option {
	return func(l *Limiter) {
		l.log = log
	}
}

func WithMetrics(m metrics.Recorder) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// New builds a limiter allowing max requests per window. A nil store
// defaults to an in-memory one.
func New(store Store, window time.Duration, max int, opts ...Option) *Limiter {
	if window <= 0 {
		window = types.DefaultRateLimitWindow
	}
	if max <= 0 {
		max = types.DefaultRateLimitMax
	}

	l := &Limiter{
		store:   store,
		window:  window,
		max:     max,
		now:     time.Now,
		log:     logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.store == nil {
		l.store = NewMemoryStore(l.log)
	}
	return l
}

// Check consumes one free request for clientID.
//
// A store failure is logged and the request is let through without a
// remaining count; the error is still returned for callers that care.
func (l *Limiter) Check(ctx context.Context, clientID string) (*types.RateLimitResult, error) {
	if clientID == "" {
		clientID = "unknown"
	}

	entry, allowed, err := l.store.Hit(ctx, clientID, l.window, l.max, l.now())
	if err != nil {
		l.log.Warn("rate limit store unavailable, allowing request", logger.Fields{
			"client": clientID,
			"error":  err,
		})
		l.metrics.IncCounter(metrics.EventRateLimit, map[string]string{"result": "error"})
		return &types.RateLimitResult{Allowed: true}, err
	}

	if !allowed {
		l.log.Debug("rate limit exceeded", logger.Fields{
			"client":   clientID,
			"count":    entry.Count,
			"reset_at": entry.WindowResetAt,
		})
		l.metrics.IncCounter(metrics.EventRateLimit, map[string]string{"result": "denied"})
		return &types.RateLimitResult{Allowed: false, ResetAt: entry.WindowResetAt}, nil
	}

	remaining := l.max - entry.Count
	l.metrics.IncCounter(metrics.EventRateLimit, map[string]string{"result": "allowed"})
	return &types.RateLimitResult{
		Allowed:           true,
		RemainingRequests: &remaining,
		ResetAt:           entry.WindowResetAt,
	}, nil
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Max returns the configured cap per window.
func (l *Limiter) Max() int {
	return l.max
}

func (l *Limiter) Close() error {
	return l.store.Close()
}
