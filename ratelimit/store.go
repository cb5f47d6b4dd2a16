// Package ratelimit implements the free-tier quota: a fixed number of
// unpaid requests per client per window.
package ratelimit

import (
	"context"
	"time"
)

// Entry is a client's usage within its current window.
type Entry struct {
	Count         int
	WindowResetAt time.Time
}

// Store performs the atomic read-modify-write for one request.
//
// Hit starts a new window {1, now+window} when the client has no entry or
// now is past WindowResetAt. Otherwise it increments Count unless the count
// already reached max, in which case the entry is returned unchanged and
// allowed is false.
type Store interface {
	Hit(ctx context.Context, clientID string, window time.Duration, max int, now time.Time) (entry Entry, allowed bool, err error)
	Close() error
}
