// Package store holds the replay ledger: the set of transaction hashes that
// already paid for a request.
package store

import (
	"context"
	"time"
)

// Ledger records consumed payment transactions.
//
// Reserve is the atomic check-and-claim used by verification: it succeeds for
// exactly one caller per hash until that caller either commits with MarkUsed
// or gives the hash back with Release. A hash that was marked used can never
// be reserved again while it is retained.
type Ledger interface {
	HasBeenUsed(ctx context.Context, txHash string) (bool, error)
	Reserve(ctx context.Context, txHash string) (bool, error)
	MarkUsed(ctx context.Context, txHash string) error
	Release(ctx context.Context, txHash string) error
	Close() error
}

// Retention configures how long ledger entries are kept.
type Retention struct {
	// Used is how long a consumed hash is remembered. It must be at least the
	// proof freshness window plus clock skew, after which a replayed proof is
	// rejected as expired anyway.
	Used time.Duration

	// Reservation bounds how long an in-flight claim can be held if the
	// verifier never releases it.
	Reservation time.Duration
}

// DefaultReservationTTL is the shortest in-flight claim.
const DefaultReservationTTL = 2 * time.Minute

// reservationMargin covers ledger and signature work around the chain lookup.
const reservationMargin = 30 * time.Second

// RetentionFor derives ledger retention from the proof freshness rules and
// the chain lookup timeout. A reservation must outlive the slowest lookup
// the verifier can make while holding it, or a second presentation of the
// same hash could claim it mid-flight.
func RetentionFor(freshness, skew, chainTimeout time.Duration) Retention {
	return Retention{
		Used:        freshness + skew,
		Reservation: max(DefaultReservationTTL, 2*chainTimeout+reservationMargin),
	}
}
