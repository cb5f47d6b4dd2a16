package store

import (
	"context"
	"sync"
	"time"

	"github.com/vitwit/paygate/logger"
	"github.com/vitwit/paygate/utils"
)

var _ Ledger = (*MemoryLedger)(nil)

type entryState int

const (
	stateReserved entryState = iota
	stateUsed
)

type ledgerEntry struct {
	state entryState
	at    time.Time
}

// MemoryLedger is a process-local Ledger. Entries are lost on restart.
type MemoryLedger struct {
	mu        sync.Mutex
	data      map[string]*ledgerEntry
	retention Retention
	now       func() time.Time
	log       logger.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// MemoryOption customizes a MemoryLedger.
type MemoryOption func(*MemoryLedger)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryLedger) {
		m.now = now
	}
}

// WithLogger sets the logger used by the sweeper.
func WithLogger(l logger.Logger) MemoryOption {
	return func(m *MemoryLedger) {
		m.log = l
	}
}

func NewMemoryLedger(retention Retention, opts ...MemoryOption) *MemoryLedger {
	if retention.Reservation <= 0 {
		retention.Reservation = DefaultReservationTTL
	}

	m := &MemoryLedger{
		data:      make(map[string]*ledgerEntry),
		retention: retention,
		now:       time.Now,
		log:       logger.NoopLogger{},
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryLedger) HasBeenUsed(_ context.Context, txHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.live(utils.NormalizeTransactionHash(txHash))
	return ok && e.state == stateUsed, nil
}

func (m *MemoryLedger) Reserve(_ context.Context, txHash string) (bool, error) {
	key := utils.NormalizeTransactionHash(txHash)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.live(key); ok {
		return false, nil
	}
	m.data[key] = &ledgerEntry{state: stateReserved, at: m.now()}
	return true, nil
}

func (m *MemoryLedger) MarkUsed(_ context.Context, txHash string) error {
	key := utils.NormalizeTransactionHash(txHash)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = &ledgerEntry{state: stateUsed, at: m.now()}
	return nil
}

func (m *MemoryLedger) Release(_ context.Context, txHash string) error {
	key := utils.NormalizeTransactionHash(txHash)

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.data[key]; ok && e.state == stateReserved {
		delete(m.data, key)
	}
	return nil
}

// Len returns the number of tracked hashes, expired ones included.
func (m *MemoryLedger) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// live returns the entry for key unless it has outlived its retention.
// Callers must hold m.mu.
func (m *MemoryLedger) live(key string) (*ledgerEntry, bool) {
	e, ok := m.data[key]
	if !ok {
		return nil, false
	}
	if m.expired(e, m.now()) {
		delete(m.data, key)
		return nil, false
	}
	return e, true
}

func (m *MemoryLedger) expired(e *ledgerEntry, now time.Time) bool {
	ttl := m.retention.Used
	if e.state == stateReserved {
		ttl = m.retention.Reservation
	}
	return ttl > 0 && now.Sub(e.at) > ttl
}

// StartSweeper launches a background goroutine that evicts expired entries
// every interval until Close is called.
func (m *MemoryLedger) StartSweeper(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.Sweep()
			case <-m.stop:
				return
			}
		}
	}()
}

// Sweep evicts expired entries and returns how many were removed.
func (m *MemoryLedger) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	evicted := 0
	for key, e := range m.data {
		if m.expired(e, now) {
			delete(m.data, key)
			evicted++
		}
	}

	if evicted > 0 {
		m.log.Debug("ledger sweeper evicted expired payments", logger.Fields{
			"evicted":   evicted,
			"remaining": len(m.data),
		})
	}
	return evicted
}

func (m *MemoryLedger) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}
