package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/vitwit/paygate/logger"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps windows in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
	log     logger.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

func NewMemoryStore(log logger.Logger) *MemoryStore {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &MemoryStore{
		entries: make(map[string]*Entry),
		log:     log,
		stop:    make(chan struct{}),
	}
}

func (s *MemoryStore) Hit(_ context.Context, clientID string, window time.Duration, max int, now time.Time) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[clientID]
	if !ok || now.After(e.WindowResetAt) {
		e = &Entry{Count: 1, WindowResetAt: now.Add(window)}
		s.entries[clientID] = e
		return *e, true, nil
	}

	if e.Count >= max {
		return *e, false, nil
	}

	e.Count++
	return *e, true, nil
}

// Len returns the number of tracked clients.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep drops entries whose window ended before now.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, e := range s.entries {
		if now.After(e.WindowResetAt) {
			delete(s.entries, id)
			evicted++
		}
	}

	if evicted > 0 {
		s.log.Debug("rate limit sweeper evicted clients", logger.Fields{
			"evicted":   evicted,
			"remaining": len(s.entries),
		})
	}
	return evicted
}

// StartSweeper runs Sweep every interval until Close.
func (s *MemoryStore) StartSweeper(interval time.Duration, now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Sweep(now())
			case <-s.stop:
				return
			}
		}
	}()
}

func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}
