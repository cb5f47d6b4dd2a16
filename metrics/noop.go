package metrics

import (
	"sync"
	"time"
)

type NoopRecorder struct{}

func (NoopRecorder) IncCounter(string, map[string]string)                    {}
func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}

// CountingRecorder keeps counters in memory, keyed by "name/result".
// It is meant for tests and debugging endpoints.
type CountingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewCountingRecorder() *CountingRecorder {
	return &CountingRecorder{counts: make(map[string]int)}
}

func (c *CountingRecorder) IncCounter(name string, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[name+"/"+labels["result"]]++
}

func (c *CountingRecorder) ObserveLatency(string, time.Duration, map[string]string) {}

// Count returns how many times name was recorded with the given result label.
func (c *CountingRecorder) Count(name, result string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name+"/"+result]
}
