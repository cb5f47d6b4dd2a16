package metrics

import "time"

// Event names recorded by the gate.
const (
	EventVerify       = "verify"
	EventRateLimit    = "rate_limit"
	EventDecision     = "decision"
	EventChainLookup  = "chain_lookup"
	EventLedgerEvict  = "ledger_evict"
	EventLimiterEvict = "limiter_evict"
	EventHTTPRequest  = "http_request"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
