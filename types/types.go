package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Wire header names used by the payment gate.
const (
	HeaderPayment            = "X-PAYMENT"
	HeaderPaymentResponse    = "X-PAYMENT-RESPONSE"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"

	PaymentResponseVerified = "verified"
)

// PaymentProof is a payer's claim that TxHash paid for Message.
//
// Field order matters: the signed payload is the JSON encoding of this struct,
// so it must match the order the client serialized it in.
type PaymentProof struct {
	// Transaction hash of the on-chain payment. Unique key for replay detection.
	TxHash string `json:"txHash" validate:"required,txhash"`

	// Amount paid in the smallest unit (wei), as a decimal string.
	Amount string `json:"amount" validate:"required,uint256"`

	// Client-asserted construction time in milliseconds since epoch.
	Timestamp int64 `json:"timestamp" validate:"required,gt=0"`

	// The query being paid for.
	Message string `json:"message"`

	// Claimed payer address.
	Address string `json:"address" validate:"required,eth_addr"`
}

// PaymentHeader is the envelope carried (base64 JSON) in the X-PAYMENT header.
type PaymentHeader struct {
	Proof     PaymentProof `json:"proof"`
	Signature string       `json:"signature" validate:"required"`

	// RawProof holds the proof object exactly as it appeared in a decoded
	// header. It is what a JavaScript payer actually signed.
	RawProof json.RawMessage `json:"-"`
}

// ChainTransaction is the subset of an on-chain transaction the gate inspects.
type ChainTransaction struct {
	Hash        string
	From        string
	To          string // empty for contract creation
	Value       string // decimal wei
	BlockNumber uint64 // zero while pending
}

// ChainReceipt is the subset of a transaction receipt the gate inspects.
type ChainReceipt struct {
	Status      uint64
	BlockNumber uint64
}

// ReceiptStatusSuccessful mirrors the EVM receipt status for a successful execution.
const ReceiptStatusSuccessful uint64 = 1

// VerificationResult contains the result of payment verification
type VerificationResult struct {
	IsValid       bool      `json:"isValid"`
	InvalidReason ErrorKind `json:"invalidReason,omitempty"`
	Message       string    `json:"message,omitempty"`
	Payer         string    `json:"payer,omitempty"`
	TxHash        string    `json:"txHash,omitempty"`
	Amount        string    `json:"amount,omitempty"`
}

// Invalid builds a failed verification result with the kind's default message.
func Invalid(kind ErrorKind) *VerificationResult {
	return &VerificationResult{
		IsValid:       false,
		InvalidReason: kind,
		Message:       kind.Message(),
	}
}

// RateLimitResult is the verdict of a free-tier quota check.
// RemainingRequests is nil when the quota is exhausted.
type RateLimitResult struct {
	Allowed           bool      `json:"allowed"`
	RemainingRequests *int      `json:"remainingRequests,omitempty"`
	ResetAt           time.Time `json:"resetAt,omitempty"`
}

// Outcome is the access decision for a single request.
type Outcome string

const (
	OutcomeAllow           Outcome = "allow"
	OutcomePaymentRequired Outcome = "payment_required"
	OutcomeReject          Outcome = "reject"
)

func (o Outcome) String() string {
	return string(o)
}

// Decision is what the access gate hands back to the HTTP layer.
type Decision struct {
	Outcome           Outcome
	Reason            ErrorKind
	Message           string
	PricePerQuery     string
	RemainingRequests *int
	PaymentVerified   bool
	Payer             string
}

// Allowed reports whether the request may proceed to the paid resource.
func (d *Decision) Allowed() bool {
	return d != nil && d.Outcome == OutcomeAllow
}

// PaymentRequiredResponse is the JSON body of a 402 response.
type PaymentRequiredResponse struct {
	Error           ErrorKind `json:"error"`
	Message         string    `json:"message,omitempty"`
	PaymentRequired bool      `json:"paymentRequired"`
	PricePerQuery   string    `json:"pricePerQuery"`
}

// GateConfig contains the configuration of the payment gate.
type GateConfig struct {
	// Price per paid query in the smallest unit (wei).
	PricePerQuery string `json:"pricePerQuery" validate:"required,uint256"`

	// Address that must receive payments.
	PaymentAddress string `json:"paymentAddress" validate:"required,eth_addr"`

	Network Network `json:"network" validate:"required"`

	// Etherscan-compatible API used when RPCUrl is empty.
	ExplorerURL    string `json:"explorerUrl,omitempty" validate:"omitempty,url"`
	ExplorerAPIKey string `json:"explorerApiKey,omitempty"`
	ExplorerRPS    int    `json:"explorerRps,omitempty" validate:"gte=0"`

	// JSON-RPC endpoint. Takes precedence over the explorer API.
	RPCUrl string `json:"rpcUrl,omitempty" validate:"omitempty,url"`

	ChainTimeout     time.Duration `json:"chainTimeout,omitempty" validate:"gte=0"`
	MinConfirmations int           `json:"minConfirmations,omitempty" validate:"gte=0"`

	FreshnessWindow time.Duration `json:"freshnessWindow,omitempty" validate:"gte=0"`
	ClockSkew       time.Duration `json:"clockSkew,omitempty" validate:"gte=0"`

	RateLimitWindow time.Duration `json:"rateLimitWindow,omitempty" validate:"gte=0"`
	RateLimitMax    int           `json:"rateLimitMax,omitempty" validate:"gte=0"`

	Redis RedisConfig `json:"redis,omitempty"`

	// Peers allowed to set X-Forwarded-For / X-Real-IP. Empty trusts every
	// peer, which is only safe behind a proxy that overwrites the headers.
	TrustedProxies []string `json:"trustedProxies,omitempty" validate:"omitempty,dive,cidr|ip"`

	ListenAddr    string `json:"listenAddr,omitempty"`
	LogLevel      string `json:"logLevel,omitempty" validate:"omitempty,oneof=debug info warn error"`
	EnableMetrics bool   `json:"enableMetrics,omitempty"`
}

// RedisConfig selects the Redis-backed ledger and rate-limit store when Addr is set.
type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty" validate:"gte=0"`
}

// Enabled reports whether a Redis backend was configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// Defaults used when a GateConfig field is left zero.
const (
	DefaultPricePerQuery    = "1000000000000000" // 0.001 ETH
	DefaultFreshnessWindow  = 10 * time.Minute
	DefaultClockSkew        = 30 * time.Second
	DefaultRateLimitWindow  = 60 * time.Second
	DefaultRateLimitMax     = 10
	DefaultChainTimeout     = 10 * time.Second
	DefaultExplorerRPS      = 5
	DefaultMinConfirmations = 1
	DefaultListenAddr       = ":8080"
	DefaultLogLevel         = "info"
)

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *GateConfig) ApplyDefaults() {
	if c.PricePerQuery == "" {
		c.PricePerQuery = DefaultPricePerQuery
	}
	if c.Network == "" {
		c.Network = NetworkBase
	}
	if c.ExplorerURL == "" {
		c.ExplorerURL = c.Network.DefaultExplorerURL()
	}
	if c.ExplorerRPS == 0 {
		c.ExplorerRPS = DefaultExplorerRPS
	}
	if c.ChainTimeout == 0 {
		c.ChainTimeout = DefaultChainTimeout
	}
	if c.MinConfirmations == 0 {
		c.MinConfirmations = DefaultMinConfirmations
	}
	if c.FreshnessWindow == 0 {
		c.FreshnessWindow = DefaultFreshnessWindow
	}
	if c.ClockSkew == 0 {
		c.ClockSkew = DefaultClockSkew
	}
	if c.RateLimitWindow == 0 {
		c.RateLimitWindow = DefaultRateLimitWindow
	}
	if c.RateLimitMax == 0 {
		c.RateLimitMax = DefaultRateLimitMax
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *GateConfig) Validate() error {
	if !c.Network.IsEVM() {
		return &GateError{
			Code:    ErrUnsupportedNetwork,
			Message: fmt.Sprintf("unsupported network: %s", c.Network),
		}
	}

	if c.RPCUrl == "" && c.ExplorerURL == "" {
		return &GateError{
			Code:    ErrConfigError,
			Message: "either rpcUrl or explorerUrl is required",
		}
	}

	return nil
}
