package types

// ErrorKind discriminates why a request was denied. It is the machine-readable
// "error" field of a 402 response.
type ErrorKind string

const (
	ErrorMalformedHeader     ErrorKind = "malformed_header"
	ErrorReplayedPayment     ErrorKind = "replayed_payment"
	ErrorExpiredPayment      ErrorKind = "expired_payment"
	ErrorInvalidSignature    ErrorKind = "invalid_signature"
	ErrorInvalidTransaction  ErrorKind = "invalid_transaction"
	ErrorRateLimitExceeded   ErrorKind = "rate_limit_exceeded"
	ErrorUpstreamUnavailable ErrorKind = "upstream_unavailable"
)

var errorMessages = map[ErrorKind]string{
	ErrorMalformedHeader:     "Payment header could not be decoded.",
	ErrorReplayedPayment:     "Payment already used.",
	ErrorExpiredPayment:      "Payment expired. Please make a new payment.",
	ErrorInvalidSignature:    "Invalid payment signature.",
	ErrorInvalidTransaction:  "Payment transaction could not be verified on-chain.",
	ErrorRateLimitExceeded:   "Rate limit exceeded. Please make a payment to continue.",
	ErrorUpstreamUnavailable: "Payment verification is temporarily unavailable. Please retry.",
}

// Message returns the human-readable explanation for the kind.
func (k ErrorKind) Message() string {
	if m, ok := errorMessages[k]; ok {
		return m
	}
	return "Payment required."
}

func (k ErrorKind) String() string {
	return string(k)
}

// GateError is returned for setup and configuration failures.
type GateError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e GateError) Error() string {
	return e.Message
}

// Common error codes
const (
	ErrInvalidPayload     = "INVALID_PAYLOAD"
	ErrUnsupportedNetwork = "UNSUPPORTED_NETWORK"
	ErrNetworkError       = "NETWORK_ERROR"
	ErrConfigError        = "CONFIG_ERROR"
)
