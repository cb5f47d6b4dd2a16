// Package middleware holds the HTTP boundary of the gate.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/vitwit/paygate/logger"
	"github.com/vitwit/paygate/types"
)

// Gate is the access decision the payment middleware delegates to.
// *paygate.PayGate implements it.
type Gate interface {
	Check(ctx context.Context, clientID, paymentHeader string) *types.Decision
}

type decisionKey struct{}

// DecisionFromContext returns the gate decision for an allowed request.
func DecisionFromContext(ctx context.Context) (*types.Decision, bool) {
	d, ok := ctx.Value(decisionKey{}).(*types.Decision)
	return d, ok
}

// PaymentOption customizes the payment middleware.
type PaymentOption func(*paymentConfig)

type paymentConfig struct {
	clientIP ClientIPFunc
}

// WithClientIP replaces ClientIP as the free-tier identity.
func WithClientIP(fn ClientIPFunc) PaymentOption {
	return func(c *paymentConfig) {
		c.clientIP = fn
	}
}

// Payment lets a request through only when the gate allows it, either on a
// verified X-PAYMENT header or on the client's free tier. Every denial is
// answered with 402 Payment Required.
func Payment(gate Gate, log logger.Logger, opts ...PaymentOption) func(http.Handler) http.Handler {
	cfg := paymentConfig{clientIP: ClientIP}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := cfg.clientIP(r)
			decision := gate.Check(r.Context(), clientID, r.Header.Get(types.HeaderPayment))

			if !decision.Allowed() {
				log.Info("payment required", logger.Fields{
					"client":     clientID,
					"outcome":    decision.Outcome.String(),
					"reason":     decision.Reason.String(),
					"request_id": GetRequestID(r.Context()),
				})
				WritePaymentRequired(w, decision)
				return
			}

			if decision.PaymentVerified {
				w.Header().Set(types.HeaderPaymentResponse, types.PaymentResponseVerified)
			} else if decision.RemainingRequests != nil {
				w.Header().Set(types.HeaderRateLimitRemaining, strconv.Itoa(*decision.RemainingRequests))
			}

			ctx := context.WithValue(r.Context(), decisionKey{}, decision)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WritePaymentRequired renders a denied decision as a 402 response.
func WritePaymentRequired(w http.ResponseWriter, d *types.Decision) {
	if d.Reason == types.ErrorRateLimitExceeded {
		w.Header().Set(types.HeaderRateLimitRemaining, "0")
	}

	message := d.Message
	if message == "" {
		message = d.Reason.Message()
	}

	WriteJSON(w, http.StatusPaymentRequired, types.PaymentRequiredResponse{
		Error:           d.Reason,
		Message:         message,
		PaymentRequired: true,
		PricePerQuery:   d.PricePerQuery,
	})
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
