package middleware

import (
	"net/http"
	"strings"

	"github.com/vitwit/paygate/types"
)

var exposedHeaders = strings.Join([]string{
	types.HeaderPaymentResponse,
	types.HeaderRateLimitRemaining,
	HeaderRequestID,
}, ", ")

// CORS lets browser wallets call the gate and read the payment headers.
// Preflight requests are answered directly with 200.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+types.HeaderPayment+", "+HeaderRequestID)
		h.Set("Access-Control-Expose-Headers", exposedHeaders)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
