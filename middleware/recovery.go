package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/vitwit/paygate/logger"
)

// Recovery turns handler panics into a 500 and logs the stack.
func Recovery(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error("panic recovered in HTTP handler", logger.Fields{
						"error":      err,
						"path":       r.URL.Path,
						"method":     r.Method,
						"request_id": GetRequestID(r.Context()),
						"stack":      string(debug.Stack()),
					})
					WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
