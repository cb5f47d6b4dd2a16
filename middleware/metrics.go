package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/vitwit/paygate/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Metrics records the status and latency of every request under route.
func Metrics(rec metrics.Recorder, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			labels := map[string]string{"result": route + ":" + strconv.Itoa(sr.statusCode)}
			rec.IncCounter(metrics.EventHTTPRequest, labels)
			rec.ObserveLatency(metrics.EventHTTPRequest, time.Since(start), labels)
		})
	}
}
