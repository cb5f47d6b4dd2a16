package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/vitwit/paygate/middleware"
)

// Pinger is implemented by backends whose reachability affects health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	version string
	started time.Time
	deps    map[string]Pinger
}

func NewHealthHandler(version string, deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{version: version, started: time.Now(), deps: deps}
}

// ServeHTTP handles GET /healthz.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(h.deps))

	for name, dep := range h.deps {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := dep.Ping(ctx)
		cancel()

		if err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	middleware.WriteJSON(w, status, map[string]any{
		"status":         http.StatusText(status),
		"version":        h.version,
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"checks":         checks,
	})
}
