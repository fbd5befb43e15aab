package handlers

import (
	"context"
	"net/http"
	"time"
)

// HealthHandler responds with service health information.
type HealthHandler struct {
	// Checks are keyed by component name; any failure reports the service as degraded.
	Checks map[string]HealthChecker
}

// Handle implements GET /healthz.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	payload := map[string]string{"status": "ok"}
	status := http.StatusOK
	for name, check := range h.Checks {
		if check == nil {
			continue
		}
		if err := check(ctx); err != nil {
			payload[name] = err.Error()
			payload["status"] = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		payload[name] = "ok"
	}

	respondJSON(ctx, w, status, payload)
}
