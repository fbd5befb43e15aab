package handlers

import (
	"errors"
	"net/http"

	"github.com/buzzbuddies/backend/internal/auth"
	"github.com/buzzbuddies/backend/internal/export"
)

// ExportHandler queues data exports for the caller.
type ExportHandler struct {
	Exports Exporter
}

// Create handles POST /api/v1/exports.
func (h ExportHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	if h.Exports == nil {
		respondJSON(ctx, w, http.StatusServiceUnavailable, map[string]string{"error": "Exports are not enabled."})
		return
	}

	if err := h.Exports.Enqueue(ctx, auth.UserIDFromContext(ctx)); err != nil {
		if errors.Is(err, export.ErrUnavailable) {
			respondJSON(ctx, w, http.StatusServiceUnavailable, map[string]string{"error": "Exports are not enabled."})
			return
		}
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusAccepted, map[string]string{"status": "queued"})
}
