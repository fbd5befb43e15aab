package handlers

import (
	"net/http"

	"github.com/buzzbuddies/backend/internal/auth"
	"github.com/buzzbuddies/backend/internal/buzz"
	"github.com/buzzbuddies/backend/internal/logging"
	"github.com/buzzbuddies/backend/internal/models"
)

// BuzzHandler sends buzzes on behalf of the caller.
type BuzzHandler struct {
	Buzzes  Buzzer
	Names   NameResolver
	Limiter RateLimiter
}

// Create handles POST /api/v1/buzzes.
func (h BuzzHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Buzzes == nil {
		logger.Error("buzz dispatcher unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": models.Message(models.ErrStore)})
		return
	}

	if !allowRequest(h.Limiter, r, "buzz") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "Too many buzzes. Please wait a moment."})
		return
	}

	var req sendBuzzRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	event, err := h.Buzzes.Send(ctx, auth.UserIDFromContext(ctx), req.RecipientID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	var name string
	if h.Names != nil {
		if resolved, err := h.Names.DisplayName(ctx, req.RecipientID); err == nil {
			name = resolved
		} else {
			logger.Debug("resolve buzz recipient", "recipient_id", req.RecipientID, "error", err)
		}
	}

	respondJSON(ctx, w, http.StatusCreated, sendBuzzResponse{Buzz: event, Confirmation: buzz.Confirmation(name)})
}

type sendBuzzRequest struct {
	RecipientID string `json:"recipientId"`
}

type sendBuzzResponse struct {
	Buzz         models.BuzzEvent    `json:"buzz"`
	Confirmation models.Notification `json:"confirmation"`
}
