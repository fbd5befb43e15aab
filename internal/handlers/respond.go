package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/buzzbuddies/backend/internal/logging"
	"github.com/buzzbuddies/backend/internal/models"
)

const maxBodyBytes = 1 << 16

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

// respondError writes the short human-readable message for err with a matching status.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	if err != nil {
		logging.FromContext(ctx).Debug("request error", "error", err)
	}
	respondJSON(ctx, w, statusFor(err), map[string]string{"error": models.Message(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrSelfRequest):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrRecipientNotFound), errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, models.ErrStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Join(models.ErrInvalidInput, err)
	}
	return nil
}

// first waits for the first value published on a stream.
func first[T any](ctx context.Context, stream <-chan T) (T, error) {
	var zero T
	select {
	case v, ok := <-stream:
		if !ok {
			if err := ctx.Err(); err != nil {
				return zero, err
			}
			return zero, errors.New("stream closed before first value")
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
