package handlers

import (
	"net/http"

	"github.com/buzzbuddies/backend/internal/auth"
	"github.com/buzzbuddies/backend/internal/logging"
	"github.com/buzzbuddies/backend/internal/models"
)

// RequireUser rejects requests without a valid bearer token and stores the caller's id on the
// request context. Browsers cannot set headers on WebSocket upgrades, so the token may also be
// passed as the access_token query parameter.
func RequireUser(verifier Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token := auth.BearerToken(r.Header.Get("Authorization"))
			if token == "" {
				token = r.URL.Query().Get("access_token")
			}

			if verifier == nil {
				logging.FromContext(ctx).Error("token verifier unavailable")
				respondError(ctx, w, models.ErrNoSession)
				return
			}

			userID, err := verifier.Authenticate(token)
			if err != nil {
				logging.FromContext(ctx).Warn("authentication failed", "error", err)
				respondError(ctx, w, models.ErrNoSession)
				return
			}

			ctx = auth.WithUserID(ctx, userID)
			ctx = logging.With(ctx, "user_id", userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
