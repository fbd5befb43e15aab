package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/buzzbuddies/backend/internal/auth"
)

func TestRequireUser(t *testing.T) {
	verifier := staticAuth{"good-token": alice.ID}

	var seen string
	protected := RequireUser(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = auth.UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name       string
		header     string
		target     string
		wantStatus int
		wantUser   string
	}{
		{name: "bearer header", header: "Bearer good-token", target: "/api/v1/friends", wantStatus: http.StatusNoContent, wantUser: alice.ID},
		{name: "query token", target: "/api/v1/live?access_token=good-token", wantStatus: http.StatusNoContent, wantUser: alice.ID},
		{name: "bad token", header: "Bearer nope", target: "/api/v1/friends", wantStatus: http.StatusUnauthorized},
		{name: "missing token", target: "/api/v1/friends", wantStatus: http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d got %d", tc.wantStatus, rec.Code)
			}
			if seen != tc.wantUser {
				t.Fatalf("expected user %q got %q", tc.wantUser, seen)
			}
		})
	}
}

func TestRequireUserWithoutVerifier(t *testing.T) {
	protected := RequireUser(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))

	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/friends", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}
