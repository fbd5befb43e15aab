package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRegisterRoutes(t *testing.T) {
	f := newFixture(t)
	mux := http.NewServeMux()
	RegisterRoutes(mux, Dependencies{
		Auth:     staticAuth{"alice-token": alice.ID},
		Requests: f.requests,
		Graph:    f.graph,
		Buzzes:   f.dispatcher,
		Names:    f.dir,
	})

	cases := []struct {
		name       string
		method     string
		path       string
		token      string
		body       string
		wantStatus int
	}{
		{name: "health is public", method: http.MethodGet, path: "/healthz", wantStatus: http.StatusOK},
		{name: "friends require auth", method: http.MethodGet, path: "/api/v1/friends", wantStatus: http.StatusUnauthorized},
		{name: "friends list", method: http.MethodGet, path: "/api/v1/friends", token: "alice-token", wantStatus: http.StatusOK},
		{name: "send request", method: http.MethodPost, path: "/api/v1/friends/requests", token: "alice-token", body: `{"email":"bob@example.com"}`, wantStatus: http.StatusCreated},
		{name: "list requests", method: http.MethodGet, path: "/api/v1/friends/requests", token: "alice-token", wantStatus: http.StatusOK},
		{name: "decline missing", method: http.MethodPost, path: "/api/v1/friends/requests/decline", token: "alice-token", body: `{"requestId":"nobody"}`, wantStatus: http.StatusNotFound},
		{name: "buzz", method: http.MethodPost, path: "/api/v1/buzzes", token: "alice-token", body: `{"recipientId":"U2"}`, wantStatus: http.StatusCreated},
		{name: "exports disabled", method: http.MethodPost, path: "/api/v1/exports", token: "alice-token", wantStatus: http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, bytes.NewBufferString(tc.body))
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}
