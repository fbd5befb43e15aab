package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/buzzbuddies/backend/internal/logging"
)

func TestKeyedRateLimiter(t *testing.T) {
	limiter := NewKeyedRateLimiter(1, time.Minute, 2, time.Minute).(*keyedRateLimiter)
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter.WithNowFunc(func() time.Time { return now })

	if !limiter.Allow("U1") || !limiter.Allow("U1") {
		t.Fatal("expected burst to be allowed")
	}
	if limiter.Allow("U1") {
		t.Fatal("expected third request to be limited")
	}
	if !limiter.Allow("U2") {
		t.Fatal("expected other keys to have their own budget")
	}

	now = now.Add(time.Minute)
	if !limiter.Allow("U1") {
		t.Fatal("expected a token to be refilled after the window")
	}
}

func TestKeyedRateLimiterForgetsIdleKeys(t *testing.T) {
	limiter := NewKeyedRateLimiter(1, time.Hour, 1, time.Minute).(*keyedRateLimiter)
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter.WithNowFunc(func() time.Time { return now })

	limiter.Allow("U1")
	now = now.Add(2 * time.Minute)
	limiter.Allow("U2")

	limiter.mu.Lock()
	_, ok := limiter.visitors["U1"]
	limiter.mu.Unlock()
	if ok {
		t.Fatal("expected idle key to be collected")
	}
}

func TestRequestLoggerScopesLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	var requestID string
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID = logging.RequestIDFromContext(r.Context())
		logging.FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if requestID != "req-123" {
		t.Fatalf("expected request id to propagate, got %q", requestID)
	}
	if rec.Header().Get("X-Request-ID") != "req-123" {
		t.Fatal("expected request id response header")
	}
	out := buf.String()
	if !strings.Contains(out, "request_id=req-123") || !strings.Contains(out, "status=418") {
		t.Fatalf("unexpected log output %s", out)
	}
}

func TestRequestLoggerRecoversPanics(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	handler := RequestLogger(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
}
