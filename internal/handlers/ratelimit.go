package handlers

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/buzzbuddies/backend/internal/auth"
)

// RateLimiter is the minimal interface required to guard sensitive endpoints.
type RateLimiter interface {
	Allow(key string) bool
}

func allowRequest(limiter RateLimiter, r *http.Request, scope string) bool {
	if limiter == nil {
		return true
	}
	return limiter.Allow(rateLimitKey(r, scope))
}

// rateLimitKey keys authenticated callers by user id and anonymous ones by client IP.
func rateLimitKey(r *http.Request, scope string) string {
	key := auth.UserIDFromContext(r.Context())
	if key == "" {
		key = "ip:" + clientIP(r)
	}
	if scope == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", scope, key)
}

func clientIP(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
