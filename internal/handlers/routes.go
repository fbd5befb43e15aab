package handlers

import (
	"net/http"
	"time"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Checks: deps.HealthChecks}
	friends := FriendHandler{Requests: deps.Requests, Graph: deps.Graph, SnapshotTimeout: deps.SnapshotTimeout}
	buzzes := BuzzHandler{Buzzes: deps.Buzzes, Names: deps.Names, Limiter: deps.BuzzLimiter}
	exports := ExportHandler{Exports: deps.Exports}
	live := LiveHandler{
		Requests:       deps.Requests,
		Graph:          deps.Graph,
		Buzzes:         deps.Buzzes,
		OriginPatterns: deps.OriginPatterns,
		Done:           deps.Shutdown,
	}

	authed := RequireUser(deps.Auth)

	mux.HandleFunc("/healthz", health.Handle)
	mux.Handle("/api/v1/friends", authed(http.HandlerFunc(friends.List)))
	mux.Handle("/api/v1/friends/requests", authed(http.HandlerFunc(friends.Inbox)))
	mux.Handle("/api/v1/friends/requests/accept", authed(http.HandlerFunc(friends.Accept)))
	mux.Handle("/api/v1/friends/requests/decline", authed(http.HandlerFunc(friends.Decline)))
	mux.Handle("/api/v1/buzzes", authed(http.HandlerFunc(buzzes.Create)))
	mux.Handle("/api/v1/exports", authed(http.HandlerFunc(exports.Create)))
	mux.Handle("/api/v1/live", authed(http.HandlerFunc(live.Handle)))
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Auth        Authenticator
	Requests    FriendRequests
	Graph       FriendGraph
	Buzzes      Buzzer
	Names       NameResolver
	BuzzLimiter RateLimiter
	Exports     Exporter

	HealthChecks    map[string]HealthChecker
	OriginPatterns  []string
	SnapshotTimeout time.Duration
	Shutdown        <-chan struct{}
}
