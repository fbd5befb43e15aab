package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/buzzbuddies/backend/internal/auth"
	"github.com/buzzbuddies/backend/internal/logging"
	"github.com/buzzbuddies/backend/internal/models"
)

const defaultSnapshotTimeout = 5 * time.Second

// FriendHandler provides friend request and friend list endpoints.
type FriendHandler struct {
	Requests FriendRequests
	Graph    FriendGraph
	// SnapshotTimeout bounds how long list endpoints wait for the first snapshot.
	SnapshotTimeout time.Duration
}

// Inbox handles POST (send) and GET (list) on /api/v1/friends/requests.
func (h FriendHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.send(w, r)
	case http.MethodGet:
		h.listRequests(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h FriendHandler) send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}

	var req sendFriendRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	recipientID, err := h.Requests.Send(ctx, auth.UserIDFromContext(ctx), req.Email)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusCreated, sendFriendResponse{RecipientID: recipientID})
}

func (h FriendHandler) listRequests(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()

	if !h.available(w, r) {
		return
	}

	stream, err := h.Requests.Subscribe(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	requests, err := first(ctx, stream)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, friendRequestsResponse{Requests: requests})
}

// Accept handles POST /api/v1/friends/requests/accept.
func (h FriendHandler) Accept(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	h.respond(w, r, h.Requests.Accept, "accepted")
}

// Decline handles POST /api/v1/friends/requests/decline.
func (h FriendHandler) Decline(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	h.respond(w, r, h.Requests.Decline, "declined")
}

func (h FriendHandler) available(w http.ResponseWriter, r *http.Request) bool {
	if h.Requests != nil {
		return true
	}
	ctx := r.Context()
	logging.FromContext(ctx).Error("friend request service unavailable")
	respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": models.Message(models.ErrStore)})
	return false
}

func (h FriendHandler) respond(w http.ResponseWriter, r *http.Request, action func(context.Context, string, models.EnrichedFriendRequest) error, status string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	userID := auth.UserIDFromContext(ctx)

	var req respondFriendRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}
	if req.RequestID == "" {
		respondError(ctx, w, models.ErrInvalidInput)
		return
	}

	// The caller only names the request; sender and names come from the stored inbox.
	request, err := h.Requests.Lookup(ctx, userID, req.RequestID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	if err := action(ctx, userID, request); err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, respondFriendResponse{Status: status, Request: request})
}

// List handles GET /api/v1/friends.
func (h FriendHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()

	if h.Graph == nil {
		logging.FromContext(ctx).Error("friend graph unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": models.Message(models.ErrStore)})
		return
	}

	stream, err := h.Graph.ListFriends(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	friends, err := first(ctx, stream)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, friendListResponse{Friends: friends})
}

func (h FriendHandler) timeout() time.Duration {
	if h.SnapshotTimeout > 0 {
		return h.SnapshotTimeout
	}
	return defaultSnapshotTimeout
}

type sendFriendRequest struct {
	Email string `json:"email"`
}

type sendFriendResponse struct {
	RecipientID string `json:"recipientId"`
}

type friendRequestsResponse struct {
	Requests []models.EnrichedFriendRequest `json:"requests"`
}

type respondFriendRequest struct {
	RequestID string `json:"requestId"`
}

type respondFriendResponse struct {
	Status  string                       `json:"status"`
	Request models.EnrichedFriendRequest `json:"request"`
}

type friendListResponse struct {
	Friends []models.FriendSummary `json:"friends"`
}
