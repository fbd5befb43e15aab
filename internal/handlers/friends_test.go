package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/buzzbuddies/backend/internal/directory"
	"github.com/buzzbuddies/backend/internal/models"
)

type failingRequests struct {
	FriendRequests
	err error
}

func (f failingRequests) Send(context.Context, string, string) (string, error) {
	return "", f.err
}

func TestFriendHandlerSend(t *testing.T) {
	f := newFixture(t)
	handler := f.friendHandler()

	rec := httptest.NewRecorder()
	handler.Inbox(rec, asUser(t, http.MethodPost, "/api/v1/friends/requests", alice.ID, sendFriendRequest{Email: " BOB@example.com"}))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	resp := decodeBody[sendFriendResponse](t, rec)
	if resp.RecipientID != bob.ID {
		t.Fatalf("expected recipient %s got %s", bob.ID, resp.RecipientID)
	}

	if _, err := f.store.Get(context.Background(), directory.RequestsOf(bob.ID).Doc(alice.ID)); err != nil {
		t.Fatalf("expected request to be stored: %v", err)
	}
}

func TestFriendHandlerSendFailures(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name       string
		handler    FriendHandler
		userID     string
		body       any
		wantStatus int
		wantError  string
	}{
		{name: "empty email", handler: f.friendHandler(), userID: alice.ID, body: sendFriendRequest{Email: "  "}, wantStatus: http.StatusBadRequest, wantError: "Please check your input and try again."},
		{name: "unknown field", handler: f.friendHandler(), userID: alice.ID, body: map[string]string{"mail": "x"}, wantStatus: http.StatusBadRequest},
		{name: "unknown recipient", handler: f.friendHandler(), userID: alice.ID, body: sendFriendRequest{Email: "nobody@example.com"}, wantStatus: http.StatusNotFound, wantError: "No user found with that email."},
		{name: "self request", handler: f.friendHandler(), userID: alice.ID, body: sendFriendRequest{Email: alice.Email}, wantStatus: http.StatusBadRequest, wantError: "You cannot add yourself."},
		{name: "no session", handler: f.friendHandler(), userID: "", body: sendFriendRequest{Email: bob.Email}, wantStatus: http.StatusUnauthorized, wantError: "User not logged in."},
		{
			name:       "store failure",
			handler:    FriendHandler{Requests: failingRequests{err: fmt.Errorf("write: %w", models.ErrStore)}},
			userID:     alice.ID,
			body:       sendFriendRequest{Email: bob.Email},
			wantStatus: http.StatusServiceUnavailable,
			wantError:  "Something went wrong. Please try again.",
		},
		{name: "missing service", handler: FriendHandler{}, userID: alice.ID, body: sendFriendRequest{Email: bob.Email}, wantStatus: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tc.handler.Inbox(rec, asUser(t, http.MethodPost, "/api/v1/friends/requests", tc.userID, tc.body))

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if tc.wantError != "" {
				resp := decodeBody[map[string]string](t, rec)
				if resp["error"] != tc.wantError {
					t.Fatalf("expected error %q got %q", tc.wantError, resp["error"])
				}
			}
		})
	}
}

func TestFriendHandlerListRequests(t *testing.T) {
	f := newFixture(t)
	if _, err := f.requests.Send(context.Background(), alice.ID, bob.Email); err != nil {
		t.Fatalf("send: %v", err)
	}

	rec := httptest.NewRecorder()
	f.friendHandler().Inbox(rec, asUser(t, http.MethodGet, "/api/v1/friends/requests", bob.ID, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[friendRequestsResponse](t, rec)
	if len(resp.Requests) != 1 || resp.Requests[0].FromUID != alice.ID || resp.Requests[0].FullName() != "Alice Smith" {
		t.Fatalf("unexpected requests %+v", resp.Requests)
	}
}

func TestFriendHandlerAcceptAndList(t *testing.T) {
	f := newFixture(t)
	handler := f.friendHandler()
	if _, err := f.requests.Send(context.Background(), alice.ID, bob.Email); err != nil {
		t.Fatalf("send: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.Accept(rec, asUser(t, http.MethodPost, "/api/v1/friends/requests/accept", bob.ID, respondFriendRequest{RequestID: alice.ID}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if resp := decodeBody[respondFriendResponse](t, rec); resp.Status != "accepted" {
		t.Fatalf("expected accepted status got %q", resp.Status)
	}

	rec = httptest.NewRecorder()
	handler.List(rec, asUser(t, http.MethodGet, "/api/v1/friends", alice.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	list := decodeBody[friendListResponse](t, rec)
	if len(list.Friends) != 1 || list.Friends[0] != (models.FriendSummary{ID: bob.ID, Name: "Bob Jones"}) {
		t.Fatalf("unexpected friends %+v", list.Friends)
	}

	// Accepting again finds no request.
	rec = httptest.NewRecorder()
	handler.Accept(rec, asUser(t, http.MethodPost, "/api/v1/friends/requests/accept", bob.ID, respondFriendRequest{RequestID: alice.ID}))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
}

func TestFriendHandlerDecline(t *testing.T) {
	f := newFixture(t)
	handler := f.friendHandler()
	if _, err := f.requests.Send(context.Background(), alice.ID, bob.Email); err != nil {
		t.Fatalf("send: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.Decline(rec, asUser(t, http.MethodPost, "/api/v1/friends/requests/decline", bob.ID, respondFriendRequest{RequestID: alice.ID}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}

	docs, err := f.store.Query(context.Background(), directory.FriendsOf(bob.ID).Query())
	if err != nil {
		t.Fatalf("query friends: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected no friendship edges, got %d", len(docs))
	}

	rec = httptest.NewRecorder()
	handler.Decline(rec, asUser(t, http.MethodPost, "/api/v1/friends/requests/decline", bob.ID, respondFriendRequest{}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for missing request id got %d", rec.Code)
	}
}

func TestFriendHandlerMethodNotAllowed(t *testing.T) {
	handler := newFixture(t).friendHandler()

	cases := []struct {
		method string
		fn     http.HandlerFunc
	}{
		{http.MethodDelete, handler.Inbox},
		{http.MethodGet, handler.Accept},
		{http.MethodGet, handler.Decline},
		{http.MethodPost, handler.List},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		tc.fn(rec, asUser(t, tc.method, "/", alice.ID, nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405 for %s got %d", tc.method, rec.Code)
		}
	}
}

func TestFriendHandlerMalformedBody(t *testing.T) {
	handler := newFixture(t).friendHandler()
	req := asUser(t, http.MethodPost, "/api/v1/friends/requests/accept", bob.ID, nil)
	req.Body = io.NopCloser(strings.NewReader("{not json"))

	rec := httptest.NewRecorder()
	handler.Accept(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}
