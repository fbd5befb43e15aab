package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/buzzbuddies/backend/internal/auth"
	"github.com/buzzbuddies/backend/internal/buzz"
	"github.com/buzzbuddies/backend/internal/directory"
	"github.com/buzzbuddies/backend/internal/docstore"
	"github.com/buzzbuddies/backend/internal/friends"
	"github.com/buzzbuddies/backend/internal/models"
)

var (
	alice = models.UserProfile{ID: "U1", FirstName: "Alice", LastName: "Smith", Email: "alice@example.com"}
	bob   = models.UserProfile{ID: "U2", FirstName: "Bob", LastName: "Jones", Email: "bob@example.com"}
)

type fixture struct {
	store      *docstore.Memory
	dir        *directory.Directory
	requests   *friends.Requests
	graph      *friends.Graph
	dispatcher *buzz.Dispatcher
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := docstore.NewMemory()
	for _, p := range []models.UserProfile{alice, bob} {
		if err := store.Set(context.Background(), directory.UserDoc(p.ID), directory.ProfileFields(p)); err != nil {
			t.Fatalf("seed profile: %v", err)
		}
	}
	dir := directory.New(store)
	graph := friends.NewGraph(store, dir, 4)
	return fixture{
		store:      store,
		dir:        dir,
		requests:   friends.NewRequests(store, dir, graph, 4),
		graph:      graph,
		dispatcher: buzz.NewDispatcher(store, dir, buzz.Replay),
	}
}

func (f fixture) friendHandler() FriendHandler {
	return FriendHandler{Requests: f.requests, Graph: f.graph}
}

// asUser builds a request authenticated as userID.
func asUser(t *testing.T, method, target, userID string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if userID != "" {
		req = req.WithContext(auth.WithUserID(req.Context(), userID))
	}
	return req
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

type staticAuth map[string]string

func (s staticAuth) Authenticate(token string) (string, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return "", auth.ErrInvalidToken
}
