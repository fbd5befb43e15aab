package friends

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buzzbuddies/backend/internal/directory"
	"github.com/buzzbuddies/backend/internal/docstore"
	"github.com/buzzbuddies/backend/internal/models"
)

var (
	alice = models.UserProfile{ID: "U1", FirstName: "Alice", LastName: "Smith", Email: "alice@example.com"}
	bob   = models.UserProfile{ID: "U2", FirstName: "Bob", LastName: "Jones", Email: "bob@example.com"}
	carol = models.UserProfile{ID: "U3", FirstName: "Carol", LastName: "", Email: "carol@example.com"}
)

type harness struct {
	store    docstore.Store
	requests *Requests
	graph    *Graph
}

func newHarness(t *testing.T, store docstore.Store, profiles ...models.UserProfile) harness {
	t.Helper()
	if store == nil {
		store = docstore.NewMemory()
	}
	for _, p := range profiles {
		require.NoError(t, store.Set(context.Background(), directory.UserDoc(p.ID), directory.ProfileFields(p)))
	}
	dir := directory.New(store)
	graph := NewGraph(store, dir, 4)
	return harness{store: store, requests: NewRequests(store, dir, graph, 4), graph: graph}
}

// faultyStore fails Set for the references selected by failSet.
type faultyStore struct {
	docstore.Store
	failSet func(ref docstore.DocRef) bool
}

func (s faultyStore) Set(ctx context.Context, ref docstore.DocRef, fields docstore.Fields) error {
	if s.failSet != nil && s.failSet(ref) {
		return errors.New("disk full")
	}
	return s.Store.Set(ctx, ref, fields)
}

func next[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for emission")
	}
	var zero T
	return zero
}

func exists(t *testing.T, store docstore.Store, ref docstore.DocRef) bool {
	t.Helper()
	_, err := store.Get(context.Background(), ref)
	if errors.Is(err, docstore.ErrNotFound) {
		return false
	}
	require.NoError(t, err)
	return true
}

func TestSendIsIdempotent(t *testing.T) {
	h := newHarness(t, nil, alice, bob)
	ctx := context.Background()

	_, err := h.requests.Send(ctx, alice.ID, bob.Email)
	require.NoError(t, err)
	_, err = h.requests.Send(ctx, alice.ID, bob.Email)
	require.NoError(t, err)

	docs, err := h.store.Query(ctx, directory.RequestsOf(bob.ID).Query())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, alice.ID, docs[0].ID())
	assert.Equal(t, alice.ID, docs[0].Fields.String(directory.FieldFromUID))
}

func TestSendToSelfWritesNothing(t *testing.T) {
	h := newHarness(t, nil, alice)
	ctx := context.Background()

	_, err := h.requests.Send(ctx, alice.ID, "  Alice@Example.com")
	require.ErrorIs(t, err, models.ErrSelfRequest)

	docs, err := h.store.Query(ctx, directory.RequestsOf(alice.ID).Query())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestSendValidation(t *testing.T) {
	h := newHarness(t, nil, alice, bob)

	cases := []struct {
		name   string
		sender string
		email  string
		want   error
	}{
		{name: "empty email", sender: alice.ID, email: "   ", want: models.ErrInvalidInput},
		{name: "unknown recipient", sender: alice.ID, email: "nobody@example.com", want: models.ErrRecipientNotFound},
		{name: "no session", sender: "", email: bob.Email, want: models.ErrNoSession},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.requests.Send(context.Background(), tc.sender, tc.email)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestSendStoreFailure(t *testing.T) {
	store := faultyStore{Store: docstore.NewMemory(), failSet: func(ref docstore.DocRef) bool {
		return ref.Parent == directory.RequestsOf(bob.ID)
	}}
	h := newHarness(t, store, alice, bob)

	_, err := h.requests.Send(context.Background(), alice.ID, bob.Email)
	require.ErrorIs(t, err, models.ErrStore)
}

func TestSendAndAcceptScenario(t *testing.T) {
	h := newHarness(t, nil, alice, bob)
	ctx := context.Background()

	recipient, err := h.requests.Send(ctx, alice.ID, "BOB@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, recipient)

	doc, err := h.store.Get(ctx, directory.RequestsOf(bob.ID).Doc(alice.ID))
	require.NoError(t, err)
	assert.Equal(t, alice.ID, doc.Fields.String(directory.FieldFromUID))

	req, err := h.requests.Lookup(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith", req.FullName())

	require.NoError(t, h.requests.Accept(ctx, bob.ID, req))

	edge, err := h.store.Get(ctx, directory.FriendsOf(bob.ID).Doc(alice.ID))
	require.NoError(t, err)
	assert.Equal(t, "Alice", edge.Fields.String(directory.FieldFirstName))
	assert.False(t, edge.Fields.Time(directory.FieldTimestamp).IsZero())

	reverse, err := h.store.Get(ctx, directory.FriendsOf(alice.ID).Doc(bob.ID))
	require.NoError(t, err)
	assert.Equal(t, "Bob", reverse.Fields.String(directory.FieldFirstName))
	assert.Equal(t, "Jones", reverse.Fields.String(directory.FieldLastName))

	assert.False(t, exists(t, h.store, directory.RequestsOf(bob.ID).Doc(alice.ID)))
}

func TestAcceptValidation(t *testing.T) {
	h := newHarness(t, nil, alice, bob)
	ctx := context.Background()

	require.ErrorIs(t, h.requests.Accept(ctx, "", models.EnrichedFriendRequest{ID: "U1", FromUID: "U1"}), models.ErrNoSession)
	require.ErrorIs(t, h.requests.Accept(ctx, bob.ID, models.EnrichedFriendRequest{ID: "U2", FromUID: "U2"}), models.ErrSelfRequest)
	require.ErrorIs(t, h.requests.Accept(ctx, bob.ID, models.EnrichedFriendRequest{ID: alice.ID, FromUID: alice.ID}), models.ErrNotFound)

	assert.False(t, exists(t, h.store, directory.FriendsOf(bob.ID).Doc(alice.ID)))
}

func TestAcceptRejectsMismatchedSender(t *testing.T) {
	h := newHarness(t, nil, alice, bob, carol)
	ctx := context.Background()

	_, err := h.requests.Send(ctx, alice.ID, bob.Email)
	require.NoError(t, err)

	err = h.requests.Accept(ctx, bob.ID, models.EnrichedFriendRequest{ID: alice.ID, FromUID: carol.ID})
	require.ErrorIs(t, err, models.ErrInvalidInput)
	assert.False(t, exists(t, h.store, directory.FriendsOf(bob.ID).Doc(carol.ID)))
}

func TestAcceptWithoutOwnProfileKeepsRequest(t *testing.T) {
	// Bob has no profile document.
	h := newHarness(t, nil, alice)
	ctx := context.Background()

	require.NoError(t, h.store.Set(ctx, directory.RequestsOf(bob.ID).Doc(alice.ID), docstore.Fields{
		directory.FieldFromUID:   alice.ID,
		directory.FieldTimestamp: time.Now(),
	}))

	err := h.requests.Accept(ctx, bob.ID, models.EnrichedFriendRequest{ID: alice.ID, FromUID: alice.ID, FirstName: "Alice"})
	require.ErrorIs(t, err, models.ErrPartialAcceptance)
	require.ErrorIs(t, err, models.ErrNotFound)

	assert.True(t, exists(t, h.store, directory.RequestsOf(bob.ID).Doc(alice.ID)))
	assert.False(t, exists(t, h.store, directory.FriendsOf(bob.ID).Doc(alice.ID)))
	assert.False(t, exists(t, h.store, directory.FriendsOf(alice.ID).Doc(bob.ID)))
}

func TestAcceptPartialEdgeFailureKeepsRequest(t *testing.T) {
	store := faultyStore{Store: docstore.NewMemory(), failSet: func(ref docstore.DocRef) bool {
		return ref.Parent == directory.FriendsOf(alice.ID)
	}}
	h := newHarness(t, store, alice, bob)
	ctx := context.Background()

	_, err := h.requests.Send(ctx, alice.ID, bob.Email)
	require.NoError(t, err)
	req, err := h.requests.Lookup(ctx, bob.ID, alice.ID)
	require.NoError(t, err)

	err = h.requests.Accept(ctx, bob.ID, req)
	require.ErrorIs(t, err, models.ErrPartialAcceptance)
	require.ErrorIs(t, err, models.ErrStore)

	assert.True(t, exists(t, h.store, directory.RequestsOf(bob.ID).Doc(alice.ID)))
	assert.True(t, exists(t, h.store, directory.FriendsOf(bob.ID).Doc(alice.ID)), "edge writes are not transactional")
}

func TestAcceptUsesSelfFallbackName(t *testing.T) {
	nameless := models.UserProfile{ID: "U4", Email: "x@example.com"}
	h := newHarness(t, nil, alice, nameless)
	ctx := context.Background()

	_, err := h.requests.Send(ctx, alice.ID, nameless.Email)
	require.NoError(t, err)
	req, err := h.requests.Lookup(ctx, nameless.ID, alice.ID)
	require.NoError(t, err)
	require.NoError(t, h.requests.Accept(ctx, nameless.ID, req))

	edge, err := h.store.Get(ctx, directory.FriendsOf(alice.ID).Doc(nameless.ID))
	require.NoError(t, err)
	assert.Equal(t, models.SelfFallbackName, edge.Fields.String(directory.FieldFirstName))
}

func TestDeclineRemovesRequestOnly(t *testing.T) {
	h := newHarness(t, nil, alice, bob)
	ctx := context.Background()

	_, err := h.requests.Send(ctx, alice.ID, bob.Email)
	require.NoError(t, err)
	req, err := h.requests.Lookup(ctx, bob.ID, alice.ID)
	require.NoError(t, err)

	require.NoError(t, h.requests.Decline(ctx, bob.ID, req))

	assert.False(t, exists(t, h.store, directory.RequestsOf(bob.ID).Doc(alice.ID)))
	for _, owner := range []string{alice.ID, bob.ID} {
		docs, err := h.store.Query(ctx, directory.FriendsOf(owner).Query())
		require.NoError(t, err)
		assert.Empty(t, docs)
	}

	require.ErrorIs(t, h.requests.Decline(ctx, "", req), models.ErrNoSession)
}

func TestPendingCountTracksInbox(t *testing.T) {
	h := newHarness(t, nil, alice, bob, carol)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	counts, err := h.requests.PendingCount(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, next(t, counts))

	_, err = h.requests.Send(ctx, alice.ID, bob.Email)
	require.NoError(t, err)
	assert.Equal(t, 1, next(t, counts))

	_, err = h.requests.Send(ctx, carol.ID, bob.Email)
	require.NoError(t, err)
	assert.Equal(t, 2, next(t, counts))

	fromAlice, err := h.requests.Lookup(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	require.NoError(t, h.requests.Accept(ctx, bob.ID, fromAlice))
	assert.Equal(t, 1, next(t, counts))

	fromCarol, err := h.requests.Lookup(ctx, bob.ID, carol.ID)
	require.NoError(t, err)
	require.NoError(t, h.requests.Decline(ctx, bob.ID, fromCarol))
	assert.Equal(t, 0, next(t, counts))

	cancel()
	select {
	case _, ok := <-counts:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("count stream did not close")
	}
}

func TestSubscribeEnrichesRequests(t *testing.T) {
	h := newHarness(t, nil, alice, bob)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	base := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	inbox := directory.RequestsOf(bob.ID)
	require.NoError(t, h.store.Set(ctx, inbox.Doc(alice.ID), docstore.Fields{
		directory.FieldFromUID: alice.ID, directory.FieldTimestamp: base,
	}))
	require.NoError(t, h.store.Set(ctx, inbox.Doc("ghost"), docstore.Fields{
		directory.FieldFromUID: "ghost", directory.FieldTimestamp: base.Add(time.Minute),
	}))
	require.NoError(t, h.store.Set(ctx, inbox.Doc("broken"), docstore.Fields{
		directory.FieldTimestamp: base.Add(2 * time.Minute),
	}))

	stream, err := h.requests.Subscribe(ctx, bob.ID)
	require.NoError(t, err)

	got := next(t, stream)
	assert.Equal(t, []models.EnrichedFriendRequest{
		{ID: alice.ID, FromUID: alice.ID, FirstName: "Alice", LastName: "Smith"},
		{ID: "ghost", FromUID: "ghost", FirstName: models.UnknownSenderName},
	}, got)

	require.NoError(t, h.store.Delete(ctx, inbox.Doc("ghost")))
	got = next(t, stream)
	require.Len(t, got, 1)
	assert.Equal(t, alice.ID, got[0].FromUID)
}

func TestSubscribeRequiresSession(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.requests.Subscribe(context.Background(), "")
	require.ErrorIs(t, err, models.ErrNoSession)
}

func TestListFriendsResolvesLiveProfiles(t *testing.T) {
	nameless := models.UserProfile{ID: "U4", Email: "x@example.com"}
	h := newHarness(t, nil, alice, bob, nameless)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, h.graph.AddEdge(ctx, alice.ID, bob.ID, bob))
	require.NoError(t, h.graph.AddEdge(ctx, alice.ID, nameless.ID, nameless))
	require.NoError(t, h.graph.AddEdge(ctx, alice.ID, "U9", models.UserProfile{FirstName: "Gone"}))

	friends, err := h.graph.ListFriends(ctx, alice.ID)
	require.NoError(t, err)

	assert.Equal(t, []models.FriendSummary{
		{ID: bob.ID, Name: "Bob Jones"},
		{ID: nameless.ID, Name: models.NoName},
	}, next(t, friends))
}

func TestAddEdgeValidation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	require.ErrorIs(t, h.graph.AddEdge(ctx, "U1", "U1", alice), models.ErrSelfRequest)
	require.ErrorIs(t, h.graph.AddEdge(ctx, "", "U2", bob), models.ErrInvalidInput)
	require.ErrorIs(t, h.graph.AcceptMutual(ctx, "U1", "U1", alice), models.ErrSelfRequest)
}

func TestAddEdgeStoresPeerNameWithServerTimestamp(t *testing.T) {
	store := docstore.NewMemory()
	stamp := time.Date(2024, time.March, 4, 5, 6, 7, 0, time.UTC)
	store.WithNowFunc(func() time.Time { return stamp })
	h := newHarness(t, store)
	ctx := context.Background()

	require.NoError(t, h.graph.AddEdge(ctx, alice.ID, bob.ID, bob))

	doc, err := store.Get(ctx, directory.FriendsOf(alice.ID).Doc(bob.ID))
	require.NoError(t, err)
	assert.Equal(t, models.FriendshipEdge{PeerID: bob.ID, FirstName: "Bob", LastName: "Jones", Timestamp: stamp}, edgeFromDocument(doc))

	fixed := stamp.Add(-time.Hour)
	fields := edgeFields(models.FriendshipEdge{PeerID: carol.ID, FirstName: "Carol", Timestamp: fixed})
	assert.Equal(t, fixed, fields[directory.FieldTimestamp])
}
