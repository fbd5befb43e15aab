package friends

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/buzzbuddies/backend/internal/directory"
	"github.com/buzzbuddies/backend/internal/docstore"
	"github.com/buzzbuddies/backend/internal/fanin"
	"github.com/buzzbuddies/backend/internal/logging"
	"github.com/buzzbuddies/backend/internal/models"
)

// Directory resolves recipients by email and reads sender profiles.
type Directory interface {
	Profiles
	FindByEmail(ctx context.Context, email string) (string, error)
}

// Requests manages the friend request inbox of each user. A request lives at
// users/{recipient}/friendRequests/{sender} until it is accepted or declined.
type Requests struct {
	store       docstore.Store
	directory   Directory
	graph       *Graph
	lookupLimit int

	// NowFunc overrides the clock used for request timestamps.
	NowFunc func() time.Time
}

// NewRequests constructs a Requests manager.
func NewRequests(store docstore.Store, dir Directory, graph *Graph, lookupLimit int) *Requests {
	return &Requests{store: store, directory: dir, graph: graph, lookupLimit: lookupLimit}
}

// Send files a friend request from senderID to the user registered with recipientEmail and
// returns the recipient's id. Sending again only refreshes the timestamp.
func (r *Requests) Send(ctx context.Context, senderID, recipientEmail string) (string, error) {
	email := directory.NormalizeEmail(recipientEmail)
	if email == "" {
		return "", models.ErrInvalidInput
	}

	recipientID, err := r.directory.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("find %s: %w", email, models.ErrRecipientNotFound)
	}

	if senderID == "" {
		return "", models.ErrNoSession
	}
	if recipientID == senderID {
		return "", models.ErrSelfRequest
	}

	fields := docstore.Fields{
		directory.FieldFromUID:   senderID,
		directory.FieldTimestamp: r.now(),
	}
	if err := r.store.Set(ctx, directory.RequestsOf(recipientID).Doc(senderID), fields); err != nil {
		return "", fmt.Errorf("send friend request %s -> %s: %w: %w", senderID, recipientID, models.ErrStore, err)
	}

	logging.FromContext(ctx).Info("friend request sent", slog.String("sender_id", senderID), slog.String("recipient_id", recipientID))
	return recipientID, nil
}

// Subscribe streams recipientID's inbox, each request enriched with the sender's name. Every
// inbox change produces one complete list once all senders are resolved; a newer change
// supersedes a list still being resolved.
func (r *Requests) Subscribe(ctx context.Context, recipientID string) (<-chan []models.EnrichedFriendRequest, error) {
	if recipientID == "" {
		return nil, models.ErrNoSession
	}

	snapshots, err := r.store.Listen(ctx, directory.RequestsOf(recipientID).Query().OrderBy(directory.FieldTimestamp, docstore.Asc))
	if err != nil {
		return nil, fmt.Errorf("listen requests of %s: %w: %w", recipientID, models.ErrStore, err)
	}

	inbox := decode(ctx, snapshots, "friend_requests", func(docs []docstore.Document) []models.FriendRequest {
		return r.requestsFrom(ctx, docs)
	})

	return fanin.Latest(ctx, inbox, func(ctx context.Context, reqs []models.FriendRequest) []models.EnrichedFriendRequest {
		return fanin.Join(ctx, reqs, r.lookupLimit, r.enrich)
	}), nil
}

// Lookup reads one request from recipientID's inbox and enriches it.
func (r *Requests) Lookup(ctx context.Context, recipientID, requestID string) (models.EnrichedFriendRequest, error) {
	if recipientID == "" {
		return models.EnrichedFriendRequest{}, models.ErrNoSession
	}
	if requestID == "" {
		return models.EnrichedFriendRequest{}, models.ErrInvalidInput
	}

	req, err := r.read(ctx, recipientID, requestID)
	if err != nil {
		return models.EnrichedFriendRequest{}, err
	}
	enriched, _ := r.enrich(ctx, req)
	return enriched, nil
}

// Accept turns the request into a friendship between actorID and the sender. The request is
// removed only after both friendship edges were written.
func (r *Requests) Accept(ctx context.Context, actorID string, req models.EnrichedFriendRequest) (err error) {
	if actorID == "" {
		return models.ErrNoSession
	}
	if req.FromUID == actorID {
		return models.ErrSelfRequest
	}
	if req.ID == "" || req.FromUID == "" {
		return models.ErrInvalidInput
	}

	ctx, span := logging.StartSpan(ctx, "friends.accept")
	defer func() { span.End(err) }()

	stored, err := r.read(ctx, actorID, req.ID)
	if err != nil {
		return err
	}
	if stored.FromUID != req.FromUID {
		return fmt.Errorf("request %s is from %s, not %s: %w", req.ID, stored.FromUID, req.FromUID, models.ErrInvalidInput)
	}

	peer := models.UserProfile{ID: req.FromUID, FirstName: req.FirstName, LastName: req.LastName}
	if err := r.graph.AcceptMutual(ctx, actorID, req.FromUID, peer); err != nil {
		return err
	}

	if err := r.store.Delete(ctx, directory.RequestsOf(actorID).Doc(req.ID)); err != nil {
		return fmt.Errorf("remove accepted request %s: %w: %w", req.ID, models.ErrStore, err)
	}

	logging.FromContext(ctx).Info("friend request accepted", slog.String("user_id", actorID), slog.String("peer_id", req.FromUID))
	return nil
}

// Decline removes the request without creating a friendship.
func (r *Requests) Decline(ctx context.Context, actorID string, req models.EnrichedFriendRequest) error {
	if actorID == "" {
		return models.ErrNoSession
	}
	if req.ID == "" {
		return models.ErrInvalidInput
	}

	if err := r.store.Delete(ctx, directory.RequestsOf(actorID).Doc(req.ID)); err != nil {
		return fmt.Errorf("decline request %s: %w: %w", req.ID, models.ErrStore, err)
	}

	logging.FromContext(ctx).Info("friend request declined", slog.String("user_id", actorID), slog.String("request_id", req.ID))
	return nil
}

// PendingCount streams the number of requests in userID's inbox.
func (r *Requests) PendingCount(ctx context.Context, userID string) (<-chan int, error) {
	if userID == "" {
		return nil, models.ErrNoSession
	}

	snapshots, err := r.store.Listen(ctx, directory.RequestsOf(userID).Query())
	if err != nil {
		return nil, fmt.Errorf("listen requests of %s: %w: %w", userID, models.ErrStore, err)
	}
	return decode(ctx, snapshots, "pending_count", func(docs []docstore.Document) int {
		return len(docs)
	}), nil
}

func (r *Requests) read(ctx context.Context, recipientID, requestID string) (models.FriendRequest, error) {
	doc, err := r.store.Get(ctx, directory.RequestsOf(recipientID).Doc(requestID))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return models.FriendRequest{}, fmt.Errorf("request %s: %w", requestID, models.ErrNotFound)
		}
		return models.FriendRequest{}, fmt.Errorf("read request %s: %w: %w", requestID, models.ErrStore, err)
	}

	req := requestFromDocument(doc)
	if req.FromUID == "" {
		return models.FriendRequest{}, fmt.Errorf("request %s has no sender: %w", requestID, models.ErrNotFound)
	}
	return req, nil
}

func (r *Requests) requestsFrom(ctx context.Context, docs []docstore.Document) []models.FriendRequest {
	out := make([]models.FriendRequest, 0, len(docs))
	for _, doc := range docs {
		req := requestFromDocument(doc)
		if req.FromUID == "" {
			logging.FromContext(ctx).Warn("skipping friend request without sender", slog.String("request_id", doc.ID()))
			continue
		}
		out = append(out, req)
	}
	return out
}

// enrich never drops a request: a sender whose profile cannot be read is shown as Unknown.
func (r *Requests) enrich(ctx context.Context, req models.FriendRequest) (models.EnrichedFriendRequest, bool) {
	enriched := models.EnrichedFriendRequest{ID: req.ID, FromUID: req.FromUID}

	profile, err := r.directory.GetProfile(ctx, req.FromUID)
	if err != nil {
		logging.FromContext(ctx).Warn("resolve request sender", slog.String("sender_id", req.FromUID), slog.Any("error", err))
		enriched.FirstName = models.UnknownSenderName
		return enriched, true
	}

	enriched.FirstName = profile.FirstName
	enriched.LastName = profile.LastName
	if enriched.FirstName == "" {
		enriched.FirstName = models.UnknownSenderName
	}
	return enriched, true
}

func (r *Requests) now() time.Time {
	if r.NowFunc != nil {
		return r.NowFunc().UTC()
	}
	return time.Now().UTC()
}

func requestFromDocument(doc docstore.Document) models.FriendRequest {
	return models.FriendRequest{
		ID:        doc.ID(),
		FromUID:   doc.Fields.String(directory.FieldFromUID),
		Timestamp: doc.Fields.Time(directory.FieldTimestamp),
	}
}
