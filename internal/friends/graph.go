// Package friends manages friend requests and the symmetric friendship graph built from them.
package friends

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/buzzbuddies/backend/internal/directory"
	"github.com/buzzbuddies/backend/internal/docstore"
	"github.com/buzzbuddies/backend/internal/fanin"
	"github.com/buzzbuddies/backend/internal/logging"
	"github.com/buzzbuddies/backend/internal/models"
)

// Profiles reads user profiles.
type Profiles interface {
	GetProfile(ctx context.Context, uid string) (models.UserProfile, error)
}

// Graph maintains friendship edges. Every friendship is two edges, one under each user.
type Graph struct {
	store       docstore.Store
	profiles    Profiles
	lookupLimit int
}

// NewGraph constructs a Graph. lookupLimit bounds concurrent profile reads when resolving a
// friend list; zero means unbounded.
func NewGraph(store docstore.Store, profiles Profiles, lookupLimit int) *Graph {
	return &Graph{store: store, profiles: profiles, lookupLimit: lookupLimit}
}

// AddEdge records peerID as a friend of ownerID, storing the peer's name as of now.
func (g *Graph) AddEdge(ctx context.Context, ownerID, peerID string, peer models.UserProfile) error {
	if ownerID == "" || peerID == "" {
		return models.ErrInvalidInput
	}
	if ownerID == peerID {
		return models.ErrSelfRequest
	}

	edge := models.FriendshipEdge{PeerID: peerID, FirstName: peer.FirstName, LastName: peer.LastName}
	if err := g.store.Set(ctx, directory.FriendsOf(ownerID).Doc(peerID), edgeFields(edge)); err != nil {
		return fmt.Errorf("add friend edge %s -> %s: %w: %w", ownerID, peerID, models.ErrStore, err)
	}
	return nil
}

// AcceptMutual writes both edges of a friendship between currentID and peerID. The caller's
// own profile is read first; if that read fails nothing is written. Both edge writes are
// attempted even if one fails, and any failure is reported as models.ErrPartialAcceptance.
func (g *Graph) AcceptMutual(ctx context.Context, currentID, peerID string, peer models.UserProfile) error {
	if currentID == "" || peerID == "" {
		return models.ErrInvalidInput
	}
	if currentID == peerID {
		return models.ErrSelfRequest
	}

	self, err := g.profiles.GetProfile(ctx, currentID)
	if err != nil {
		return fmt.Errorf("read own profile %s: %w: %w", currentID, models.ErrPartialAcceptance, err)
	}
	if self.FirstName == "" {
		self.FirstName = models.SelfFallbackName
	}

	var eg errgroup.Group
	eg.Go(func() error { return g.AddEdge(ctx, currentID, peerID, peer) })
	eg.Go(func() error { return g.AddEdge(ctx, peerID, currentID, self) })
	if err := eg.Wait(); err != nil {
		logging.FromContext(ctx).Error("friendship edge write failed",
			slog.String("user_id", currentID), slog.String("peer_id", peerID), slog.Any("error", err))
		return fmt.Errorf("%w: %w", models.ErrPartialAcceptance, err)
	}
	return nil
}

// ListFriends streams ownerID's friends with names resolved from their current profiles.
// Each change to the friend list produces one complete list; a newer change supersedes a list
// still being resolved. Friends whose profile cannot be read are left out.
func (g *Graph) ListFriends(ctx context.Context, ownerID string) (<-chan []models.FriendSummary, error) {
	if ownerID == "" {
		return nil, models.ErrNoSession
	}

	snapshots, err := g.store.Listen(ctx, directory.FriendsOf(ownerID).Query())
	if err != nil {
		return nil, fmt.Errorf("listen friends of %s: %w: %w", ownerID, models.ErrStore, err)
	}

	peers := decode(ctx, snapshots, "friends", func(docs []docstore.Document) []string {
		ids := make([]string, 0, len(docs))
		for _, doc := range docs {
			ids = append(ids, edgeFromDocument(doc).PeerID)
		}
		return ids
	})

	return fanin.Latest(ctx, peers, func(ctx context.Context, ids []string) []models.FriendSummary {
		return fanin.Join(ctx, ids, g.lookupLimit, g.summarize)
	}), nil
}

func (g *Graph) summarize(ctx context.Context, peerID string) (models.FriendSummary, bool) {
	profile, err := g.profiles.GetProfile(ctx, peerID)
	if err != nil {
		logging.FromContext(ctx).Warn("resolve friend profile", slog.String("peer_id", peerID), slog.Any("error", err))
		return models.FriendSummary{}, false
	}
	name := profile.FullName()
	if name == "" {
		name = models.NoName
	}
	return models.FriendSummary{ID: peerID, Name: name}, true
}

// edgeFields encodes an edge. A zero Timestamp is assigned by the store.
func edgeFields(e models.FriendshipEdge) docstore.Fields {
	var ts any = docstore.ServerTimestamp
	if !e.Timestamp.IsZero() {
		ts = e.Timestamp
	}
	return docstore.Fields{
		directory.FieldFirstName: e.FirstName,
		directory.FieldLastName:  e.LastName,
		directory.FieldTimestamp: ts,
	}
}

func edgeFromDocument(doc docstore.Document) models.FriendshipEdge {
	return models.FriendshipEdge{
		PeerID:    doc.ID(),
		FirstName: doc.Fields.String(directory.FieldFirstName),
		LastName:  doc.Fields.String(directory.FieldLastName),
		Timestamp: doc.Fields.Time(directory.FieldTimestamp),
	}
}

// decode turns listener snapshots into values. Failed snapshots are logged and skipped. The
// returned channel closes when snapshots closes or ctx is done.
func decode[S any](ctx context.Context, snapshots <-chan docstore.Snapshot, name string, fn func([]docstore.Document) S) <-chan S {
	out := make(chan S)
	go func() {
		defer close(out)
		for snap := range snapshots {
			if snap.Err != nil {
				logging.FromContext(ctx).Error("listener snapshot failed", slog.String("listener", name), slog.Any("error", snap.Err))
				continue
			}
			select {
			case out <- fn(snap.Documents):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
