package handlers

import (
	"context"

	"github.com/buzzbuddies/backend/internal/models"
	"github.com/buzzbuddies/backend/internal/notify"
)

// Authenticator maps a bearer token to a user id.
type Authenticator interface {
	Authenticate(token string) (string, error)
}

// FriendRequests captures the friend request operations exposed over HTTP.
type FriendRequests interface {
	Send(ctx context.Context, senderID, recipientEmail string) (string, error)
	Subscribe(ctx context.Context, recipientID string) (<-chan []models.EnrichedFriendRequest, error)
	Lookup(ctx context.Context, recipientID, requestID string) (models.EnrichedFriendRequest, error)
	Accept(ctx context.Context, actorID string, req models.EnrichedFriendRequest) error
	Decline(ctx context.Context, actorID string, req models.EnrichedFriendRequest) error
	PendingCount(ctx context.Context, userID string) (<-chan int, error)
}

// FriendGraph streams a user's friend list.
type FriendGraph interface {
	ListFriends(ctx context.Context, ownerID string) (<-chan []models.FriendSummary, error)
}

// Buzzer sends buzzes and delivers incoming ones.
type Buzzer interface {
	Send(ctx context.Context, senderID, recipientID string) (models.BuzzEvent, error)
	Run(ctx context.Context, userID string, deliverer notify.Deliverer) error
}

// NameResolver resolves a user's display name.
type NameResolver interface {
	DisplayName(ctx context.Context, uid string) (string, error)
}

// HealthChecker reports whether a backing service is reachable.
type HealthChecker func(ctx context.Context) error

// Exporter schedules a user's data export.
type Exporter interface {
	Enqueue(ctx context.Context, userID string) error
}
