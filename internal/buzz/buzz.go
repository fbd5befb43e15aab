// Package buzz sends buzzes and turns a user's incoming buzzes into notifications.
package buzz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/buzzbuddies/backend/internal/directory"
	"github.com/buzzbuddies/backend/internal/docstore"
	"github.com/buzzbuddies/backend/internal/logging"
	"github.com/buzzbuddies/backend/internal/models"
	"github.com/buzzbuddies/backend/internal/notify"
)

// DeliveryPolicy decides which observed buzzes are delivered.
type DeliveryPolicy string

const (
	// Replay delivers every emission of the latest-buzz listener, including the buzz that is
	// already latest when the subscription starts.
	Replay DeliveryPolicy = "replay"
	// NewOnly skips the buzz present at subscription start and never delivers an event id
	// twice within one subscription.
	NewOnly DeliveryPolicy = "new-only"
)

// ParseDeliveryPolicy validates a configured policy. An empty value selects Replay.
func ParseDeliveryPolicy(raw string) (DeliveryPolicy, error) {
	switch p := DeliveryPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return Replay, nil
	case Replay, NewOnly:
		return p, nil
	default:
		return "", fmt.Errorf("unknown buzz delivery policy %q", raw)
	}
}

const (
	receivedTitle = "Buzz received!"
	sentTitle     = "Buzz sent!"
)

// Dispatcher appends buzzes to recipients' inboxes and watches a user's inbox for new ones.
type Dispatcher struct {
	store  docstore.Store
	names  directory.NameResolver
	policy DeliveryPolicy

	// NowFunc overrides the clock used for buzz timestamps.
	NowFunc func() time.Time
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(store docstore.Store, names directory.NameResolver, policy DeliveryPolicy) *Dispatcher {
	if policy == "" {
		policy = Replay
	}
	return &Dispatcher{store: store, names: names, policy: policy}
}

// Policy reports the delivery policy in use.
func (d *Dispatcher) Policy() DeliveryPolicy { return d.policy }

// Send appends a buzz from senderID to recipientID's inbox. The recipient must have a profile
// and differ from the sender. Buzzes are never deduplicated.
func (d *Dispatcher) Send(ctx context.Context, senderID, recipientID string) (models.BuzzEvent, error) {
	if senderID == "" {
		return models.BuzzEvent{}, models.ErrNoSession
	}
	if recipientID == "" {
		return models.BuzzEvent{}, models.ErrInvalidInput
	}
	if recipientID == senderID {
		return models.BuzzEvent{}, fmt.Errorf("buzz yourself: %w", models.ErrInvalidInput)
	}

	if _, err := d.store.Get(ctx, directory.UserDoc(recipientID)); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return models.BuzzEvent{}, fmt.Errorf("buzz recipient %s: %w", recipientID, models.ErrNotFound)
		}
		return models.BuzzEvent{}, fmt.Errorf("read buzz recipient %s: %w: %w", recipientID, models.ErrStore, err)
	}

	now := d.now()
	ref, err := d.store.Add(ctx, directory.BuzzesOf(recipientID), docstore.Fields{
		directory.FieldFromUID:   senderID,
		directory.FieldTimestamp: now,
	})
	if err != nil {
		return models.BuzzEvent{}, fmt.Errorf("send buzz %s -> %s: %w: %w", senderID, recipientID, models.ErrStore, err)
	}

	logging.FromContext(ctx).Info("buzz sent", slog.String("sender_id", senderID), slog.String("recipient_id", recipientID), slog.String("buzz_id", ref.ID))
	return models.BuzzEvent{ID: ref.ID, FromUID: senderID, Timestamp: now}, nil
}

// SubscribeLatest streams the buzzes to deliver to userID, filtered by the delivery policy.
// The channel closes when ctx is done.
func (d *Dispatcher) SubscribeLatest(ctx context.Context, userID string) (<-chan models.BuzzEvent, error) {
	if userID == "" {
		return nil, models.ErrNoSession
	}

	q := directory.BuzzesOf(userID).Query().OrderBy(directory.FieldTimestamp, docstore.Desc).Limit(1)
	snapshots, err := d.store.Listen(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listen buzzes of %s: %w: %w", userID, models.ErrStore, err)
	}

	out := make(chan models.BuzzEvent)
	go func() {
		defer close(out)

		logger := logging.FromContext(ctx)
		initial := true
		// The listener only sees the newest event of an append-only inbox, so an id other
		// than the last one delivered has never been seen before.
		var last string

		for snap := range snapshots {
			first := initial
			initial = false

			if snap.Err != nil {
				logger.Error("buzz listener failed", slog.String("user_id", userID), slog.Any("error", snap.Err))
				continue
			}
			if len(snap.Documents) == 0 {
				continue
			}

			ev := eventFromDocument(snap.Documents[0])
			if ev.FromUID == "" {
				logger.Warn("skipping buzz without sender", slog.String("buzz_id", ev.ID))
				continue
			}

			if d.policy == NewOnly {
				seen := first || ev.ID == last
				last = ev.ID
				if seen {
					continue
				}
			}

			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Run delivers a notification for every buzz to userID until ctx is done. Delivery failures
// are logged and not retried.
func (d *Dispatcher) Run(ctx context.Context, userID string, deliverer notify.Deliverer) error {
	events, err := d.SubscribeLatest(ctx, userID)
	if err != nil {
		return err
	}

	logger := logging.FromContext(ctx)
	for ev := range events {
		n := d.Notification(ctx, ev)
		if err := deliverer.Deliver(ctx, n); err != nil {
			logger.Error("deliver buzz notification", slog.String("user_id", userID), slog.String("buzz_id", ev.ID), slog.Any("error", err))
		}
	}
	return nil
}

// Notification builds the notification shown to the recipient of ev.
func (d *Dispatcher) Notification(ctx context.Context, ev models.BuzzEvent) models.Notification {
	name := models.AnonymousName
	if d.names != nil {
		if resolved, err := d.names.DisplayName(ctx, ev.FromUID); err == nil && resolved != "" {
			name = resolved
		} else if err != nil {
			logging.FromContext(ctx).Debug("resolve buzz sender", slog.String("sender_id", ev.FromUID), slog.Any("error", err))
		}
	}
	return models.Notification{Title: receivedTitle, Body: name + " buzzed you"}
}

// Confirmation builds the notification shown to the sender after a buzz was sent.
func Confirmation(recipientName string) models.Notification {
	name := strings.TrimSpace(recipientName)
	if name == "" {
		name = models.AnonymousName
	}
	return models.Notification{Title: sentTitle, Body: "You buzzed " + name}
}

func (d *Dispatcher) now() time.Time {
	if d.NowFunc != nil {
		return d.NowFunc().UTC()
	}
	return time.Now().UTC()
}

func eventFromDocument(doc docstore.Document) models.BuzzEvent {
	return models.BuzzEvent{
		ID:        doc.ID(),
		FromUID:   doc.Fields.String(directory.FieldFromUID),
		Timestamp: doc.Fields.Time(directory.FieldTimestamp),
	}
}
