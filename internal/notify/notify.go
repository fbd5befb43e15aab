// Package notify hands notification payloads to whatever transport is attached to a user.
package notify

import (
	"context"
	"log/slog"

	"github.com/buzzbuddies/backend/internal/logging"
	"github.com/buzzbuddies/backend/internal/models"
)

// Deliverer presents a notification to a user.
type Deliverer interface {
	Deliver(ctx context.Context, n models.Notification) error
}

// DelivererFunc adapts a function to the Deliverer interface.
type DelivererFunc func(ctx context.Context, n models.Notification) error

// Deliver calls f.
func (f DelivererFunc) Deliver(ctx context.Context, n models.Notification) error {
	return f(ctx, n)
}

// LogDeliverer writes notifications to the structured log. It is used when no client
// connection is attached.
type LogDeliverer struct {
	Logger *slog.Logger
}

// Deliver logs n at info level.
func (d LogDeliverer) Deliver(ctx context.Context, n models.Notification) error {
	logger := d.Logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}
	logger.InfoContext(ctx, "notification delivered", slog.String("title", n.Title), slog.String("body", n.Body))
	return nil
}

var (
	_ Deliverer = DelivererFunc(nil)
	_ Deliverer = LogDeliverer{}
)
