package changefeed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix namespaces pub/sub channels used by the feed.
const DefaultChannelPrefix = "buzzbuddies:changes:"

// Redis is a Feed backed by Redis pub/sub, shared by every service instance.
type Redis struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// ConnectRedis opens a client and verifies connectivity.
func ConnectRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// NewRedis constructs a Feed on top of an existing client.
func NewRedis(client *redis.Client, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, prefix: DefaultChannelPrefix, logger: logger}
}

// Publish announces a change to topic.
func (r *Redis) Publish(ctx context.Context, topic string) error {
	if err := r.client.Publish(ctx, r.prefix+topic, "1").Err(); err != nil {
		return fmt.Errorf("publish change for %s: %w", topic, err)
	}
	return nil
}

// Subscribe listens for changes to topic until ctx is done.
func (r *Redis) Subscribe(ctx context.Context, topic string) (<-chan struct{}, error) {
	pubsub := r.client.Subscribe(ctx, r.prefix+topic)
	// Wait for the subscription to be confirmed so no publish after return is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to changes for %s: %w", topic, err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer func() {
			if err := pubsub.Close(); err != nil {
				r.logger.Warn("close change subscription", "topic", topic, "error", err)
			}
		}()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	return out, nil
}

var _ Feed = (*Redis)(nil)
