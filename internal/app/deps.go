package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/buzzbuddies/backend/internal/auth"
	"github.com/buzzbuddies/backend/internal/buzz"
	"github.com/buzzbuddies/backend/internal/changefeed"
	"github.com/buzzbuddies/backend/internal/config"
	"github.com/buzzbuddies/backend/internal/db"
	"github.com/buzzbuddies/backend/internal/directory"
	"github.com/buzzbuddies/backend/internal/docstore"
	"github.com/buzzbuddies/backend/internal/export"
	"github.com/buzzbuddies/backend/internal/friends"
	"github.com/buzzbuddies/backend/internal/handlers"
	"github.com/buzzbuddies/backend/internal/middleware"
	"github.com/buzzbuddies/backend/internal/repositories"
	"github.com/buzzbuddies/backend/internal/storage"
)

const (
	buzzLimiterTTL    = 10 * time.Minute
	exportWorkers     = 2
	exportQueueSize   = 32
	backendPingBudget = 2 * time.Second
)

// backend is the document store selected by configuration together with the health checks of
// the services behind it.
type backend struct {
	store  docstore.Store
	checks map[string]handlers.HealthChecker
	close  func()
}

// openBackend connects the configured document store. Postgres deployments share changes
// through Redis when an address is configured and through an in-process feed otherwise.
func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (backend, error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory document store; data is lost on exit")
		return backend{store: docstore.NewMemory(), checks: map[string]handlers.HealthChecker{}, close: func() {}}, nil
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return backend{}, err
	}

	b := backend{
		checks: map[string]handlers.HealthChecker{
			"postgres": func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, backendPingBudget)
				defer cancel()
				return pool.Ping(ctx)
			},
		},
		close: pool.Close,
	}

	var feed changefeed.Feed = changefeed.NewLocal()
	if cfg.RedisAddr != "" {
		client, err := changefeed.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			pool.Close()
			return backend{}, err
		}
		feed = changefeed.NewRedis(client, logger)
		b.checks["redis"] = func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, backendPingBudget)
			defer cancel()
			return client.Ping(ctx).Err()
		}
		b.close = func() {
			if err := client.Close(); err != nil {
				logger.Warn("close redis client", "error", err)
			}
			pool.Close()
		}
	} else {
		logger.Info("no redis address configured; change feed is local to this process")
	}

	b.store = repositories.NewPostgresDocumentStore(pool, feed)
	return b, nil
}

// buildDependencies wires together concrete implementations used by the HTTP handlers. The
// returned cleanup drains background exports.
func buildDependencies(ctx context.Context, b backend, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, func(context.Context) error, error) {
	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}

	policy, err := buzz.ParseDeliveryPolicy(cfg.BuzzDelivery)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}

	dir := directory.New(b.store)
	names := directory.NewCachingNames(dir, cfg.ProfileCacheTTL)
	graph := friends.NewGraph(b.store, dir, cfg.LookupConcurrency)

	deps := handlers.Dependencies{
		Auth:            verifier,
		Requests:        friends.NewRequests(b.store, dir, graph, cfg.LookupConcurrency),
		Graph:           graph,
		Buzzes:          buzz.NewDispatcher(b.store, names, policy),
		Names:           names,
		BuzzLimiter:     middleware.NewKeyedRateLimiter(cfg.BuzzRatePerMinute, time.Minute, cfg.BuzzRateBurst, buzzLimiterTTL),
		HealthChecks:    b.checks,
		OriginPatterns:  cfg.AllowedOrigins,
		SnapshotTimeout: 5 * time.Second,
	}

	cleanup := func(context.Context) error { return nil }
	if cfg.ObjectStore.Enabled() {
		exporter, err := newExporter(ctx, b.store, cfg, logger)
		if err != nil {
			return handlers.Dependencies{}, nil, err
		}
		deps.Exports = exporter
		cleanup = exporter.Shutdown
	}

	return deps, cleanup, nil
}

func newExporter(ctx context.Context, store docstore.Store, cfg config.Config, logger *slog.Logger) (*export.Exporter, error) {
	if !cfg.ObjectStore.Enabled() {
		return nil, errors.New("export requires BUZZBUDDIES_S3_BUCKET")
	}
	s3, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
	if err != nil {
		return nil, fmt.Errorf("configure export storage: %w", err)
	}
	return export.New(store, s3, export.Config{QueueSize: exportQueueSize, Workers: exportWorkers}, logger), nil
}
