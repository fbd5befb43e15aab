package directory

import (
	"context"
	"sync"
	"time"
)

// NameResolver resolves a user's display name.
type NameResolver interface {
	DisplayName(ctx context.Context, uid string) (string, error)
}

type cacheEntry struct {
	name    string
	expires time.Time
}

// CachingNames wraps a NameResolver with a TTL-based in-memory cache. Failed lookups are not
// cached. A non-positive TTL disables caching.
type CachingNames struct {
	base NameResolver
	ttl  time.Duration
	now  func() time.Time

	mu    sync.RWMutex
	items map[string]cacheEntry
}

// NewCachingNames returns a resolver that caches names for ttl.
func NewCachingNames(base NameResolver, ttl time.Duration) *CachingNames {
	return &CachingNames{
		base:  base,
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]cacheEntry),
	}
}

// DisplayName returns a cached name when fresh, otherwise it delegates to the base resolver.
func (c *CachingNames) DisplayName(ctx context.Context, uid string) (string, error) {
	if c.ttl <= 0 {
		return c.base.DisplayName(ctx, uid)
	}

	now := c.now()

	c.mu.RLock()
	entry, ok := c.items[uid]
	c.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return entry.name, nil
	}

	name, err := c.base.DisplayName(ctx, uid)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.items[uid] = cacheEntry{name: name, expires: now.Add(c.ttl)}
	c.mu.Unlock()

	return name, nil
}

var _ NameResolver = (*Directory)(nil)
var _ NameResolver = (*CachingNames)(nil)
