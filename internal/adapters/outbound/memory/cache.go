// cache.go provides an in-memory implementation of ProposalCache.
//
// Entries written with a zero ttl never expire. Expired entries are deleted
// when read and swept on every write. Like the Redis adapter, an expiring write never replaces an
// entry without expiration.
//
// All operations are thread-safe. Data is lost on process restart.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/archon-research/vote-aggregator/internal/domain/entity"
	"github.com/archon-research/vote-aggregator/internal/ports/outbound"
)

// Compile-time check that ProposalCache implements outbound.ProposalCache
var _ outbound.ProposalCache = (*ProposalCache)(nil)

type cacheEntry struct {
	data      json.RawMessage
	expiresAt time.Time // zero for entries without expiration
}

// ProposalCache is an in-memory implementation of the ProposalCache port.
type ProposalCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time
	closed  bool
}

// NewProposalCache creates a new in-memory proposal cache.
func NewProposalCache() *ProposalCache {
	return &ProposalCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

var errClosed = errors.New("cache is closed")

// Get returns the live entry for key, or nil, nil.
func (c *ProposalCache) Get(ctx context.Context, key string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("%w: %w", entity.ErrCache, errClosed)
	}
	e, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	if c.expired(e) {
		delete(c.entries, key)
		return nil, nil
	}
	return append(json.RawMessage(nil), e.data...), nil
}

// Set stores data under key.
func (c *ProposalCache) Set(ctx context.Context, key string, data json.RawMessage, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("%w: %w", entity.ErrCache, errClosed)
	}
	if ttl < 0 {
		return fmt.Errorf("%w: negative ttl %v for %s", entity.ErrCache, ttl, key)
	}

	c.sweep()

	entry := cacheEntry{data: append(json.RawMessage(nil), data...)}
	if ttl > 0 {
		if existing, ok := c.entries[key]; ok && existing.expiresAt.IsZero() {
			return nil
		}
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = entry
	return nil
}

// TTL reports the remaining lifetime of key: -1 for an entry without
// expiration and -2 for a missing key, mirroring Redis.
func (c *ProposalCache) TTL(key string) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	switch {
	case !ok || c.expired(e):
		return -2
	case e.expiresAt.IsZero():
		return -1
	default:
		return e.expiresAt.Sub(c.now())
	}
}

// Ping fails once the cache is closed.
func (c *ProposalCache) Ping(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return fmt.Errorf("%w: %w", entity.ErrCache, errClosed)
	}
	return nil
}

// Close marks the cache as closed.
func (c *ProposalCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *ProposalCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// sweep deletes expired entries. Callers hold the write lock.
func (c *ProposalCache) sweep() {
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
		}
	}
}

func (c *ProposalCache) expired(e cacheEntry) bool {
	return !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt)
}
