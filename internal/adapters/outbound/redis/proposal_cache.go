// Package redis provides a Redis implementation of the ProposalCache port.
//
// Finished proposals are stored without expiration and pending ones with a
// TTL. Expiring writes go through a Lua script that refuses to touch a key
// without expiration, so a final result can never be downgraded by a
// concurrent request that read the hub before collection finished.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/archon-research/vote-aggregator/internal/domain/entity"
	"github.com/archon-research/vote-aggregator/internal/ports/outbound"
)

// Compile-time check that ProposalCache implements outbound.ProposalCache
var _ outbound.ProposalCache = (*ProposalCache)(nil)

// setIfExpiring writes ARGV[1] with a PX of ARGV[2] unless KEYS[1] exists
// without expiration. Returns 1 when written, 0 when skipped.
var setIfExpiring = redis.NewScript(`
if redis.call('TTL', KEYS[1]) == -1 then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

// Config holds Redis cache configuration.
type Config struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string
	// Password for Redis authentication (empty for no auth)
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// DialTimeout bounds connection establishment
	DialTimeout time.Duration
	// OperationTimeout bounds reads and writes
	OperationTimeout time.Duration
}

// ConfigDefaults returns sensible defaults for Redis cache configuration.
func ConfigDefaults() Config {
	return Config{
		Addr:             "localhost:6379",
		Password:         "",
		DB:               0,
		DialTimeout:      5 * time.Second,
		OperationTimeout: 2 * time.Second,
	}
}

// ProposalCache is a Redis implementation of the outbound.ProposalCache port.
type ProposalCache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewProposalCache creates a new Redis proposal cache. No connection is made
// until the first command; call Ping to verify connectivity.
func NewProposalCache(cfg Config, logger *slog.Logger) (*ProposalCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: redis address is required", entity.ErrConfiguration)
	}
	defaults := ConfigDefaults()
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = defaults.OperationTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.OperationTimeout,
		WriteTimeout: cfg.OperationTimeout,
	})

	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "redis-cache")

	return &ProposalCache{
		client: client,
		logger: logger,
	}, nil
}

// Ping checks the Redis connection.
func (c *ProposalCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %w", entity.ErrCache, err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *ProposalCache) Close() error {
	return c.client.Close()
}

// Get retrieves a cached value. Returns nil, nil on a miss.
func (c *ProposalCache) Get(ctx context.Context, key string) (json.RawMessage, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get %s: %w", entity.ErrCache, key, err)
	}
	return data, nil
}

// Set stores data under key. A zero ttl stores it without expiration; a
// positive ttl is skipped when key already has no expiration.
func (c *ProposalCache) Set(ctx context.Context, key string, data json.RawMessage, ttl time.Duration) error {
	if ttl < 0 {
		return fmt.Errorf("%w: negative ttl %v for %s", entity.ErrCache, ttl, key)
	}

	if ttl == 0 {
		if err := c.client.Set(ctx, key, []byte(data), 0).Err(); err != nil {
			return fmt.Errorf("%w: failed to cache %s: %w", entity.ErrCache, key, err)
		}
		return nil
	}

	written, err := setIfExpiring.Run(ctx, c.client, []string{key}, []byte(data), ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("%w: failed to cache %s: %w", entity.ErrCache, key, err)
	}
	if written == 0 {
		c.logger.Debug("kept permanent entry", "key", key)
	}
	return nil
}
