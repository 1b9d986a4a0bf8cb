package outbound

import (
	"context"
	"encoding/json"
	"time"
)

// ProposalCache stores serialized aggregation results keyed by proposal id.
type ProposalCache interface {
	// Get returns the cached value for key.
	// Returns nil, nil if the key is not in cache.
	Get(ctx context.Context, key string) (json.RawMessage, error)

	// Set stores data under key. A ttl of zero stores the entry without
	// expiration. A write with a positive ttl never replaces an entry that has
	// no expiration: final results are never downgraded to expiring ones.
	Set(ctx context.Context, key string, data json.RawMessage, ttl time.Duration) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close() error
}
