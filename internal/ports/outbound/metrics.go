package outbound

import (
	"context"
	"time"
)

// Outcome labels for RecordAggregation.
const (
	OutcomeCacheHit = "cache_hit"
	OutcomeFinal    = "final"
	OutcomePending  = "pending"
	OutcomeError    = "error"
)

// MetricsRecorder records aggregation metrics without tying the service to a
// telemetry backend.
type MetricsRecorder interface {
	// RecordAggregation records one GetProposalVotes call and how it was served.
	RecordAggregation(ctx context.Context, outcome string, duration time.Duration)

	// RecordChainReadFailure counts a failed read on chain; role is "hub" or "spoke".
	RecordChainReadFailure(ctx context.Context, chain, role string)

	// RecordCacheError counts a failed cache operation ("get" or "set").
	RecordCacheError(ctx context.Context, op string)
}
