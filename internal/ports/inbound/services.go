// Package inbound contains the primary/inbound ports.
// These interfaces define the use cases that the application exposes.
package inbound

import (
	"context"

	"github.com/archon-research/vote-aggregator/internal/domain/entity"
)

// VoteAggregationService is the use case behind the HTTP facade.
type VoteAggregationService interface {
	// GetProposalVotes returns one tally per network, hub first.
	GetProposalVotes(ctx context.Context, id entity.ProposalID) (entity.AggregationResult, error)

	// GetProposalTotal returns the cross-chain sum of GetProposalVotes.
	GetProposalTotal(ctx context.Context, id entity.ProposalID) (entity.ProposalTotal, error)

	// Ping checks the service's backing stores.
	Ping(ctx context.Context) error
}

// HealthChecker reports readiness and liveness for deployment probes.
//
// Implementations:
//   - vote_aggregator.Service: ready once the cache answered at startup,
//     unhealthy after repeated hub read failures
type HealthChecker interface {
	// IsReady returns true when the service can take traffic.
	IsReady() bool

	// IsHealthy returns true when the service is operating normally.
	IsHealthy() bool
}
