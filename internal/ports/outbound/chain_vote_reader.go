// Package outbound defines the secondary ports: the collaborators the
// aggregation service drives.
package outbound

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/vote-aggregator/internal/domain/entity"
)

// ChainVoteReader reads governance contract state on one network.
// Implementations keep every ABI and transport detail to themselves and
// report failures as *entity.ChainReadError.
type ChainVoteReader interface {
	// ProposalVotes calls proposalVotes(proposalId) on contract.
	ProposalVotes(ctx context.Context, network entity.Network, contract common.Address, id entity.ProposalID) (entity.Votes, error)

	// CollectionFinished calls collectionFinished(proposalId) on contract.
	// Only meaningful on the hub governor.
	CollectionFinished(ctx context.Context, network entity.Network, contract common.Address, id entity.ProposalID) (bool, error)
}
