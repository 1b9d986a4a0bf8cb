package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/vote-aggregator/internal/domain/entity"
	"github.com/archon-research/vote-aggregator/internal/ports/outbound"
)

// MockChainVoteReader implements outbound.ChainVoteReader for testing.
type MockChainVoteReader struct {
	mu                   sync.Mutex
	ProposalVotesFn      func(ctx context.Context, network entity.Network, contract common.Address, id entity.ProposalID) (entity.Votes, error)
	CollectionFinishedFn func(ctx context.Context, network entity.Network, contract common.Address, id entity.ProposalID) (bool, error)

	// Delays holds a per-network wait applied before ProposalVotes answers.
	Delays map[string]time.Duration

	VotesCalls    map[string]int
	FinishedCalls int
}

var _ outbound.ChainVoteReader = (*MockChainVoteReader)(nil)

func NewMockChainVoteReader() *MockChainVoteReader {
	return &MockChainVoteReader{
		Delays:     make(map[string]time.Duration),
		VotesCalls: make(map[string]int),
	}
}

func (m *MockChainVoteReader) ProposalVotes(ctx context.Context, network entity.Network, contract common.Address, id entity.ProposalID) (entity.Votes, error) {
	m.mu.Lock()
	m.VotesCalls[network.Name]++
	delay := m.Delays[network.Name]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return entity.Votes{}, entity.NewChainReadError(network.Name, "proposalVotes", ctx.Err())
		}
	}
	if m.ProposalVotesFn != nil {
		return m.ProposalVotesFn(ctx, network, contract, id)
	}
	return entity.Votes{}, errors.New("ProposalVotes not mocked")
}

func (m *MockChainVoteReader) CollectionFinished(ctx context.Context, network entity.Network, contract common.Address, id entity.ProposalID) (bool, error) {
	m.mu.Lock()
	m.FinishedCalls++
	m.mu.Unlock()
	if m.CollectionFinishedFn != nil {
		return m.CollectionFinishedFn(ctx, network, contract, id)
	}
	return false, errors.New("CollectionFinished not mocked")
}

// TotalVotesCalls returns the number of ProposalVotes calls across networks.
func (m *MockChainVoteReader) TotalVotesCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.VotesCalls {
		total += n
	}
	return total
}

// VotesCallsFor returns the number of ProposalVotes calls made against network.
func (m *MockChainVoteReader) VotesCallsFor(network string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.VotesCalls[network]
}

// FinishedCallCount returns the number of CollectionFinished calls.
func (m *MockChainVoteReader) FinishedCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.FinishedCalls
}
