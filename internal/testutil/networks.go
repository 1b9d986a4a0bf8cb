package testutil

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/vote-aggregator/internal/domain/entity"
)

// Well-known addresses used across tests.
var (
	HubGovernor    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	SpokeContract  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	SpokeContract2 = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

// HubNetwork returns a hub network at rpcURL.
func HubNetwork(name, rpcURL string) entity.Network {
	return entity.Network{
		Name:      name,
		RPCURL:    rpcURL,
		Role:      entity.RoleHub,
		Contracts: []common.Address{HubGovernor},
	}
}

// SpokeNetwork returns a spoke network at rpcURL with the given contracts.
func SpokeNetwork(name, rpcURL string, contracts ...common.Address) entity.Network {
	if len(contracts) == 0 {
		contracts = []common.Address{SpokeContract}
	}
	return entity.Network{
		Name:      name,
		RPCURL:    rpcURL,
		Role:      entity.RoleSpoke,
		Contracts: contracts,
	}
}

// NewVotes builds a Votes triple from int64 counts.
func NewVotes(forVotes, against, abstain int64) entity.Votes {
	return entity.Votes{
		For:     big.NewInt(forVotes),
		Against: big.NewInt(against),
		Abstain: big.NewInt(abstain),
	}
}
