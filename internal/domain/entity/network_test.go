package entity

import (
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	addrA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	addrB = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestNetwork_Validate(t *testing.T) {
	tests := []struct {
		name        string
		network     Network
		errContains string
	}{
		{
			name:    "valid hub",
			network: Network{Name: "hub", RPCURL: "https://rpc.example/v1", Role: RoleHub, Contracts: []common.Address{addrA}},
		},
		{
			name:    "valid spoke with two contracts",
			network: Network{Name: "mumbai", RPCURL: "wss://rpc.example", Role: RoleSpoke, Contracts: []common.Address{addrA, addrB}},
		},
		{
			name:        "empty name",
			network:     Network{RPCURL: "https://rpc.example", Role: RoleHub, Contracts: []common.Address{addrA}},
			errContains: "name must not be empty",
		},
		{
			name:        "bad scheme",
			network:     Network{Name: "x", RPCURL: "ftp://rpc.example", Role: RoleSpoke, Contracts: []common.Address{addrA}},
			errContains: "scheme must be",
		},
		{
			name:        "missing host",
			network:     Network{Name: "x", RPCURL: "http://", Role: RoleSpoke, Contracts: []common.Address{addrA}},
			errContains: "has no host",
		},
		{
			name:        "unknown role",
			network:     Network{Name: "x", RPCURL: "http://rpc", Role: "relay", Contracts: []common.Address{addrA}},
			errContains: "role must be",
		},
		{
			name:        "no contracts",
			network:     Network{Name: "x", RPCURL: "http://rpc", Role: RoleSpoke},
			errContains: "at least one contract address",
		},
		{
			name:        "hub with two contracts",
			network:     Network{Name: "x", RPCURL: "http://rpc", Role: RoleHub, Contracts: []common.Address{addrA, addrB}},
			errContains: "exactly one contract address",
		},
		{
			name:        "duplicate contract",
			network:     Network{Name: "x", RPCURL: "http://rpc", Role: RoleSpoke, Contracts: []common.Address{addrA, addrA}},
			errContains: "duplicate contract address",
		},
		{
			name:        "zero address",
			network:     Network{Name: "x", RPCURL: "http://rpc", Role: RoleSpoke, Contracts: []common.Address{{}}},
			errContains: "zero contract address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.network.Validate()
			if tt.errContains == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("expected error containing %q, got %v", tt.errContains, err)
			}
		})
	}
}

func TestChainReadError_MatchesSentinelAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := error(NewChainReadError("mumbai", "proposalVotes", cause))

	if !errors.Is(err, ErrChainRead) {
		t.Error("expected errors.Is(err, ErrChainRead)")
	}
	if !errors.Is(err, cause) {
		t.Error("expected the cause to be reachable")
	}
	var cre *ChainReadError
	if !errors.As(err, &cre) || cre.Chain != "mumbai" {
		t.Errorf("expected ChainReadError for mumbai, got %v", err)
	}
	if got := err.Error(); got != "reading proposalVotes on mumbai: connection refused" {
		t.Errorf("unexpected message %q", got)
	}
}
