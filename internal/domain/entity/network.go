package entity

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Role tells whether a network hosts the hub governor or a spoke.
type Role string

const (
	RoleHub   Role = "hub"
	RoleSpoke Role = "spoke"
)

// Network is one chain the aggregator reads votes from.
type Network struct {
	Name   string
	RPCURL string
	Role   Role

	// Contracts lists the governance contracts deployed on this chain. A
	// network's tally is the sum over all of them.
	Contracts []common.Address
}

// IsHub reports whether the network hosts the hub governor.
func (n Network) IsHub() bool {
	return n.Role == RoleHub
}

// Validate checks the fields of a single network.
func (n Network) Validate() error {
	if strings.TrimSpace(n.Name) == "" {
		return fmt.Errorf("name must not be empty")
	}
	if err := validateRPCURL(n.RPCURL); err != nil {
		return fmt.Errorf("network %s: %w", n.Name, err)
	}
	switch n.Role {
	case RoleHub, RoleSpoke:
	default:
		return fmt.Errorf("network %s: role must be %q or %q, got %q", n.Name, RoleHub, RoleSpoke, n.Role)
	}
	if len(n.Contracts) == 0 {
		return fmt.Errorf("network %s: at least one contract address is required", n.Name)
	}
	if n.Role == RoleHub && len(n.Contracts) != 1 {
		return fmt.Errorf("network %s: hub must have exactly one contract address, got %d", n.Name, len(n.Contracts))
	}
	seen := make(map[common.Address]bool, len(n.Contracts))
	for _, addr := range n.Contracts {
		if addr == (common.Address{}) {
			return fmt.Errorf("network %s: zero contract address", n.Name)
		}
		if seen[addr] {
			return fmt.Errorf("network %s: duplicate contract address %s", n.Name, addr.Hex())
		}
		seen[addr] = true
	}
	return nil
}

func validateRPCURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("rpc url must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid rpc url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("rpc url scheme must be http, https, ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("rpc url %q has no host", raw)
	}
	return nil
}
