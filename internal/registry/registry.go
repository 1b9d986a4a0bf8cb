// Package registry holds the networks the aggregator reads from.
//
// The registry is loaded once at startup from a JSON document, validated as a
// whole and immutable afterwards, so it is safe for concurrent use without
// locking. Any validation failure is an entity.ErrConfiguration and must stop
// the process before it serves requests.
//
// Document format:
//
//	{
//	  "networks": [
//	    {"name": "hub", "rpc_url": "https://...", "role": "hub", "contract_addresses": ["0x..."]},
//	    {"name": "mumbai", "rpc_url": "https://...", "role": "spoke", "contract_addresses": ["0x...", "0x..."]}
//	  ]
//	}
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/vote-aggregator/internal/domain/entity"
)

// Registry is the validated, ordered set of networks.
type Registry struct {
	networks []entity.Network
	hub      int
}

type document struct {
	Networks []networkJSON `json:"networks"`
}

type networkJSON struct {
	Name              string   `json:"name"`
	RPCURL            string   `json:"rpc_url"`
	Role              string   `json:"role"`
	ContractAddresses []string `json:"contract_addresses"`
}

// LoadFile reads and validates the registry document at path.
func LoadFile(path string) (*Registry, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: networks config path is required", entity.ErrConfiguration)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening networks config: %w", entity.ErrConfiguration, err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads and validates a registry document. Unknown fields are rejected
// so that a misspelled key cannot silently drop a setting.
func Load(r io.Reader) (*Registry, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decoding networks config: %w", entity.ErrConfiguration, err)
	}

	var errs []error
	networks := make([]entity.Network, 0, len(doc.Networks))
	for i, raw := range doc.Networks {
		n, err := raw.toNetwork()
		if err != nil {
			errs = append(errs, fmt.Errorf("networks[%d]: %w", i, err))
			continue
		}
		if err := n.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("networks[%d]: %w", i, err))
			continue
		}
		networks = append(networks, n)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", entity.ErrConfiguration, errors.Join(errs...))
	}

	return New(networks)
}

func (n networkJSON) toNetwork() (entity.Network, error) {
	contracts := make([]common.Address, 0, len(n.ContractAddresses))
	for _, raw := range n.ContractAddresses {
		addr := strings.TrimSpace(raw)
		if !common.IsHexAddress(addr) {
			return entity.Network{}, fmt.Errorf("network %s: invalid contract address %q", n.Name, raw)
		}
		contracts = append(contracts, common.HexToAddress(addr))
	}
	return entity.Network{
		Name:      strings.TrimSpace(n.Name),
		RPCURL:    strings.TrimSpace(n.RPCURL),
		Role:      entity.Role(strings.ToLower(strings.TrimSpace(n.Role))),
		Contracts: contracts,
	}, nil
}

// New validates networks and builds a registry that preserves their order.
// It requires at least one network, unique names and exactly one hub.
func New(networks []entity.Network) (*Registry, error) {
	var errs []error
	if len(networks) == 0 {
		errs = append(errs, errors.New("no networks configured"))
	}

	seen := make(map[string]bool, len(networks))
	hub := -1
	hubs := 0
	for i, n := range networks {
		if err := n.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		key := strings.ToLower(n.Name)
		if seen[key] {
			errs = append(errs, fmt.Errorf("duplicate network name %q", n.Name))
		}
		seen[key] = true
		if n.IsHub() {
			hubs++
			hub = i
		}
	}

	switch {
	case hubs == 0 && len(networks) > 0:
		errs = append(errs, errors.New("no hub network configured"))
	case hubs > 1:
		errs = append(errs, fmt.Errorf("exactly one hub network is allowed, got %d", hubs))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", entity.ErrConfiguration, errors.Join(errs...))
	}

	return &Registry{
		networks: cloneNetworks(networks),
		hub:      hub,
	}, nil
}

// Networks returns every network in declared order.
func (r *Registry) Networks() []entity.Network {
	return cloneNetworks(r.networks)
}

// Hub returns the hub network. It only fails on a Registry not built by New.
func (r *Registry) Hub() (entity.Network, error) {
	if r == nil || len(r.networks) == 0 || r.hub < 0 || r.hub >= len(r.networks) {
		return entity.Network{}, fmt.Errorf("%w: no hub network configured", entity.ErrConfiguration)
	}
	return cloneNetwork(r.networks[r.hub]), nil
}

// Spokes returns the spoke networks in declared order.
func (r *Registry) Spokes() []entity.Network {
	spokes := make([]entity.Network, 0, len(r.networks))
	for _, n := range r.networks {
		if !n.IsHub() {
			spokes = append(spokes, cloneNetwork(n))
		}
	}
	return spokes
}

func cloneNetwork(n entity.Network) entity.Network {
	n.Contracts = append([]common.Address(nil), n.Contracts...)
	return n
}

func cloneNetworks(in []entity.Network) []entity.Network {
	out := make([]entity.Network, len(in))
	for i, n := range in {
		out[i] = cloneNetwork(n)
	}
	return out
}
