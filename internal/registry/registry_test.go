package registry

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/vote-aggregator/internal/domain/entity"
)

const validDoc = `{
  "networks": [
    {"name": "mumbai", "rpc_url": "https://mumbai.example", "role": "spoke", "contract_addresses": ["0x1111111111111111111111111111111111111111", "0x2222222222222222222222222222222222222222"]},
    {"name": "hub", "rpc_url": "https://hub.example", "role": "HUB", "contract_addresses": ["0x3333333333333333333333333333333333333333"]},
    {"name": "avalanche", "rpc_url": "wss://avax.example/ws", "role": "spoke", "contract_addresses": ["0x4444444444444444444444444444444444444444"]}
  ]
}`

func TestLoad_PreservesDeclaredOrder(t *testing.T) {
	reg, err := Load(strings.NewReader(validDoc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var names []string
	for _, n := range reg.Networks() {
		names = append(names, n.Name)
	}
	if strings.Join(names, ",") != "mumbai,hub,avalanche" {
		t.Errorf("expected declared order, got %v", names)
	}

	hub, err := reg.Hub()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hub.Name != "hub" || hub.Role != entity.RoleHub {
		t.Errorf("unexpected hub %+v", hub)
	}
	if hub.Contracts[0] != common.HexToAddress("0x3333333333333333333333333333333333333333") {
		t.Errorf("unexpected hub contract %s", hub.Contracts[0].Hex())
	}

	spokes := reg.Spokes()
	if len(spokes) != 2 || spokes[0].Name != "mumbai" || spokes[1].Name != "avalanche" {
		t.Errorf("unexpected spokes %+v", spokes)
	}
	if len(spokes[0].Contracts) != 2 {
		t.Errorf("expected 2 mumbai contracts, got %d", len(spokes[0].Contracts))
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name        string
		doc         string
		errContains []string
	}{
		{
			name:        "not json",
			doc:         `networks:`,
			errContains: []string{"decoding networks config"},
		},
		{
			name:        "unknown field",
			doc:         `{"networks": [], "ttl": 5}`,
			errContains: []string{"unknown field"},
		},
		{
			name:        "empty",
			doc:         `{"networks": []}`,
			errContains: []string{"no networks configured"},
		},
		{
			name: "no hub",
			doc: `{"networks": [
				{"name": "a", "rpc_url": "http://a", "role": "spoke", "contract_addresses": ["0x1111111111111111111111111111111111111111"]}
			]}`,
			errContains: []string{"no hub network configured"},
		},
		{
			name: "two hubs",
			doc: `{"networks": [
				{"name": "a", "rpc_url": "http://a", "role": "hub", "contract_addresses": ["0x1111111111111111111111111111111111111111"]},
				{"name": "b", "rpc_url": "http://b", "role": "hub", "contract_addresses": ["0x2222222222222222222222222222222222222222"]}
			]}`,
			errContains: []string{"exactly one hub network is allowed, got 2"},
		},
		{
			name: "duplicate names ignore case",
			doc: `{"networks": [
				{"name": "hub", "rpc_url": "http://a", "role": "hub", "contract_addresses": ["0x1111111111111111111111111111111111111111"]},
				{"name": "HUB", "rpc_url": "http://b", "role": "spoke", "contract_addresses": ["0x2222222222222222222222222222222222222222"]}
			]}`,
			errContains: []string{`duplicate network name "HUB"`},
		},
		{
			name: "reports every bad network",
			doc: `{"networks": [
				{"name": "hub", "rpc_url": "http://a", "role": "hub", "contract_addresses": ["0x1111111111111111111111111111111111111111"]},
				{"name": "bad-addr", "rpc_url": "http://b", "role": "spoke", "contract_addresses": ["0x12"]},
				{"name": "bad-url", "rpc_url": "", "role": "spoke", "contract_addresses": ["0x2222222222222222222222222222222222222222"]}
			]}`,
			errContains: []string{`invalid contract address "0x12"`, "rpc url must not be empty"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, entity.ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v", err)
			}
			for _, want := range tt.errContains {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("expected error containing %q, got %q", want, err.Error())
				}
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.json")
	if err := os.WriteFile(path, []byte(validDoc), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	reg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reg.Networks()) != 3 {
		t.Errorf("expected 3 networks, got %d", len(reg.Networks()))
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); !errors.Is(err, entity.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration for missing file, got %v", err)
	}
	if _, err := LoadFile(""); !errors.Is(err, entity.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration for empty path, got %v", err)
	}
}

func TestRegistry_ReturnsCopies(t *testing.T) {
	reg, err := Load(strings.NewReader(validDoc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	networks := reg.Networks()
	networks[0].Name = "mutated"
	networks[0].Contracts[0] = common.Address{}

	again := reg.Networks()
	if again[0].Name != "mumbai" {
		t.Errorf("registry order or name mutated: %s", again[0].Name)
	}
	if again[0].Contracts[0] == (common.Address{}) {
		t.Error("registry contract slice was shared with caller")
	}
}

func TestRegistry_ZeroValueHubFails(t *testing.T) {
	var reg Registry
	if _, err := reg.Hub(); !errors.Is(err, entity.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}
