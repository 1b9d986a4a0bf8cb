package testutil

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/vote-aggregator/internal/domain/entity"
	"github.com/archon-research/vote-aggregator/internal/pkg/blockchain/abis"
)

// JSONRPCRequest represents a JSON-RPC request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

// GovernanceNode is a mock Ethereum node serving proposalVotes and
// collectionFinished for any number of contracts.
//
// Unknown contracts answer "0x", like an address without code.
type GovernanceNode struct {
	Server *httptest.Server

	abi *abi.ABI

	mu       sync.Mutex
	votes    map[common.Address]map[string]entity.Votes
	finished map[common.Address]map[string]bool
	reverts  map[common.Address]bool
	failures int
	delay    time.Duration
	calls    map[string]int
}

// StartGovernanceNode starts a GovernanceNode that is closed with the test.
func StartGovernanceNode(t *testing.T) *GovernanceNode {
	t.Helper()

	governanceABI, err := abis.GetGovernanceABI()
	if err != nil {
		t.Fatalf("load governance ABI: %v", err)
	}

	n := &GovernanceNode{
		abi:      governanceABI,
		votes:    make(map[common.Address]map[string]entity.Votes),
		finished: make(map[common.Address]map[string]bool),
		reverts:  make(map[common.Address]bool),
		calls:    make(map[string]int),
	}
	n.Server = httptest.NewServer(http.HandlerFunc(n.handle))
	t.Cleanup(n.Server.Close)
	return n
}

// URL returns the node's RPC endpoint.
func (n *GovernanceNode) URL() string {
	return n.Server.URL
}

// SetVotes sets the tally contract returns for id.
func (n *GovernanceNode) SetVotes(contract common.Address, id entity.ProposalID, votes entity.Votes) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.votes[contract] == nil {
		n.votes[contract] = make(map[string]entity.Votes)
	}
	n.votes[contract][id.String()] = votes
}

// SetFinished sets the collectionFinished flag contract returns for id.
func (n *GovernanceNode) SetFinished(contract common.Address, id entity.ProposalID, finished bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.finished[contract] == nil {
		n.finished[contract] = make(map[string]bool)
	}
	n.finished[contract][id.String()] = finished
}

// SetRevert makes every call to contract revert.
func (n *GovernanceNode) SetRevert(contract common.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reverts[contract] = true
}

// FailNext makes the next count requests fail with an internal JSON-RPC error.
func (n *GovernanceNode) FailNext(count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = count
}

// SetDelay delays every response by d.
func (n *GovernanceNode) SetDelay(d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delay = d
}

// CallCount returns how many eth_call requests hit method.
func (n *GovernanceNode) CallCount(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *GovernanceNode) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		WriteRPCError(w, json.RawMessage(`1`), -32700, "parse error")
		return
	}

	n.mu.Lock()
	delay := n.delay
	n.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if req.Method != "eth_call" {
		WriteRPCError(w, req.ID, -32601, "method not found: "+req.Method)
		return
	}

	to, data, ok := parseEthCall(req.Params)
	if !ok || len(data) < 4 {
		WriteRPCError(w, req.ID, -32602, "invalid params")
		return
	}
	method, err := n.abi.MethodById(data[:4])
	if err != nil {
		WriteRPCError(w, req.ID, -32602, "unknown selector")
		return
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil || len(args) != 1 {
		WriteRPCError(w, req.ID, -32602, "invalid calldata")
		return
	}
	id, _ := args[0].(*big.Int)

	n.mu.Lock()
	n.calls[method.Name]++
	if n.failures > 0 {
		n.failures--
		n.mu.Unlock()
		WriteRPCError(w, req.ID, -32603, "internal error")
		return
	}
	revert := n.reverts[to]
	votes, hasVotes := n.votes[to][id.String()]
	_, knownVotes := n.votes[to]
	finished := n.finished[to][id.String()]
	_, knownFinished := n.finished[to]
	n.mu.Unlock()

	if revert {
		WriteRPCError(w, req.ID, 3, "execution reverted")
		return
	}

	var out []byte
	switch method.Name {
	case abis.MethodProposalVotes:
		if !knownVotes && !knownFinished {
			writeHexResult(w, req.ID, nil)
			return
		}
		if !hasVotes {
			votes = entity.ZeroVotes()
		}
		out, err = method.Outputs.Pack(votes.For, votes.Against, votes.Abstain)
	case abis.MethodCollectionFinished:
		if !knownVotes && !knownFinished {
			writeHexResult(w, req.ID, nil)
			return
		}
		out, err = method.Outputs.Pack(finished)
	}
	if err != nil {
		WriteRPCError(w, req.ID, -32603, err.Error())
		return
	}
	writeHexResult(w, req.ID, out)
}

// WriteRPCResult writes a JSON-RPC success response.
func WriteRPCResult(w http.ResponseWriter, id, result json.RawMessage) {
	_ = json.NewEncoder(w).Encode(map[string]json.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"id":      id,
		"result":  result,
	})
}

// WriteRPCError writes a JSON-RPC error response.
func WriteRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	errJSON, _ := json.Marshal(map[string]interface{}{"code": code, "message": message})
	_ = json.NewEncoder(w).Encode(map[string]json.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"id":      id,
		"error":   json.RawMessage(errJSON),
	})
}

func writeHexResult(w http.ResponseWriter, id json.RawMessage, data []byte) {
	resultJSON, _ := json.Marshal("0x" + hex.EncodeToString(data))
	WriteRPCResult(w, id, resultJSON)
}

// parseEthCall extracts the target and calldata from eth_call params.
func parseEthCall(params json.RawMessage) (common.Address, []byte, bool) {
	var p []json.RawMessage
	if err := json.Unmarshal(params, &p); err != nil || len(p) < 1 {
		return common.Address{}, nil, false
	}
	var callObj map[string]interface{}
	if err := json.Unmarshal(p[0], &callObj); err != nil {
		return common.Address{}, nil, false
	}
	toHex, _ := callObj["to"].(string)
	// go-ethereum may use "data" or "input" for the calldata field
	dataHex, _ := callObj["input"].(string)
	if dataHex == "" {
		dataHex, _ = callObj["data"].(string)
	}
	data, err := hex.DecodeString(strings.TrimPrefix(dataHex, "0x"))
	if err != nil || !common.IsHexAddress(toHex) {
		return common.Address{}, nil, false
	}
	return common.HexToAddress(toHex), data, true
}
