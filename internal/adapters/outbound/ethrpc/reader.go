// Package ethrpc reads governance contract state over Ethereum JSON-RPC.
//
// This adapter implements outbound.ChainVoteReader with go-ethereum's
// ethclient: each read is an eth_call against the latest block, ABI-encoded
// and decoded here so the service never sees contract details.
//
// Every chain gets its own lazily dialed client and rate limiter. Transient
// failures are retried with exponential backoff; each attempt is bounded by
// Config.CallTimeout. Reverts and undecodable responses fail immediately.
// All failures are returned as *entity.ChainReadError.
package ethrpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"github.com/archon-research/vote-aggregator/internal/domain/entity"
	"github.com/archon-research/vote-aggregator/internal/pkg/blockchain/abis"
	"github.com/archon-research/vote-aggregator/internal/pkg/retry"
	"github.com/archon-research/vote-aggregator/internal/ports/outbound"
)

// Compile-time check that Reader implements outbound.ChainVoteReader
var _ outbound.ChainVoteReader = (*Reader)(nil)

// errPermanent marks failures that another attempt cannot fix.
var errPermanent = errors.New("permanent failure")

// ContractCaller is the subset of ethclient.Client used by the reader.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// DialFunc opens a ContractCaller for an RPC URL.
type DialFunc func(ctx context.Context, rawURL string) (ContractCaller, func(), error)

// DialEthclient dials rawURL with ethclient.
func DialEthclient(ctx context.Context, rawURL string) (ContractCaller, func(), error) {
	client, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

type chainClient struct {
	network entity.Network
	limiter *rate.Limiter

	mu     sync.Mutex
	caller ContractCaller
	close  func()
}

// Reader is a go-ethereum implementation of outbound.ChainVoteReader.
type Reader struct {
	config Config
	abi    *abi.ABI
	dial   DialFunc
	chains map[string]*chainClient
	logger *slog.Logger
}

// NewReader creates a reader for the given networks. No connection is opened
// until the first call against a network.
func NewReader(config Config, networks []entity.Network) (*Reader, error) {
	return NewReaderWithDialer(config, networks, DialEthclient)
}

// NewReaderWithDialer is NewReader with a custom dial function.
func NewReaderWithDialer(config Config, networks []entity.Network, dial DialFunc) (*Reader, error) {
	if dial == nil {
		return nil, errors.New("dial function is required")
	}
	if len(networks) == 0 {
		return nil, errors.New("at least one network is required")
	}

	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reader config: %w", err)
	}

	governanceABI, err := abis.GetGovernanceABI()
	if err != nil {
		return nil, fmt.Errorf("loading governance ABI: %w", err)
	}

	chains := make(map[string]*chainClient, len(networks))
	for _, n := range networks {
		if _, dup := chains[n.Name]; dup {
			return nil, fmt.Errorf("duplicate network %q", n.Name)
		}
		chains[n.Name] = &chainClient{
			network: n,
			limiter: rate.NewLimiter(config.RateLimit, config.RateBurst),
		}
	}

	return &Reader{
		config: config,
		abi:    governanceABI,
		dial:   dial,
		chains: chains,
		logger: config.Logger.With("component", "ethrpc-reader"),
	}, nil
}

// ProposalVotes calls proposalVotes(id) on contract.
func (r *Reader) ProposalVotes(ctx context.Context, network entity.Network, contract common.Address, id entity.ProposalID) (entity.Votes, error) {
	out, err := r.call(ctx, network, contract, abis.MethodProposalVotes, id)
	if err != nil {
		return entity.Votes{}, err
	}

	var decoded struct {
		ForVotes     *big.Int
		AgainstVotes *big.Int
		AbstainVotes *big.Int
	}
	if err := r.abi.UnpackIntoInterface(&decoded, abis.MethodProposalVotes, out); err != nil {
		return entity.Votes{}, entity.NewChainReadError(network.Name, abis.MethodProposalVotes,
			fmt.Errorf("decoding response from %s: %w", contract.Hex(), err))
	}

	return entity.Votes{
		For:     decoded.ForVotes,
		Against: decoded.AgainstVotes,
		Abstain: decoded.AbstainVotes,
	}, nil
}

// CollectionFinished calls collectionFinished(id) on contract.
func (r *Reader) CollectionFinished(ctx context.Context, network entity.Network, contract common.Address, id entity.ProposalID) (bool, error) {
	out, err := r.call(ctx, network, contract, abis.MethodCollectionFinished, id)
	if err != nil {
		return false, err
	}

	values, err := r.abi.Unpack(abis.MethodCollectionFinished, out)
	if err != nil {
		return false, entity.NewChainReadError(network.Name, abis.MethodCollectionFinished,
			fmt.Errorf("decoding response from %s: %w", contract.Hex(), err))
	}
	finished, ok := values[0].(bool)
	if !ok {
		return false, entity.NewChainReadError(network.Name, abis.MethodCollectionFinished,
			fmt.Errorf("unexpected output type %T from %s", values[0], contract.Hex()))
	}
	return finished, nil
}

// Close closes every opened client.
func (r *Reader) Close() error {
	for _, c := range r.chains {
		c.mu.Lock()
		if c.close != nil {
			c.close()
			c.close = nil
			c.caller = nil
		}
		c.mu.Unlock()
	}
	return nil
}

func (r *Reader) call(ctx context.Context, network entity.Network, contract common.Address, method string, id entity.ProposalID) ([]byte, error) {
	chain, ok := r.chains[network.Name]
	if !ok {
		return nil, entity.NewChainReadError(network.Name, method, fmt.Errorf("network not configured"))
	}

	data, err := r.abi.Pack(method, id.Big())
	if err != nil {
		return nil, entity.NewChainReadError(network.Name, method, fmt.Errorf("packing call: %w", err))
	}
	msg := ethereum.CallMsg{To: &contract, Data: data}

	onRetry := func(attempt int, err error, backoff time.Duration) {
		r.logger.Warn("contract call failed, retrying",
			"chain", network.Name,
			"method", method,
			"contract", contract.Hex(),
			"proposalId", id.String(),
			"attempt", attempt,
			"backoff", backoff,
			"error", err)
	}

	out, err := retry.Do(ctx, r.config.retryConfig(), isRetryable, onRetry, func(ctx context.Context) ([]byte, error) {
		caller, err := chain.client(ctx, r.dial)
		if err != nil {
			return nil, fmt.Errorf("dialing %s: %w", network.RPCURL, err)
		}
		if err := chain.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		out, err := caller.CallContract(ctx, msg, nil)
		if err != nil {
			if isRevert(err) {
				return nil, fmt.Errorf("%w: %w", errPermanent, err)
			}
			return nil, err
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%w: empty response, no contract code at %s", errPermanent, contract.Hex())
		}
		return out, nil
	})
	if err != nil {
		return nil, entity.NewChainReadError(network.Name, method, err)
	}
	return out, nil
}

// client returns the chain's caller, dialing it on first use.
func (c *chainClient) client(ctx context.Context, dial DialFunc) (ContractCaller, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.caller != nil {
		return c.caller, nil
	}
	caller, closeFn, err := dial(ctx, c.network.RPCURL)
	if err != nil {
		return nil, err
	}
	c.caller = caller
	c.close = closeFn
	return caller, nil
}

func isRetryable(err error) bool {
	if errors.Is(err, errPermanent) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// isRevert reports whether err is an EVM execution revert returned by the node.
func isRevert(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == 3 {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}
