// Package vote_aggregator combines per-chain governance vote tallies into one
// ordered result per proposal.
//
// The hub governor is authoritative: its tally is always read and its
// collectionFinished flag decides the cache policy. While collection is in
// progress every spoke is read concurrently and the combined result is cached
// with a TTL; once collection finished the hub tally alone is the final
// answer and is cached without expiration.
//
// A spoke that cannot be read is reported as unavailable instead of failing
// the request. A hub that cannot be read fails the request and nothing is
// cached.
package vote_aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/archon-research/vote-aggregator/internal/domain/entity"
	"github.com/archon-research/vote-aggregator/internal/pkg/blockchain/abis"
	"github.com/archon-research/vote-aggregator/internal/ports/inbound"
	"github.com/archon-research/vote-aggregator/internal/ports/outbound"
	"github.com/archon-research/vote-aggregator/internal/registry"
)

const (
	// tracerName is the instrumentation name for this service.
	tracerName = "github.com/archon-research/vote-aggregator/internal/services/vote_aggregator"
)

var (
	_ inbound.VoteAggregationService = (*Service)(nil)
	_ inbound.HealthChecker          = (*Service)(nil)
)

// Config holds configuration for the aggregation service.
type Config struct {
	// KeyPrefix namespaces cache keys: {KeyPrefix}:proposal:{id}.
	KeyPrefix string

	// PendingTTL is the lifetime of cached results for proposals whose
	// collection has not finished.
	PendingTTL time.Duration

	// ReadTimeout bounds one contract read, retries of the RPC client included.
	ReadTimeout time.Duration

	// AggregationTimeout bounds every chain read of one aggregation. It must
	// stay below the HTTP server's write timeout so a slow aggregation still
	// ends in an error response.
	AggregationTimeout time.Duration

	// PublishTimeout bounds the finalization notification.
	PublishTimeout time.Duration

	// MaxConcurrentSpokes limits concurrent spoke reads; 0 reads every spoke at once.
	MaxConcurrentSpokes int

	// HubFailureThreshold is the number of consecutive hub read failures after
	// which the service reports itself unhealthy.
	HubFailureThreshold int

	// Logger for the service.
	Logger *slog.Logger
}

// ConfigDefaults returns the default service configuration.
func ConfigDefaults() Config {
	return Config{
		KeyPrefix:           "votes",
		PendingTTL:          60 * time.Second,
		ReadTimeout:         20 * time.Second,
		AggregationTimeout:  45 * time.Second,
		PublishTimeout:      5 * time.Second,
		HubFailureThreshold: 5,
		Logger:              slog.Default(),
	}
}

// Service is the vote aggregation engine.
type Service struct {
	config  Config
	hub     entity.Network
	spokes  []entity.Network
	reader  outbound.ChainVoteReader
	cache   outbound.ProposalCache
	events  outbound.EventSink
	metrics outbound.MetricsRecorder

	group       singleflight.Group
	ready       atomic.Bool
	hubFailures atomic.Int64
	now         func() time.Time

	logger *slog.Logger
}

// NewService creates a new aggregation service over the networks in reg.
// events and metrics may be nil.
func NewService(
	config Config,
	reg *registry.Registry,
	reader outbound.ChainVoteReader,
	cache outbound.ProposalCache,
	events outbound.EventSink,
	metrics outbound.MetricsRecorder,
) (*Service, error) {
	if reg == nil {
		return nil, fmt.Errorf("%w: registry cannot be nil", entity.ErrConfiguration)
	}
	if reader == nil {
		return nil, fmt.Errorf("%w: chain reader cannot be nil", entity.ErrConfiguration)
	}
	if cache == nil {
		return nil, fmt.Errorf("%w: cache cannot be nil", entity.ErrConfiguration)
	}

	defaults := ConfigDefaults()
	if config.KeyPrefix == "" {
		config.KeyPrefix = defaults.KeyPrefix
	}
	if config.PendingTTL == 0 {
		config.PendingTTL = defaults.PendingTTL
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.AggregationTimeout == 0 {
		config.AggregationTimeout = defaults.AggregationTimeout
	}
	if config.PublishTimeout == 0 {
		config.PublishTimeout = defaults.PublishTimeout
	}
	if config.HubFailureThreshold == 0 {
		config.HubFailureThreshold = defaults.HubFailureThreshold
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.PendingTTL < 0 {
		return nil, fmt.Errorf("%w: pending TTL must be positive, got %v", entity.ErrConfiguration, config.PendingTTL)
	}
	if config.ReadTimeout < 0 {
		return nil, fmt.Errorf("%w: read timeout must be positive, got %v", entity.ErrConfiguration, config.ReadTimeout)
	}
	if config.AggregationTimeout < 0 {
		return nil, fmt.Errorf("%w: aggregation timeout must be positive, got %v", entity.ErrConfiguration, config.AggregationTimeout)
	}
	if config.MaxConcurrentSpokes < 0 {
		return nil, fmt.Errorf("%w: max concurrent spokes must not be negative, got %d", entity.ErrConfiguration, config.MaxConcurrentSpokes)
	}

	hub, err := reg.Hub()
	if err != nil {
		return nil, err
	}

	s := &Service{
		config:  config,
		hub:     hub,
		spokes:  reg.Spokes(),
		reader:  reader,
		cache:   cache,
		events:  events,
		metrics: metrics,
		now:     time.Now,
		logger:  config.Logger.With("component", "vote-aggregator"),
	}
	return s, nil
}

// Start verifies the cache is reachable and marks the service ready.
func (s *Service) Start(ctx context.Context) error {
	if err := s.cache.Ping(ctx); err != nil {
		return fmt.Errorf("pinging cache: %w", err)
	}
	s.ready.Store(true)
	s.logger.Info("vote aggregator started",
		"hub", s.hub.Name,
		"spokes", len(s.spokes),
		"pendingTTL", s.config.PendingTTL)
	return nil
}

// Stop marks the service as not ready.
func (s *Service) Stop() error {
	s.ready.Store(false)
	s.logger.Info("vote aggregator stopped")
	return nil
}

// IsReady reports whether Start succeeded and Stop has not been called.
func (s *Service) IsReady() bool {
	return s.ready.Load()
}

// IsHealthy reports false once the hub failed HubFailureThreshold times in a row.
func (s *Service) IsHealthy() bool {
	return s.hubFailures.Load() < int64(s.config.HubFailureThreshold)
}

// Ping checks the cache.
func (s *Service) Ping(ctx context.Context) error {
	return s.cache.Ping(ctx)
}

// CacheKey returns the cache key of proposal id.
func (s *Service) CacheKey(id entity.ProposalID) string {
	return fmt.Sprintf("%s:proposal:%s", s.config.KeyPrefix, id.String())
}

type flightResult struct {
	result  entity.AggregationResult
	outcome string
}

// GetProposalVotes returns one tally per network, hub first then spokes in
// registry order, or only the hub tally when collection has finished.
//
// Concurrent cache misses for the same proposal share one set of chain reads.
func (s *Service) GetProposalVotes(ctx context.Context, id entity.ProposalID) (entity.AggregationResult, error) {
	start := s.now()
	key := s.CacheKey(id)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "votes.GetProposalVotes",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("proposal.id", id.String()),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	if cached, ok := s.lookup(ctx, key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		s.recordAggregation(ctx, outbound.OutcomeCacheHit, start)
		return cached, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	// The shared fetch outlives a caller that goes away; every read in it is
	// bounded by ReadTimeout.
	flightCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		return s.aggregate(flightCtx, id, key)
	})

	select {
	case <-ctx.Done():
		s.recordAggregation(ctx, outbound.OutcomeError, start)
		span.RecordError(ctx.Err())
		span.SetStatus(codes.Error, "caller gone")
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			s.recordAggregation(ctx, outbound.OutcomeError, start)
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, "aggregation failed")
			return nil, res.Err
		}
		fr := res.Val.(flightResult)
		span.SetAttributes(
			attribute.Bool("request.shared", res.Shared),
			attribute.String("aggregation.outcome", fr.outcome),
			attribute.Bool("result.complete", fr.result.Complete()),
		)
		s.recordAggregation(ctx, fr.outcome, start)
		return fr.result, nil
	}
}

// GetProposalTotal returns the cross-chain sum of GetProposalVotes.
func (s *Service) GetProposalTotal(ctx context.Context, id entity.ProposalID) (entity.ProposalTotal, error) {
	result, err := s.GetProposalVotes(ctx, id)
	if err != nil {
		return entity.ProposalTotal{}, err
	}
	return result.Total(), nil
}

// lookup returns the cached result for key. Cache failures and undecodable
// entries are treated as misses.
func (s *Service) lookup(ctx context.Context, key string) (entity.AggregationResult, bool) {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache read failed, reading chains", "key", key, "error", err)
		s.recordCacheError(ctx, "get")
		return nil, false
	}
	if data == nil {
		return nil, false
	}

	var cached entity.AggregationResult
	if err := json.Unmarshal(data, &cached); err != nil || len(cached) == 0 {
		s.logger.Warn("ignoring undecodable cache entry", "key", key, "error", err)
		return nil, false
	}
	s.logger.Debug("cache hit", "key", key)
	return cached, true
}

// aggregate reads the chains under AggregationTimeout. Cache writes and the
// finalization event use ctx, so they are not cut short by a late read.
func (s *Service) aggregate(ctx context.Context, id entity.ProposalID, key string) (flightResult, error) {
	readCtx, cancel := context.WithTimeout(ctx, s.config.AggregationTimeout)
	defer cancel()

	hubVotes, err := s.readNetwork(readCtx, s.hub, id)
	if err != nil {
		return flightResult{}, s.hubFailed(ctx, id, err)
	}

	finished, err := s.readFinished(readCtx, id)
	if err != nil {
		return flightResult{}, s.hubFailed(ctx, id, err)
	}
	s.hubFailures.Store(0)

	hubTally := entity.ChainVoteTally{ChainName: s.hub.Name, Votes: hubVotes, Available: true}

	if finished {
		result := entity.AggregationResult{hubTally}
		s.store(ctx, key, result, 0)
		s.publishFinalized(ctx, id, key, hubVotes)
		s.logger.Info("proposal collection finished",
			"proposalId", id.String(),
			"for", hubVotes.For.String(),
			"against", hubVotes.Against.String(),
			"abstain", hubVotes.Abstain.String())
		return flightResult{result: result, outcome: outbound.OutcomeFinal}, nil
	}

	result := make(entity.AggregationResult, 1+len(s.spokes))
	result[0] = hubTally

	var g errgroup.Group
	if s.config.MaxConcurrentSpokes > 0 {
		g.SetLimit(s.config.MaxConcurrentSpokes)
	}
	for i, spoke := range s.spokes {
		g.Go(func() error {
			result[i+1] = s.readSpoke(readCtx, spoke, id)
			return nil
		})
	}
	_ = g.Wait()

	if unavailable := result.Unavailable(); len(unavailable) > 0 {
		s.logger.Warn("partial aggregation",
			"proposalId", id.String(),
			"unavailable", unavailable)
	}

	s.store(ctx, key, result, s.config.PendingTTL)
	return flightResult{result: result, outcome: outbound.OutcomePending}, nil
}

func (s *Service) hubFailed(ctx context.Context, id entity.ProposalID, err error) error {
	failures := s.hubFailures.Add(1)
	if s.metrics != nil {
		s.metrics.RecordChainReadFailure(ctx, s.hub.Name, string(entity.RoleHub))
	}
	s.logger.Error("hub read failed",
		"proposalId", id.String(),
		"hub", s.hub.Name,
		"consecutiveFailures", failures,
		"error", err)
	return fmt.Errorf("reading hub %s: %w", s.hub.Name, err)
}

// readSpoke never fails; an unreadable spoke yields an unavailable tally.
func (s *Service) readSpoke(ctx context.Context, spoke entity.Network, id entity.ProposalID) entity.ChainVoteTally {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "votes.readSpoke",
		trace.WithAttributes(attribute.String("chain.name", spoke.Name)))
	defer span.End()

	votes, err := s.readNetwork(ctx, spoke, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "spoke unavailable")
		if s.metrics != nil {
			s.metrics.RecordChainReadFailure(ctx, spoke.Name, string(entity.RoleSpoke))
		}
		s.logger.Warn("spoke read failed, marking unavailable",
			"proposalId", id.String(),
			"chain", spoke.Name,
			"error", err)
		return entity.UnavailableTally(spoke.Name)
	}
	return entity.ChainVoteTally{ChainName: spoke.Name, Votes: votes, Available: true}
}

// readNetwork sums proposalVotes over every contract of network, reading the
// contracts concurrently. Any failed contract fails the whole network and
// cancels the remaining reads.
func (s *Service) readNetwork(ctx context.Context, network entity.Network, id entity.ProposalID) (entity.Votes, error) {
	tallies := make([]entity.Votes, len(network.Contracts))
	g, gctx := errgroup.WithContext(ctx)
	for i, contract := range network.Contracts {
		g.Go(func() error {
			votes, err := s.readVotes(gctx, network, contract, id)
			if err != nil {
				return err
			}
			tallies[i] = votes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return entity.Votes{}, err
	}

	total := entity.ZeroVotes()
	for _, votes := range tallies {
		total = total.Add(votes)
	}
	return total, nil
}

func (s *Service) readVotes(ctx context.Context, network entity.Network, contract common.Address, id entity.ProposalID) (entity.Votes, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.ReadTimeout)
	defer cancel()

	votes, err := s.reader.ProposalVotes(ctx, network, contract, id)
	if err != nil {
		return entity.Votes{}, asChainReadError(network.Name, abis.MethodProposalVotes, err)
	}
	return votes, nil
}

func (s *Service) readFinished(ctx context.Context, id entity.ProposalID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.ReadTimeout)
	defer cancel()

	finished, err := s.reader.CollectionFinished(ctx, s.hub, s.hub.Contracts[0], id)
	if err != nil {
		return false, asChainReadError(s.hub.Name, abis.MethodCollectionFinished, err)
	}
	return finished, nil
}

// asChainReadError keeps reader errors already classified and wraps the rest.
func asChainReadError(chain, method string, err error) error {
	var readErr *entity.ChainReadError
	if errors.As(err, &readErr) {
		return err
	}
	return entity.NewChainReadError(chain, method, err)
}

// store writes result under key. Failures are logged; the caller still gets
// the result.
func (s *Service) store(ctx context.Context, key string, result entity.AggregationResult, ttl time.Duration) {
	data, err := json.Marshal(result)
	if err != nil {
		s.logger.Error("encoding aggregation result", "key", key, "error", err)
		return
	}
	if err := s.cache.Set(ctx, key, data, ttl); err != nil {
		s.logger.Warn("cache write failed", "key", key, "ttl", ttl, "error", err)
		s.recordCacheError(ctx, "set")
	}
}

func (s *Service) publishFinalized(ctx context.Context, id entity.ProposalID, key string, votes entity.Votes) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.PublishTimeout)
	defer cancel()

	event := outbound.ProposalFinalizedEvent{
		ProposalID:  id.String(),
		HubChain:    s.hub.Name,
		For:         votes.For.String(),
		Against:     votes.Against.String(),
		Abstain:     votes.Abstain.String(),
		CacheKey:    key,
		FinalizedAt: s.now().UTC(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("publishing finalization failed", "proposalId", id.String(), "error", err)
	}
}

func (s *Service) recordAggregation(ctx context.Context, outcome string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordAggregation(ctx, outcome, s.now().Sub(start))
	}
}

func (s *Service) recordCacheError(ctx context.Context, op string) {
	if s.metrics != nil {
		s.metrics.RecordCacheError(ctx, op)
	}
}
