// Package main runs the vote aggregator: an HTTP service that sums governance
// votes for a proposal across a hub chain and its spoke chains, caching the
// per-chain tallies in Redis.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	httpadapter "github.com/archon-research/vote-aggregator/internal/adapters/inbound/http"
	"github.com/archon-research/vote-aggregator/internal/adapters/outbound/ethrpc"
	"github.com/archon-research/vote-aggregator/internal/adapters/outbound/memory"
	"github.com/archon-research/vote-aggregator/internal/adapters/outbound/redis"
	"github.com/archon-research/vote-aggregator/internal/adapters/outbound/sns"
	"github.com/archon-research/vote-aggregator/internal/adapters/outbound/telemetry"
	"github.com/archon-research/vote-aggregator/internal/domain/entity"
	"github.com/archon-research/vote-aggregator/internal/pkg/env"
	"github.com/archon-research/vote-aggregator/internal/ports/outbound"
	"github.com/archon-research/vote-aggregator/internal/registry"
	"github.com/archon-research/vote-aggregator/internal/services/vote_aggregator"
)

const (
	cacheRedis  = "redis"
	cacheMemory = "memory"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

type cliConfig struct {
	networksPath   string
	httpAddr       string
	cacheBackend   string
	redisAddr      string
	redisPassword  string
	redisDB        int
	keyPrefix      string
	pendingTTL     time.Duration
	callTimeout    time.Duration
	readTimeout    time.Duration
	aggTimeout     time.Duration
	maxSpokes      int
	rpcMaxRetries  int
	rpcRateLimit   float64
	allowedOrigins []string
	topicARN       string
	awsRegion      string
	snsEndpoint    string
	otlpEndpoint   string
	traceStdout    bool
	shutdownWait   time.Duration
}

func parseConfig(args []string) (cliConfig, error) {
	fs := flag.NewFlagSet("vote-aggregator", flag.ContinueOnError)
	networks := fs.String("networks", "", "Path to the networks registry JSON")
	addr := fs.String("addr", "", "HTTP listen address")
	redisAddr := fs.String("redis", "", "Redis address")
	cacheBackend := fs.String("cache", "", "Cache backend (redis or memory)")
	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}

	cfg := cliConfig{
		networksPath:   *networks,
		httpAddr:       *addr,
		redisAddr:      *redisAddr,
		cacheBackend:   *cacheBackend,
		redisPassword:  env.Get("REDIS_PASSWORD", ""),
		keyPrefix:      env.Get("REDIS_KEY_PREFIX", "votes"),
		allowedOrigins: env.GetList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		topicARN:       env.Get("SNS_FINALIZED_TOPIC_ARN", ""),
		awsRegion:      env.Get("AWS_REGION", "eu-west-1"),
		snsEndpoint:    env.Get("AWS_SNS_ENDPOINT", ""),
		otlpEndpoint:   env.Get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		traceStdout:    strings.EqualFold(env.Get("TRACE_STDOUT", "false"), "true"),
	}

	if cfg.networksPath == "" {
		cfg.networksPath = env.Get("NETWORKS_CONFIG", "")
	}
	if cfg.networksPath == "" {
		return cliConfig{}, fmt.Errorf("%w: networks config not provided (use -networks flag or NETWORKS_CONFIG env var)", entity.ErrConfiguration)
	}

	if cfg.httpAddr == "" {
		cfg.httpAddr = env.Get("HTTP_ADDR", "")
	}
	if cfg.httpAddr == "" {
		if port := env.Get("NODE_PORT", ""); port != "" {
			cfg.httpAddr = ":" + port
		}
	}
	if cfg.httpAddr == "" {
		cfg.httpAddr = ":8080"
	}

	if cfg.cacheBackend == "" {
		cfg.cacheBackend = env.Get("CACHE_BACKEND", cacheRedis)
	}
	cfg.cacheBackend = strings.ToLower(cfg.cacheBackend)
	if cfg.cacheBackend != cacheRedis && cfg.cacheBackend != cacheMemory {
		return cliConfig{}, fmt.Errorf("%w: unknown cache backend %q", entity.ErrConfiguration, cfg.cacheBackend)
	}

	if cfg.redisAddr == "" {
		cfg.redisAddr = env.Get("REDIS_ADDR", "")
	}
	if cfg.redisAddr == "" {
		if host := env.Get("REDIS_HOST", ""); host != "" {
			cfg.redisAddr = net.JoinHostPort(host, env.Get("REDIS_PORT", "6379"))
		}
	}
	if cfg.redisAddr == "" {
		cfg.redisAddr = "localhost:6379"
	}

	var err error
	if cfg.redisDB, err = env.GetInt("REDIS_DB", 0); err != nil {
		return cliConfig{}, fmt.Errorf("%w: %w", entity.ErrConfiguration, err)
	}

	ttlSecs, err := env.GetInt("REDIS_EXPIRATION_TIME_IN_SEC", 60)
	if err != nil {
		return cliConfig{}, fmt.Errorf("%w: %w", entity.ErrConfiguration, err)
	}
	if ttlSecs <= 0 {
		return cliConfig{}, fmt.Errorf("%w: REDIS_EXPIRATION_TIME_IN_SEC must be positive, got %d", entity.ErrConfiguration, ttlSecs)
	}
	cfg.pendingTTL = time.Duration(ttlSecs) * time.Second

	if cfg.callTimeout, err = positiveDuration("CHAIN_CALL_TIMEOUT", 5*time.Second); err != nil {
		return cliConfig{}, err
	}
	if cfg.readTimeout, err = positiveDuration("CHAIN_READ_TIMEOUT", 20*time.Second); err != nil {
		return cliConfig{}, err
	}
	if cfg.aggTimeout, err = positiveDuration("AGGREGATION_TIMEOUT", 45*time.Second); err != nil {
		return cliConfig{}, err
	}
	if cfg.readTimeout > cfg.aggTimeout {
		return cliConfig{}, fmt.Errorf("%w: CHAIN_READ_TIMEOUT (%v) must not exceed AGGREGATION_TIMEOUT (%v)",
			entity.ErrConfiguration, cfg.readTimeout, cfg.aggTimeout)
	}
	if cfg.shutdownWait, err = positiveDuration("SHUTDOWN_TIMEOUT", 25*time.Second); err != nil {
		return cliConfig{}, err
	}

	if cfg.rpcMaxRetries, err = env.GetInt("RPC_MAX_RETRIES", 2); err != nil {
		return cliConfig{}, fmt.Errorf("%w: %w", entity.ErrConfiguration, err)
	}
	if cfg.rpcMaxRetries < 0 {
		return cliConfig{}, fmt.Errorf("%w: RPC_MAX_RETRIES must not be negative", entity.ErrConfiguration)
	}
	if cfg.maxSpokes, err = env.GetInt("RPC_MAX_CONCURRENT_SPOKES", 0); err != nil {
		return cliConfig{}, fmt.Errorf("%w: %w", entity.ErrConfiguration, err)
	}
	if cfg.maxSpokes < 0 {
		return cliConfig{}, fmt.Errorf("%w: RPC_MAX_CONCURRENT_SPOKES must not be negative", entity.ErrConfiguration)
	}
	if cfg.rpcRateLimit, err = env.GetFloat("RPC_RATE_LIMIT", 10); err != nil {
		return cliConfig{}, fmt.Errorf("%w: %w", entity.ErrConfiguration, err)
	}
	if cfg.rpcRateLimit <= 0 {
		return cliConfig{}, fmt.Errorf("%w: RPC_RATE_LIMIT must be positive", entity.ErrConfiguration)
	}

	return cfg, nil
}

// writeTimeout leaves room after the aggregation deadline to encode and send
// the error response.
func writeTimeout(aggregation time.Duration) time.Duration {
	return aggregation + 15*time.Second
}

func positiveDuration(key string, def time.Duration) (time.Duration, error) {
	d, err := env.GetDuration(key, def)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", entity.ErrConfiguration, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive, got %v", entity.ErrConfiguration, key, d)
	}
	return d, nil
}

func run(ctx context.Context, args []string) error {
	cfg, err := parseConfig(args)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))
	slog.SetDefault(logger)

	reg, err := registry.LoadFile(cfg.networksPath)
	if err != nil {
		return fmt.Errorf("loading networks: %w", err)
	}
	hub, err := reg.Hub()
	if err != nil {
		return err
	}
	logger.Info("starting vote aggregator",
		"addr", cfg.httpAddr,
		"hub", hub.Name,
		"spokes", len(reg.Spokes()),
		"cache", cfg.cacheBackend)

	if cfg.otlpEndpoint != "" || cfg.traceStdout {
		shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
			ServiceName:  "vote-aggregator",
			Environment:  env.Get("ENVIRONMENT", "development"),
			OTLPEndpoint: cfg.otlpEndpoint,
		})
		if err != nil {
			return fmt.Errorf("initializing tracer: %w", err)
		}
		defer flush(logger, "tracer", shutdownTracer)
	}

	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricConfig{
		ServiceName:  "vote-aggregator",
		Environment:  env.Get("ENVIRONMENT", "development"),
		OTLPEndpoint: cfg.otlpEndpoint,
	})
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}
	defer flush(logger, "metrics", shutdownMetrics)

	metrics, err := telemetry.NewMetrics("vote-aggregator")
	if err != nil {
		return fmt.Errorf("creating metrics: %w", err)
	}

	reader, err := ethrpc.NewReader(ethrpc.Config{
		CallTimeout: cfg.callTimeout,
		MaxRetries:  cfg.rpcMaxRetries,
		RateLimit:   rate.Limit(cfg.rpcRateLimit),
		Logger:      logger,
	}, reg.Networks())
	if err != nil {
		return fmt.Errorf("creating chain reader: %w", err)
	}
	defer reader.Close()

	cache, err := newCache(cfg, logger)
	if err != nil {
		return err
	}
	defer cache.Close()

	events, err := newEventSink(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer events.Close()

	service, err := vote_aggregator.NewService(
		vote_aggregator.Config{
			KeyPrefix:           cfg.keyPrefix,
			PendingTTL:          cfg.pendingTTL,
			ReadTimeout:         cfg.readTimeout,
			AggregationTimeout:  cfg.aggTimeout,
			MaxConcurrentSpokes: cfg.maxSpokes,
			Logger:              logger,
		},
		reg,
		reader,
		cache,
		events,
		metrics,
	)
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	if err := service.Start(ctx); err != nil {
		return fmt.Errorf("starting service: %w", err)
	}

	var shuttingDown atomic.Bool
	server := httpadapter.NewServer(httpadapter.ServerConfig{
		Addr:           cfg.httpAddr,
		AllowedOrigins: cfg.allowedOrigins,
		Logger:         logger,
		WriteTimeout:   writeTimeout(cfg.aggTimeout),
	}, service, &shuttingDown)

	serveErr, err := server.Start()
	if err != nil {
		return fmt.Errorf("starting http server: %w", err)
	}

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutting down...")
	shuttingDown.Store(true)

	if err := server.Shutdown(cfg.shutdownWait); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}
	if err := service.Stop(); err != nil {
		logger.Error("error stopping service", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func newCache(cfg cliConfig, logger *slog.Logger) (outbound.ProposalCache, error) {
	if cfg.cacheBackend == cacheMemory {
		logger.Warn("using in-memory cache; entries are not shared between instances")
		return memory.NewProposalCache(), nil
	}
	cache, err := redis.NewProposalCache(redis.Config{
		Addr:     cfg.redisAddr,
		Password: cfg.redisPassword,
		DB:       cfg.redisDB,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating redis cache: %w", err)
	}
	return cache, nil
}

func newEventSink(ctx context.Context, cfg cliConfig, logger *slog.Logger) (outbound.EventSink, error) {
	if cfg.topicARN == "" {
		logger.Info("no finalization topic configured; events are not published")
		return sns.NoopSink{}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.awsRegion))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var optFns []func(*awssns.Options)
	if cfg.snsEndpoint != "" {
		optFns = append(optFns, func(o *awssns.Options) {
			o.BaseEndpoint = aws.String(cfg.snsEndpoint)
		})
	}

	sink, err := sns.NewEventSink(awssns.NewFromConfig(awsCfg, optFns...), sns.Config{
		TopicARN: cfg.topicARN,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating SNS event sink: %w", err)
	}
	logger.Info("publishing finalization events", "topic", cfg.topicARN)
	return sink, nil
}

func flush(logger *slog.Logger, name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Error("error flushing "+name, "error", err)
	}
}
