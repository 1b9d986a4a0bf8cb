package ethrpc

import (
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/archon-research/vote-aggregator/internal/pkg/retry"
)

// Config holds configuration for the contract reader.
type Config struct {
	// CallTimeout bounds a single eth_call attempt.
	CallTimeout time.Duration

	// MaxRetries is the number of retries after a failed attempt. Reverts and
	// undecodable responses are never retried.
	MaxRetries int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between retries.
	MaxBackoff time.Duration

	// RateLimit is the number of calls per second allowed against one chain.
	RateLimit rate.Limit

	// RateBurst is the limiter bucket size.
	RateBurst int

	// Logger for the reader.
	Logger *slog.Logger
}

// ConfigDefaults returns the default reader configuration.
func ConfigDefaults() Config {
	return Config{
		CallTimeout:    5 * time.Second,
		MaxRetries:     2,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     1 * time.Second,
		RateLimit:      rate.Limit(10),
		RateBurst:      5,
		Logger:         slog.Default(),
	}
}

// Validate checks the configuration after defaults were applied.
func (c Config) Validate() error {
	if c.CallTimeout <= 0 {
		return errors.New("CallTimeout must be positive")
	}
	if c.MaxRetries < 0 {
		return errors.New("MaxRetries must not be negative")
	}
	if c.RateLimit <= 0 {
		return errors.New("RateLimit must be positive")
	}
	if c.RateBurst <= 0 {
		return errors.New("RateBurst must be positive")
	}
	return nil
}

// retryConfig starts from retry.DefaultConfig and applies the reader's limits.
func (c Config) retryConfig() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxRetries = c.MaxRetries
	cfg.InitialBackoff = c.InitialBackoff
	cfg.MaxBackoff = c.MaxBackoff
	cfg.AttemptTimeout = c.CallTimeout
	return cfg
}

func (c Config) withDefaults() Config {
	defaults := ConfigDefaults()
	if c.CallTimeout == 0 {
		c.CallTimeout = defaults.CallTimeout
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = defaults.InitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = defaults.MaxBackoff
	}
	if c.RateLimit == 0 {
		c.RateLimit = defaults.RateLimit
	}
	if c.RateBurst == 0 {
		c.RateBurst = defaults.RateBurst
	}
	if c.Logger == nil {
		c.Logger = defaults.Logger
	}
	return c
}
