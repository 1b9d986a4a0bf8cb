// Package sns implements the EventSink interface using AWS SNS.
//
// This adapter publishes proposal finalization events to one SNS topic so
// downstream consumers (notification bots, indexers) learn when a proposal's
// cross-chain collection finished and its tally became final. Events are
// serialized as JSON messages.
//
// Message Attributes:
//   - eventType: "proposal_finalized"
//   - proposalId: the canonical decimal proposal id
//
// FIFO topics (ARN ending in ".fifo") get the proposal id as both message
// group and deduplication id, so concurrent replicas finalizing the same
// proposal produce one notification.
//
// For testing, use the memory.EventSink adapter instead.
package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/archon-research/vote-aggregator/internal/pkg/retry"
	"github.com/archon-research/vote-aggregator/internal/ports/outbound"
)

// Compile-time check that EventSink implements outbound.EventSink
var _ outbound.EventSink = (*EventSink)(nil)

// SNSPublisher defines the subset of SNS client methods used by EventSink.
// This interface allows for easy mocking in tests.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Config holds configuration for the SNS event sink.
type Config struct {
	// TopicARN is the topic finalization events are published to.
	TopicARN string

	// MaxRetries is the maximum number of retry attempts for transient failures.
	MaxRetries int

	// InitialBackoff is the initial delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum delay between retries.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each retry.
	BackoffFactor float64

	// Logger is the structured logger for the sink.
	Logger *slog.Logger
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		Logger:         slog.Default(),
	}
}

// EventSink publishes events to AWS SNS.
type EventSink struct {
	client    SNSPublisher
	config    Config
	fifo      bool
	logger    *slog.Logger
	closeOnce sync.Once
	closed    bool
	mu        sync.RWMutex
}

// NewEventSink creates a new SNS event sink.
func NewEventSink(client SNSPublisher, config Config) (*EventSink, error) {
	if client == nil {
		return nil, errors.New("sns client is required")
	}
	if config.TopicARN == "" {
		return nil, errors.New("topic ARN is required")
	}

	// Apply defaults for unset values
	defaults := ConfigDefaults()
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.BackoffFactor == 0 {
		config.BackoffFactor = defaults.BackoffFactor
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &EventSink{
		client: client,
		config: config,
		fifo:   strings.HasSuffix(config.TopicARN, ".fifo"),
		logger: config.Logger.With("component", "sns-eventsink"),
	}, nil
}

// Publish publishes an event to SNS.
func (s *EventSink) Publish(ctx context.Context, event outbound.Event) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return errors.New("event sink is closed")
	}
	s.mu.RUnlock()

	messageBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// Build message attributes for filtering
	attributes := map[string]types.MessageAttributeValue{
		"eventType": {
			DataType:    aws.String("String"),
			StringValue: aws.String(string(event.EventType())),
		},
		"proposalId": {
			DataType:    aws.String("String"),
			StringValue: aws.String(event.GetProposalID()),
		},
	}

	input := &sns.PublishInput{
		TopicArn:          aws.String(s.config.TopicARN),
		Message:           aws.String(string(messageBytes)),
		MessageAttributes: attributes,
	}
	if s.fifo {
		input.MessageGroupId = aws.String(event.GetProposalID())
		input.MessageDeduplicationId = aws.String(string(event.EventType()) + "-" + event.GetProposalID())
	}

	cfg := retry.Config{
		MaxRetries:     s.config.MaxRetries,
		InitialBackoff: s.config.InitialBackoff,
		MaxBackoff:     s.config.MaxBackoff,
		BackoffFactor:  s.config.BackoffFactor,
	}
	onRetry := func(attempt int, err error, backoff time.Duration) {
		s.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"maxRetries", s.config.MaxRetries,
			"backoff", backoff,
			"error", err,
			"eventType", event.EventType(),
			"proposalId", event.GetProposalID(),
		)
	}

	err = retry.DoVoid(ctx, cfg, isRetryableError, onRetry, func(ctx context.Context) error {
		_, err := s.client.Publish(ctx, input)
		return err
	})
	if err != nil {
		s.logger.Error("publish failed",
			"error", err,
			"eventType", event.EventType(),
			"proposalId", event.GetProposalID(),
		)
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}
	return nil
}

// isRetryableError determines if an error should trigger a retry.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Rejected requests will be rejected again
	var notFound *types.NotFoundException
	if errors.As(err, &notFound) {
		return false
	}
	var invalid *types.InvalidParameterException
	if errors.As(err, &invalid) {
		return false
	}
	var authErr *types.AuthorizationErrorException
	if errors.As(err, &authErr) {
		return false
	}

	// Throttling, internal errors and network issues
	return true
}

// Close marks the sink as closed and prevents further publishing.
func (s *EventSink) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.logger.Info("SNS event sink closed")
	})
	return nil
}

// NoopSink discards every event. Used when no topic is configured.
type NoopSink struct{}

var _ outbound.EventSink = NoopSink{}

// Publish implements outbound.EventSink.
func (NoopSink) Publish(context.Context, outbound.Event) error { return nil }

// Close implements outbound.EventSink.
func (NoopSink) Close() error { return nil }
