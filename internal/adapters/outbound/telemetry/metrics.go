package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/archon-research/vote-aggregator/internal/ports/outbound"
)

// Compile-time check that Metrics implements outbound.MetricsRecorder
var _ outbound.MetricsRecorder = (*Metrics)(nil)

// Metrics implements the MetricsRecorder interface using OpenTelemetry.
type Metrics struct {
	aggregationLatency metric.Float64Histogram
	aggregations       metric.Int64Counter
	chainReadFailures  metric.Int64Counter
	cacheErrors        metric.Int64Counter
}

// NewMetrics creates a recorder on the global meter provider.
// meterName should typically be the package name or service name.
func NewMetrics(meterName string) (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter(meterName))
}

// NewMetricsWithMeter creates a recorder on meter.
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	latency, err := meter.Float64Histogram(
		"proposal_aggregation_duration_seconds",
		metric.WithDescription("Time taken to serve a proposal vote aggregation"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create proposal_aggregation_duration_seconds histogram: %w", err)
	}

	aggregations, err := meter.Int64Counter(
		"proposal_aggregations_total",
		metric.WithDescription("Total number of proposal vote aggregations by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create proposal_aggregations_total counter: %w", err)
	}

	chainFailures, err := meter.Int64Counter(
		"chain_read_failures_total",
		metric.WithDescription("Total number of failed governance contract reads"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chain_read_failures_total counter: %w", err)
	}

	cacheErrors, err := meter.Int64Counter(
		"proposal_cache_errors_total",
		metric.WithDescription("Total number of failed proposal cache operations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create proposal_cache_errors_total counter: %w", err)
	}

	return &Metrics{
		aggregationLatency: latency,
		aggregations:       aggregations,
		chainReadFailures:  chainFailures,
		cacheErrors:        cacheErrors,
	}, nil
}

// RecordAggregation records the outcome and duration of one aggregation.
func (m *Metrics) RecordAggregation(ctx context.Context, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.aggregationLatency.Record(ctx, duration.Seconds(), attrs)
	m.aggregations.Add(ctx, 1, attrs)
}

// RecordChainReadFailure increments the chain read failure counter.
func (m *Metrics) RecordChainReadFailure(ctx context.Context, chain, role string) {
	m.chainReadFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("chain", chain),
		attribute.String("role", role),
	))
}

// RecordCacheError increments the cache error counter.
func (m *Metrics) RecordCacheError(ctx context.Context, op string) {
	m.cacheErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
