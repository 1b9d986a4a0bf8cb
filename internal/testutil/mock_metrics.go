package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/archon-research/vote-aggregator/internal/ports/outbound"
)

// MockMetrics implements outbound.MetricsRecorder and counts what it records.
type MockMetrics struct {
	mu                sync.Mutex
	Outcomes          map[string]int
	ChainReadFailures map[string]int
	CacheErrors       map[string]int
}

var _ outbound.MetricsRecorder = (*MockMetrics)(nil)

func NewMockMetrics() *MockMetrics {
	return &MockMetrics{
		Outcomes:          make(map[string]int),
		ChainReadFailures: make(map[string]int),
		CacheErrors:       make(map[string]int),
	}
}

func (m *MockMetrics) RecordAggregation(_ context.Context, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Outcomes[outcome]++
}

func (m *MockMetrics) RecordChainReadFailure(_ context.Context, chain, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChainReadFailures[chain]++
}

func (m *MockMetrics) RecordCacheError(_ context.Context, op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheErrors[op]++
}

// Outcome returns how many aggregations ended with outcome.
func (m *MockMetrics) Outcome(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Outcomes[outcome]
}

// ChainFailures returns how many reads failed on chain.
func (m *MockMetrics) ChainFailures(chain string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ChainReadFailures[chain]
}

// CacheErrorCount returns how many cache operations op failed.
func (m *MockMetrics) CacheErrorCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CacheErrors[op]
}
