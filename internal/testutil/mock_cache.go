package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/archon-research/vote-aggregator/internal/ports/outbound"
)

// SetCall records one ProposalCache.Set invocation.
type SetCall struct {
	Key  string
	Data json.RawMessage
	TTL  time.Duration
}

// MockProposalCache implements outbound.ProposalCache for testing. Without
// overrides it behaves like an in-memory cache.
type MockProposalCache struct {
	mu      sync.Mutex
	GetFn   func(ctx context.Context, key string) (json.RawMessage, error)
	SetFn   func(ctx context.Context, key string, data json.RawMessage, ttl time.Duration) error
	PingErr error

	Entries  map[string]json.RawMessage
	GetCalls int
	SetCalls []SetCall
	Closed   bool
}

var _ outbound.ProposalCache = (*MockProposalCache)(nil)

func NewMockProposalCache() *MockProposalCache {
	return &MockProposalCache{Entries: make(map[string]json.RawMessage)}
}

func (m *MockProposalCache) Get(ctx context.Context, key string) (json.RawMessage, error) {
	m.mu.Lock()
	m.GetCalls++
	fn := m.GetFn
	data := m.Entries[key]
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, key)
	}
	return data, nil
}

func (m *MockProposalCache) Set(ctx context.Context, key string, data json.RawMessage, ttl time.Duration) error {
	m.mu.Lock()
	m.SetCalls = append(m.SetCalls, SetCall{Key: key, Data: append(json.RawMessage(nil), data...), TTL: ttl})
	fn := m.SetFn
	if fn == nil {
		m.Entries[key] = append(json.RawMessage(nil), data...)
	}
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, key, data, ttl)
	}
	return nil
}

func (m *MockProposalCache) Ping(ctx context.Context) error {
	return m.PingErr
}

func (m *MockProposalCache) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Sets returns a copy of the recorded Set calls.
func (m *MockProposalCache) Sets() []SetCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SetCall(nil), m.SetCalls...)
}

// GetCallCount returns the number of Get calls.
func (m *MockProposalCache) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.GetCalls
}
