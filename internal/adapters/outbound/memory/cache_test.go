package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/archon-research/vote-aggregator/internal/domain/entity"
)

func newTestCache() (*ProposalCache, *time.Time) {
	c := NewProposalCache()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestProposalCache_MissReturnsNil(t *testing.T) {
	c, _ := newTestCache()

	data, err := c.Get(context.Background(), "votes:proposal:1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data != nil {
		t.Errorf("expected nil, got %s", data)
	}
}

func TestProposalCache_ExpiringEntry(t *testing.T) {
	c, now := newTestCache()
	ctx := context.Background()

	if err := c.Set(ctx, "k", json.RawMessage(`[1]`), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, _ := c.Get(ctx, "k"); string(got) != `[1]` {
		t.Fatalf("expected [1], got %s", got)
	}
	if ttl := c.TTL("k"); ttl != time.Minute {
		t.Errorf("TTL = %v, want 1m", ttl)
	}

	*now = now.Add(time.Minute)
	if got, _ := c.Get(ctx, "k"); got != nil {
		t.Errorf("expected entry to expire, got %s", got)
	}
	if ttl := c.TTL("k"); ttl != -2 {
		t.Errorf("TTL = %v, want -2", ttl)
	}
}

func TestProposalCache_PermanentEntryIsNeverReplacedByExpiringWrite(t *testing.T) {
	c, now := newTestCache()
	ctx := context.Background()

	if err := c.Set(ctx, "k", json.RawMessage(`["final"]`), 0); err != nil {
		t.Fatalf("Set final: %v", err)
	}
	if err := c.Set(ctx, "k", json.RawMessage(`["pending"]`), time.Minute); err != nil {
		t.Fatalf("Set pending: %v", err)
	}

	*now = now.Add(24 * time.Hour)
	got, _ := c.Get(ctx, "k")
	if string(got) != `["final"]` {
		t.Errorf("expected final entry, got %s", got)
	}
	if ttl := c.TTL("k"); ttl != -1 {
		t.Errorf("TTL = %v, want -1", ttl)
	}
}

func TestProposalCache_PermanentWriteReplacesExpiringEntry(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()

	_ = c.Set(ctx, "k", json.RawMessage(`["pending"]`), time.Minute)
	_ = c.Set(ctx, "k", json.RawMessage(`["final"]`), 0)

	if got, _ := c.Get(ctx, "k"); string(got) != `["final"]` {
		t.Errorf("expected final entry, got %s", got)
	}
}

func TestProposalCache_ReturnsCopies(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()

	data := json.RawMessage(`[1]`)
	_ = c.Set(ctx, "k", data, 0)
	data[1] = '2'

	got, _ := c.Get(ctx, "k")
	got[1] = '3'

	again, _ := c.Get(ctx, "k")
	if string(again) != `[1]` {
		t.Errorf("cache entry was mutated: %s", again)
	}
}

func TestProposalCache_ClosedReturnsCacheError(t *testing.T) {
	c, _ := newTestCache()
	_ = c.Close()
	ctx := context.Background()

	if _, err := c.Get(ctx, "k"); !errors.Is(err, entity.ErrCache) {
		t.Errorf("Get: expected ErrCache, got %v", err)
	}
	if err := c.Set(ctx, "k", nil, 0); !errors.Is(err, entity.ErrCache) {
		t.Errorf("Set: expected ErrCache, got %v", err)
	}
	if err := c.Ping(ctx); !errors.Is(err, entity.ErrCache) {
		t.Errorf("Ping: expected ErrCache, got %v", err)
	}
}

func TestProposalCache_ExpiredEntryIsDeletedOnRead(t *testing.T) {
	c, now := newTestCache()
	ctx := context.Background()

	if err := c.Set(ctx, "votes:proposal:1", json.RawMessage(`[1]`), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	*now = now.Add(2 * time.Minute)

	if got, err := c.Get(ctx, "votes:proposal:1"); err != nil || got != nil {
		t.Fatalf("expected miss, got %s, %v", got, err)
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry to be deleted, %d entries left", c.Len())
	}
}

func TestProposalCache_SetSweepsExpiredEntries(t *testing.T) {
	c, now := newTestCache()
	ctx := context.Background()

	for _, key := range []string{"votes:proposal:1", "votes:proposal:2", "votes:proposal:3"} {
		if err := c.Set(ctx, key, json.RawMessage(`[1]`), time.Minute); err != nil {
			t.Fatalf("Set(%s): %v", key, err)
		}
	}
	if err := c.Set(ctx, "votes:proposal:final", json.RawMessage(`[2]`), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	*now = now.Add(2 * time.Minute)

	if err := c.Set(ctx, "votes:proposal:4", json.RawMessage(`[3]`), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if c.Len() != 2 {
		t.Errorf("expected the permanent and the fresh entry only, got %d entries", c.Len())
	}
	if got, _ := c.Get(ctx, "votes:proposal:final"); string(got) != `[2]` {
		t.Errorf("permanent entry must survive a sweep, got %s", got)
	}
}
