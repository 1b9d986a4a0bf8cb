package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/vote-aggregator/internal/domain/entity"
	"github.com/archon-research/vote-aggregator/internal/registry"
	"github.com/archon-research/vote-aggregator/internal/services/vote_aggregator"
	"github.com/archon-research/vote-aggregator/internal/testutil"
)

type stack struct {
	handler http.Handler
	reader  *testutil.MockChainVoteReader
	cache   *testutil.MockProposalCache
}

func newStack(t *testing.T) *stack {
	t.Helper()
	reg, err := registry.New([]entity.Network{
		testutil.HubNetwork("hub", "http://hub.invalid"),
		testutil.SpokeNetwork("mumbai", "http://mumbai.invalid"),
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	reader := testutil.NewMockChainVoteReader()
	cache := testutil.NewMockProposalCache()
	svc, err := vote_aggregator.NewService(vote_aggregator.Config{}, reg, reader, cache, nil, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	return &stack{
		handler: NewServer(ServerConfig{}, svc, nil).Handler(),
		reader:  reader,
		cache:   cache,
	}
}

func TestServer_MissingIDTouchesNothing(t *testing.T) {
	s := newStack(t)

	resp, body := do(t, s.handler, httptest.NewRequest(http.MethodGet, "/proposal", nil))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body != msgMissingID {
		t.Errorf("body = %q", body)
	}
	if s.cache.GetCallCount() != 0 || len(s.cache.Sets()) != 0 {
		t.Error("cache must not be touched for invalid input")
	}
	if s.reader.TotalVotesCalls() != 0 || s.reader.FinishedCallCount() != 0 {
		t.Error("chains must not be read for invalid input")
	}
}

func TestServer_FinalizedProposal(t *testing.T) {
	s := newStack(t)
	s.reader.ProposalVotesFn = func(context.Context, entity.Network, common.Address, entity.ProposalID) (entity.Votes, error) {
		return testutil.NewVotes(10, 2, 0), nil
	}
	s.reader.CollectionFinishedFn = func(context.Context, entity.Network, common.Address, entity.ProposalID) (bool, error) {
		return true, nil
	}

	resp, body := do(t, s.handler, httptest.NewRequest(http.MethodGet, "/proposal?id=42", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	want := `[{"chain_name":"hub","for":"10","against":"2","abstain":"0","available":true}]` + "\n"
	if body != want {
		t.Errorf("body = %s, want %s", body, want)
	}
	if got := s.reader.VotesCallsFor("mumbai"); got != 0 {
		t.Errorf("spokes must not be read once finalized, got %d calls", got)
	}
}

func TestServer_HubFailureIsBadGateway(t *testing.T) {
	s := newStack(t)
	s.reader.CollectionFinishedFn = func(_ context.Context, n entity.Network, _ common.Address, _ entity.ProposalID) (bool, error) {
		return false, entity.NewChainReadError(n.Name, "collectionFinished", errors.New("connection refused"))
	}

	resp, body := do(t, s.handler, httptest.NewRequest(http.MethodGet, "/proposal?id=42", nil))
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	if body != msgChainFailure {
		t.Errorf("body = %q", body)
	}
	if len(s.cache.Sets()) != 0 {
		t.Error("a failed aggregation must not be cached")
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	var shuttingDown atomic.Bool
	svc := &mockService{ready: true, healthy: true}
	srv := NewServer(ServerConfig{Addr: "127.0.0.1:0"}, svc, &shuttingDown)

	errCh, err := srv.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	shuttingDown.Store(true)
	if err := srv.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			t.Errorf("unexpected serve error: %v", err)
		}
	case <-time.After(time.Second):
		t.Error("serve goroutine did not exit")
	}
}

func TestServer_StartFailsOnBusyAddress(t *testing.T) {
	occupied := httptest.NewServer(http.NotFoundHandler())
	defer occupied.Close()

	srv := NewServer(ServerConfig{Addr: occupied.Listener.Addr().String()}, &mockService{}, nil)
	if _, err := srv.Start(); err == nil {
		t.Fatal("expected bind error")
	}
}

func TestServer_ShuttingDownFlipsProbes(t *testing.T) {
	var shuttingDown atomic.Bool
	svc := &mockService{ready: true, healthy: true}
	h := NewServer(ServerConfig{}, svc, &shuttingDown).Handler()

	shuttingDown.Store(true)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 while shutting down, got %d", w.Code)
	}
	body, _ := io.ReadAll(w.Result().Body)
	if want := fmt.Sprintf("%q", "shutting_down"); !strings.Contains(string(body), want) {
		t.Errorf("body = %s", body)
	}
}
