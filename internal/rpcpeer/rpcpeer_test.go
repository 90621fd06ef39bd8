package rpcpeer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/google/uuid"

	"github.com/dojonet/subnet/internal/domain"
	"github.com/dojonet/subnet/internal/minerhandler"
)

func TestResolver_AddressUnknownHotkey(t *testing.T) {
	r := NewResolver(map[string]string{"hotkey-1": "http://127.0.0.1:9999"})
	if _, err := r.Address("hotkey-2"); err == nil {
		t.Fatal("expected ErrUnknownHotkey for unregistered hotkey")
	}
}

func TestResolver_AddressKnownHotkey(t *testing.T) {
	r := NewResolver(map[string]string{"hotkey-1": "http://127.0.0.1:9999"})
	addr, err := r.Address("hotkey-1")
	if err != nil {
		t.Fatalf("Address: %v", err)
	}
	if addr != "http://127.0.0.1:9999" {
		t.Errorf("addr = %q, want http://127.0.0.1:9999", addr)
	}
}

func TestResolver_DefensiveCopy(t *testing.T) {
	addrs := map[string]string{"hotkey-1": "addr-1"}
	r := NewResolver(addrs)
	addrs["hotkey-1"] = "mutated"
	got, err := r.Address("hotkey-1")
	if err != nil {
		t.Fatalf("Address: %v", err)
	}
	if got != "addr-1" {
		t.Errorf("Resolver was affected by caller's map mutation: got %q", got)
	}
}

// fakeCache is a minimal in-memory requestCache, duplicated here (rather
// than exported from minerhandler) since it's test-only scaffolding.
type fakeCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newFakeCache() *fakeCache { return &fakeCache{items: map[string][]byte{}} }

func (f *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[key] = value
	return nil
}

func (f *fakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.items[key]
	return v, ok, nil
}

func (f *fakeCache) Del(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, key)
	return nil
}

func TestClientServer_ForwardFeedbackRequestRoundTrip(t *testing.T) {
	h, err := minerhandler.New(newFakeCache(), 2*time.Hour, time.Hour, time.Minute, "miner-hotkey", nil, 1)
	if err != nil {
		t.Fatalf("minerhandler.New: %v", err)
	}
	server, err := NewServer(h)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer server.Stop()

	rpcClient := rpc.DialInProc(server)
	client := &Client{rpc: rpcClient}
	defer client.Close()

	synapse := domain.TaskSynapse{
		RequestID:     uuid.New(),
		Dendrite:      domain.PeerIdentity{Hotkey: "validator-hotkey"},
		CriteriaTypes: []domain.CriteriaType{domain.CriteriaMultiScore},
		GroundTruth:   map[string]int{"model_a": 1},
		CompletionResponses: []domain.CompletionResponse{
			{Model: "model_a", Completion: map[string]any{}},
		},
	}

	out, err := client.ForwardFeedbackRequest(context.Background(), synapse)
	if err != nil {
		t.Fatalf("ForwardFeedbackRequest: %v", err)
	}
	if out.DojoTaskID == uuid.Nil {
		t.Error("expected DojoTaskID to be assigned")
	}

	results, err := client.ForwardTaskResultRequest(context.Background(), out.DojoTaskID)
	if err != nil {
		t.Fatalf("ForwardTaskResultRequest: %v", err)
	}
	if len(results.TaskResults) == 0 {
		t.Error("expected at least one task result")
	}
}
