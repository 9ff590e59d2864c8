package association

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	xerrors "AgentBind-Chain/internal/errors"
	"AgentBind-Chain/internal/registry"
)

var (
	ownerAddr    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	approvedAddr = common.HexToAddress("0x2000000000000000000000000000000000000002")
	operatorAddr = common.HexToAddress("0x3000000000000000000000000000000000000003")
	agentAddr    = common.HexToAddress("0x4000000000000000000000000000000000000004")
	strangerAddr = common.HexToAddress("0x5000000000000000000000000000000000000005")
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	fail   error
}

func (s *recordingSink) Publish(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) recorded() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func newTestGate(t *testing.T, opts ...GateOption) (*Gate, *registry.MemoryRegistry, *MemoryStore, *recordingSink) {
	t.Helper()
	reg := registry.NewMemoryRegistry()
	store := NewMemoryStore()
	sink := &recordingSink{}
	gate := NewGate(reg, store, sink, opts...)
	return gate, reg, store, sink
}

func mintToken(t *testing.T, reg *registry.MemoryRegistry, tokenID *big.Int, owner common.Address) {
	t.Helper()
	if err := reg.Mint(tokenID, owner); err != nil {
		t.Fatalf("mint token %s: %v", tokenID, err)
	}
}

func TestUpdateAgentOwnerOnly(t *testing.T) {
	tokenID := big.NewInt(7)

	callers := []struct {
		name    string
		caller  common.Address
		allowed bool
	}{
		{"owner", ownerAddr, true},
		{"approved", approvedAddr, false},
		{"operator", operatorAddr, false},
		{"bound agent", agentAddr, false},
		{"stranger", strangerAddr, false},
	}
	for _, tc := range callers {
		t.Run(tc.name, func(t *testing.T) {
			gate, reg, store, sink := newTestGate(t)
			mintToken(t, reg, tokenID, ownerAddr)
			if err := reg.Approve(tokenID, approvedAddr); err != nil {
				t.Fatalf("approve: %v", err)
			}
			reg.SetApprovalForAll(ownerAddr, operatorAddr, true)
			if err := store.SetAgent(context.Background(), tokenID, agentAddr); err != nil {
				t.Fatalf("seed agent: %v", err)
			}

			err := gate.UpdateAgent(context.Background(), tokenID, tc.caller, strangerAddr)
			if tc.allowed {
				if err != nil {
					t.Fatalf("owner update rejected: %v", err)
				}
				got, _ := store.Agent(context.Background(), tokenID)
				if got != strangerAddr {
					t.Fatalf("agent = %s, want %s", got, strangerAddr)
				}
				if len(sink.recorded()) != 1 {
					t.Fatalf("events = %d, want 1", len(sink.recorded()))
				}
				return
			}
			if !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("error = %v, want unauthorized", err)
			}
			got, _ := store.Agent(context.Background(), tokenID)
			if got != agentAddr {
				t.Fatalf("agent changed on rejected update: %s", got)
			}
			if len(sink.recorded()) != 0 {
				t.Fatalf("rejected update emitted %d events", len(sink.recorded()))
			}
		})
	}
}

func TestUpdateAgentRejectsZeroAddress(t *testing.T) {
	gate, reg, store, sink := newTestGate(t)
	tokenID := big.NewInt(1)
	mintToken(t, reg, tokenID, ownerAddr)
	if err := store.SetAgent(context.Background(), tokenID, agentAddr); err != nil {
		t.Fatalf("seed agent: %v", err)
	}

	err := gate.UpdateAgent(context.Background(), tokenID, ownerAddr, common.Address{})
	if !errors.Is(err, ErrInvalidAgent) {
		t.Fatalf("error = %v, want invalid agent", err)
	}
	got, _ := store.Agent(context.Background(), tokenID)
	if got != agentAddr {
		t.Fatalf("agent changed on rejected update: %s", got)
	}
	if len(sink.recorded()) != 0 {
		t.Fatalf("rejected update emitted %d events", len(sink.recorded()))
	}
}

func TestUpdateAgentUnknownToken(t *testing.T) {
	gate, _, _, sink := newTestGate(t)

	err := gate.UpdateAgent(context.Background(), big.NewInt(404), ownerAddr, agentAddr)
	if !errors.Is(err, registry.ErrTokenNotFound) {
		t.Fatalf("error = %v, want token not found", err)
	}
	if !IsNotFound(err) {
		t.Fatalf("IsNotFound(%v) = false", err)
	}
	if len(sink.recorded()) != 0 {
		t.Fatalf("missing token emitted %d events", len(sink.recorded()))
	}
}

func TestUpdatePromptAuthorities(t *testing.T) {
	tokenID := big.NewInt(9)

	callers := []struct {
		name    string
		caller  common.Address
		allowed bool
	}{
		{"owner", ownerAddr, true},
		{"approved", approvedAddr, true},
		{"operator", operatorAddr, true},
		{"bound agent", agentAddr, true},
		{"stranger", strangerAddr, false},
	}
	for _, tc := range callers {
		t.Run(tc.name, func(t *testing.T) {
			gate, reg, store, sink := newTestGate(t)
			mintToken(t, reg, tokenID, ownerAddr)
			if err := reg.Approve(tokenID, approvedAddr); err != nil {
				t.Fatalf("approve: %v", err)
			}
			reg.SetApprovalForAll(ownerAddr, operatorAddr, true)
			if err := store.SetAgent(context.Background(), tokenID, agentAddr); err != nil {
				t.Fatalf("seed agent: %v", err)
			}
			if err := store.SetPrompt(context.Background(), tokenID, "before"); err != nil {
				t.Fatalf("seed prompt: %v", err)
			}

			err := gate.UpdatePrompt(context.Background(), tokenID, tc.caller, "after")
			if tc.allowed {
				if err != nil {
					t.Fatalf("authorised update rejected: %v", err)
				}
				got, _ := store.Prompt(context.Background(), tokenID)
				if got != "after" {
					t.Fatalf("prompt = %q, want %q", got, "after")
				}
				events := sink.recorded()
				if len(events) != 1 {
					t.Fatalf("events = %d, want 1", len(events))
				}
				if events[0].Kind != EventPromptUpdated || events[0].Prompt != "after" {
					t.Fatalf("unexpected event: %+v", events[0])
				}
				return
			}
			if !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("error = %v, want unauthorized", err)
			}
			got, _ := store.Prompt(context.Background(), tokenID)
			if got != "before" {
				t.Fatalf("prompt changed on rejected update: %q", got)
			}
			if len(sink.recorded()) != 0 {
				t.Fatalf("rejected update emitted %d events", len(sink.recorded()))
			}
		})
	}
}

// A bound agent keeps prompt authority after the token changes hands, as
// long as the new owner leaves the binding in place.
func TestUpdatePromptAgentSurvivesTransfer(t *testing.T) {
	gate, reg, store, _ := newTestGate(t)
	tokenID := big.NewInt(3)
	mintToken(t, reg, tokenID, ownerAddr)
	if err := gate.UpdateAgent(context.Background(), tokenID, ownerAddr, agentAddr); err != nil {
		t.Fatalf("bind agent: %v", err)
	}
	if err := reg.Transfer(tokenID, strangerAddr); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if err := gate.UpdatePrompt(context.Background(), tokenID, agentAddr, "still here"); err != nil {
		t.Fatalf("agent update after transfer: %v", err)
	}
	if err := gate.UpdatePrompt(context.Background(), tokenID, ownerAddr, "stale owner"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("previous owner error = %v, want unauthorized", err)
	}
	got, _ := store.Prompt(context.Background(), tokenID)
	if got != "still here" {
		t.Fatalf("prompt = %q", got)
	}
}

func TestUpdatePromptZeroAgentIsNotAuthority(t *testing.T) {
	gate, reg, _, _ := newTestGate(t)
	tokenID := big.NewInt(5)
	mintToken(t, reg, tokenID, ownerAddr)

	// No agent bound: a zero-address "match" must not grant access.
	err := gate.UpdatePrompt(context.Background(), tokenID, common.Address{}, "sneaky")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("error = %v, want unauthorized", err)
	}
}

func TestUpdatePromptPolicy(t *testing.T) {
	gate, reg, store, sink := newTestGate(t, WithPromptPolicy(PromptPolicy{MinLength: 3, MaxLength: 10}))
	tokenID := big.NewInt(2)
	mintToken(t, reg, tokenID, ownerAddr)

	cases := []struct {
		name   string
		prompt string
		ok     bool
	}{
		{"too short", "ab", false},
		{"at minimum", "abc", true},
		{"at maximum", "abcdefghij", true},
		{"too long", "abcdefghijk", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := gate.UpdatePrompt(context.Background(), tokenID, ownerAddr, tc.prompt)
			if tc.ok {
				if err != nil {
					t.Fatalf("prompt %q rejected: %v", tc.prompt, err)
				}
				return
			}
			if !errors.Is(err, ErrPromptPolicy) {
				t.Fatalf("error = %v, want prompt policy violation", err)
			}
		})
	}

	// Only the two accepted prompts produced events.
	if got := len(sink.recorded()); got != 2 {
		t.Fatalf("events = %d, want 2", got)
	}
	if prompt, _ := store.Prompt(context.Background(), tokenID); prompt != "abcdefghij" {
		t.Fatalf("prompt = %q", prompt)
	}
}

func TestUpdatePromptUnboundedPolicyDefaults(t *testing.T) {
	gate, reg, _, _ := newTestGate(t)
	tokenID := big.NewInt(11)
	mintToken(t, reg, tokenID, ownerAddr)

	if err := gate.UpdatePrompt(context.Background(), tokenID, ownerAddr, ""); err != nil {
		t.Fatalf("empty prompt rejected without policy: %v", err)
	}
	long := make([]byte, 1<<16)
	for i := range long {
		long[i] = 'x'
	}
	if err := gate.UpdatePrompt(context.Background(), tokenID, ownerAddr, string(long)); err != nil {
		t.Fatalf("long prompt rejected without policy: %v", err)
	}
}

// Repeating an identical update is not deduplicated: each successful write
// emits its own event.
func TestRepeatedUpdatesEmitEachTime(t *testing.T) {
	gate, reg, _, sink := newTestGate(t)
	tokenID := big.NewInt(4)
	mintToken(t, reg, tokenID, ownerAddr)

	for i := 0; i < 2; i++ {
		if err := gate.UpdateAgent(context.Background(), tokenID, ownerAddr, agentAddr); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
	events := sink.recorded()
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].ID == events[1].ID {
		t.Fatalf("duplicate event ids: %s", events[0].ID)
	}
	for _, event := range events {
		if event.Kind != EventAgentUpdated || event.Agent != agentAddr {
			t.Fatalf("unexpected event: %+v", event)
		}
		if event.TokenID.Cmp(tokenID) != 0 {
			t.Fatalf("event token = %s, want %s", event.TokenID, tokenID)
		}
	}
}

// A publish failure after the committed write must not surface as an error:
// the store is the source of truth, the bus is best effort.
func TestPublishFailureDoesNotUndoWrite(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	store := NewMemoryStore()
	sink := &recordingSink{fail: fmt.Errorf("broker unavailable")}
	gate := NewGate(reg, store, sink)
	tokenID := big.NewInt(6)
	mintToken(t, reg, tokenID, ownerAddr)

	if err := gate.UpdateAgent(context.Background(), tokenID, ownerAddr, agentAddr); err != nil {
		t.Fatalf("update failed on publish error: %v", err)
	}
	got, _ := store.Agent(context.Background(), tokenID)
	if got != agentAddr {
		t.Fatalf("agent = %s, want %s", got, agentAddr)
	}
}

func TestAgentReadRequiresToken(t *testing.T) {
	gate, reg, _, _ := newTestGate(t)

	if _, err := gate.Agent(context.Background(), big.NewInt(404)); !IsNotFound(err) {
		t.Fatalf("error = %v, want token not found", err)
	}

	tokenID := big.NewInt(8)
	mintToken(t, reg, tokenID, ownerAddr)
	got, err := gate.Agent(context.Background(), tokenID)
	if err != nil {
		t.Fatalf("read agent: %v", err)
	}
	if got != (common.Address{}) {
		t.Fatalf("unset agent = %s, want zero address", got)
	}
}

func TestPromptReadIsPermissive(t *testing.T) {
	gate, _, _, _ := newTestGate(t)

	prompt, err := gate.Prompt(context.Background(), big.NewInt(404))
	if err != nil {
		t.Fatalf("read prompt for unknown token: %v", err)
	}
	if prompt != "" {
		t.Fatalf("prompt = %q, want empty", prompt)
	}
}

func TestGateNotInitialised(t *testing.T) {
	var gate *Gate
	err := gate.UpdateAgent(context.Background(), big.NewInt(1), ownerAddr, agentAddr)
	if xerrors.CodeOf(err) != xerrors.CodeInitializationFailure {
		t.Fatalf("error = %v, want initialisation failure", err)
	}
}

// The walk-through: owner O binds agent X, approves A for the token, and
// each authority exercises exactly the operations it is entitled to.
func TestOwnerApprovedAgentScenario(t *testing.T) {
	gate, reg, store, sink := newTestGate(t)
	tokenID := big.NewInt(42)
	mintToken(t, reg, tokenID, ownerAddr)
	if err := reg.Approve(tokenID, approvedAddr); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if err := gate.UpdateAgent(context.Background(), tokenID, ownerAddr, agentAddr); err != nil {
		t.Fatalf("owner binds agent: %v", err)
	}
	if err := gate.UpdatePrompt(context.Background(), tokenID, approvedAddr, "set by approved"); err != nil {
		t.Fatalf("approved sets prompt: %v", err)
	}
	if err := gate.UpdatePrompt(context.Background(), tokenID, agentAddr, "rewritten by agent"); err != nil {
		t.Fatalf("agent rewrites prompt: %v", err)
	}
	if err := gate.UpdateAgent(context.Background(), tokenID, approvedAddr, strangerAddr); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("approved rebinding agent: %v, want unauthorized", err)
	}
	if err := gate.UpdateAgent(context.Background(), tokenID, agentAddr, strangerAddr); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("agent rebinding itself: %v, want unauthorized", err)
	}

	agent, _ := store.Agent(context.Background(), tokenID)
	if agent != agentAddr {
		t.Fatalf("agent = %s, want %s", agent, agentAddr)
	}
	prompt, _ := store.Prompt(context.Background(), tokenID)
	if prompt != "rewritten by agent" {
		t.Fatalf("prompt = %q", prompt)
	}
	if got := len(sink.recorded()); got != 3 {
		t.Fatalf("events = %d, want 3", got)
	}
}
