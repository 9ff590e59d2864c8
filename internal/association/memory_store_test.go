package association

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	xerrors "AgentBind-Chain/internal/errors"
)

func TestMemoryStoreDefaults(t *testing.T) {
	store := NewMemoryStore()
	tokenID := big.NewInt(123)

	agent, err := store.Agent(context.Background(), tokenID)
	if err != nil {
		t.Fatalf("read agent: %v", err)
	}
	if agent != (common.Address{}) {
		t.Fatalf("default agent = %s, want zero address", agent)
	}
	prompt, err := store.Prompt(context.Background(), tokenID)
	if err != nil {
		t.Fatalf("read prompt: %v", err)
	}
	if prompt != "" {
		t.Fatalf("default prompt = %q, want empty", prompt)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	first := big.NewInt(1)
	second := big.NewInt(2)

	if err := store.SetAgent(ctx, first, agentAddr); err != nil {
		t.Fatalf("set agent: %v", err)
	}
	if err := store.SetPrompt(ctx, first, "hello"); err != nil {
		t.Fatalf("set prompt: %v", err)
	}

	agent, _ := store.Agent(ctx, first)
	if agent != agentAddr {
		t.Fatalf("agent = %s, want %s", agent, agentAddr)
	}
	prompt, _ := store.Prompt(ctx, first)
	if prompt != "hello" {
		t.Fatalf("prompt = %q", prompt)
	}

	// Tokens are isolated from each other.
	if agent, _ := store.Agent(ctx, second); agent != (common.Address{}) {
		t.Fatalf("unrelated token agent = %s", agent)
	}

	// Writes overwrite, including back to the zero value.
	if err := store.SetPrompt(ctx, first, ""); err != nil {
		t.Fatalf("clear prompt: %v", err)
	}
	if prompt, _ := store.Prompt(ctx, first); prompt != "" {
		t.Fatalf("cleared prompt = %q", prompt)
	}
}

func TestMemoryStoreNilTokenID(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Agent(context.Background(), nil); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("error = %v, want invalid argument", err)
	}
	if err := store.SetPrompt(context.Background(), nil, "x"); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("error = %v, want invalid argument", err)
	}
}
