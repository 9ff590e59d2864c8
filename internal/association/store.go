package association

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Store persists the token → (agent, prompt) mapping. Reads are raw: an
// unset token yields the zero address and the empty string, never an error.
// Writes are unconditional; the authorization checks live in the Gate, which
// is the only component that should call SetAgent and SetPrompt.
type Store interface {
	Agent(ctx context.Context, tokenID *big.Int) (common.Address, error)
	Prompt(ctx context.Context, tokenID *big.Int) (string, error)
	SetAgent(ctx context.Context, tokenID *big.Int, agent common.Address) error
	SetPrompt(ctx context.Context, tokenID *big.Int, prompt string) error
	Close() error
}
