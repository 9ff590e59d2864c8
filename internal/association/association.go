package association

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	xerrors "AgentBind-Chain/internal/errors"
)

// Association is the per-token binding the service manages: a delegate
// agent address and a prompt payload. Every token known to the registry
// implicitly carries an Association; before the first write the agent is
// the zero address and the prompt is empty.
type Association struct {
	TokenID *big.Int       `json:"token_id"`
	Agent   common.Address `json:"agent"`
	Prompt  string         `json:"prompt"`
}

var (
	// ErrUnauthorized indicates the caller lacks the authority the
	// requested mutation demands.
	ErrUnauthorized = xerrors.New(xerrors.CodeUnauthorized, "caller not authorized for this token")
	// ErrInvalidAgent indicates an attempt to bind the zero address.
	ErrInvalidAgent = xerrors.New(xerrors.CodeInvalidAgent, "agent cannot be the zero address")
	// ErrPromptPolicy indicates the prompt violates the configured
	// length policy.
	ErrPromptPolicy = xerrors.New(xerrors.CodePromptPolicy, "prompt violates length policy")
)
