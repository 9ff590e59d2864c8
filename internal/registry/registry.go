package registry

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	xerrors "AgentBind-Chain/internal/errors"
)

// ErrTokenNotFound indicates that the registry has no owner for the token.
// Every implementation maps its own "nonexistent token" signal to this value.
var ErrTokenNotFound = xerrors.New(xerrors.CodeTokenNotFound, "token not found in registry")

// TokenRegistry is the narrow ownership contract the association layer
// consumes. It is implemented by the on-chain ERC-721 client and by the
// in-memory registry used for tests and local deployments; the association
// gate depends only on this interface.
type TokenRegistry interface {
	// OwnerOf returns the current owner of the token, or ErrTokenNotFound.
	OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error)
	// GetApproved returns the single approved address for the token, the
	// zero address when none is set, or ErrTokenNotFound.
	GetApproved(ctx context.Context, tokenID *big.Int) (common.Address, error)
	// IsApprovedForAll reports whether operator holds a collection-wide
	// approval from owner.
	IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error)
}
