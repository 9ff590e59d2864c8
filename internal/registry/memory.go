package registry

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	xerrors "AgentBind-Chain/internal/errors"
)

// MemoryRegistry keeps ERC-721 style ownership state in process memory.
// It backs the "memory" registry driver and the test suites; the mutation
// helpers exist so tests and local deployments can stand in for a real
// token contract, they are not part of the TokenRegistry contract.
type MemoryRegistry struct {
	mu        sync.RWMutex
	owners    map[string]common.Address
	approvals map[string]common.Address
	operators map[common.Address]map[common.Address]bool
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		owners:    make(map[string]common.Address),
		approvals: make(map[string]common.Address),
		operators: make(map[common.Address]map[common.Address]bool),
	}
}

func tokenKey(tokenID *big.Int) string {
	if tokenID == nil {
		return ""
	}
	return tokenID.String()
}

// OwnerOf implements TokenRegistry.
func (r *MemoryRegistry) OwnerOf(_ context.Context, tokenID *big.Int) (common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.owners[tokenKey(tokenID)]
	if !ok {
		return common.Address{}, ErrTokenNotFound
	}
	return owner, nil
}

// GetApproved implements TokenRegistry.
func (r *MemoryRegistry) GetApproved(_ context.Context, tokenID *big.Int) (common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key := tokenKey(tokenID)
	if _, ok := r.owners[key]; !ok {
		return common.Address{}, ErrTokenNotFound
	}
	return r.approvals[key], nil
}

// IsApprovedForAll implements TokenRegistry.
func (r *MemoryRegistry) IsApprovedForAll(_ context.Context, owner, operator common.Address) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.operators[owner][operator], nil
}

// Mint records a new token owned by owner.
func (r *MemoryRegistry) Mint(tokenID *big.Int, owner common.Address) error {
	if tokenID == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "token id is required")
	}
	if owner == (common.Address{}) {
		return xerrors.New(xerrors.CodeInvalidArgument, "owner cannot be the zero address")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := tokenKey(tokenID)
	if _, ok := r.owners[key]; ok {
		return xerrors.New(xerrors.CodeInvalidArgument, "token already minted")
	}
	r.owners[key] = owner
	return nil
}

// Transfer moves the token to a new owner and, like ERC-721, clears the
// per-token approval.
func (r *MemoryRegistry) Transfer(tokenID *big.Int, to common.Address) error {
	if to == (common.Address{}) {
		return xerrors.New(xerrors.CodeInvalidArgument, "recipient cannot be the zero address")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := tokenKey(tokenID)
	if _, ok := r.owners[key]; !ok {
		return ErrTokenNotFound
	}
	r.owners[key] = to
	delete(r.approvals, key)
	return nil
}

// Approve sets the per-token approved address. The zero address clears it.
func (r *MemoryRegistry) Approve(tokenID *big.Int, approved common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := tokenKey(tokenID)
	if _, ok := r.owners[key]; !ok {
		return ErrTokenNotFound
	}
	if approved == (common.Address{}) {
		delete(r.approvals, key)
		return nil
	}
	r.approvals[key] = approved
	return nil
}

// SetApprovalForAll grants or revokes a collection-wide operator approval.
func (r *MemoryRegistry) SetApprovalForAll(owner, operator common.Address, approved bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.operators[owner]
	if set == nil {
		set = make(map[common.Address]bool)
		r.operators[owner] = set
	}
	if approved {
		set[operator] = true
	} else {
		delete(set, operator)
	}
}
