package association

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	xerrors "AgentBind-Chain/internal/errors"
)

// MemoryStore keeps associations in process memory. It backs the "memory"
// storage driver and the test suites.
type MemoryStore struct {
	mu      sync.RWMutex
	agents  map[string]common.Address
	prompts map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents:  make(map[string]common.Address),
		prompts: make(map[string]string),
	}
}

func storeKey(tokenID *big.Int) (string, error) {
	if tokenID == nil {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "token id is required")
	}
	return tokenID.String(), nil
}

// Agent implements Store.
func (m *MemoryStore) Agent(_ context.Context, tokenID *big.Int) (common.Address, error) {
	key, err := storeKey(tokenID)
	if err != nil {
		return common.Address{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.agents[key], nil
}

// Prompt implements Store.
func (m *MemoryStore) Prompt(_ context.Context, tokenID *big.Int) (string, error) {
	key, err := storeKey(tokenID)
	if err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.prompts[key], nil
}

// SetAgent implements Store.
func (m *MemoryStore) SetAgent(_ context.Context, tokenID *big.Int, agent common.Address) error {
	key, err := storeKey(tokenID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[key] = agent
	return nil
}

// SetPrompt implements Store.
func (m *MemoryStore) SetPrompt(_ context.Context, tokenID *big.Int, prompt string) error {
	key, err := storeKey(tokenID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts[key] = prompt
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}
