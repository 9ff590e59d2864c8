package mysql

import (
	"context"
	"database/sql"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/go-sql-driver/mysql"

	xerrors "AgentBind-Chain/internal/errors"
)

// AssociationStore persists token associations in the agent_bindings table.
// It implements association.Store.
type AssociationStore struct {
	db *sql.DB
}

// NewAssociationStore connects to MySQL and applies pending migrations.
func NewAssociationStore(ctx context.Context, cfg Config) (*AssociationStore, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "open mysql")
	}
	store := &AssociationStore{db: db}
	if err := store.runMigrations(ctx); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "run migrations")
	}
	return store, nil
}

func bindingKey(tokenID *big.Int) (string, error) {
	if tokenID == nil {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "token id is required")
	}
	return tokenID.String(), nil
}

// Agent returns the stored agent, or the zero address when unset.
func (s *AssociationStore) Agent(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	key, err := bindingKey(tokenID)
	if err != nil {
		return common.Address{}, err
	}
	var agent string
	err = s.db.QueryRowContext(ctx, `SELECT agent FROM agent_bindings WHERE token_id = ?`, key).Scan(&agent)
	switch {
	case err == sql.ErrNoRows:
		return common.Address{}, nil
	case err != nil:
		return common.Address{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "query agent")
	}
	if agent == "" {
		return common.Address{}, nil
	}
	return common.HexToAddress(agent), nil
}

// Prompt returns the stored prompt, or the empty string when unset.
func (s *AssociationStore) Prompt(ctx context.Context, tokenID *big.Int) (string, error) {
	key, err := bindingKey(tokenID)
	if err != nil {
		return "", err
	}
	var prompt sql.NullString
	err = s.db.QueryRowContext(ctx, `SELECT prompt FROM agent_bindings WHERE token_id = ?`, key).Scan(&prompt)
	switch {
	case err == sql.ErrNoRows:
		return "", nil
	case err != nil:
		return "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "query prompt")
	}
	return prompt.String, nil
}

// SetAgent upserts the agent column of the binding row.
func (s *AssociationStore) SetAgent(ctx context.Context, tokenID *big.Int, agent common.Address) error {
	key, err := bindingKey(tokenID)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx, `INSERT INTO agent_bindings (token_id, agent, prompt, created_at, updated_at)
        VALUES (?, ?, '', ?, ?)
        ON DUPLICATE KEY UPDATE agent = VALUES(agent), updated_at = VALUES(updated_at)`,
		key, agent.Hex(), now, now)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "persist agent")
	}
	return nil
}

// SetPrompt upserts the prompt column of the binding row.
func (s *AssociationStore) SetPrompt(ctx context.Context, tokenID *big.Int, prompt string) error {
	key, err := bindingKey(tokenID)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx, `INSERT INTO agent_bindings (token_id, agent, prompt, created_at, updated_at)
        VALUES (?, '', ?, ?, ?)
        ON DUPLICATE KEY UPDATE prompt = VALUES(prompt), updated_at = VALUES(updated_at)`,
		key, prompt, now, now)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "persist prompt")
	}
	return nil
}

// Close releases the database handle.
func (s *AssociationStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
