package mysql

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"

	xerrors "AgentBind-Chain/internal/errors"
)

var testAgent = common.HexToAddress("0x4000000000000000000000000000000000000004")

func newMockStore(t *testing.T) (*AssociationStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return &AssociationStore{db: db}, mock
}

func TestAssociationStoreAgent(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT agent FROM agent_bindings WHERE token_id = \?`).
		WithArgs("7").
		WillReturnRows(sqlmock.NewRows([]string{"agent"}).AddRow(testAgent.Hex()))

	agent, err := store.Agent(context.Background(), big.NewInt(7))
	if err != nil {
		t.Fatalf("read agent: %v", err)
	}
	if agent != testAgent {
		t.Fatalf("agent = %s, want %s", agent, testAgent)
	}
}

func TestAssociationStoreAgentMissingRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT agent FROM agent_bindings WHERE token_id = \?`).
		WithArgs("404").
		WillReturnRows(sqlmock.NewRows([]string{"agent"}))

	agent, err := store.Agent(context.Background(), big.NewInt(404))
	if err != nil {
		t.Fatalf("read agent: %v", err)
	}
	if agent != (common.Address{}) {
		t.Fatalf("missing row agent = %s, want zero address", agent)
	}
}

func TestAssociationStorePrompt(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT prompt FROM agent_bindings WHERE token_id = \?`).
		WithArgs("7").
		WillReturnRows(sqlmock.NewRows([]string{"prompt"}).AddRow("stored prompt"))

	prompt, err := store.Prompt(context.Background(), big.NewInt(7))
	if err != nil {
		t.Fatalf("read prompt: %v", err)
	}
	if prompt != "stored prompt" {
		t.Fatalf("prompt = %q", prompt)
	}
}

func TestAssociationStorePromptNullColumn(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT prompt FROM agent_bindings WHERE token_id = \?`).
		WithArgs("7").
		WillReturnRows(sqlmock.NewRows([]string{"prompt"}).AddRow(nil))

	prompt, err := store.Prompt(context.Background(), big.NewInt(7))
	if err != nil {
		t.Fatalf("read prompt: %v", err)
	}
	if prompt != "" {
		t.Fatalf("null prompt = %q, want empty", prompt)
	}
}

func TestAssociationStoreSetAgent(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO agent_bindings`).
		WithArgs("7", testAgent.Hex(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.SetAgent(context.Background(), big.NewInt(7), testAgent); err != nil {
		t.Fatalf("set agent: %v", err)
	}
}

func TestAssociationStoreSetPrompt(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO agent_bindings`).
		WithArgs("7", "new prompt", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.SetPrompt(context.Background(), big.NewInt(7), "new prompt"); err != nil {
		t.Fatalf("set prompt: %v", err)
	}
}

func TestAssociationStoreWrapsDriverErrors(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO agent_bindings`).
		WithArgs("7", "prompt", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(fmt.Errorf("connection reset"))

	err := store.SetPrompt(context.Background(), big.NewInt(7), "prompt")
	if xerrors.CodeOf(err) != xerrors.CodeStorageFailure {
		t.Fatalf("error = %v, want storage failure", err)
	}
	if !xerrors.RetryableError(err) {
		t.Fatalf("storage failure should be retryable: %v", err)
	}
}

func TestAssociationStoreNilTokenID(t *testing.T) {
	store, _ := newMockStore(t)

	if _, err := store.Agent(context.Background(), nil); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("error = %v, want invalid argument", err)
	}
	if err := store.SetAgent(context.Background(), nil, testAgent); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("error = %v, want invalid argument", err)
	}
}
