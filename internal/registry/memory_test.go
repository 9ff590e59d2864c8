package registry

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	alice = common.HexToAddress("0xa000000000000000000000000000000000000001")
	bob   = common.HexToAddress("0xb000000000000000000000000000000000000002")
	carol = common.HexToAddress("0xc000000000000000000000000000000000000003")
)

func TestMemoryRegistryOwnership(t *testing.T) {
	reg := NewMemoryRegistry()
	tokenID := big.NewInt(1)

	if _, err := reg.OwnerOf(context.Background(), tokenID); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("error = %v, want token not found", err)
	}

	if err := reg.Mint(tokenID, alice); err != nil {
		t.Fatalf("mint: %v", err)
	}
	owner, err := reg.OwnerOf(context.Background(), tokenID)
	if err != nil {
		t.Fatalf("owner of: %v", err)
	}
	if owner != alice {
		t.Fatalf("owner = %s, want %s", owner, alice)
	}

	if err := reg.Mint(tokenID, bob); err == nil {
		t.Fatal("double mint succeeded")
	}
	if err := reg.Mint(big.NewInt(2), common.Address{}); err == nil {
		t.Fatal("mint to zero address succeeded")
	}
}

func TestMemoryRegistryTransferClearsApproval(t *testing.T) {
	reg := NewMemoryRegistry()
	tokenID := big.NewInt(1)
	if err := reg.Mint(tokenID, alice); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := reg.Approve(tokenID, bob); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved, _ := reg.GetApproved(context.Background(), tokenID); approved != bob {
		t.Fatalf("approved = %s, want %s", approved, bob)
	}

	if err := reg.Transfer(tokenID, carol); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	owner, _ := reg.OwnerOf(context.Background(), tokenID)
	if owner != carol {
		t.Fatalf("owner = %s, want %s", owner, carol)
	}
	if approved, _ := reg.GetApproved(context.Background(), tokenID); approved != (common.Address{}) {
		t.Fatalf("approval survived transfer: %s", approved)
	}
}

func TestMemoryRegistryApprovalLifecycle(t *testing.T) {
	reg := NewMemoryRegistry()
	tokenID := big.NewInt(1)
	if err := reg.Approve(tokenID, bob); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("approve unknown token: %v", err)
	}
	if _, err := reg.GetApproved(context.Background(), tokenID); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("get approved unknown token: %v", err)
	}

	if err := reg.Mint(tokenID, alice); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := reg.Approve(tokenID, bob); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := reg.Approve(tokenID, common.Address{}); err != nil {
		t.Fatalf("clear approval: %v", err)
	}
	if approved, _ := reg.GetApproved(context.Background(), tokenID); approved != (common.Address{}) {
		t.Fatalf("approval not cleared: %s", approved)
	}
}

func TestMemoryRegistryOperators(t *testing.T) {
	reg := NewMemoryRegistry()

	if ok, _ := reg.IsApprovedForAll(context.Background(), alice, bob); ok {
		t.Fatal("operator approved by default")
	}
	reg.SetApprovalForAll(alice, bob, true)
	if ok, _ := reg.IsApprovedForAll(context.Background(), alice, bob); !ok {
		t.Fatal("operator grant not visible")
	}
	// Grants are directional.
	if ok, _ := reg.IsApprovedForAll(context.Background(), bob, alice); ok {
		t.Fatal("operator grant leaked to the reverse direction")
	}
	reg.SetApprovalForAll(alice, bob, false)
	if ok, _ := reg.IsApprovedForAll(context.Background(), alice, bob); ok {
		t.Fatal("operator revoke not visible")
	}
}
