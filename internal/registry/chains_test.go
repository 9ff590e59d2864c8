package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadChainDefinitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	content := `chains:
  sepolia:
    rpc_url: https://rpc.sepolia.example
    contract: "0xc000000000000000000000000000000000000001"
    description: test collection
  mainnet:
    rpc_url: https://rpc.mainnet.example
    contract: "0xc000000000000000000000000000000000000002"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write chains file: %v", err)
	}

	defs, err := LoadChainDefinitions(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(defs.Chains) != 2 {
		t.Fatalf("chains = %d, want 2", len(defs.Chains))
	}
	sepolia := defs.Chains["sepolia"]
	if sepolia.RPCURL != "https://rpc.sepolia.example" || sepolia.Description != "test collection" {
		t.Fatalf("sepolia = %+v", sepolia)
	}
}

func TestLoadChainDefinitionsEmptyPath(t *testing.T) {
	defs, err := LoadChainDefinitions("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if defs.Chains == nil || len(defs.Chains) != 0 {
		t.Fatalf("chains = %+v, want empty map", defs.Chains)
	}
}

func TestLoadChainDefinitionsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	if err := os.WriteFile(path, []byte("chains: [broken"), 0o600); err != nil {
		t.Fatalf("write chains file: %v", err)
	}
	if _, err := LoadChainDefinitions(path); err == nil {
		t.Fatal("malformed yaml accepted")
	}
}
