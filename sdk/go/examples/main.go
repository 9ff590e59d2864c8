package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"AgentBind-Chain/sdk/go/agentbind"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/tokens/7/agent", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(agentbind.AgentBinding{
			TokenID: "7",
			Agent:   "0x00000000000000000000000000000000000000aa",
		})
	})
	mux.HandleFunc("/api/v1/tokens/7/prompt", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(agentbind.PromptBinding{
			TokenID: "7",
			Prompt:  "You are a concierge for token #7.",
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	client, err := agentbind.NewClient(srv.URL, srv.Client(), agentbind.NewKeySigner(key))
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	binding, err := client.Agent(ctx, big7())
	if err != nil {
		panic(err)
	}
	fmt.Printf("token %s is bound to agent %s\n", binding.TokenID, binding.Agent)

	prompt, err := client.Prompt(ctx, big7())
	if err != nil {
		panic(err)
	}
	fmt.Printf("token %s prompt: %q\n", prompt.TokenID, prompt.Prompt)

	if _, err := client.UpdatePrompt(ctx, big7(), "Respond tersely."); err != nil {
		fmt.Printf("prompt update rejected: %v\n", err)
	}
}

func big7() *big.Int { return big.NewInt(7) }
