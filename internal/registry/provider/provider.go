// Package provider instantiates token registry clients from chain
// definitions and hands out the one configured as default.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"AgentBind-Chain/internal/registry"
	"AgentBind-Chain/internal/registry/ethereum"
)

// Config selects which registries to build.
type Config struct {
	// ChainConfig is the path of the chains.yaml definition file.
	ChainConfig string
	// DefaultChain names the entry used when callers do not pick a chain.
	DefaultChain string
}

// Provider manages a set of on-chain registry clients keyed by chain name.
type Provider struct {
	defaultChain string
	clients      map[string]*ethereum.Client
}

// New loads chain definitions and dials one registry client per chain.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	defs, err := registry.LoadChainDefinitions(cfg.ChainConfig)
	if err != nil {
		return nil, err
	}

	clients := make(map[string]*ethereum.Client)
	for name, chain := range defs.Chains {
		contract := strings.TrimSpace(chain.Contract)
		if !common.IsHexAddress(contract) {
			return nil, fmt.Errorf("chain %s: invalid registry contract address %q", name, chain.Contract)
		}
		client, err := ethereum.NewClient(ctx, ethereum.Config{
			Name:     name,
			RPCURL:   chain.RPCURL,
			Contract: common.HexToAddress(contract),
			Notes:    chain.Description,
		})
		if err != nil {
			return nil, fmt.Errorf("initialise chain %s: %w", name, err)
		}
		clients[name] = client
	}

	if len(clients) == 0 {
		return nil, errors.New("no registry endpoints configured")
	}

	defaultChain := cfg.DefaultChain
	if defaultChain == "" {
		names := make([]string, 0, len(clients))
		for name := range clients {
			names = append(names, name)
		}
		sort.Strings(names)
		defaultChain = names[0]
	}
	if _, ok := clients[defaultChain]; !ok {
		return nil, fmt.Errorf("default chain %s is not defined", defaultChain)
	}

	return &Provider{defaultChain: defaultChain, clients: clients}, nil
}

// DefaultClient returns the registry client of the default chain.
func (p *Provider) DefaultClient() (registry.TokenRegistry, error) {
	if p == nil {
		return nil, errors.New("registry provider not initialised")
	}
	client, ok := p.clients[p.defaultChain]
	if !ok {
		return nil, fmt.Errorf("default chain %s is not registered", p.defaultChain)
	}
	return client, nil
}

// Client returns the registry client for a named chain.
func (p *Provider) Client(name string) (registry.TokenRegistry, bool) {
	if p == nil {
		return nil, false
	}
	client, ok := p.clients[name]
	return client, ok
}

// Chains returns the registered chain names in sorted order.
func (p *Provider) Chains() []string {
	if p == nil {
		return nil
	}
	names := make([]string, 0, len(p.clients))
	for name := range p.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases every client managed by the provider.
func (p *Provider) Close() {
	if p == nil {
		return
	}
	for name, client := range p.clients {
		client.Close()
		delete(p.clients, name)
	}
}
