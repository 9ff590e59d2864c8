package ethereum

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	xerrors "AgentBind-Chain/internal/errors"
	"AgentBind-Chain/internal/registry"
)

// erc721ABI covers the three read methods the association layer needs from a
// token registry contract.
const erc721ABI = `[
  {"constant":true,"inputs":[{"name":"tokenId","type":"uint256"}],"name":"ownerOf","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"constant":true,"inputs":[{"name":"tokenId","type":"uint256"}],"name":"getApproved","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"operator","type":"address"}],"name":"isApprovedForAll","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"}
]`

// Config describes how to reach a token registry contract on an EVM chain.
type Config struct {
	Name     string
	RPCURL   string
	Contract common.Address
	Notes    string
}

// Client implements registry.TokenRegistry against an ERC-721 contract.
type Client struct {
	name      string
	notes     string
	rpcClient *gethrpc.Client
	contract  *bind.BoundContract
}

// NewClient dials the configured RPC endpoint and binds the registry
// contract.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("registry rpc url is required")
	}
	if cfg.Contract == (common.Address{}) {
		return nil, errors.New("registry contract address is required")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeRegistryFailure, err, "dial registry endpoint")
	}

	client := &Client{
		name:      cfg.Name,
		notes:     cfg.Notes,
		rpcClient: rpcClient,
	}
	client.contract, err = bindContract(cfg.Contract, ethclient.NewClient(rpcClient))
	if err != nil {
		rpcClient.Close()
		return nil, err
	}
	return client, nil
}

// NewCallerClient binds the registry contract over an existing caller.
// It exists so tests can substitute a simulated backend for a live node.
func NewCallerClient(name string, contract common.Address, caller bind.ContractCaller) (*Client, error) {
	bound, err := bindContract(contract, caller)
	if err != nil {
		return nil, err
	}
	return &Client{name: name, contract: bound}, nil
}

func bindContract(addr common.Address, caller bind.ContractCaller) (*bind.BoundContract, error) {
	parsed, err := abi.JSON(strings.NewReader(erc721ABI))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "parse registry abi")
	}
	return bind.NewBoundContract(addr, parsed, caller, nil, nil), nil
}

// Name returns the chain name the client was configured with.
func (c *Client) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// Close releases the RPC connection held by the client.
func (c *Client) Close() {
	if c == nil || c.rpcClient == nil {
		return
	}
	c.rpcClient.Close()
	c.rpcClient = nil
}

// OwnerOf implements registry.TokenRegistry. An ownerOf revert means the
// token has never been minted (or was burned), which maps to
// registry.ErrTokenNotFound.
func (c *Client) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	var out []any
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "ownerOf", tokenID)
	if err != nil {
		if isRevert(err) {
			return common.Address{}, registry.ErrTokenNotFound
		}
		return common.Address{}, xerrors.Wrap(xerrors.CodeRegistryFailure, err, "ownerOf call failed")
	}
	return addressOutput(out)
}

// GetApproved implements registry.TokenRegistry.
func (c *Client) GetApproved(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	var out []any
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getApproved", tokenID)
	if err != nil {
		if isRevert(err) {
			return common.Address{}, registry.ErrTokenNotFound
		}
		return common.Address{}, xerrors.Wrap(xerrors.CodeRegistryFailure, err, "getApproved call failed")
	}
	return addressOutput(out)
}

// IsApprovedForAll implements registry.TokenRegistry.
func (c *Client) IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
	var out []any
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "isApprovedForAll", owner, operator)
	if err != nil {
		return false, xerrors.Wrap(xerrors.CodeRegistryFailure, err, "isApprovedForAll call failed")
	}
	if len(out) != 1 {
		return false, xerrors.New(xerrors.CodeRegistryFailure, "unexpected isApprovedForAll output")
	}
	approved, ok := out[0].(bool)
	if !ok {
		return false, xerrors.New(xerrors.CodeRegistryFailure, "unexpected isApprovedForAll output type")
	}
	return approved, nil
}

func addressOutput(out []any) (common.Address, error) {
	if len(out) != 1 {
		return common.Address{}, xerrors.New(xerrors.CodeRegistryFailure, "unexpected contract output")
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, xerrors.New(xerrors.CodeRegistryFailure, "unexpected contract output type")
	}
	return addr, nil
}

// isRevert reports whether a call error was an EVM revert rather than a
// transport failure. Reverted eth_call requests surface either as
// "execution reverted" from the node or as vm.ErrExecutionReverted from a
// simulated backend.
func isRevert(err error) bool {
	if err == nil {
		return false
	}
	var dataErr gethrpc.DataError
	if errors.As(err, &dataErr) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "revert")
}
