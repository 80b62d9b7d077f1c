package contracts

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// ERC20ABI is the read-only metadata subset of the ERC20 interface.
const ERC20ABI = `[
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

var erc20ABI = mustParseABI(ERC20ABI)

// ERC20 is a read-only binding around a token contract.
type ERC20 struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewERC20 binds the token deployed at address.
func NewERC20(address common.Address, caller bind.ContractCaller) *ERC20 {
	return &ERC20{
		address:  address,
		contract: bind.NewBoundContract(address, erc20ABI, caller, nil, nil),
	}
}

// Decimals returns the token's decimals.
func (t *ERC20) Decimals(ctx context.Context) (uint8, error) {
	var out []interface{}
	if err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, "decimals"); err != nil {
		return 0, fmt.Errorf("erc20 decimals: %w", err)
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("erc20 decimals: %w", ErrEmptyResult)
	}

	return *abi.ConvertType(out[0], new(uint8)).(*uint8), nil
}

// Name returns the token's name.
func (t *ERC20) Name(ctx context.Context) (string, error) {
	return t.callString(ctx, "name")
}

// Symbol returns the token's symbol.
func (t *ERC20) Symbol(ctx context.Context) (string, error) {
	return t.callString(ctx, "symbol")
}

func (t *ERC20) callString(ctx context.Context, method string) (string, error) {
	var out []interface{}
	if err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, method); err != nil {
		return "", fmt.Errorf("erc20 %s: %w", method, err)
	}
	if len(out) == 0 {
		return "", fmt.Errorf("erc20 %s: %w", method, ErrEmptyResult)
	}

	return *abi.ConvertType(out[0], new(string)).(*string), nil
}
