// Package contracts holds minimal go-ethereum bindings for the Uniswap-V2-style
// router and ERC20 token contracts used by swaps.
package contracts

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// RouterABI is the subset of the UniswapV2Router02 interface used for quoting and swapping.
const RouterABI = `[
	{"type":"function","name":"WETH","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"getAmountsOut","stateMutability":"view","inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
	{"type":"function","name":"swapExactETHForTokens","stateMutability":"payable","inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

var (
	routerABI = mustParseABI(RouterABI)

	// ErrEmptyResult indicates a read call that returned no values.
	ErrEmptyResult = errors.New("contract returned no data")
)

// Router is a binding around a deployed Uniswap-V2-style router.
type Router struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewRouter binds the router deployed at address.
func NewRouter(address common.Address, backend bind.ContractBackend) *Router {
	return &Router{
		address:  address,
		contract: bind.NewBoundContract(address, routerABI, backend, backend, backend),
	}
}

// Address returns the router's contract address.
func (r *Router) Address() common.Address {
	return r.address
}

// WETH returns the wrapped-native token the router pairs against.
func (r *Router) WETH(ctx context.Context) (common.Address, error) {
	var out []interface{}
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "WETH"); err != nil {
		return common.Address{}, fmt.Errorf("router WETH: %w", err)
	}
	if len(out) == 0 {
		return common.Address{}, fmt.Errorf("router WETH: %w", ErrEmptyResult)
	}

	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// GetAmountsOut quotes amountIn along path. The last element is the output amount.
func (r *Router) GetAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	var out []interface{}
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getAmountsOut", amountIn, path); err != nil {
		return nil, fmt.Errorf("router getAmountsOut: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("router getAmountsOut: %w", ErrEmptyResult)
	}

	return *abi.ConvertType(out[0], new([]*big.Int)).(*[]*big.Int), nil
}

// SwapExactETHForTokens swaps opts.Value of native currency for at least amountOutMin tokens.
func (r *Router) SwapExactETHForTokens(opts *bind.TransactOpts, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) (*types.Transaction, error) {
	tx, err := r.contract.Transact(opts, "swapExactETHForTokens", amountOutMin, path, to, deadline)
	if err != nil {
		return nil, fmt.Errorf("router swapExactETHForTokens: %w", err)
	}
	return tx, nil
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("contracts: invalid ABI: %v", err))
	}
	return parsed
}
