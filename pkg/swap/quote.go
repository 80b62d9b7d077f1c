// Package swap prices native-to-token swaps against router contracts and
// submits them through the connected wallet.
package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"evm-swap/pkg/client"
	"evm-swap/pkg/contracts"
	"evm-swap/pkg/metrics"
	"evm-swap/pkg/network"
	"evm-swap/pkg/types"
	"evm-swap/pkg/units"
	"evm-swap/pkg/wallet"
)

// DefaultDecimals is assumed when a token's decimals() cannot be read.
const DefaultDecimals = units.NativeDecimals

var (
	// ErrInvalidToken indicates a token address that is not a hex address.
	ErrInvalidToken = errors.New("invalid token address")

	// ErrShortQuote indicates the router returned fewer amounts than path hops.
	ErrShortQuote = errors.New("router returned an incomplete quote")
)

// MetadataSource fetches display metadata for a token on a platform.
type MetadataSource interface {
	GetTokenInfo(ctx context.Context, platform, address string) (*client.TokenMetadata, error)
}

// RouterContract is the subset of a Uniswap-V2 router used for quoting and swapping.
type RouterContract interface {
	WETH(ctx context.Context) (common.Address, error)
	GetAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error)
	SwapExactETHForTokens(opts *bind.TransactOpts, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) (*ethtypes.Transaction, error)
}

// TokenContract is the subset of ERC20 used for formatting amounts.
type TokenContract interface {
	Decimals(ctx context.Context) (uint8, error)
}

// ContractSource binds contracts on the wallet's current chain.
type ContractSource interface {
	Router(address common.Address) RouterContract
	ERC20(address common.Address) TokenContract
}

// ProviderContracts binds contracts against the provider's current backend.
type ProviderContracts struct {
	Provider wallet.Provider
}

// Router binds the router at address.
func (p ProviderContracts) Router(address common.Address) RouterContract {
	return contracts.NewRouter(address, p.Provider.Backend())
}

// ERC20 binds the token at address.
func (p ProviderContracts) ERC20(address common.Address) TokenContract {
	return contracts.NewERC20(address, p.Provider.Backend())
}

// FetchTokenInfo loads name, logo and decimals for token on the given network.
// When the metadata lookup fails the token info is nil; the next refresh tries again.
func (c *Controller) FetchTokenInfo(ctx context.Context, desc network.Descriptor, token string) (*types.TokenInfo, error) {
	info, err := c.fetchMetadata(ctx, desc, token)
	if err != nil {
		return nil, err
	}
	info.Decimals = c.TokenDecimals(ctx, token)
	return info, nil
}

func (c *Controller) fetchMetadata(ctx context.Context, desc network.Descriptor, token string) (*types.TokenInfo, error) {
	if c.meta == nil {
		return nil, errors.New("no metadata source configured")
	}

	meta, err := c.meta.GetTokenInfo(ctx, desc.MetadataPlatform, token)
	metrics.MetadataFetches.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		c.log.Warn().Err(err).Str("token", token).Str("network", desc.Name).Msg("token metadata unavailable")
		return nil, err
	}

	return &types.TokenInfo{
		Name:    meta.Name,
		Symbol:  strings.ToUpper(meta.Symbol),
		LogoURL: meta.Logo(),
	}, nil
}

// TokenDecimals reads decimals() from the token contract, defaulting to 18.
func (c *Controller) TokenDecimals(ctx context.Context, token string) uint8 {
	if c.contracts == nil || !common.IsHexAddress(token) {
		return DefaultDecimals
	}

	decimals, err := c.contracts.ERC20(common.HexToAddress(token)).Decimals(ctx)
	if err != nil {
		c.log.Debug().Err(err).Str("token", token).Msg("using default decimals")
		return DefaultDecimals
	}
	return decimals
}

// GetEstimatedTokens quotes req.Amount of native currency into the token through
// the network's router for req.Protocol. On any failure it returns
// types.EstimateError together with the cause.
func (c *Controller) GetEstimatedTokens(ctx context.Context, desc network.Descriptor, req types.QuoteRequest, decimals uint8) (string, error) {
	if c.contracts == nil {
		return types.EstimateError, ErrProviderAbsent
	}

	protocol := req.Protocol
	if protocol == "" {
		protocol = desc.DefaultProtocol()
	}
	routerAddr, err := desc.Router(protocol)
	if err != nil {
		return types.EstimateError, err
	}

	if !common.IsHexAddress(req.TokenAddress) {
		return types.EstimateError, fmt.Errorf("%w: %q", ErrInvalidToken, req.TokenAddress)
	}
	amountIn, err := units.ParseUnits(req.Amount, units.NativeDecimals)
	if err != nil {
		return types.EstimateError, err
	}

	router := c.contracts.Router(routerAddr)
	weth, err := router.WETH(ctx)
	if err != nil {
		return types.EstimateError, err
	}

	amounts, err := router.GetAmountsOut(ctx, amountIn, []common.Address{weth, common.HexToAddress(req.TokenAddress)})
	if err != nil {
		return types.EstimateError, err
	}
	if len(amounts) < 2 {
		return types.EstimateError, ErrShortQuote
	}

	return units.FormatUnits(amounts[1], decimals), nil
}
