package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"evm-swap/pkg/types"
	"evm-swap/pkg/units"
)

// MaxSlippageBps is 100% expressed in basis points
const MaxSlippageBps = 10000

var (
	// <amount> [symbol] to <token address>
	swapPattern = regexp.MustCompile(`^(\d*\.?\d+)\s+(?:([A-Z0-9]+)\s+)?TO\s+(0X[0-9A-F]{40})$`)

	slippagePattern = regexp.MustCompile(`^(\d*\.?\d+)\s*(%|BPS)?$`)
)

// ParseSwapCommand parses a swap command
// Examples:
//   - "swap 0.01 ETH to 0x6B175474E89094C44Da98b954EedeAC495271d0F"
//   - "0.5 to 0x6B175474E89094C44Da98b954EedeAC495271d0F"
//
// The optional symbol is returned so callers can check it against the network's currency.
func ParseSwapCommand(command string) (*types.QuoteRequest, string, error) {
	// Normalize the command
	command = strings.TrimSpace(strings.ToUpper(command))

	// Remove the word "SWAP" if present at the beginning
	command = strings.TrimPrefix(command, "SWAP ")

	matches := swapPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, "", fmt.Errorf("invalid swap command format. Expected: 'swap <amount> [symbol] to <token-address>' (e.g., 'swap 0.01 ETH to 0x6B17...1d0F')")
	}

	return &types.QuoteRequest{
		Amount:       matches[1],
		TokenAddress: common.HexToAddress(matches[3]).Hex(),
	}, matches[2], nil
}

// ParseSlippage converts "0.5%", "50bps" or "0.5" (percent) into basis points
func ParseSlippage(value string) (uint32, error) {
	value = strings.TrimSpace(strings.ToUpper(value))

	matches := slippagePattern.FindStringSubmatch(value)
	if matches == nil {
		return 0, fmt.Errorf("invalid slippage %q. Expected a percentage (0.5%%) or basis points (50bps)", value)
	}

	amount, err := decimal.NewFromString(matches[1])
	if err != nil {
		return 0, fmt.Errorf("invalid slippage %q: %w", value, err)
	}

	// Percent unless explicitly given in basis points
	if matches[2] != "BPS" {
		amount = amount.Shift(2)
	}

	if !amount.Equal(amount.Truncate(0)) {
		return 0, fmt.Errorf("slippage %q is finer than one basis point", value)
	}
	if amount.GreaterThan(decimal.NewFromInt(MaxSlippageBps)) {
		return 0, fmt.Errorf("slippage %q exceeds 100%%", value)
	}

	return uint32(amount.IntPart()), nil
}

// ValidateQuoteRequest validates that a quote request can be priced
func ValidateQuoteRequest(req *types.QuoteRequest) error {
	if req.TokenAddress == "" {
		return fmt.Errorf("token address is required")
	}
	if !common.IsHexAddress(req.TokenAddress) {
		return fmt.Errorf("invalid token address: %s", req.TokenAddress)
	}
	if req.Amount == "" {
		return fmt.Errorf("amount is required")
	}

	amount, err := units.ParseUnits(req.Amount, units.NativeDecimals)
	if err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return fmt.Errorf("amount must be greater than 0")
	}

	if req.SlippageBps > MaxSlippageBps {
		return fmt.Errorf("slippage must be at most %d bps", MaxSlippageBps)
	}
	return nil
}

// NormalizeSymbol upper-cases a currency symbol and maps wrapped aliases to the native symbol
func NormalizeSymbol(symbol string) string {
	// Convert to uppercase for consistency
	symbol = strings.TrimSpace(strings.ToUpper(symbol))

	// Handle common aliases
	aliases := map[string]string{
		"WETH":   "ETH",
		"WBNB":   "BNB",
		"WMATIC": "MATIC",
		"POL":    "MATIC",
	}

	if normalized, exists := aliases[symbol]; exists {
		return normalized
	}

	return symbol
}
