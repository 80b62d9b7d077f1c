// Package units converts between human-readable decimal amounts and on-chain
// integer amounts.
package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// NativeDecimals is the number of decimals of every supported native currency.
const NativeDecimals = 18

// ErrInvalidAmount indicates an amount string that cannot be converted.
var ErrInvalidAmount = errors.New("invalid amount")

// ParseUnits converts amount (e.g. "0.01") to the smallest unit for the given decimals.
// Amounts with more fractional digits than decimals are rejected rather than truncated.
func ParseUnits(amount string, decimals uint8) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, amount)
	}

	shifted := d.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, amount, decimals)
	}

	return shifted.BigInt(), nil
}

// FormatUnits renders an on-chain amount with the given decimals, without trailing zeros.
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

// FormatFixed renders an on-chain amount rounded to a fixed number of places.
func FormatFixed(amount *big.Int, decimals uint8, places int32) string {
	if amount == nil {
		amount = new(big.Int)
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).StringFixed(places)
}

// ApplySlippage returns amount reduced by slippageBps basis points:
// amount * (10000 - bps) / 10000, rounded down.
func ApplySlippage(amount *big.Int, slippageBps uint32) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	if slippageBps >= 10000 {
		return new(big.Int)
	}

	out := new(big.Int).Mul(amount, big.NewInt(int64(10000-slippageBps)))
	return out.Quo(out, big.NewInt(10000))
}
