package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evm-swap/pkg/types"
)

const dai = "0x6B175474E89094C44Da98b954EedeAC495271d0F"

func TestParseSwapCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		command string
		amount  string
		symbol  string
	}{
		{"full command", "swap 0.01 ETH to " + dai, "0.01", "ETH"},
		{"without swap prefix", "1.5 bnb to " + dai, "1.5", "BNB"},
		{"without symbol", "0.5 to " + dai, "0.5", ""},
		{"lower case address", "swap 2 matic TO 0x6b175474e89094c44da98b954eedeac495271d0f", "2", "MATIC"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req, symbol, err := ParseSwapCommand(tt.command)
			require.NoError(t, err)
			assert.Equal(t, tt.amount, req.Amount)
			assert.Equal(t, tt.symbol, symbol)
			assert.Equal(t, dai, req.TokenAddress)
		})
	}
}

func TestParseSwapCommandInvalid(t *testing.T) {
	t.Parallel()

	for _, command := range []string{
		"",
		"swap ETH to " + dai,
		"swap 1 ETH to DAI",
		"swap 1 ETH " + dai,
		"swap -1 ETH to " + dai,
		"swap 1 ETH to 0x1234",
	} {
		_, _, err := ParseSwapCommand(command)
		assert.Error(t, err, command)
	}
}

func TestParseSlippage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want uint32
	}{
		{"0.5%", 50},
		{"0.5", 50},
		{"1", 100},
		{"50bps", 50},
		{"50 BPS", 50},
		{"100%", 10000},
		{"0", 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSlippage(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSlippageInvalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "abc", "-1%", "101%", "0.001%", "10001bps"} {
		_, err := ParseSlippage(in)
		assert.Error(t, err, in)
	}
}

func TestValidateQuoteRequest(t *testing.T) {
	t.Parallel()

	valid := types.QuoteRequest{TokenAddress: dai, Amount: "0.01", Protocol: "UniswapV2", SlippageBps: 50}
	require.NoError(t, ValidateQuoteRequest(&valid))

	tests := []struct {
		name   string
		mutate func(*types.QuoteRequest)
		want   string
	}{
		{"missing token", func(r *types.QuoteRequest) { r.TokenAddress = "" }, "token address is required"},
		{"bad token", func(r *types.QuoteRequest) { r.TokenAddress = "0x123" }, "invalid token address"},
		{"missing amount", func(r *types.QuoteRequest) { r.Amount = "" }, "amount is required"},
		{"zero amount", func(r *types.QuoteRequest) { r.Amount = "0" }, "greater than 0"},
		{"bad amount", func(r *types.QuoteRequest) { r.Amount = "abc" }, "invalid amount"},
		{"slippage too high", func(r *types.QuoteRequest) { r.SlippageBps = 10001 }, "slippage"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := valid
			tt.mutate(&req)
			err := ValidateQuoteRequest(&req)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNormalizeSymbol(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ETH", NormalizeSymbol(" weth "))
	assert.Equal(t, "MATIC", NormalizeSymbol("pol"))
	assert.Equal(t, "BNB", NormalizeSymbol("bnb"))
}
