package swap

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evm-swap/pkg/network"
	"evm-swap/pkg/session"
	"evm-swap/pkg/types"
)

func newTestController(meta MetadataSource, contracts ContractSource, interval time.Duration) *Controller {
	return NewController(ControllerOptions{
		Metadata:        meta,
		Contracts:       contracts,
		Network:         mainnet(),
		RefreshInterval: interval,
		Logger:          zerolog.Nop(),
	})
}

func usdcRequest(amount string) types.QuoteRequest {
	return types.QuoteRequest{TokenAddress: usdc.Hex(), Amount: amount, SlippageBps: 50}
}

func TestGetEstimatedTokensMainnet(t *testing.T) {
	t.Parallel()

	contracts, router := newFakeContracts()
	c := newTestController(newFakeMetadata(), contracts, 0)

	estimate, err := c.GetEstimatedTokens(context.Background(), mainnet(), usdcRequest("0.01"), 6)
	require.NoError(t, err)
	assert.Equal(t, "25.123456", estimate)

	// Default protocol on mainnet is UniswapV2, quoted over the 2-hop WETH path
	require.Equal(t, 1, router.quoteCount())
	assert.Equal(t, []common.Address{weth, usdc}, router.quotes[0])
	assert.Equal(t, 0, big.NewInt(10_000_000_000_000_000).Cmp(router.inputs[0]))
}

func TestGetEstimatedTokensErrors(t *testing.T) {
	t.Parallel()

	contracts, _ := newFakeContracts()
	c := newTestController(newFakeMetadata(), contracts, 0)
	table := network.Default()

	tests := []struct {
		name    string
		desc    network.Descriptor
		req     types.QuoteRequest
		wantErr error
	}{
		{
			name:    "protocol not on network",
			desc:    table.Lookup("0xa"),
			req:     types.QuoteRequest{TokenAddress: usdc.Hex(), Amount: "0.01", Protocol: "SushiSwap"},
			wantErr: network.ErrNoRouter,
		},
		{
			name:    "unsupported network",
			desc:    table.Lookup("0x2a"),
			req:     usdcRequest("0.01"),
			wantErr: network.ErrNoRouter,
		},
		{
			name:    "router call fails",
			desc:    table.Lookup("0x38"),
			req:     usdcRequest("0.01"),
			wantErr: errNoCode,
		},
		{
			name:    "bad token",
			desc:    mainnet(),
			req:     types.QuoteRequest{TokenAddress: "0x1234", Amount: "0.01"},
			wantErr: ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			estimate, err := c.GetEstimatedTokens(context.Background(), tt.desc, tt.req, 18)
			assert.Equal(t, types.EstimateError, estimate)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("no contracts", func(t *testing.T) {
		bare := newTestController(newFakeMetadata(), nil, 0)
		estimate, err := bare.GetEstimatedTokens(context.Background(), mainnet(), usdcRequest("0.01"), 18)
		assert.Equal(t, types.EstimateError, estimate)
		require.ErrorIs(t, err, ErrProviderAbsent)
	})
}

func TestFetchTokenInfo(t *testing.T) {
	t.Parallel()

	contracts, _ := newFakeContracts()
	meta := newFakeMetadata()
	c := newTestController(meta, contracts, 0)

	info, err := c.FetchTokenInfo(context.Background(), mainnet(), usdc.Hex())
	require.NoError(t, err)
	assert.Equal(t, "USDC", info.Name)
	assert.Equal(t, "USDC", info.Symbol)
	assert.Equal(t, "https://img/usdc-large.png", info.LogoURL)
	assert.Equal(t, uint8(6), info.Decimals)
	assert.Equal(t, "ethereum", meta.platform)

	// Unknown token: metadata cleared
	info, err = c.FetchTokenInfo(context.Background(), mainnet(), weth.Hex())
	require.Error(t, err)
	assert.Nil(t, info)

	// decimals() failure falls back to 18
	assert.Equal(t, uint8(18), c.TokenDecimals(context.Background(), weth.Hex()))
}

func TestSetRequestStates(t *testing.T) {
	t.Parallel()

	contracts, _ := newFakeContracts()
	c := newTestController(newFakeMetadata(), contracts, 0)
	assert.Equal(t, types.QuoteIdle, c.Snapshot().Status)

	require.NoError(t, c.SetRequest(types.QuoteRequest{Amount: "0.01"}))
	assert.Equal(t, types.QuoteIdle, c.Snapshot().Status)

	err := c.SetRequest(types.QuoteRequest{TokenAddress: "0xnope", Amount: "0.01"})
	require.Error(t, err)
	r := c.Snapshot()
	assert.Equal(t, types.QuoteErrored, r.Status)
	assert.Equal(t, types.EstimateError, r.Estimate)

	// Refresh of an invalid request is a no-op
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, types.QuoteErrored, c.Snapshot().Status)

	require.NoError(t, c.SetRequest(usdcRequest("0.01")))
	assert.Equal(t, types.QuoteFetching, c.Snapshot().Status)
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	contracts, _ := newFakeContracts()
	meta := newFakeMetadata()
	c := newTestController(meta, contracts, 0)

	ch := make(chan types.QuoteResult, 4)
	sub := c.SubscribeResults(ch)
	defer sub.Unsubscribe()

	require.NoError(t, c.SetRequest(usdcRequest("0.01")))
	require.NoError(t, c.Refresh(context.Background()))

	r := c.Snapshot()
	assert.Equal(t, types.QuotePriced, r.Status)
	assert.Equal(t, "25.123456", r.Estimate)
	assert.Equal(t, uint8(6), r.Decimals)
	require.NotNil(t, r.Token)
	assert.Equal(t, "USDC", r.Token.Name)

	// Fetching then priced
	assert.Equal(t, types.QuoteFetching, (<-ch).Status)
	assert.Equal(t, types.QuotePriced, (<-ch).Status)
	sub.Unsubscribe()

	// Metadata is re-read on every refresh of the same token
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, 2, meta.lookupCount())

	// A network change discards the result and its token info
	c.SetNetwork(network.Default().Lookup("0x38"))
	r = c.Snapshot()
	assert.Equal(t, types.QuoteFetching, r.Status)
	assert.Nil(t, r.Token)

	err := c.Refresh(context.Background())
	require.ErrorIs(t, err, errNoCode)
	r = c.Snapshot()
	assert.Equal(t, types.QuoteErrored, r.Status)
	assert.Equal(t, types.EstimateError, r.Estimate)
	assert.Equal(t, 3, meta.lookupCount())
}

func TestRefreshMetadataFailureStillPrices(t *testing.T) {
	t.Parallel()

	contracts, _ := newFakeContracts()
	meta := newFakeMetadata()
	meta.err = errors.New("throttled")
	c := newTestController(meta, contracts, 0)

	require.NoError(t, c.SetRequest(usdcRequest("0.01")))
	require.NoError(t, c.Refresh(context.Background()))

	r := c.Snapshot()
	assert.Equal(t, types.QuotePriced, r.Status)
	assert.Nil(t, r.Token)
	assert.Equal(t, "25.123456", r.Estimate)
}

func TestRefreshRecoversTokenInfo(t *testing.T) {
	t.Parallel()

	contracts, _ := newFakeContracts()
	contracts.tokens[usdc] = fakeToken{err: errNoCode}
	meta := newFakeMetadata()
	meta.setErr(errors.New("throttled"))
	c := newTestController(meta, contracts, 0)

	require.NoError(t, c.SetRequest(usdcRequest("0.01")))
	require.NoError(t, c.Refresh(context.Background()))

	// Both reads failed: no token info and the 18-decimal fallback
	r := c.Snapshot()
	assert.Nil(t, r.Token)
	assert.Equal(t, uint8(DefaultDecimals), r.Decimals)
	assert.Equal(t, "0.000000000025123456", r.Estimate)

	contracts.tokens[usdc] = fakeToken{decimals: 6}
	meta.setErr(nil)
	require.NoError(t, c.Refresh(context.Background()))

	r = c.Snapshot()
	require.NotNil(t, r.Token)
	assert.Equal(t, "USDC", r.Token.Name)
	assert.Equal(t, uint8(6), r.Decimals)
	assert.Equal(t, uint8(6), r.Token.Decimals)
	assert.Equal(t, "25.123456", r.Estimate)
	assert.Equal(t, 2, meta.lookupCount())
}

func TestStaleQuoteDiscarded(t *testing.T) {
	t.Parallel()

	contracts, router := newFakeContracts()
	router.quoteFn = func(amountIn *big.Int) (*big.Int, error) {
		// 2500 USDC per ETH
		return new(big.Int).Div(new(big.Int).Mul(amountIn, big.NewInt(2500_000_000)), big.NewInt(1e18)), nil
	}
	entered, release := make(chan struct{}), make(chan struct{})
	router.entered, router.release = entered, release
	c := newTestController(newFakeMetadata(), contracts, 0)

	require.NoError(t, c.SetRequest(usdcRequest("0.01")))
	staleGen := c.Snapshot().Generation

	done := make(chan error, 1)
	go func() { done <- c.Refresh(context.Background()) }()

	// The first refresh is in flight when the amount changes
	<-entered
	require.NoError(t, c.SetRequest(usdcRequest("1")))
	close(release)
	require.NoError(t, <-done)

	r := c.Snapshot()
	assert.Greater(t, r.Generation, staleGen)
	assert.Equal(t, types.QuoteFetching, r.Status)
	assert.Empty(t, r.Estimate)

	require.NoError(t, c.Refresh(context.Background()))
	r = c.Snapshot()
	assert.Equal(t, types.QuotePriced, r.Status)
	assert.Equal(t, "2500", r.Estimate)
}

func TestRun(t *testing.T) {
	t.Parallel()

	contracts, router := newFakeContracts()
	c := newTestController(newFakeMetadata(), contracts, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.NoError(t, c.SetRequest(usdcRequest("0.01")))
	require.Eventually(t, func() bool { return c.Snapshot().Status == types.QuotePriced }, 2*time.Second, 5*time.Millisecond)

	// The ticker keeps refreshing
	require.Eventually(t, func() bool { return router.quoteCount() >= 3 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestFollow(t *testing.T) {
	t.Parallel()

	contracts, _ := newFakeContracts()
	c := newTestController(newFakeMetadata(), contracts, 0)
	src := connectedSession()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Follow(ctx, src) }()

	require.NoError(t, c.SetRequest(usdcRequest("0.01")))
	require.NoError(t, c.Refresh(context.Background()))
	require.Equal(t, types.QuotePriced, c.Snapshot().Status)

	bsc := network.Default().Lookup("0x38")
	require.Eventually(t, func() bool {
		src.set(session.Session{ChainID: "0x38", Network: bsc})
		return c.Network().ChainID == "0x38"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, types.QuoteFetching, c.Snapshot().Status)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
