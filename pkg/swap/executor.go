package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"evm-swap/pkg/metrics"
	"evm-swap/pkg/network"
	"evm-swap/pkg/parser"
	"evm-swap/pkg/types"
	"evm-swap/pkg/units"
	"evm-swap/pkg/wallet"
)

const (
	// DefaultDeadline is how long a submitted swap stays valid on chain.
	DefaultDeadline = 10 * time.Minute

	// DefaultConfirmTimeout bounds the wait for the swap to be mined.
	DefaultConfirmTimeout = 5 * time.Minute
)

var (
	// ErrProviderAbsent indicates no wallet provider is available.
	ErrProviderAbsent = errors.New("wallet provider not found")

	// ErrNotConnected indicates no account is connected.
	ErrNotConnected = errors.New("wallet not connected")

	// ErrTokenRequired indicates the request has no token address.
	ErrTokenRequired = errors.New("token address is required")

	// ErrInvalidRequest indicates the request failed validation.
	ErrInvalidRequest = errors.New("invalid swap request")

	// ErrSwapInProgress indicates another swap has not finished yet.
	ErrSwapInProgress = errors.New("a swap is already in progress")

	// ErrSwapFailed indicates the swap could not be signed, broadcast or confirmed.
	ErrSwapFailed = errors.New("swap failed")

	// ErrReverted indicates the swap was mined but reverted.
	ErrReverted = errors.New("transaction reverted")
)

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	Provider       wallet.Provider // nil when no wallet is configured
	Contracts      ContractSource  // Defaults to ProviderContracts{Provider}
	Session        SessionSource
	Notifier       types.Notifier
	Logger         zerolog.Logger
	Deadline       time.Duration
	ConfirmTimeout time.Duration
	Now            func() time.Time
}

// Executor submits swapExactETHForTokens transactions for the connected account.
type Executor struct {
	provider       wallet.Provider
	contracts      ContractSource
	session        SessionSource
	notifier       types.Notifier
	log            zerolog.Logger
	deadline       time.Duration
	confirmTimeout time.Duration
	now            func() time.Time

	busy atomic.Bool
}

// NewExecutor creates an Executor.
func NewExecutor(opts ExecutorOptions) *Executor {
	e := &Executor{
		provider:       opts.Provider,
		contracts:      opts.Contracts,
		session:        opts.Session,
		notifier:       opts.Notifier,
		log:            opts.Logger.With().Str("component", "swap").Logger(),
		deadline:       opts.Deadline,
		confirmTimeout: opts.ConfirmTimeout,
		now:            opts.Now,
	}
	if e.contracts == nil && e.provider != nil {
		e.contracts = ProviderContracts{Provider: e.provider}
	}
	if e.notifier == nil {
		e.notifier = types.Discard
	}
	if e.deadline <= 0 {
		e.deadline = DefaultDeadline
	}
	if e.confirmTimeout <= 0 {
		e.confirmTimeout = DefaultConfirmTimeout
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Busy reports whether a swap is in progress.
func (e *Executor) Busy() bool {
	return e.busy.Load()
}

// Swap sells req.Amount of native currency for the token on the session's network
// and waits for the transaction to be mined.
func (e *Executor) Swap(ctx context.Context, req types.QuoteRequest) (*ethtypes.Receipt, error) {
	if e.provider == nil {
		return nil, e.reject(ErrProviderAbsent, "No wallet provider found. Configure an RPC endpoint to swap.")
	}

	var (
		account   common.Address
		desc      network.Descriptor
		connected bool
	)
	if e.session != nil {
		s := e.session.Snapshot()
		if s.Connected && s.Account != nil {
			account, connected = *s.Account, true
		}
		desc = s.Network
	}
	if !connected {
		return nil, e.reject(ErrNotConnected, "Connect your wallet before swapping.")
	}
	if req.TokenAddress == "" {
		return nil, e.reject(ErrTokenRequired, "Enter a token address to swap to.")
	}
	if err := parser.ValidateQuoteRequest(&req); err != nil {
		return nil, e.reject(fmt.Errorf("%w: %w", ErrInvalidRequest, err), "Invalid swap: "+err.Error())
	}
	if !e.busy.CompareAndSwap(false, true) {
		return nil, e.reject(ErrSwapInProgress, "A swap is already in progress.")
	}
	defer e.busy.Store(false)

	protocol := req.Protocol
	if protocol == "" {
		protocol = desc.DefaultProtocol()
	}
	routerAddr, err := desc.Router(protocol)
	if err != nil {
		return nil, e.reject(err, "No "+protocol+" router on "+desc.Name+".")
	}

	log := e.log.With().
		Str("account", account.Hex()).
		Str("network", desc.Name).
		Str("protocol", protocol).
		Str("token", req.TokenAddress).
		Str("amount", req.Amount).
		Logger()

	receipt, err := e.execute(ctx, log, routerAddr, account, req)
	metrics.Swaps.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		// The cause is logged; the user sees a generic failure
		log.Error().Err(err).Msg("swap failed")
		e.notifier.Notify(types.Notice{Level: types.NoticeAlert, Message: "Swap failed."})
		return receipt, fmt.Errorf("%w: %w", ErrSwapFailed, err)
	}

	log.Info().Str("tx", receipt.TxHash.Hex()).Uint64("block", receipt.BlockNumber.Uint64()).Msg("swap completed")
	e.notifier.Notify(types.Notice{Level: types.NoticeSuccess, Message: "Swap completed: " + receipt.TxHash.Hex()})
	return receipt, nil
}

func (e *Executor) execute(ctx context.Context, log zerolog.Logger, routerAddr, account common.Address, req types.QuoteRequest) (*ethtypes.Receipt, error) {
	amountIn, err := units.ParseUnits(req.Amount, units.NativeDecimals)
	if err != nil {
		return nil, err
	}

	router := e.contracts.Router(routerAddr)
	weth, err := router.WETH(ctx)
	if err != nil {
		return nil, err
	}
	path := []common.Address{weth, common.HexToAddress(req.TokenAddress)}
	deadline := big.NewInt(e.now().Add(e.deadline).Unix())

	// Minimum output comes from a fresh quote with the slippage tolerance applied
	amounts, err := router.GetAmountsOut(ctx, amountIn, path)
	if err != nil {
		return nil, err
	}
	if len(amounts) < 2 {
		return nil, ErrShortQuote
	}
	minOut := units.ApplySlippage(amounts[1], req.SlippageBps)

	opts, err := e.provider.Transactor(ctx, account)
	if err != nil {
		return nil, err
	}
	opts.Value = amountIn

	tx, err := router.SwapExactETHForTokens(opts, minOut, path, account, deadline)
	if err != nil {
		return nil, err
	}
	log.Info().Str("tx", tx.Hash().Hex()).Str("min_out", minOut.String()).Msg("swap submitted")
	e.notifier.Notify(types.Notice{Level: types.NoticeInfo, Message: "Swap submitted: " + tx.Hash().Hex()})

	waitCtx, cancel := context.WithTimeout(ctx, e.confirmTimeout)
	defer cancel()

	receipt, err := e.provider.WaitMined(waitCtx, tx)
	if err != nil {
		return nil, err
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s", ErrReverted, tx.Hash().Hex())
	}
	return receipt, nil
}

func (e *Executor) reject(err error, message string) error {
	e.log.Warn().Err(err).Msg("swap rejected")
	e.notifier.Notify(types.Notice{Level: types.NoticeAlert, Message: message})
	return err
}
