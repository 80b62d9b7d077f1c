package swap

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"

	"evm-swap/pkg/client"
	"evm-swap/pkg/network"
	"evm-swap/pkg/session"
	"evm-swap/pkg/types"
	"evm-swap/pkg/wallet"
)

var (
	uniswapV2 = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	weth      = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc      = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	trader    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

	errNoCode = errors.New("no contract code at given address")
)

func mainnet() network.Descriptor { return network.Default().Lookup("0x1") }

type swapCall struct {
	opts     *bind.TransactOpts
	minOut   *big.Int
	path     []common.Address
	to       common.Address
	deadline *big.Int
}

type fakeRouter struct {
	mu      sync.Mutex
	weth    common.Address
	out     *big.Int
	quoteFn func(amountIn *big.Int) (*big.Int, error)
	swapErr error

	// When set, GetAmountsOut signals entered and waits for release
	entered chan struct{}
	release chan struct{}

	quotes [][]common.Address
	inputs []*big.Int
	swaps  []swapCall
}

func (r *fakeRouter) WETH(context.Context) (common.Address, error) {
	return r.weth, nil
}

func (r *fakeRouter) GetAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	r.mu.Lock()
	r.quotes = append(r.quotes, path)
	r.inputs = append(r.inputs, amountIn)
	entered, release := r.entered, r.release
	r.entered = nil
	r.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
		<-release
	}

	out := r.out
	if r.quoteFn != nil {
		var err error
		if out, err = r.quoteFn(amountIn); err != nil {
			return nil, err
		}
	}
	return []*big.Int{amountIn, out}, nil
}

func (r *fakeRouter) SwapExactETHForTokens(opts *bind.TransactOpts, minOut *big.Int, path []common.Address, to common.Address, deadline *big.Int) (*ethtypes.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.swaps = append(r.swaps, swapCall{opts: opts, minOut: minOut, path: path, to: to, deadline: deadline})
	if r.swapErr != nil {
		return nil, r.swapErr
	}
	return ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: uint64(len(r.swaps)), To: &uniswapV2, Value: opts.Value, Gas: 250_000}), nil
}

func (r *fakeRouter) quoteCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.quotes)
}

func (r *fakeRouter) swapCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.swaps)
}

// missingRouter stands in for an address with no router deployed.
type missingRouter struct{}

func (missingRouter) WETH(context.Context) (common.Address, error) {
	return common.Address{}, errNoCode
}

func (missingRouter) GetAmountsOut(context.Context, *big.Int, []common.Address) ([]*big.Int, error) {
	return nil, errNoCode
}

func (missingRouter) SwapExactETHForTokens(*bind.TransactOpts, *big.Int, []common.Address, common.Address, *big.Int) (*ethtypes.Transaction, error) {
	return nil, errNoCode
}

type fakeToken struct {
	decimals uint8
	err      error
}

func (t fakeToken) Decimals(context.Context) (uint8, error) { return t.decimals, t.err }

type fakeContracts struct {
	routers map[common.Address]*fakeRouter
	tokens  map[common.Address]fakeToken
}

func (f *fakeContracts) Router(address common.Address) RouterContract {
	if r, ok := f.routers[address]; ok {
		return r
	}
	return missingRouter{}
}

func (f *fakeContracts) ERC20(address common.Address) TokenContract {
	if t, ok := f.tokens[address]; ok {
		return t
	}
	return fakeToken{err: errNoCode}
}

func newFakeContracts() (*fakeContracts, *fakeRouter) {
	router := &fakeRouter{weth: weth, out: big.NewInt(25_123_456)}
	return &fakeContracts{
		routers: map[common.Address]*fakeRouter{uniswapV2: router},
		tokens:  map[common.Address]fakeToken{usdc: {decimals: 6}},
	}, router
}

type fakeMetadata struct {
	mu       sync.Mutex
	tokens   map[string]*client.TokenMetadata
	err      error
	lookups  int
	platform string
}

func (f *fakeMetadata) GetTokenInfo(_ context.Context, platform, address string) (*client.TokenMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	f.platform = platform
	if f.err != nil {
		return nil, f.err
	}
	meta, ok := f.tokens[common.HexToAddress(address).Hex()]
	if !ok {
		return nil, client.ErrNotFound
	}
	return meta, nil
}

func (f *fakeMetadata) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeMetadata) lookupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups
}

func newFakeMetadata() *fakeMetadata {
	usdcMeta := &client.TokenMetadata{ID: "usd-coin", Name: "USDC", Symbol: "usdc"}
	usdcMeta.Image.Large = "https://img/usdc-large.png"
	return &fakeMetadata{tokens: map[string]*client.TokenMetadata{usdc.Hex(): usdcMeta}}
}

type fakeSession struct {
	mu    sync.Mutex
	state session.Session
	feed  event.Feed
}

func (f *fakeSession) Snapshot() session.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) SubscribeUpdates(ch chan<- session.Session) event.Subscription {
	return f.feed.Subscribe(ch)
}

func (f *fakeSession) set(s session.Session) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
	f.feed.Send(s)
}

func connectedSession() *fakeSession {
	account := trader
	return &fakeSession{state: session.Session{
		Account:   &account,
		ChainID:   "0x1",
		Network:   mainnet(),
		Balance:   "1.0000",
		Connected: true,
	}}
}

type fakeProvider struct {
	mu            sync.Mutex
	transactorErr error
	status        uint64
	waitErr       error
	waitGate      chan struct{}

	transactors int
	waited      []*ethtypes.Transaction
}

var _ wallet.Provider = (*fakeProvider)(nil)

func (p *fakeProvider) RequestAccounts(context.Context) ([]common.Address, error) {
	return []common.Address{trader}, nil
}

func (p *fakeProvider) ChainID(context.Context) (string, error) { return "0x1", nil }

func (p *fakeProvider) BalanceAt(context.Context, common.Address) (*big.Int, error) {
	return big.NewInt(1e18), nil
}

func (p *fakeProvider) SubscribeChainChanged(ch chan<- string) event.Subscription {
	return event.NewSubscription(func(quit <-chan struct{}) error { <-quit; return nil })
}

func (p *fakeProvider) SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription {
	return event.NewSubscription(func(quit <-chan struct{}) error { <-quit; return nil })
}

func (p *fakeProvider) Backend() bind.ContractBackend { return nil }

func (p *fakeProvider) Transactor(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transactors++
	if p.transactorErr != nil {
		return nil, p.transactorErr
	}
	return &bind.TransactOpts{From: account, Context: ctx}, nil
}

func (p *fakeProvider) WaitMined(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
	if p.waitGate != nil {
		select {
		case <-p.waitGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.waited = append(p.waited, tx)
	if p.waitErr != nil {
		return nil, p.waitErr
	}
	return &ethtypes.Receipt{Status: p.status, TxHash: tx.Hash(), BlockNumber: big.NewInt(19_000_000)}, nil
}

func (p *fakeProvider) writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transactors + len(p.waited)
}

type recorder struct {
	mu      sync.Mutex
	notices []types.Notice
}

func (r *recorder) Notify(n types.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) levels() []types.NoticeLevel {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.NoticeLevel, 0, len(r.notices))
	for _, n := range r.notices {
		out = append(out, n.Level)
	}
	return out
}

func (r *recorder) last() types.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notices[len(r.notices)-1]
}
