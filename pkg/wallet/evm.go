package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/rs/zerolog"

	"evm-swap/pkg/network"
)

// ChainClient is the JSON-RPC surface EVMProvider needs from a node connection.
type ChainClient interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
}

// Dialer opens a ChainClient for an RPC endpoint.
type Dialer func(ctx context.Context, rawURL string) (ChainClient, error)

// DialEthclient is the default Dialer.
func DialEthclient(ctx context.Context, rawURL string) (ChainClient, error) {
	return ethclient.DialContext(ctx, rawURL)
}

// Options configures an EVMProvider.
type Options struct {
	RPCURLs      map[string]string      // Chain id (hex) to RPC endpoint
	DefaultChain string                 // Chain to connect to first
	PrivateKey   string                 // Hex private key; optional when KeyPrompt is set
	KeyPrompt    func() (string, error) // Asked for a key on RequestAccounts when none is loaded
	Dial         Dialer                 // Defaults to DialEthclient
	Logger       zerolog.Logger
}

// EVMProvider is a Provider backed by go-ethereum RPC clients and a single local key.
type EVMProvider struct {
	rpcURLs   map[string]string
	dial      Dialer
	keyPrompt func() (string, error)
	log       zerolog.Logger

	mu      sync.RWMutex
	chainID string
	client  ChainClient
	key     *ecdsa.PrivateKey
	exposed bool

	chainFeed   event.Feed
	accountFeed event.Feed
}

// Compile-time interface check
var _ Provider = (*EVMProvider)(nil)

// NewEVMProvider connects to the default chain's RPC endpoint.
func NewEVMProvider(ctx context.Context, opts Options) (*EVMProvider, error) {
	p := &EVMProvider{
		rpcURLs:   make(map[string]string, len(opts.RPCURLs)),
		dial:      opts.Dial,
		keyPrompt: opts.KeyPrompt,
		log:       opts.Logger.With().Str("component", "wallet").Logger(),
	}
	if p.dial == nil {
		p.dial = DialEthclient
	}
	for id, url := range opts.RPCURLs {
		p.rpcURLs[network.NormalizeChainID(id)] = url
	}

	// Parse private key
	if opts.PrivateKey != "" {
		key, err := parseKey(opts.PrivateKey)
		if err != nil {
			return nil, err
		}
		p.key = key
	}

	client, chainID, err := p.connect(ctx, opts.DefaultChain)
	if err != nil {
		return nil, err
	}
	p.client = client
	p.chainID = chainID

	return p, nil
}

// connect dials the endpoint configured for chainID and checks the node agrees on the chain.
func (p *EVMProvider) connect(ctx context.Context, chainID string) (ChainClient, string, error) {
	chainID = network.NormalizeChainID(chainID)
	url, ok := p.rpcURLs[chainID]
	if !ok || url == "" {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownChain, chainID)
	}

	// Connect to the RPC endpoint
	client, err := p.dial(ctx, url)
	if err != nil {
		return nil, "", fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	actual, err := client.ChainID(ctx)
	if err != nil {
		closeClient(client)
		return nil, "", fmt.Errorf("failed to get chain id: %w", err)
	}
	if got := network.FormatChainID(actual); got != chainID {
		closeClient(client)
		return nil, "", fmt.Errorf("RPC endpoint for %s reports chain %s", chainID, got)
	}

	return client, chainID, nil
}

// RequestAccounts exposes the wallet's account, prompting for a key if none is loaded.
func (p *EVMProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	needKey := p.key == nil
	p.mu.RUnlock()

	if needKey {
		if p.keyPrompt == nil {
			return nil, ErrNoAccounts
		}

		// The prompt blocks on the user, so it runs without the lock held
		raw, err := p.keyPrompt()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRequestRejected, err)
		}
		if strings.TrimSpace(raw) == "" {
			return nil, ErrRequestRejected
		}
		key, err := parseKey(raw)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		if p.key == nil {
			p.key = key
		}
		p.mu.Unlock()
	}

	p.mu.Lock()
	p.exposed = true
	addr := crypto.PubkeyToAddress(p.key.PublicKey)
	p.mu.Unlock()

	p.log.Debug().Str("account", addr.Hex()).Msg("accounts exposed")
	return []common.Address{addr}, nil
}

// Accounts returns the exposed accounts without prompting.
func (p *EVMProvider) Accounts() []common.Address {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.exposed || p.key == nil {
		return nil
	}
	return []common.Address{crypto.PubkeyToAddress(p.key.PublicKey)}
}

// ChainID returns the current chain id.
func (p *EVMProvider) ChainID(context.Context) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.chainID, nil
}

// BalanceAt returns the latest native balance of account.
func (p *EVMProvider) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	balance, err := p.currentClient().BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// SubscribeChainChanged delivers the new hex chain id after every SwitchChain.
func (p *EVMProvider) SubscribeChainChanged(ch chan<- string) event.Subscription {
	return p.chainFeed.Subscribe(ch)
}

// SubscribeAccountsChanged delivers the exposed accounts after Lock.
func (p *EVMProvider) SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription {
	return p.accountFeed.Subscribe(ch)
}

// SwitchChain reconnects to the endpoint configured for chainID and notifies subscribers.
func (p *EVMProvider) SwitchChain(ctx context.Context, chainID string) error {
	chainID = network.NormalizeChainID(chainID)

	p.mu.RLock()
	current := p.chainID
	p.mu.RUnlock()
	if chainID == current {
		return nil
	}

	client, chainID, err := p.connect(ctx, chainID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	old := p.client
	p.client = client
	p.chainID = chainID
	p.mu.Unlock()

	closeClient(old)
	p.log.Info().Str("chain_id", chainID).Msg("switched chain")
	p.chainFeed.Send(chainID)
	return nil
}

// Lock hides the account again and notifies subscribers with an empty account list.
func (p *EVMProvider) Lock() {
	p.mu.Lock()
	wasExposed := p.exposed
	p.exposed = false
	p.mu.Unlock()

	if wasExposed {
		p.log.Info().Msg("wallet locked")
		p.accountFeed.Send([]common.Address{})
	}
}

// Backend returns the current chain's client.
func (p *EVMProvider) Backend() bind.ContractBackend {
	return p.currentClient()
}

// Transactor returns signing options for account on the current chain.
func (p *EVMProvider) Transactor(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
	p.mu.RLock()
	key, chainID := p.key, p.chainID
	p.mu.RUnlock()

	if key == nil {
		return nil, ErrNoAccounts
	}
	if crypto.PubkeyToAddress(key.PublicKey) != account {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, account.Hex())
	}

	id, err := network.ParseChainID(chainID)
	if err != nil {
		return nil, err
	}

	opts, err := bind.NewKeyedTransactorWithChainID(key, id)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// WaitMined waits for tx to be included in a block.
func (p *EVMProvider) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, p.currentClient(), tx)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for transaction %s: %w", tx.Hash().Hex(), err)
	}
	return receipt, nil
}

// TxStatus describes a transaction looked up by hash
type TxStatus struct {
	Hash        string `json:"hash"`
	Pending     bool   `json:"pending"`
	To          string `json:"to"`
	Value       string `json:"value"`
	Nonce       uint64 `json:"nonce"`
	GasLimit    uint64 `json:"gas_limit"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	GasUsed     uint64 `json:"gas_used,omitempty"`
	Succeeded   bool   `json:"succeeded"`
}

// TransactionStatus retrieves information about a transaction on the current chain.
func (p *EVMProvider) TransactionStatus(ctx context.Context, txHash string) (*TxStatus, error) {
	client := p.currentClient()
	hash := common.HexToHash(txHash)

	// Get transaction
	tx, isPending, err := client.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	status := &TxStatus{
		Hash:     tx.Hash().Hex(),
		Pending:  isPending,
		Value:    tx.Value().String(),
		Nonce:    tx.Nonce(),
		GasLimit: tx.Gas(),
	}
	if tx.To() != nil {
		status.To = tx.To().Hex()
	}
	if isPending {
		return status, nil
	}

	// Get receipt
	receipt, err := client.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
	}
	status.BlockNumber = receipt.BlockNumber.Uint64()
	status.GasUsed = receipt.GasUsed
	status.Succeeded = receipt.Status == types.ReceiptStatusSuccessful

	return status, nil
}

// Close closes the client connection
func (p *EVMProvider) Close() {
	p.mu.Lock()
	client := p.client
	p.client = nil
	p.mu.Unlock()

	if client != nil {
		closeClient(client)
	}
}

func (p *EVMProvider) currentClient() ChainClient {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client
}

func parseKey(raw string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

func closeClient(c ChainClient) {
	if closer, ok := c.(interface{ Close() }); ok {
		closer.Close()
	}
}
