// Package session tracks the connected wallet account, its network and its
// native balance, reacting to provider notifications.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/rs/zerolog"

	"evm-swap/pkg/metrics"
	"evm-swap/pkg/network"
	"evm-swap/pkg/types"
	"evm-swap/pkg/units"
	"evm-swap/pkg/wallet"
)

// InitialChainID is the chain shown before the provider reports one.
const InitialChainID = "0x1"

// balancePlaces is the number of decimals shown for the native balance.
const balancePlaces = 4

var (
	// ErrProviderAbsent indicates no wallet provider is available.
	ErrProviderAbsent = errors.New("wallet provider not found")

	// ErrAlreadyStarted indicates Start was called on a running manager.
	ErrAlreadyStarted = errors.New("session manager already started")
)

// Session is the user-visible wallet state.
type Session struct {
	Account   *common.Address    `json:"account,omitempty"`
	ChainID   string             `json:"chain_id"`
	Network   network.Descriptor `json:"network"`
	Balance   string             `json:"balance"`
	Connected bool               `json:"connected"`
}

// Manager owns the Session and applies provider events to it.
type Manager struct {
	provider wallet.Provider
	table    *network.Table
	notifier types.Notifier
	log      zerolog.Logger

	mu         sync.Mutex
	state      Session
	balanceGen uint64

	updates event.Feed

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a Manager. provider may be nil when no wallet is configured.
func NewManager(provider wallet.Provider, table *network.Table, notifier types.Notifier, log zerolog.Logger) *Manager {
	if table == nil {
		table = network.Default()
	}
	if notifier == nil {
		notifier = types.Discard
	}
	return &Manager{
		provider: provider,
		table:    table,
		notifier: notifier,
		log:      log.With().Str("component", "session").Logger(),
		state: Session{
			ChainID: InitialChainID,
			Network: table.Lookup(InitialChainID),
		},
	}
}

// Snapshot returns a copy of the current session.
func (m *Manager) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Session {
	s := m.state
	if s.Account != nil {
		acc := *s.Account
		s.Account = &acc
	}
	return s
}

// SubscribeUpdates delivers a snapshot after every state transition.
// The channel should be buffered; slow receivers delay the manager.
func (m *Manager) SubscribeUpdates(ch chan<- Session) event.Subscription {
	return m.updates.Subscribe(ch)
}

func (m *Manager) publish(s Session) {
	m.updates.Send(s)
}

// Connect requests accounts from the provider and loads chain and balance.
func (m *Manager) Connect(ctx context.Context) error {
	if m.provider == nil {
		m.notifier.Notify(types.Notice{
			Level:   types.NoticeAlert,
			Message: "No wallet provider found. Configure an RPC endpoint for the network to connect.",
		})
		return ErrProviderAbsent
	}

	accounts, err := m.provider.RequestAccounts(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("account request failed")
		return fmt.Errorf("failed to connect wallet: %w", err)
	}
	if len(accounts) == 0 {
		return wallet.ErrNoAccounts
	}

	m.mu.Lock()
	account := accounts[0]
	m.state.Account = &account
	m.state.Connected = true
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.log.Info().Str("account", account.Hex()).Msg("wallet connected")
	m.publish(snap)

	chainID, err := m.provider.ChainID(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to read chain id")
		return fmt.Errorf("failed to get chain id: %w", err)
	}

	m.OnChainChanged(ctx, chainID)
	return nil
}

// OnChainChanged resolves the network for chainID and refreshes the balance when connected.
func (m *Manager) OnChainChanged(ctx context.Context, chainID string) {
	desc := m.table.Lookup(chainID)

	m.mu.Lock()
	m.state.ChainID = desc.ChainID
	m.state.Network = desc
	account, connected := m.state.Account, m.state.Connected
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if desc.Supported {
		m.log.Info().Str("chain_id", desc.ChainID).Str("network", desc.Name).Msg("network changed")
	} else {
		m.log.Warn().Str("chain_id", desc.ChainID).Msg("unsupported network")
	}
	m.publish(snap)

	if connected && account != nil {
		_ = m.FetchBalance(ctx, *account)
	}
}

// OnAccountsChanged adopts the first account, or resets the session when none remain.
func (m *Manager) OnAccountsChanged(ctx context.Context, accounts []common.Address) {
	if len(accounts) == 0 {
		m.mu.Lock()
		m.state.Account = nil
		m.state.Balance = ""
		m.state.Connected = false
		// In-flight balance fetches belong to the old account
		m.balanceGen++
		snap := m.snapshotLocked()
		m.mu.Unlock()

		m.log.Info().Msg("wallet disconnected")
		m.publish(snap)
		return
	}

	account := accounts[0]
	m.mu.Lock()
	m.state.Account = &account
	m.state.Connected = true
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.log.Info().Str("account", account.Hex()).Msg("account changed")
	m.publish(snap)

	_ = m.FetchBalance(ctx, account)
}

// FetchBalance loads the native balance of account.
// On failure the previously displayed balance is kept.
func (m *Manager) FetchBalance(ctx context.Context, account common.Address) error {
	if m.provider == nil {
		return ErrProviderAbsent
	}

	m.mu.Lock()
	m.balanceGen++
	gen := m.balanceGen
	m.mu.Unlock()

	wei, err := m.provider.BalanceAt(ctx, account)
	metrics.BalanceFetches.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		m.log.Warn().Err(err).Str("account", account.Hex()).Msg("balance fetch failed")
		return fmt.Errorf("failed to fetch balance: %w", err)
	}
	balance := units.FormatFixed(wei, units.NativeDecimals, balancePlaces)

	m.mu.Lock()
	if gen != m.balanceGen || m.state.Account == nil || *m.state.Account != account {
		m.mu.Unlock()
		m.log.Debug().Str("account", account.Hex()).Msg("discarding stale balance")
		return nil
	}
	m.state.Balance = balance
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.log.Debug().Str("account", account.Hex()).Str("balance", balance).Msg("balance updated")
	m.publish(snap)
	return nil
}

// Start subscribes to provider notifications and applies them until Stop or ctx ends.
func (m *Manager) Start(ctx context.Context) error {
	if m.provider == nil {
		return ErrProviderAbsent
	}

	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.done != nil {
		return ErrAlreadyStarted
	}

	chainCh := make(chan string, 4)
	accountsCh := make(chan []common.Address, 4)
	chainSub := m.provider.SubscribeChainChanged(chainCh)
	accountsSub := m.provider.SubscribeAccountsChanged(accountsCh)

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.loop(ctx, chainCh, accountsCh, chainSub, accountsSub, m.done)
	return nil
}

// Stop unsubscribes from the provider and waits for the event loop to exit.
func (m *Manager) Stop() {
	m.runMu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Manager) loop(ctx context.Context, chainCh <-chan string, accountsCh <-chan []common.Address,
	chainSub, accountsSub event.Subscription, done chan struct{}) {
	defer close(done)
	defer accountsSub.Unsubscribe()
	defer chainSub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case chainID := <-chainCh:
			m.OnChainChanged(ctx, chainID)
		case accounts := <-accountsCh:
			m.OnAccountsChanged(ctx, accounts)
		case err := <-chainSub.Err():
			if err != nil {
				m.log.Error().Err(err).Msg("chain subscription failed")
			}
			return
		case err := <-accountsSub.Err():
			if err != nil {
				m.log.Error().Err(err).Msg("accounts subscription failed")
			}
			return
		}
	}
}
