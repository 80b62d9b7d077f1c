// Package wallet defines the wallet capability the session and swap code are
// given, and its go-ethereum implementation.
package wallet

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

var (
	// ErrNoAccounts indicates the provider has no account to expose.
	ErrNoAccounts = errors.New("wallet has no accounts")

	// ErrRequestRejected indicates the user declined the account request.
	ErrRequestRejected = errors.New("user rejected the request")

	// ErrUnknownAccount indicates a signing request for an account the wallet does not hold.
	ErrUnknownAccount = errors.New("unknown account")

	// ErrUnknownChain indicates a switch to a chain with no configured RPC endpoint.
	ErrUnknownChain = errors.New("unrecognized chain id")
)

// Provider is the wallet capability handed to the session manager and swap executor.
//
// Change notifications are delivered through event.Subscription values; calling
// Unsubscribe on them is the teardown for the corresponding subscription.
type Provider interface {
	// RequestAccounts asks the wallet to expose its accounts.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// ChainID returns the current chain id as a hex string.
	ChainID(ctx context.Context) (string, error)
	// BalanceAt returns the native balance of account in wei.
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)

	SubscribeChainChanged(ch chan<- string) event.Subscription
	SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription

	// Backend is used for contract reads and to broadcast signed transactions.
	Backend() bind.ContractBackend
	// Transactor returns signing options for account.
	Transactor(ctx context.Context, account common.Address) (*bind.TransactOpts, error)
	// WaitMined blocks until tx is included and returns its receipt.
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}
