package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"golang.org/x/term"

	"evm-swap/config"
	"evm-swap/pkg/client"
	"evm-swap/pkg/network"
	"evm-swap/pkg/session"
	"evm-swap/pkg/swap"
	"evm-swap/pkg/types"
	"evm-swap/pkg/wallet"
)

// app bundles the components a command needs.
type app struct {
	cfg      *config.Config
	table    *network.Table
	evm      *wallet.EVMProvider // nil when no RPC endpoint is configured
	provider wallet.Provider     // nil interface when evm is nil
	notifier types.Notifier
	session  *session.Manager
}

// newApp dials the configured RPC endpoint, if any, and builds the session.
func newApp(ctx context.Context, jsonOutput bool) (*app, error) {
	cfg := config.Get()
	a := &app{
		cfg:      cfg,
		table:    network.Default(),
		notifier: cliNotifier{json: jsonOutput},
	}

	if cfg.HasProvider() {
		opts := wallet.Options{
			RPCURLs:      cfg.RPCURLs,
			DefaultChain: cfg.DefaultChain,
			PrivateKey:   cfg.PrivateKey,
			Logger:       log,
		}
		if cfg.PrivateKey == "" && cfg.PromptKey {
			opts.KeyPrompt = promptPrivateKey
		}

		evm, err := wallet.NewEVMProvider(ctx, opts)
		if err != nil {
			return nil, err
		}
		a.evm = evm
		a.provider = evm
	} else {
		log.Debug().Str("chain_id", cfg.DefaultChain).Msg("no RPC endpoint configured; wallet provider absent")
	}

	a.session = session.NewManager(a.provider, a.table, a.notifier, log)
	return a, nil
}

// controller builds a quote controller priced on desc.
func (a *app) controller(desc network.Descriptor) *swap.Controller {
	opts := swap.ControllerOptions{
		Metadata: client.NewCoinGeckoClient(client.Options{
			BaseURL:       a.cfg.Metadata.BaseURL,
			APIKey:        a.cfg.Metadata.APIKey,
			RatePerSecond: a.cfg.Metadata.RatePerSecond,
		}),
		Network:         desc,
		RefreshInterval: a.cfg.RefreshInterval,
		Logger:          log,
	}
	if a.provider != nil {
		opts.Contracts = swap.ProviderContracts{Provider: a.provider}
	}
	return swap.NewController(opts)
}

// executor builds a swap executor bound to the session.
func (a *app) executor() *swap.Executor {
	return swap.NewExecutor(swap.ExecutorOptions{
		Provider:       a.provider,
		Session:        a.session,
		Notifier:       a.notifier,
		Logger:         log,
		ConfirmTimeout: a.cfg.ConfirmTimeout,
	})
}

// requireProvider fails when no RPC endpoint is configured.
func (a *app) requireProvider() error {
	if a.evm == nil {
		a.notifier.Notify(types.Notice{
			Level:   types.NoticeAlert,
			Message: fmt.Sprintf("No RPC endpoint for chain %s. Set rpc_urls in .evm-swap.yaml or EVM_SWAP_RPC_URL.", a.cfg.DefaultChain),
		})
		return swap.ErrProviderAbsent
	}
	return nil
}

func (a *app) Close() {
	if a.evm != nil {
		a.evm.Close()
	}
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// promptPrivateKey reads a private key from the terminal without echoing it.
func promptPrivateKey() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal")
	}

	fmt.Fprint(os.Stderr, "Private key (input hidden): ")
	key, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(key), nil
}

// cliNotifier prints user notices to the terminal.
type cliNotifier struct {
	json bool
}

func (n cliNotifier) Notify(notice types.Notice) {
	if n.json {
		fmt.Fprintf(os.Stderr, "%s: %s\n", notice.Level, notice.Message)
		return
	}

	switch notice.Level {
	case types.NoticeAlert:
		fmt.Fprintf(os.Stderr, "\n%s %s\n", color.RedString("!"), notice.Message)
	case types.NoticeSuccess:
		fmt.Printf("\n%s %s\n", color.GreenString("✓"), notice.Message)
	default:
		fmt.Printf("\n%s %s\n", color.CyanString("•"), notice.Message)
	}
}
