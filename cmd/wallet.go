package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"evm-swap/pkg/network"
	"evm-swap/pkg/session"
)

var (
	walletChain     string
	watchWallet     bool
	walletLockAfter time.Duration
)

var walletCmd = &cobra.Command{
	Use:     "wallet",
	Aliases: []string{"connect", "account"},
	Short:   "Connect the wallet and show account, network and balance",
	Long: `Connect the configured wallet key and show the account, the network it is on
and its native balance.

With --watch the command keeps running and prints the session whenever the
network or account changes. --lock-after locks the wallet after the given
duration, which disconnects the session.

Examples:
  evm-swap wallet
  evm-swap wallet --chain 0x38
  evm-swap wallet --watch --lock-after 10m`,
	Args: cobra.NoArgs,
	Run:  runWallet,
}

func init() {
	rootCmd.AddCommand(walletCmd)

	walletCmd.Flags().StringVar(&walletChain, "chain", "", "Switch to this chain id (hex) after connecting")
	walletCmd.Flags().BoolVarP(&watchWallet, "watch", "w", false, "Keep running and print session changes")
	walletCmd.Flags().DurationVar(&walletLockAfter, "lock-after", 0, "Lock the wallet after this long (watch mode)")
}

func runWallet(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, jsonOutput)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.Close()

	// Follow provider events before connecting so a chain switch is applied
	if a.provider != nil {
		if err := a.session.Start(ctx); err != nil {
			printError(err)
			os.Exit(1)
		}
		defer a.session.Stop()
	}

	updates := make(chan session.Session, 16)
	sub := a.session.SubscribeUpdates(updates)
	defer sub.Unsubscribe()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Connecting wallet..."
		s.Start()
	}

	err = a.session.Connect(ctx)
	if err == nil && walletChain != "" && a.evm != nil {
		err = a.evm.SwitchChain(ctx, walletChain)
	}
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if walletChain != "" {
		// The chain switch reaches the session through the provider's event feed
		if waitForChain(a.session, updates, walletChain, chainSwitchTimeout) && !jsonOutput {
			printSuccess(fmt.Sprintf("Switched to %s", a.session.Snapshot().Network.Name))
		}
	}

	printSession(a.session.Snapshot(), jsonOutput)

	if !watchWallet {
		return
	}

	// Drop updates already shown by the snapshot above
	for len(updates) > 0 {
		<-updates
	}

	if walletLockAfter > 0 && a.evm != nil {
		timer := time.AfterFunc(walletLockAfter, a.evm.Lock)
		defer timer.Stop()
	}

	if !jsonOutput {
		fmt.Println("Watching wallet. Press Ctrl+C to stop.")
	}
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-updates:
			printSession(snap, jsonOutput)
		}
	}
}

// chainSwitchTimeout bounds how long the wallet command waits for a switched chain to show up.
const chainSwitchTimeout = 2 * time.Second

// snapshotter is the part of the session manager waitForChain reads.
type snapshotter interface {
	Snapshot() session.Session
}

// waitForChain waits until the session reports chainID or the timeout passes.
func waitForChain(s snapshotter, updates <-chan session.Session, chainID string, timeout time.Duration) bool {
	chainID = network.NormalizeChainID(chainID)
	if s.Snapshot().ChainID == chainID {
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case snap := <-updates:
			if snap.ChainID == chainID {
				return true
			}
		case <-timer.C:
			return s.Snapshot().ChainID == chainID
		}
	}
}

func printSession(s session.Session, jsonOutput bool) {
	if jsonOutput {
		jsonData, _ := json.MarshalIndent(s, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                       WALLET")
	fmt.Println(strings.Repeat("=", 60))

	if s.Connected && s.Account != nil {
		fmt.Printf("\n  Account:  %s\n", color.CyanString(s.Account.Hex()))
	} else {
		fmt.Printf("\n  Account:  %s\n", color.YellowString("not connected"))
	}

	name := s.Network.Name
	if !s.Network.Supported {
		name = color.YellowString(name)
	}
	fmt.Printf("  Network:  %s %s\n", name, color.HiBlackString("(%s)", s.ChainID))

	balance := s.Balance
	if balance == "" {
		balance = "-"
	}
	currency := s.Network.Currency
	if currency == "" {
		currency = "native"
	}
	fmt.Printf("  Balance:  %s %s\n", balance, color.YellowString(currency))

	fmt.Println("\n" + strings.Repeat("=", 60))
}
