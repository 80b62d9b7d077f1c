package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"evm-swap/pkg/network"
	"evm-swap/pkg/parser"
)

var (
	swapProtocol string
	swapSlippage string
	noConfirm    bool
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount> [symbol] to <token-address>",
	Short: "Swap native currency for an ERC20 token",
	Long: `Swap native currency for an ERC20 token through a Uniswap V2 style router on
the wallet's current network. The transaction calls swapExactETHForTokens with
a minimum output derived from a fresh quote and the slippage tolerance, and a
deadline ten minutes out.

The optional symbol must match the network's native currency.

Examples:
  evm-swap swap 0.01 ETH to 0x6B175474E89094C44Da98b954EedeAC495271d0F
  evm-swap swap 0.5 BNB to 0x55d398326f99059fF775485246999027B3197955 --protocol PancakeSwapV2
  evm-swap swap 0.01 to 0x6B175474E89094C44Da98b954EedeAC495271d0F --slippage 1% --yes`,
	Args: cobra.MinimumNArgs(3),
	Run:  runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().StringVar(&swapProtocol, "protocol", "", "DEX protocol (default: first router on the network)")
	swapCmd.Flags().StringVar(&swapSlippage, "slippage", "", "Slippage tolerance, e.g. 0.5% or 50bps (default: default_slippage_bps)")
	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
}

func runSwap(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	verbose, _ := cmd.Flags().GetBool("verbose")

	// Parse the command
	req, symbol, err := parser.ParseSwapCommand(strings.Join(args, " "))
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	req.Protocol = swapProtocol

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, jsonOutput)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.Close()

	req.SlippageBps = a.cfg.DefaultSlippageBps
	if swapSlippage != "" {
		if req.SlippageBps, err = parser.ParseSlippage(swapSlippage); err != nil {
			printError(err)
			os.Exit(1)
		}
	}
	if err := parser.ValidateQuoteRequest(req); err != nil {
		printError(err)
		os.Exit(1)
	}

	if err := a.requireProvider(); err != nil {
		printError(err)
		os.Exit(1)
	}

	// Connect the wallet
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Connecting wallet..."
		s.Start()
	}
	err = a.session.Connect(ctx)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	snap := a.session.Snapshot()
	if !snap.Network.Supported {
		printError(fmt.Errorf("network %s (%s) has no supported router", snap.Network.Name, snap.ChainID))
		os.Exit(1)
	}
	if symbol != "" && parser.NormalizeSymbol(symbol) != parser.NormalizeSymbol(snap.Network.Currency) {
		printError(fmt.Errorf("%s is not the native currency of %s (expected %s)", symbol, snap.Network.Name, snap.Network.Currency))
		os.Exit(1)
	}

	// Quote first so the user sees what they are signing
	ctrl := a.controller(snap.Network)
	if err := ctrl.SetRequest(*req); err != nil {
		printError(err)
		os.Exit(1)
	}
	if !jsonOutput {
		s.Suffix = " Fetching quote..."
		s.Start()
	}
	err = ctrl.Refresh(ctx)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	quote := ctrl.Snapshot()
	if !jsonOutput {
		printQuote(snap.Network, *req, quote, false)
		fmt.Printf("  Slippage:   %s\n", formatBps(req.SlippageBps))
		fmt.Printf("  Account:    %s\n", color.CyanString(snap.Account.Hex()))
		if verbose {
			fmt.Printf("  Balance:    %s %s\n", snap.Balance, snap.Network.Currency)
		}
	}

	// Ask for confirmation
	if !noConfirm && !jsonOutput {
		if !confirmSwap() {
			fmt.Println("\nSwap cancelled.")
			os.Exit(0)
		}
	}

	if !jsonOutput {
		s.Suffix = " Waiting for confirmation..."
		s.Start()
	}
	receipt, err := a.executor().Swap(ctx, *req)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		if receipt != nil {
			displayReceipt(snap.Network, receipt, jsonOutput)
		}
		printError(err)
		os.Exit(1)
	}

	displayReceipt(snap.Network, receipt, jsonOutput)
	if !jsonOutput {
		fmt.Println("\nYou can check the transaction later using:")
		color.Cyan("  evm-swap status %s\n", receipt.TxHash.Hex())
	}
}

func displayReceipt(desc network.Descriptor, receipt *types.Receipt, jsonOutput bool) {
	succeeded := receipt.Status == types.ReceiptStatusSuccessful

	if jsonOutput {
		output := map[string]interface{}{
			"network":      desc.Name,
			"chain_id":     desc.ChainID,
			"tx_hash":      receipt.TxHash.Hex(),
			"block_number": receipt.BlockNumber.Uint64(),
			"gas_used":     receipt.GasUsed,
			"succeeded":    succeeded,
		}
		jsonData, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                  SWAP TRANSACTION")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Tx Hash:    %s\n", color.CyanString(receipt.TxHash.Hex()))
	fmt.Printf("  Block:      %d\n", receipt.BlockNumber.Uint64())
	fmt.Printf("  Gas Used:   %d\n", receipt.GasUsed)
	if succeeded {
		fmt.Printf("  Status:     %s\n", color.GreenString("SUCCESS"))
	} else {
		fmt.Printf("  Status:     %s\n", color.RedString("REVERTED"))
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
}

// formatBps renders basis points as a percentage, e.g. 50 -> "0.50%".
func formatBps(bps uint32) string {
	return fmt.Sprintf("%d.%02d%%", bps/100, bps%100)
}

func confirmSwap() bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("\nProceed with swap? (y/N): ")

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
