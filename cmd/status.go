package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"evm-swap/pkg/wallet"
)

var (
	watchStatus   bool
	watchInterval time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status <tx-hash>",
	Short: "Check the status of a swap transaction",
	Long: `Check whether a swap transaction is pending, confirmed or reverted on the
wallet's current network.

Examples:
  evm-swap status 0x5c50...9a1e
  evm-swap status 0x5c50...9a1e --watch
  evm-swap status 0x5c50...9a1e --watch --interval 10s`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Poll until the transaction is mined")
	statusCmd.Flags().DurationVar(&watchInterval, "interval", 5*time.Second, "Polling interval (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) {
	txHash := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if !isTxHash(txHash) {
		printError(fmt.Errorf("invalid transaction hash %q", txHash))
		os.Exit(1)
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, jsonOutput)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.requireProvider(); err != nil {
		printError(err)
		os.Exit(1)
	}

	if watchStatus {
		watchTxStatus(ctx, a.evm, txHash, jsonOutput)
	} else {
		checkTxStatus(ctx, a.evm, txHash, jsonOutput)
	}
}

func isTxHash(s string) bool {
	b, err := hexutil.Decode(s)
	return err == nil && len(b) == common.HashLength
}

func checkTxStatus(ctx context.Context, evm *wallet.EVMProvider, txHash string, jsonOutput bool) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Checking transaction status..."
		s.Start()
	}

	status, err := evm.TransactionStatus(ctx, txHash)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(status, "", "  ")
		fmt.Println(string(jsonData))
	} else {
		displayStatus(status)
	}
}

func watchTxStatus(ctx context.Context, evm *wallet.EVMProvider, txHash string, jsonOutput bool) {
	if jsonOutput {
		fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
		os.Exit(1)
	}

	fmt.Printf("\nWatching transaction %s\n", color.CyanString(txHash))
	fmt.Printf("Checking every %s. Press Ctrl+C to stop.\n\n", watchInterval)

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		if mined := checkAndDisplayStatus(ctx, evm, txHash); mined {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// checkAndDisplayStatus reports whether the transaction has been mined.
func checkAndDisplayStatus(ctx context.Context, evm *wallet.EVMProvider, txHash string) bool {
	status, err := evm.TransactionStatus(ctx, txHash)
	if err != nil {
		color.Red("Error: %v", err)
		return false
	}

	displayStatus(status)
	return !status.Pending
}

func displayStatus(status *wallet.TxStatus) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                     TRANSACTION STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Tx Hash:       %s\n", color.CyanString(status.Hash))
	fmt.Printf("  Status:        %s\n", getColoredStatus(status))
	fmt.Printf("  To:            %s\n", color.HiBlackString(status.To))
	fmt.Printf("  Value (wei):   %s\n", status.Value)
	fmt.Printf("  Nonce:         %d\n", status.Nonce)
	fmt.Printf("  Gas Limit:     %d\n", status.GasLimit)
	if !status.Pending {
		fmt.Printf("  Block:         %d\n", status.BlockNumber)
		fmt.Printf("  Gas Used:      %d\n", status.GasUsed)
	}
	fmt.Printf("  Checked:       %s\n", time.Now().Format("2006-01-02 15:04:05"))

	fmt.Println("\n" + strings.Repeat("=", 70))
}

func getColoredStatus(status *wallet.TxStatus) string {
	switch {
	case status.Pending:
		return color.YellowString("PENDING")
	case status.Succeeded:
		return color.GreenString("SUCCESS")
	default:
		return color.RedString("REVERTED")
	}
}
