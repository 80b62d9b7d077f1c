package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"evm-swap/pkg/network"
	"evm-swap/pkg/parser"
	"evm-swap/pkg/swap"
	"evm-swap/pkg/types"
)

var (
	quoteProtocol string
	watchQuote    bool
)

var quoteCmd = &cobra.Command{
	Use:   "quote <amount> <token-address>",
	Short: "Estimate how many tokens a native amount buys",
	Long: `Quote a swap of native currency into an ERC20 token through the router of
the selected protocol on the wallet's current network. The estimate comes from
the router's getAmountsOut over the [WETH, token] path.

With --watch the quote is refreshed periodically (refresh_interval) until
interrupted.

Examples:
  evm-swap quote 0.01 0x6B175474E89094C44Da98b954EedeAC495271d0F
  evm-swap quote 1 0x6B175474E89094C44Da98b954EedeAC495271d0F --protocol SushiSwap --watch`,
	Args: cobra.ExactArgs(2),
	Run:  runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().StringVar(&quoteProtocol, "protocol", "", "DEX protocol (default: first router on the network)")
	quoteCmd.Flags().BoolVarP(&watchQuote, "watch", "w", false, "Keep refreshing the quote")
}

func runQuote(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	req := types.QuoteRequest{
		Amount:       args[0],
		TokenAddress: args[1],
		Protocol:     quoteProtocol,
	}
	if err := parser.ValidateQuoteRequest(&req); err != nil {
		printError(err)
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

	chainID, err := a.provider.ChainID(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	a.session.OnChainChanged(ctx, chainID)
	desc := a.session.Snapshot().Network

	ctrl := a.controller(desc)
	if err := ctrl.SetRequest(req); err != nil {
		printError(err)
		os.Exit(1)
	}

	if watchQuote {
		watchQuotes(ctx, a, ctrl, req, jsonOutput)
		return
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching quote..."
		s.Start()
	}
	err = ctrl.Refresh(ctx)
	if !jsonOutput {
		s.Stop()
	}

	result := ctrl.Snapshot()
	printQuote(desc, req, result, jsonOutput)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
}

func watchQuotes(ctx context.Context, a *app, ctrl *swap.Controller, req types.QuoteRequest, jsonOutput bool) {
	results := make(chan types.QuoteResult, 16)
	sub := ctrl.SubscribeResults(results)
	defer sub.Unsubscribe()

	// Network changes from the provider reset the quote
	if err := a.session.Start(ctx); err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.session.Stop()
	go func() { _ = ctrl.Follow(ctx, a.session) }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ctrl.Run(ctx)
	}()

	if !jsonOutput {
		fmt.Printf("\nRefreshing every %s. Press Ctrl+C to stop.\n", a.cfg.RefreshInterval)
	}
	for {
		select {
		case <-ctx.Done():
			<-done
			return
		case r := <-results:
			if r.Status == types.QuotePriced || r.Status == types.QuoteErrored {
				printQuote(ctrl.Network(), req, r, jsonOutput)
			}
		}
	}
}

func printQuote(desc network.Descriptor, req types.QuoteRequest, r types.QuoteResult, jsonOutput bool) {
	protocol := req.Protocol
	if protocol == "" {
		protocol = desc.DefaultProtocol()
	}

	if jsonOutput {
		output := map[string]interface{}{
			"network":       desc.Name,
			"chain_id":      desc.ChainID,
			"protocol":      protocol,
			"amount_in":     req.Amount,
			"currency":      desc.Currency,
			"token_address": req.TokenAddress,
			"estimate":      r.Estimate,
			"status":        r.Status,
			"token":         r.Token,
		}
		if r.Error != "" {
			output["error"] = r.Error
		}
		jsonData, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	tokenLabel := req.TokenAddress
	if r.Token != nil {
		tokenLabel = fmt.Sprintf("%s (%s)", r.Token.Name, r.Token.Symbol)
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     SWAP QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Network:    %s via %s\n", desc.Name, color.CyanString(protocol))
	fmt.Printf("  From:       %s %s\n", req.Amount, color.YellowString(desc.Currency))
	if r.Status == types.QuoteErrored {
		fmt.Printf("  To:         %s %s\n", color.RedString(types.EstimateError), tokenLabel)
	} else {
		fmt.Printf("  To:         ~%s %s\n", r.Estimate, color.YellowString(tokenLabel))
	}
	fmt.Printf("  Token:      %s\n", color.HiBlackString(req.TokenAddress))
	if r.Token != nil && r.Token.LogoURL != "" {
		fmt.Printf("  Logo:       %s\n", color.HiBlackString(r.Token.LogoURL))
	}
	fmt.Printf("  Updated:    %s\n", time.Now().Format("15:04:05"))

	fmt.Println("\n" + strings.Repeat("=", 60))
}
