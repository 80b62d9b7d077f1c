package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"evm-swap/config"
	"evm-swap/pkg/logger"
	"evm-swap/pkg/metrics"
)

var (
	cfgFile     string
	logLevel    string
	metricsAddr string

	log           zerolog.Logger
	metricsServer *http.Server
)

var rootCmd = &cobra.Command{
	Use:   "evm-swap",
	Short: "A CLI wallet for swapping native currency into tokens on EVM DEX routers",
	Long: `evm-swap connects a local wallet key to an EVM JSON-RPC endpoint, shows the
account, network and native balance, and swaps native currency into ERC20
tokens through Uniswap-V2-style routers (UniswapV2, SushiSwap, PancakeSwapV2,
QuickSwap).

Examples:
  evm-swap wallet
  evm-swap networks --protocol SushiSwap
  evm-swap quote 0.01 0x6B175474E89094C44Da98b954EedeAC495271d0F --watch
  evm-swap swap 0.01 ETH to 0x6B175474E89094C44Da98b954EedeAC495271d0F --slippage 0.5%
  evm-swap status <tx-hash>`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: teardown,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default is $HOME/.evm-swap.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides log_level)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
}

// setup loads configuration and builds the logger before any command runs.
func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	config.Set(cfg)

	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	if verbose {
		level = zerolog.LevelDebugValue
	}
	log = logger.New(level, !jsonOutput)

	if metricsAddr != "" {
		metricsServer = metrics.Serve(metricsAddr)
		log.Info().Str("addr", metricsAddr).Msg("serving metrics")
	}
	return nil
}

func teardown(*cobra.Command, []string) {
	if metricsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(ctx)
}

func printError(err error) {
	fmt.Fprintf(os.Stderr, "\n%s %v\n\n", color.RedString("Error:"), err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", color.GreenString(message))
}
