package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"evm-swap/pkg/network"
)

var (
	filterProtocol string
	outputFormat   string
)

var networksCmd = &cobra.Command{
	Use:     "networks",
	Aliases: []string{"list-networks", "ls"},
	Short:   "List supported networks and their DEX routers",
	Long: `List every supported network with its native currency and the router
contracts quotes and swaps go through.

You can filter networks by protocol.

Examples:
  evm-swap networks
  evm-swap networks --protocol SushiSwap
  evm-swap networks --output yaml`,
	Args: cobra.NoArgs,
	Run:  runListNetworks,
}

func init() {
	rootCmd.AddCommand(networksCmd)

	networksCmd.Flags().StringVar(&filterProtocol, "protocol", "", "Only networks with a router for this protocol")
	networksCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, yaml")
}

func runListNetworks(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	table := network.Default()

	networks := table.All()
	if filterProtocol != "" {
		networks = table.WithProtocol(filterProtocol)
	}

	switch {
	case jsonOutput:
		jsonData, _ := json.MarshalIndent(networks, "", "  ")
		fmt.Println(string(jsonData))
	case strings.EqualFold(outputFormat, "yaml"):
		out, err := yaml.Marshal(map[string][]network.Descriptor{"networks": networks})
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		fmt.Print(string(out))
	case strings.EqualFold(outputFormat, "table"):
		displayNetworks(networks)
	default:
		printError(fmt.Errorf("unknown output format %q (expected table or yaml)", outputFormat))
		os.Exit(1)
	}
}

func displayNetworks(networks []network.Descriptor) {
	if len(networks) == 0 {
		fmt.Println("\nNo networks found matching the criteria.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	color.Green("                             SUPPORTED NETWORKS")
	fmt.Println(strings.Repeat("=", 80))

	routers := 0
	for _, d := range networks {
		color.Cyan("\n%s  %s", strings.ToUpper(d.Name), color.HiBlackString("chain %s, %s", d.ChainID, d.Currency))
		fmt.Println(strings.Repeat("-", 80))

		for _, r := range d.Routers {
			fmt.Printf("  %-15s  %s\n", color.YellowString(r.Protocol), color.HiBlackString(r.Address))
			routers++
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Printf("\nTotal: %d routers across %d networks\n\n", routers, len(networks))
}
