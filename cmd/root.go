package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dappcoin/coinctl/internal/config"
	"github.com/dappcoin/coinctl/internal/provider"
)

// Version is the current release. Overridable via build ldflags:
//
//	go build -ldflags "-X github.com/dappcoin/coinctl/cmd.Version=1.2.3" .
var Version = "1.0.0"

var (
	cfgDir   string
	cfg      *config.Config
	rpcURL   string
	verbose  bool
	simulate bool
)

// rootCmd is the top-level command.
var rootCmd = &cobra.Command{
	Use:   "coinctl",
	Short: "Terminal client for the DApp Coin token",
	Long: `coinctl is a terminal client for the DApp Coin token contract.

  Connect a wallet, watch your Coin and ETH balances, transfer tokens,
  and (as the minter) mint new supply, with live confirmation tracking.

The wallet provider endpoint comes from the config file or --rpc.
Run without arguments to open the interactive session screen.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		var err error
		cfg, err = config.Load(cfgDir)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if rpcURL != "" {
			cfg.RPCURL = rpcURL
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newProvider builds the wallet provider for the current invocation.
// --simulate wires the in-memory fake with a funded demo account.
func newProvider() provider.Provider {
	if simulate {
		return newSimProvider()
	}
	return provider.NewRPC(cfg.RPCURL, time.Duration(cfg.PollSeconds)*time.Second)
}

func init() {
	// COINCTL_CONFIG_DIR env var overrides --config flag.
	if envDir := os.Getenv("COINCTL_CONFIG_DIR"); envDir != "" {
		cfgDir = envDir
	}

	rootCmd.PersistentFlags().StringVar(&cfgDir, "config", cfgDir, "config directory (default: ~/.coinctl)")
	rootCmd.PersistentFlags().StringVar(&rpcURL, "rpc", "", "wallet provider RPC endpoint")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&simulate, "simulate", false, "run against an in-memory simulated wallet and contract")

	rootCmd.AddCommand(
		appCmd,
		balanceCmd,
		minterCmd,
	)
}
