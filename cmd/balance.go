package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dappcoin/coinctl/internal/token"
	"github.com/dappcoin/coinctl/internal/ui"
)

var balanceCmd = &cobra.Command{
	Use:   "balance <address>",
	Short: "Show Coin and ETH balances for an address",
	Long: `One-shot read of the token balance (smallest unit) and the native
balance for an address.

Examples:
  coinctl balance 0xd8da6bf26964af9d7eed9e03e53415d37aa96045
  coinctl balance 0xd8da... --rpc http://localhost:8545`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address := args[0]
		prov := newProvider()
		gw := token.NewGateway(cfg.Binding(), prov)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if verbose {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
			slog.Debug("reading balances", "address", address, "contract", cfg.Binding().Address)
		}

		tokenBal, err := gw.BalanceOf(ctx, address)
		if err != nil {
			return fmt.Errorf("reading token balance: %w", err)
		}
		nativeBal, err := prov.NativeBalance(ctx, address)
		if err != nil {
			return fmt.Errorf("reading native balance: %w", err)
		}

		fmt.Println(ui.StyleMeta.Render("account  ") + ui.StyleAddress.Render(address))
		fmt.Println(ui.StyleMeta.Render("Coin     ") + ui.StyleValue.Render(tokenBal.String()))
		fmt.Println(ui.StyleMeta.Render("ETH      ") + ui.StyleValue.Render(ui.FormatWei(nativeBal)))
		return nil
	},
}
