package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dappcoin/coinctl/internal/token"
	"github.com/dappcoin/coinctl/internal/ui"
)

var minterCmd = &cobra.Command{
	Use:   "minter",
	Short: "Show the privileged account authorized to mint",
	RunE: func(cmd *cobra.Command, args []string) error {
		prov := newProvider()
		gw := token.NewGateway(cfg.Binding(), prov)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		minter, err := gw.Minter(ctx)
		if err != nil {
			return fmt.Errorf("reading minter: %w", err)
		}

		fmt.Println(ui.StyleMeta.Render("minter   ") + ui.StyleAddress.Render(minter))
		return nil
	},
}
