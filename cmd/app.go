package cmd

import (
	"math/big"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/dappcoin/coinctl/internal/coordinator"
	"github.com/dappcoin/coinctl/internal/feed"
	"github.com/dappcoin/coinctl/internal/provider"
	"github.com/dappcoin/coinctl/internal/session"
	"github.com/dappcoin/coinctl/internal/token"
	"github.com/dappcoin/coinctl/internal/ui"
)

// Demo identities for --simulate. The account doubles as the minter so
// the mint form is visible out of the box.
const (
	simAccount = "0xd8da6bf26964af9d7eed9e03e53415d37aa96045"
	simPeer    = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
)

var appCmd = &cobra.Command{
	Use:   "app",
	Short: "Open the interactive wallet session screen",
	Long: `Open the interactive session screen: connect a wallet, watch balances,
transfer Coin, and mint as the privileged account.

Examples:
  coinctl app
  coinctl app --rpc http://localhost:8545
  coinctl app --simulate`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp()
	},
}

func runApp() error {
	prov := newProvider()
	interval := time.Duration(cfg.PollSeconds) * time.Second

	gw := token.NewGateway(cfg.Binding(), prov, token.WithPollInterval(interval))
	watcher := feed.NewWatcher(prov, cfg.Binding().Address, feed.WithInterval(interval))
	sess := session.New()

	coord := coordinator.New(sess, prov, gw, watcher)
	defer coord.Close()

	prog := tea.NewProgram(ui.NewAppModel(coord), tea.WithInput(os.Stdin), tea.WithOutput(os.Stdout))
	coord.Subscribe(func() {
		go prog.Send(ui.SessionChangedMsg{})
	})

	_, err := prog.Run()
	return err
}

// newSimProvider seeds the fake wallet and contract model: one funded
// demo account (also the minter), a peer to send to, and a short pending
// window so the broadcast state is visible.
func newSimProvider() provider.Provider {
	f := provider.NewFake(cfg.Binding().ChainID, simAccount)
	f.SetMinter(simAccount)
	f.SetNative(simAccount, new(big.Int).Mul(big.NewInt(2), big.NewInt(1e18)))
	f.SetTokenBalance(simAccount, big.NewInt(500))
	f.SetTokenBalance(simPeer, big.NewInt(100))
	f.PendingPolls = 1
	return f
}
