package feed

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dappcoin/coinctl/internal/provider"
)

const (
	watchAcct  = "0xd8da6bf26964af9d7eed9e03e53415d37aa96045"
	watchPeer  = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
	watchToken = "0xfa95506583310999dc823f45caed5fae3c2ed1b9"
)

func transferCalldata(to string, amount int64) string {
	sel := fmt.Sprintf("%x", crypto.Keccak256([]byte("send(address,uint256)"))[:4])
	return "0x" + sel +
		fmt.Sprintf("%064s", strings.TrimPrefix(to, "0x")) +
		fmt.Sprintf("%064x", amount)
}

// confirmSend mines one transfer on the fake so a Sent log is emitted.
func confirmSend(t *testing.T, f *provider.Fake, from, to string, amount int64) {
	t.Helper()
	ctx := context.Background()
	hash, err := f.SendTransaction(ctx, from, watchToken, transferCalldata(to, amount))
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		receipt, err := f.TransactionReceipt(ctx, hash)
		require.NoError(t, err)
		if receipt != nil {
			require.Equal(t, uint64(1), receipt.Status)
			return
		}
	}
	t.Fatal("transaction never mined")
}

func newTestWatcher(f *provider.Fake) *Watcher {
	return NewWatcher(f, watchToken, WithInterval(5*time.Millisecond))
}

func TestWatchDeliversMatchingTransfers(t *testing.T) {
	f := provider.NewFake(1, watchAcct)
	f.SetTokenBalance(watchPeer, big.NewInt(1000))

	events := make(chan Incoming, 16)
	stop := newTestWatcher(f).Watch(watchAcct, func(inc Incoming) { events <- inc })
	defer stop()

	confirmSend(t, f, watchPeer, watchAcct, 70)

	select {
	case inc := <-events:
		assert.Equal(t, watchPeer, inc.From)
		assert.Equal(t, watchAcct, inc.To)
		assert.Equal(t, int64(70), inc.Amount.Int64())
		assert.NotEmpty(t, inc.TxHash)
	case <-time.After(2 * time.Second):
		t.Fatal("no incoming transfer delivered")
	}
}

func TestWatchIgnoresOtherRecipients(t *testing.T) {
	f := provider.NewFake(1, watchAcct)
	f.SetTokenBalance(watchPeer, big.NewInt(1000))

	events := make(chan Incoming, 16)
	stop := newTestWatcher(f).Watch(watchAcct, func(inc Incoming) { events <- inc })
	defer stop()

	// Transfer to someone else: the filtered listener stays silent.
	confirmSend(t, f, watchPeer, watchPeer, 10)

	select {
	case inc := <-events:
		t.Fatalf("unexpected event delivered: %+v", inc)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatchDoesNotReplayHistory(t *testing.T) {
	f := provider.NewFake(1, watchAcct)
	f.SetTokenBalance(watchPeer, big.NewInt(1000))

	// Mined before the listener registered: must not be replayed.
	confirmSend(t, f, watchPeer, watchAcct, 30)

	events := make(chan Incoming, 16)
	stop := newTestWatcher(f).Watch(watchAcct, func(inc Incoming) { events <- inc })
	defer stop()

	select {
	case inc := <-events:
		t.Fatalf("replayed historical event: %+v", inc)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatchFromGenesisReplays(t *testing.T) {
	f := provider.NewFake(1, watchAcct)
	f.SetTokenBalance(watchPeer, big.NewInt(1000))

	confirmSend(t, f, watchPeer, watchAcct, 30)

	w := NewWatcher(f, watchToken, WithInterval(5*time.Millisecond), FromGenesis())
	events := make(chan Incoming, 16)
	stop := w.Watch(watchAcct, func(inc Incoming) { events <- inc })
	defer stop()

	select {
	case inc := <-events:
		assert.Equal(t, int64(30), inc.Amount.Int64())
	case <-time.After(2 * time.Second):
		t.Fatal("historical event not replayed")
	}
}

func TestWatchStopTearsDownListener(t *testing.T) {
	f := provider.NewFake(1, watchAcct)
	f.SetTokenBalance(watchPeer, big.NewInt(1000))

	events := make(chan Incoming, 16)
	stop := newTestWatcher(f).Watch(watchAcct, func(inc Incoming) { events <- inc })

	stop()
	stop() // idempotent

	confirmSend(t, f, watchPeer, watchAcct, 70)

	select {
	case inc := <-events:
		t.Fatalf("event delivered after teardown: %+v", inc)
	case <-time.After(100 * time.Millisecond):
	}
}
