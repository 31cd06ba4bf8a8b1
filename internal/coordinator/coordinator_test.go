package coordinator

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dappcoin/coinctl/internal/feed"
	"github.com/dappcoin/coinctl/internal/provider"
	"github.com/dappcoin/coinctl/internal/session"
	"github.com/dappcoin/coinctl/internal/token"
)

const (
	acctA = "0xd8da6bf26964af9d7eed9e03e53415d37aa96045"
	acctB = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
	peer  = "0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc"
)

const tick = 5 * time.Millisecond

// txStateLog records every transaction state the session passes through.
type txStateLog struct {
	mu     sync.Mutex
	states []session.TxState
}

func (l *txStateLog) record(s session.TxState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n := len(l.states); n == 0 || l.states[n-1] != s {
		l.states = append(l.states, s)
	}
}

func (l *txStateLog) all() []session.TxState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]session.TxState(nil), l.states...)
}

func newTestFake() *provider.Fake {
	f := provider.NewFake(token.DeploymentChainID, acctA)
	f.SetMinter(acctB)
	f.SetNative(acctA, big.NewInt(1e18))
	f.SetTokenBalance(acctA, big.NewInt(500))
	return f
}

func newTestCoordinator(t *testing.T, f *provider.Fake) (*Coordinator, *txStateLog) {
	t.Helper()
	gw := token.NewGateway(token.DefaultBinding(), f, token.WithPollInterval(tick))
	watcher := feed.NewWatcher(f, token.ContractAddress, feed.WithInterval(tick))

	sess := session.New()
	c := New(sess, f, gw, watcher)
	t.Cleanup(c.Close)

	log := &txStateLog{}
	c.Subscribe(func() { log.record(sess.Snapshot().Tx.State) })
	return c, log
}

func connectAndWait(t *testing.T, c *Coordinator) {
	t.Helper()
	require.NoError(t, c.Connect())
	require.Eventually(t, func() bool {
		return c.Snapshot().Status == session.Connected
	}, 2*time.Second, tick, "connect did not complete")
}

func waitForTxState(t *testing.T, c *Coordinator, want session.TxState) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Snapshot().Tx.State == want
	}, 2*time.Second, tick, "transaction never reached %s", want)
}

func TestConnectPublishesAtomicView(t *testing.T) {
	f := newTestFake()
	c, _ := newTestCoordinator(t, f)

	connectAndWait(t, c)

	snap := c.Snapshot()
	assert.Equal(t, acctA, snap.Account)
	assert.Equal(t, token.DeploymentChainID, snap.NetworkID)
	assert.True(t, snap.NetworkKnown)
	assert.False(t, snap.WrongNetwork)
	assert.Equal(t, int64(500), snap.TokenBalance.Int64())
	assert.Equal(t, big.NewInt(1e18), snap.NativeBalance)
	assert.False(t, snap.IsPrivileged)
	assert.Empty(t, snap.LastError)
}

func TestConnectNoProvider(t *testing.T) {
	f := newTestFake()
	f.Unavailable = true
	c, _ := newTestCoordinator(t, f)

	require.NoError(t, c.Connect())
	require.Eventually(t, func() bool {
		return c.Snapshot().LastError != ""
	}, 2*time.Second, tick)

	snap := c.Snapshot()
	assert.Equal(t, session.Disconnected, snap.Status)
	assert.Equal(t, "no wallet provider detected", snap.LastError)
	assert.Empty(t, snap.Account)

	// Retrying connect after the wallet appears is safe.
	f.Unavailable = false
	connectAndWait(t, c)
	assert.Equal(t, acctA, c.Snapshot().Account)
}

func TestConnectUserRejected(t *testing.T) {
	f := newTestFake()
	f.RejectConnect = true
	c, _ := newTestCoordinator(t, f)

	require.NoError(t, c.Connect())
	require.Eventually(t, func() bool {
		return c.Snapshot().LastError == "request rejected in wallet"
	}, 2*time.Second, tick)
	assert.Equal(t, session.Disconnected, c.Snapshot().Status)
}

func TestTransferLifecycle(t *testing.T) {
	f := newTestFake()
	f.PendingPolls = 2
	c, log := newTestCoordinator(t, f)

	connectAndWait(t, c)
	c.SetRecipient(peer)
	c.SetAmount("100")
	require.NoError(t, c.SubmitTransfer())

	waitForTxState(t, c, session.TxConfirmed)
	require.Eventually(t, func() bool {
		return c.Snapshot().TokenBalance.Int64() == 400
	}, 2*time.Second, tick, "balance not refreshed after confirmation")

	snap := c.Snapshot()
	assert.Equal(t, session.ActionTransfer, snap.Tx.Action)
	assert.NotEmpty(t, snap.Tx.Hash)
	assert.Equal(t, int64(100), f.TokenBalance(peer).Int64())

	// Idle → AwaitingSignature → Broadcast → Confirmed, in order.
	states := log.all()
	idxAwait := indexOf(states, session.TxAwaitingSignature)
	idxBroadcast := indexOf(states, session.TxBroadcast)
	idxConfirmed := indexOf(states, session.TxConfirmed)
	require.GreaterOrEqual(t, idxAwait, 0)
	assert.Greater(t, idxBroadcast, idxAwait)
	assert.Greater(t, idxConfirmed, idxBroadcast)
}

func TestTransferRejectedLeavesBalances(t *testing.T) {
	f := newTestFake()
	f.RejectSign = true
	c, _ := newTestCoordinator(t, f)

	connectAndWait(t, c)
	before := c.Snapshot()

	c.SetRecipient(peer)
	c.SetAmount("100")
	require.NoError(t, c.SubmitTransfer())

	waitForTxState(t, c, session.TxFailed)
	snap := c.Snapshot()
	assert.Equal(t, before.TokenBalance, snap.TokenBalance)
	assert.Equal(t, before.NativeBalance, snap.NativeBalance)
	assert.Equal(t, "request rejected in wallet", snap.LastError)
}

func TestTransferRevertedLeavesBalances(t *testing.T) {
	f := newTestFake()
	f.RevertNext = true
	c, _ := newTestCoordinator(t, f)

	connectAndWait(t, c)
	c.SetRecipient(peer)
	c.SetAmount("100")
	require.NoError(t, c.SubmitTransfer())

	waitForTxState(t, c, session.TxFailed)
	snap := c.Snapshot()
	assert.Equal(t, int64(500), snap.TokenBalance.Int64())
	assert.Equal(t, "transaction failed", snap.LastError)
}

func TestTransferInvalidArgumentFailsBeforeWallet(t *testing.T) {
	f := newTestFake()
	c, _ := newTestCoordinator(t, f)

	connectAndWait(t, c)
	c.SetRecipient("not-an-address")
	c.SetAmount("100")

	err := c.SubmitTransfer()
	assert.ErrorIs(t, err, token.ErrInvalidArgument)
	assert.Zero(t, f.SendCalls)
	assert.Equal(t, session.TxIdle, c.Snapshot().Tx.State)
}

func TestMintRequiresPrivilege(t *testing.T) {
	f := newTestFake() // minter is acctB, we connect as acctA
	c, _ := newTestCoordinator(t, f)

	connectAndWait(t, c)
	require.False(t, c.Snapshot().IsPrivileged)

	c.SetMintRecipient(peer)
	c.SetMintAmount("50")

	err := c.SubmitMint()
	assert.ErrorIs(t, err, ErrNotPrivileged)
	assert.Zero(t, f.SendCalls, "mint guard must fire before any wallet call")
	assert.Equal(t, session.TxIdle, c.Snapshot().Tx.State)
}

func TestMintByPrivilegedAccount(t *testing.T) {
	f := newTestFake()
	f.SetMinter(acctA)
	c, _ := newTestCoordinator(t, f)

	connectAndWait(t, c)
	require.True(t, c.Snapshot().IsPrivileged)

	c.SetMintRecipient(peer)
	c.SetMintAmount("50")
	require.NoError(t, c.SubmitMint())

	waitForTxState(t, c, session.TxConfirmed)
	assert.Equal(t, session.ActionMint, c.Snapshot().Tx.Action)
	assert.Equal(t, int64(50), f.TokenBalance(peer).Int64())
}

func TestWrongNetworkBlocksSubmission(t *testing.T) {
	f := newTestFake()
	f.ChangeNetwork(1) // contract lives on another chain
	c, _ := newTestCoordinator(t, f)

	connectAndWait(t, c)
	require.True(t, c.Snapshot().WrongNetwork)

	c.SetRecipient(peer)
	c.SetAmount("100")

	err := c.SubmitTransfer()
	assert.ErrorIs(t, err, ErrWrongNetwork)
	assert.Zero(t, f.SendCalls, "wrong-network guard must fire before any wallet call")
	assert.NotEmpty(t, c.Snapshot().LastError)
	assert.Equal(t, session.TxIdle, c.Snapshot().Tx.State)
}

func TestNetworkChangeSetsWarning(t *testing.T) {
	f := newTestFake()
	c, _ := newTestCoordinator(t, f)

	connectAndWait(t, c)
	require.False(t, c.Snapshot().WrongNetwork)

	f.ChangeNetwork(1)
	require.Eventually(t, func() bool {
		return c.Snapshot().WrongNetwork
	}, 2*time.Second, tick)
	assert.Equal(t, int64(1), c.Snapshot().NetworkID)

	err := c.SubmitTransfer()
	assert.ErrorIs(t, err, ErrWrongNetwork)
}

func TestStaleSubmissionDiscardedAfterAccountSwitch(t *testing.T) {
	f := newTestFake()
	f.PendingPolls = 1 << 30 // park the submission in Broadcast
	c, _ := newTestCoordinator(t, f)

	connectAndWait(t, c)
	c.SetRecipient(peer)
	c.SetAmount("100")
	require.NoError(t, c.SubmitTransfer())
	waitForTxState(t, c, session.TxBroadcast)

	// Switch accounts: disconnect, wallet now exposes acctB, reconnect.
	c.Disconnect()
	f.SetAccounts(acctB)
	f.SetTokenBalance(acctB, big.NewInt(77))
	connectAndWait(t, c)
	require.Equal(t, acctB, c.Snapshot().Account)

	// Let the old submission mine; its terminal callback carries a
	// stale account tag and must not touch the new session view.
	f.ReleasePending()
	time.Sleep(20 * tick)

	snap := c.Snapshot()
	assert.Equal(t, acctB, snap.Account)
	assert.Equal(t, session.TxIdle, snap.Tx.State)
	assert.Equal(t, int64(77), snap.TokenBalance.Int64())
}

func TestNewSubmissionSupersedesOld(t *testing.T) {
	f := newTestFake()
	f.PendingPolls = 1 << 30
	c, _ := newTestCoordinator(t, f)

	connectAndWait(t, c)
	c.SetRecipient(peer)
	c.SetAmount("100")
	require.NoError(t, c.SubmitTransfer())
	waitForTxState(t, c, session.TxBroadcast)
	firstHash := c.Snapshot().Tx.Hash

	// Second submission overwrites the record (last-submission-wins).
	f.PendingPolls = 0
	c.SetAmount("25")
	require.NoError(t, c.SubmitTransfer())
	waitForTxState(t, c, session.TxConfirmed)
	assert.NotEqual(t, firstHash, c.Snapshot().Tx.Hash)

	// When the first submission eventually mines, its events are
	// discarded: the record still shows the second submission.
	f.ReleasePending()
	time.Sleep(20 * tick)
	assert.Equal(t, session.TxConfirmed, c.Snapshot().Tx.State)
	// Both transfers settle on chain regardless of display state.
	assert.Equal(t, int64(125), f.TokenBalance(peer).Int64())
}

func TestSubmitWhileDisconnected(t *testing.T) {
	f := newTestFake()
	c, _ := newTestCoordinator(t, f)

	err := c.SubmitTransfer()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, "connect a wallet first", c.Snapshot().LastError)
}

func TestIncomingTransferRefreshesBalance(t *testing.T) {
	f := newTestFake()
	f.SetTokenBalance(peer, big.NewInt(1000))
	c, _ := newTestCoordinator(t, f)

	connectAndWait(t, c)
	require.Equal(t, int64(500), c.Snapshot().TokenBalance.Int64())
	time.Sleep(10 * tick) // let the log watcher anchor at the current head

	// Someone else sends us tokens; the feed should trigger a re-read.
	sendTokens(t, f, peer, acctA, 40)
	require.Eventually(t, func() bool {
		return c.Snapshot().TokenBalance.Int64() == 540
	}, 2*time.Second, tick, "feed event did not refresh the balance")
}

// sendTokens mines one token transfer directly on the fake, bypassing
// the coordinator, to simulate another party sending to us.
func sendTokens(t *testing.T, f *provider.Fake, from, to string, amount int64) {
	t.Helper()
	sel := fmt.Sprintf("%x", crypto.Keccak256([]byte("send(address,uint256)"))[:4])
	calldata := "0x" + sel +
		fmt.Sprintf("%064s", strings.TrimPrefix(to, "0x")) +
		fmt.Sprintf("%064x", amount)

	ctx := context.Background()
	hash, err := f.SendTransaction(ctx, from, token.ContractAddress, calldata)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		receipt, err := f.TransactionReceipt(ctx, hash)
		require.NoError(t, err)
		if receipt != nil {
			require.Equal(t, uint64(1), receipt.Status)
			return
		}
	}
	t.Fatal("transfer never mined")
}

func indexOf(states []session.TxState, want session.TxState) int {
	for i, s := range states {
		if s == want {
			return i
		}
	}
	return -1
}
