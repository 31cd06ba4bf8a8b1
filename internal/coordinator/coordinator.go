// Package coordinator turns user intents into the observable wallet
// approval, broadcast, and confirmation sequence, keeping the session's
// displayed state consistent with on-chain truth.
//
// All session mutation happens on one event loop goroutine. Intents and
// async results arrive as messages; every in-flight operation is tagged
// with the account and a monotonic submission id so a late callback from
// a superseded submission or a previous account is discarded instead of
// corrupting current state.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/dappcoin/coinctl/internal/feed"
	"github.com/dappcoin/coinctl/internal/provider"
	"github.com/dappcoin/coinctl/internal/session"
	"github.com/dappcoin/coinctl/internal/token"
)

// Guard errors raised before any wallet or network contact.
var (
	ErrNotConnected  = errors.New("not connected")
	ErrNotPrivileged = errors.New("account is not authorized to mint")
	ErrWrongNetwork  = errors.New("wrong network")
	ErrClosed        = errors.New("coordinator closed")
)

// Coordinator owns the session and drives the connect and submission
// lifecycles against the provider and contract gateway.
type Coordinator struct {
	sess    *session.Session
	prov    provider.Provider
	gw      *token.Gateway
	watcher *feed.Watcher
	log     *slog.Logger

	msgs      chan func()
	done      chan struct{}
	closeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	// Loop-owned state. Touched only from the event loop goroutine.
	account      string
	connected    bool
	connecting   bool
	connectEpoch uint64
	subID        uint64
	stopFeed     func()
	stopNet      func()
	onChange     []func()

	recipient     string
	amount        string
	mintRecipient string
	mintAmount    string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets a debug logger (default: discard).
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// New creates a coordinator and starts its event loop.
func New(sess *session.Session, prov provider.Provider, gw *token.Gateway, watcher *feed.Watcher, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		sess:    sess,
		prov:    prov,
		gw:      gw,
		watcher: watcher,
		log:     slog.New(slog.DiscardHandler),
		msgs:    make(chan func(), 64),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.run()
	return c
}

func (c *Coordinator) run() {
	for {
		select {
		case <-c.done:
			return
		case fn := <-c.msgs:
			fn()
			for _, cb := range c.onChange {
				cb()
			}
		}
	}
}

// call posts fn to the event loop and waits for its result. Guard logic
// inside fn never performs I/O, so intents return promptly.
func (c *Coordinator) call(fn func() error) error {
	errc := make(chan error, 1)
	select {
	case c.msgs <- func() { errc <- fn() }:
	case <-c.done:
		return ErrClosed
	}
	select {
	case err := <-errc:
		return err
	case <-c.done:
		return ErrClosed
	}
}

// post queues an async result for the event loop without waiting.
func (c *Coordinator) post(fn func()) {
	select {
	case c.msgs <- fn:
	case <-c.done:
	}
}

// Subscribe registers cb to run after every applied session mutation.
// Used by the presentation layer to re-render; cb must not block.
func (c *Coordinator) Subscribe(cb func()) {
	_ = c.call(func() error {
		c.onChange = append(c.onChange, cb)
		return nil
	})
}

// Snapshot returns the current session view.
func (c *Coordinator) Snapshot() session.Snapshot { return c.sess.Snapshot() }

// Close tears down the feed listener, the network subscription, and the
// event loop. In-flight on-chain transactions proceed regardless.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		_ = c.call(func() error {
			c.teardownSubscriptions()
			return nil
		})
		c.cancel()
		close(c.done)
	})
}

func (c *Coordinator) teardownSubscriptions() {
	if c.stopFeed != nil {
		c.stopFeed()
		c.stopFeed = nil
	}
	if c.stopNet != nil {
		c.stopNet()
		c.stopNet = nil
	}
}

// --- intents ---

// SetRecipient stages the transfer recipient.
func (c *Coordinator) SetRecipient(addr string) {
	_ = c.call(func() error { c.recipient = strings.TrimSpace(addr); return nil })
}

// SetAmount stages the transfer amount (integer string, smallest unit).
func (c *Coordinator) SetAmount(amount string) {
	_ = c.call(func() error { c.amount = strings.TrimSpace(amount); return nil })
}

// SetMintRecipient stages the mint recipient.
func (c *Coordinator) SetMintRecipient(addr string) {
	_ = c.call(func() error { c.mintRecipient = strings.TrimSpace(addr); return nil })
}

// SetMintAmount stages the mint amount.
func (c *Coordinator) SetMintAmount(amount string) {
	_ = c.call(func() error { c.mintAmount = strings.TrimSpace(amount); return nil })
}

// Connect starts the connect flow. Safe to retry after a failure; a
// connect while already connected or connecting is a no-op.
func (c *Coordinator) Connect() error {
	return c.call(c.startConnect)
}

// Disconnect reverts the session to the disconnected state and tears
// down the per-account subscriptions. In-flight submissions keep running
// on chain; their callbacks are discarded because the account tag no
// longer matches.
func (c *Coordinator) Disconnect() {
	_ = c.call(func() error {
		c.teardownSubscriptions()
		c.connected = false
		c.connecting = false
		c.connectEpoch++
		c.account = ""
		c.sess.SetDisconnected("")
		return nil
	})
}

// SubmitTransfer submits the staged transfer intent. Guard failures are
// returned synchronously before any wallet contact.
func (c *Coordinator) SubmitTransfer() error {
	return c.call(func() error { return c.submit(session.ActionTransfer) })
}

// SubmitMint submits the staged mint intent. Requires the connected
// account to be the privileged minter (the contract still has the final
// word and may revert).
func (c *Coordinator) SubmitMint() error {
	return c.call(func() error { return c.submit(session.ActionMint) })
}

// --- connect flow ---

func (c *Coordinator) startConnect() error {
	if c.connected || c.connecting {
		return nil
	}
	c.connecting = true
	c.connectEpoch++
	epoch := c.connectEpoch
	c.sess.SetConnecting()

	go func() {
		result, err := c.dial()
		c.post(func() {
			if epoch != c.connectEpoch {
				c.log.Debug("discarding stale connect result", "epoch", epoch)
				return
			}
			c.connecting = false
			if err != nil {
				c.log.Debug("connect failed", "err", err)
				c.sess.SetDisconnected(userMessage(err))
				return
			}
			c.finishConnect(result)
		})
	}()
	return nil
}

type connectResult struct {
	account      string
	networkID    int64
	native       *big.Int
	tokenBalance *big.Int
	minter       string
}

// dial runs the provider/gateway chain off the event loop. Any failure
// aborts the whole connect so a half-connected session is never shown.
func (c *Coordinator) dial() (*connectResult, error) {
	accounts, err := c.prov.RequestAccounts(c.ctx)
	if err != nil {
		return nil, err
	}
	account := accounts[0]

	networkID, err := c.prov.NetworkID(c.ctx)
	if err != nil {
		return nil, err
	}
	native, err := c.prov.NativeBalance(c.ctx, account)
	if err != nil {
		return nil, err
	}
	tokenBal, err := c.gw.BalanceOf(c.ctx, account)
	if err != nil {
		return nil, err
	}
	minter, err := c.gw.Minter(c.ctx)
	if err != nil {
		return nil, err
	}

	return &connectResult{
		account:      account,
		networkID:    networkID,
		native:       native,
		tokenBalance: tokenBal,
		minter:       minter,
	}, nil
}

// finishConnect publishes the connected view atomically and attaches the
// per-account subscriptions. Runs on the event loop.
func (c *Coordinator) finishConnect(r *connectResult) {
	c.connected = true
	c.account = r.account
	wrong := r.networkID != c.gw.Binding().ChainID
	privileged := strings.EqualFold(r.minter, r.account)

	c.sess.SetConnected(r.account, r.networkID, wrong, r.native, r.tokenBalance, privileged)
	c.log.Debug("connected", "account", r.account, "network", r.networkID, "privileged", privileged)

	// Old listeners first, so an account switch can never leave two
	// feeds refreshing balances for different accounts.
	c.teardownSubscriptions()

	account := r.account
	c.stopFeed = c.watcher.Watch(account, func(inc feed.Incoming) {
		c.post(func() {
			if c.account != account {
				c.log.Debug("discarding feed event for stale account", "account", account)
				return
			}
			c.log.Debug("incoming transfer", "from", inc.From, "amount", inc.Amount)
			c.refreshBalances(account)
		})
	})

	c.stopNet = c.prov.SubscribeNetworkChange(func(networkID int64) {
		c.post(func() {
			if !c.connected {
				return
			}
			wrong := networkID != c.gw.Binding().ChainID
			c.sess.SetNetwork(networkID, wrong)
			c.log.Debug("network changed", "network", networkID, "wrong", wrong)
		})
	})
}

// --- submission flow ---

func (c *Coordinator) submit(action session.TxAction) error {
	if !c.connected {
		c.sess.SetError(userMessage(ErrNotConnected))
		return ErrNotConnected
	}

	recipient, amount := c.recipient, c.amount
	if action == session.ActionMint {
		recipient, amount = c.mintRecipient, c.mintAmount
		if !c.sess.Snapshot().IsPrivileged {
			c.sess.SetError(userMessage(ErrNotPrivileged))
			return ErrNotPrivileged
		}
	}

	// Client-side guard: a known mismatched network blocks the
	// submission before the wallet is ever contacted.
	if snap := c.sess.Snapshot(); snap.NetworkKnown && snap.WrongNetwork {
		c.sess.SetError(fmt.Sprintf("wrong network: the contract lives on chain %d", c.gw.Binding().ChainID))
		return ErrWrongNetwork
	}

	var (
		sub *token.Submission
		err error
	)
	if action == session.ActionMint {
		sub, err = c.gw.SubmitMint(c.ctx, c.account, recipient, amount)
	} else {
		sub, err = c.gw.SubmitSend(c.ctx, c.account, recipient, amount)
	}
	if err != nil {
		c.sess.SetError(userMessage(err))
		return err
	}

	// Tag the submission; a newer one supersedes it for display.
	c.subID++
	id := c.subID
	account := c.account
	c.sess.ClearError()
	c.sess.SetTx(session.TxRecord{Action: action, State: session.TxAwaitingSignature})
	c.log.Debug("submission started", "id", id, "action", action.String())

	go func() {
		for ev := range sub.Events() {
			ev := ev
			c.post(func() { c.onSubmissionEvent(id, account, action, ev) })
		}
	}()
	return nil
}

// onSubmissionEvent applies one submission lifecycle event. Runs on the
// event loop; stale tags are discarded without touching the session.
func (c *Coordinator) onSubmissionEvent(id uint64, account string, action session.TxAction, ev token.Event) {
	if account != c.account || id != c.subID {
		c.log.Debug("discarding stale submission event", "id", id, "kind", ev.Kind)
		return
	}

	switch ev.Kind {
	case token.EventSigned:
		c.sess.SetTx(session.TxRecord{Action: action, Hash: ev.Hash, State: session.TxBroadcast})

	case token.EventConfirmed:
		c.sess.SetTx(session.TxRecord{Action: action, Hash: ev.Hash, State: session.TxConfirmed})
		c.refreshBalances(account)

	case token.EventRejected:
		c.sess.SetTx(session.TxRecord{Action: action, Hash: ev.Hash, State: session.TxFailed})
		c.sess.SetError(userMessage(ev.Err))
	}
}

// refreshBalances re-reads both balances for account and applies them
// only if that account is still the connected one.
func (c *Coordinator) refreshBalances(account string) {
	go func() {
		native, nerr := c.prov.NativeBalance(c.ctx, account)
		tokenBal, terr := c.gw.BalanceOf(c.ctx, account)
		c.post(func() {
			if c.account != account {
				c.log.Debug("discarding balance read for stale account", "account", account)
				return
			}
			if nerr != nil || terr != nil {
				// Reads never crash the session: keep prior values,
				// surface a status flag, let the user retry.
				c.sess.SetError(userMessage(provider.ErrNetwork))
				return
			}
			c.sess.SetBalances(native, tokenBal)
		})
	}()
}

// userMessage maps an error to the single session-visible report line.
func userMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, provider.ErrUnavailable):
		return "no wallet provider detected"
	case errors.Is(err, provider.ErrUserRejected):
		return "request rejected in wallet"
	case errors.Is(err, ErrNotConnected):
		return "connect a wallet first"
	case errors.Is(err, ErrNotPrivileged):
		return "only the minter account can mint"
	case errors.Is(err, ErrWrongNetwork):
		return "wrong network for the bound contract"
	case errors.Is(err, token.ErrInvalidArgument):
		return err.Error()
	case errors.Is(err, token.ErrTransactionFailed):
		return "transaction failed"
	case errors.Is(err, provider.ErrNetwork):
		return "network error, try again"
	default:
		return err.Error()
	}
}
