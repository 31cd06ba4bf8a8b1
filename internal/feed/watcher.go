// Package feed delivers incoming-transfer notifications for one account
// by polling the contract's Sent event logs. No WebSocket required, so it
// works against plain HTTP wallet providers.
package feed

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/dappcoin/coinctl/internal/provider"
	"github.com/dappcoin/coinctl/internal/token"
)

// Incoming is one matching Sent event delivered to the watch callback.
type Incoming struct {
	From        string
	To          string
	Amount      *big.Int
	BlockNumber uint64
	TxHash      string
}

// Watcher polls the contract's Sent logs filtered to a single recipient.
// Only one watch per account must be active at a time; the coordinator
// tears the old one down before switching accounts.
type Watcher struct {
	prov        provider.Provider
	contract    string
	interval    time.Duration
	fromGenesis bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithInterval sets the polling interval (default 3s).
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) { w.interval = d }
}

// FromGenesis replays events from block 0 instead of anchoring at the
// registration block.
func FromGenesis() Option {
	return func(w *Watcher) { w.fromGenesis = true }
}

// NewWatcher creates a watcher for the contract at the given address.
func NewWatcher(prov provider.Provider, contract string, opts ...Option) *Watcher {
	w := &Watcher{
		prov:     prov,
		contract: contract,
		interval: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch registers a long-lived listener for Sent events whose recipient
// equals account and invokes onIncoming once per matching log. Events
// before the registration block are not replayed unless the watcher was
// built with FromGenesis. The returned stop function tears the listener
// down; it is safe to call more than once.
func (w *Watcher) Watch(account string, onIncoming func(Incoming)) (stop func()) {
	done := make(chan struct{})
	ctx := context.Background()

	go func() {
		// Anchor at the current head so history is not replayed.
		var lastBlock uint64
		if !w.fromGenesis {
			if head, err := w.prov.BlockNumber(ctx); err == nil {
				lastBlock = head
			}
		}

		topics := []string{token.SentTopic(), "", token.AddrTopic(account)}
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}

			latest, err := w.prov.BlockNumber(ctx)
			if err != nil || latest <= lastBlock {
				continue
			}

			logs, err := w.prov.Logs(ctx, provider.Filter{
				Address:   w.contract,
				Topics:    topics,
				FromBlock: lastBlock + 1,
				ToBlock:   latest,
			})
			if err != nil {
				// Read failure: leave the anchor so the range is
				// retried on the next tick.
				continue
			}
			lastBlock = latest

			for _, l := range logs {
				select {
				case <-done:
					return
				default:
				}
				if inc, ok := decodeSent(l); ok {
					onIncoming(inc)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

// decodeSent unpacks a Sent log: topics[1]=from, topics[2]=to, data=amount.
func decodeSent(l provider.Log) (Incoming, bool) {
	if len(l.Topics) < 3 {
		return Incoming{}, false
	}
	amount, ok := new(big.Int).SetString(strings.TrimPrefix(l.Data, "0x"), 16)
	if !ok {
		return Incoming{}, false
	}
	return Incoming{
		From:        topicToAddr(l.Topics[1]),
		To:          topicToAddr(l.Topics[2]),
		Amount:      amount,
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash,
	}, true
}

func topicToAddr(topic string) string {
	s := strings.TrimPrefix(topic, "0x")
	if len(s) < 40 {
		return "0x" + s
	}
	return "0x" + strings.ToLower(s[len(s)-40:])
}
