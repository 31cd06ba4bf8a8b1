package token

import (
	"context"
	"time"

	"github.com/dappcoin/coinctl/internal/provider"
)

// EventKind identifies a submission lifecycle event.
type EventKind int

const (
	// EventSigned fires once the wallet approved and the transaction
	// was broadcast; Hash is set.
	EventSigned EventKind = iota
	// EventConfirmed is terminal: the transaction mined successfully.
	EventConfirmed
	// EventRejected is terminal: wallet declined, transport fault, or
	// on-chain revert. Err carries the reason.
	EventRejected
)

// Event is one submission lifecycle notification.
type Event struct {
	Kind    EventKind
	Hash    string
	Receipt *provider.Receipt
	Err     error
}

// Submission is the asynchronous handle for a write call. Its channel
// emits, in strict order, at most one EventSigned followed by exactly one
// terminal event, then closes. A wallet rejection before signing skips
// EventSigned. The channel is buffered for the full sequence, so an
// abandoned handle never blocks the driver; the on-chain transaction
// proceeds regardless.
type Submission struct {
	events chan Event
}

func newSubmission() *Submission {
	return &Submission{events: make(chan Event, 2)}
}

// Events returns the submission's event stream.
func (s *Submission) Events() <-chan Event { return s.events }

// drive owns the submission lifecycle: wallet signature, broadcast, then
// receipt polling with no imposed deadline. Cancelling ctx stops the
// polling only; it cannot stop the underlying transaction.
func (s *Submission) drive(ctx context.Context, prov provider.Provider, from, to, calldata string, interval time.Duration) {
	defer close(s.events)

	hash, err := prov.SendTransaction(ctx, from, to, calldata)
	if err != nil {
		s.events <- Event{Kind: EventRejected, Err: err}
		return
	}
	s.events <- Event{Kind: EventSigned, Hash: hash}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.events <- Event{Kind: EventRejected, Hash: hash, Err: ctx.Err()}
			return
		case <-ticker.C:
		}

		receipt, err := prov.TransactionReceipt(ctx, hash)
		if err != nil {
			// Transient read failures do not fail the submission;
			// the transaction may still be pending. Keep polling.
			continue
		}
		if receipt == nil {
			continue
		}
		if receipt.Status == 0 {
			s.events <- Event{Kind: EventRejected, Hash: hash, Receipt: receipt, Err: ErrTransactionFailed}
			return
		}
		s.events <- Event{Kind: EventConfirmed, Hash: hash, Receipt: receipt}
		return
	}
}
