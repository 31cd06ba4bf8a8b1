package token

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dappcoin/coinctl/internal/provider"
)

// Sentinel errors for the gateway's synchronous validation and the
// terminal submission outcome.
var (
	// ErrInvalidArgument means a malformed recipient or amount was
	// rejected before any network call.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTransactionFailed means the wallet rejected the submission or
	// the transaction reverted on chain.
	ErrTransactionFailed = errors.New("transaction failed")
)

// Gateway binds the Coin contract to a wallet provider.
type Gateway struct {
	binding      Binding
	prov         provider.Provider
	pollInterval time.Duration
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithPollInterval sets the receipt polling interval (default 2s).
func WithPollInterval(d time.Duration) Option {
	return func(g *Gateway) { g.pollInterval = d }
}

// NewGateway binds the contract at b to prov.
func NewGateway(b Binding, prov provider.Provider, opts ...Option) *Gateway {
	g := &Gateway{
		binding:      b,
		prov:         prov,
		pollInterval: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Binding returns the bound contract identity.
func (g *Gateway) Binding() Binding { return g.binding }

// BalanceOf returns the token balance of addr in the smallest unit.
func (g *Gateway) BalanceOf(ctx context.Context, addr string) (*big.Int, error) {
	if !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("%w: malformed address %q", ErrInvalidArgument, addr)
	}
	calldata, err := encodeCall(findEntry("balances", "function"), addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	result, err := g.prov.CallContract(ctx, g.binding.Address, calldata)
	if err != nil {
		return nil, fmt.Errorf("reading token balance: %w", err)
	}
	return decodeUint(result)
}

// Minter returns the privileged account authorized to mint supply.
func (g *Gateway) Minter(ctx context.Context) (string, error) {
	calldata, err := encodeCall(findEntry("minter", "function"))
	if err != nil {
		return "", err
	}
	result, err := g.prov.CallContract(ctx, g.binding.Address, calldata)
	if err != nil {
		return "", fmt.Errorf("reading minter: %w", err)
	}
	return decodeAddress(result)
}

// SubmitSend submits a token transfer from sender to recipient. Malformed
// input fails synchronously; a valid call is handed to the wallet and the
// returned handle reports its lifecycle.
func (g *Gateway) SubmitSend(ctx context.Context, sender, recipient, amount string) (*Submission, error) {
	return g.submit(ctx, "send", sender, recipient, amount)
}

// SubmitMint submits a mint of amount new tokens to recipient. The
// contract enforces that only the minter may do this.
func (g *Gateway) SubmitMint(ctx context.Context, sender, recipient, amount string) (*Submission, error) {
	return g.submit(ctx, "mint", sender, recipient, amount)
}

func (g *Gateway) submit(ctx context.Context, fn, sender, recipient, amount string) (*Submission, error) {
	if err := validateWrite(sender, recipient, amount); err != nil {
		return nil, err
	}
	calldata, err := encodeCall(findEntry(fn, "function"), recipient, amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	sub := newSubmission()
	go sub.drive(ctx, g.prov, sender, g.binding.Address, calldata, g.pollInterval)
	return sub, nil
}

// validateWrite checks write-call arguments before any network contact:
// recipient and sender must be well-formed 0x addresses, amount a
// non-negative base-10 integer string.
func validateWrite(sender, recipient, amount string) error {
	if !common.IsHexAddress(sender) {
		return fmt.Errorf("%w: malformed sender address %q", ErrInvalidArgument, sender)
	}
	if !common.IsHexAddress(recipient) {
		return fmt.Errorf("%w: malformed recipient address %q", ErrInvalidArgument, recipient)
	}
	n, ok := new(big.Int).SetString(amount, 10)
	if !ok || n.Sign() < 0 {
		return fmt.Errorf("%w: amount must be a non-negative integer, got %q", ErrInvalidArgument, amount)
	}
	return nil
}
