// Package provider wraps the wallet-side connectivity object: account
// discovery, network identity, balance queries, and the raw call/send
// plumbing the contract gateway builds on. Key custody and signing stay
// on the wallet side of this boundary.
package provider

import (
	"context"
	"errors"
	"math/big"
)

// Sentinel errors for the wallet boundary. Callers match with errors.Is.
var (
	// ErrUnavailable means no wallet provider is reachable. Fatal for a
	// connect attempt, reported to the user; never a crash.
	ErrUnavailable = errors.New("wallet provider unavailable")

	// ErrUserRejected means the user declined the wallet prompt.
	ErrUserRejected = errors.New("user rejected request")

	// ErrNetwork wraps transport or RPC failures on read paths.
	ErrNetwork = errors.New("network error")
)

// Receipt is the on-chain receipt of a mined transaction.
type Receipt struct {
	Hash        string
	Status      uint64 // 1 = success, 0 = reverted
	BlockNumber uint64
	GasUsed     uint64
}

// Log is one event log entry.
type Log struct {
	Address     string
	Topics      []string
	Data        string
	BlockNumber uint64
	TxHash      string
}

// Filter selects event logs by contract address, topics, and block range.
// A nil topic slice or empty topic string matches anything at that position.
type Filter struct {
	Address   string
	Topics    []string
	FromBlock uint64
	ToBlock   uint64
}

// Provider is the wallet-injected connectivity boundary.
//
// RequestAccounts may trigger a wallet approval popup. SendTransaction
// hands the call to the wallet for signature; the wallet owns the keys.
type Provider interface {
	RequestAccounts(ctx context.Context) ([]string, error)
	NetworkID(ctx context.Context) (int64, error)
	NativeBalance(ctx context.Context, address string) (*big.Int, error)

	// SubscribeNetworkChange fires cb whenever the wallet reports a
	// different network. No ordering guarantee relative to account
	// changes. The returned stop function tears the subscription down.
	SubscribeNetworkChange(cb func(networkID int64)) (stop func())

	CallContract(ctx context.Context, to, calldata string) (string, error)
	SendTransaction(ctx context.Context, from, to, calldata string) (hash string, err error)

	// TransactionReceipt returns (nil, nil) while the transaction is
	// still pending.
	TransactionReceipt(ctx context.Context, hash string) (*Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Logs(ctx context.Context, f Filter) ([]Log, error)
}
