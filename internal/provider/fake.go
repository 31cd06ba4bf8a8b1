package provider

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
)

// Selectors and topics for the token contract the fake models. Computed
// the same way the gateway computes them so the two always agree.
var (
	fakeSelBalances = fakeSelector("balances(address)")
	fakeSelMinter   = fakeSelector("minter()")
	fakeSelSend     = fakeSelector("send(address,uint256)")
	fakeSelMint     = fakeSelector("mint(address,uint256)")
	fakeTopicSent   = "0x" + fmt.Sprintf("%x", crypto.Keccak256([]byte("Sent(address,address,uint256)")))
)

func fakeSelector(sig string) string {
	return fmt.Sprintf("%x", crypto.Keccak256([]byte(sig))[:4])
}

type fakePending struct {
	from, to string
	amount   *big.Int
	mint     bool
	contract string
	polls    int
	revert   bool
	applied  bool
	receipt  *Receipt
}

// Fake is an in-memory Provider with a built-in model of the token
// contract. It backs package tests and the simulated demo mode, so the
// whole client can run without a node or wallet.
//
// The zero value is unusable; construct with NewFake. The exported knobs
// script the next interaction and are safe to flip between calls.
type Fake struct {
	mu sync.Mutex

	// Scripted behavior.
	Unavailable   bool // RequestAccounts fails with ErrUnavailable
	RejectConnect bool // RequestAccounts fails with ErrUserRejected
	RejectSign    bool // SendTransaction fails with ErrUserRejected
	RevertNext    bool // next submission mines with status 0, consumed
	PendingPolls  int  // receipt polls answered "pending" per submission

	// SendCalls counts SendTransaction invocations, including rejected
	// ones. Tests use it to prove a guard fired before wallet contact.
	SendCalls int

	accounts []string
	chainID  int64
	native   map[string]*big.Int
	balances map[string]*big.Int
	minter   string

	block   uint64
	nextTx  uint64
	pending map[string]*fakePending
	logs    []Log

	netSubs map[int]func(int64)
	nextSub int
}

// NewFake creates a fake provider on chainID exposing the given accounts.
func NewFake(chainID int64, accounts ...string) *Fake {
	return &Fake{
		accounts: accounts,
		chainID:  chainID,
		native:   make(map[string]*big.Int),
		balances: make(map[string]*big.Int),
		pending:  make(map[string]*fakePending),
		netSubs:  make(map[int]func(int64)),
		block:    1,
	}
}

// SetNative seeds a native balance in wei.
func (f *Fake) SetNative(addr string, wei *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.native[norm(addr)] = new(big.Int).Set(wei)
}

// SetTokenBalance seeds a token balance in the smallest unit.
func (f *Fake) SetTokenBalance(addr string, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[norm(addr)] = new(big.Int).Set(amount)
}

// SetMinter sets the privileged account.
func (f *Fake) SetMinter(addr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.minter = norm(addr)
}

// TokenBalance reads the modeled token balance directly (test helper).
func (f *Fake) TokenBalance(addr string) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.balances[norm(addr)]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(b)
}

// SetAccounts swaps the accounts the wallet exposes (account switch).
func (f *Fake) SetAccounts(accounts ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts = accounts
}

// ReleasePending makes every pending submission mine on its next
// receipt poll.
func (f *Fake) ReleasePending() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pending {
		p.polls = 0
	}
}

// ChangeNetwork switches the reported chain id and fires subscribers.
func (f *Fake) ChangeNetwork(chainID int64) {
	f.mu.Lock()
	f.chainID = chainID
	subs := make([]func(int64), 0, len(f.netSubs))
	for _, cb := range f.netSubs {
		subs = append(subs, cb)
	}
	f.mu.Unlock()
	for _, cb := range subs {
		cb(chainID)
	}
}

func (f *Fake) RequestAccounts(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Unavailable {
		return nil, ErrUnavailable
	}
	if f.RejectConnect {
		return nil, fmt.Errorf("%w: wallet prompt declined", ErrUserRejected)
	}
	if len(f.accounts) == 0 {
		return nil, fmt.Errorf("%w: wallet returned no accounts", ErrUnavailable)
	}
	return append([]string(nil), f.accounts...), nil
}

func (f *Fake) NetworkID(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chainID, nil
}

func (f *Fake) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.native[norm(address)]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(b), nil
}

func (f *Fake) SubscribeNetworkChange(cb func(int64)) (stop func()) {
	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.netSubs[id] = cb
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.netSubs, id)
		f.mu.Unlock()
	}
}

func (f *Fake) CallContract(ctx context.Context, to, calldata string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sel, words, err := splitCalldata(calldata)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	switch sel {
	case fakeSelBalances:
		if len(words) < 1 {
			return "", fmt.Errorf("%w: missing argument", ErrNetwork)
		}
		b, ok := f.balances[wordToAddr(words[0])]
		if !ok {
			b = new(big.Int)
		}
		return "0x" + fmt.Sprintf("%064x", b), nil
	case fakeSelMinter:
		return "0x" + padAddr(f.minter), nil
	default:
		return "", fmt.Errorf("%w: unknown selector %s", ErrNetwork, sel)
	}
}

func (f *Fake) SendTransaction(ctx context.Context, from, to, calldata string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.SendCalls++
	if f.RejectSign {
		return "", fmt.Errorf("%w: wallet prompt declined", ErrUserRejected)
	}

	sel, words, err := splitCalldata(calldata)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if len(words) < 2 {
		return "", fmt.Errorf("%w: malformed calldata", ErrNetwork)
	}

	p := &fakePending{
		from:     norm(from),
		to:       wordToAddr(words[0]),
		amount:   new(big.Int).SetBytes(wordBytes(words[1])),
		contract: norm(to),
		polls:    f.PendingPolls,
		revert:   f.RevertNext,
	}
	f.RevertNext = false

	switch sel {
	case fakeSelSend:
	case fakeSelMint:
		p.mint = true
		if p.from != f.minter {
			p.revert = true // contract is the ultimate authority
		}
	default:
		return "", fmt.Errorf("%w: unknown selector %s", ErrNetwork, sel)
	}

	f.nextTx++
	hash := fmt.Sprintf("0x%064x", f.nextTx)
	f.pending[hash] = p
	return hash, nil
}

func (f *Fake) TransactionReceipt(ctx context.Context, hash string) (*Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.pending[hash]
	if !ok {
		return nil, fmt.Errorf("%w: unknown transaction %s", ErrNetwork, hash)
	}
	if p.polls > 0 {
		p.polls--
		return nil, nil
	}
	if !p.applied {
		p.applied = true
		f.block++
		status := uint64(1)
		if p.revert || !f.applyTransfer(p) {
			status = 0
		}
		p.receipt = &Receipt{Hash: hash, Status: status, BlockNumber: f.block, GasUsed: 21000}
		if status == 1 {
			f.logs = append(f.logs, Log{
				Address:     p.contract,
				Topics:      []string{fakeTopicSent, "0x" + padAddr(p.from), "0x" + padAddr(p.to)},
				Data:        "0x" + fmt.Sprintf("%064x", p.amount),
				BlockNumber: f.block,
				TxHash:      hash,
			})
		}
	}
	return p.receipt, nil
}

// applyTransfer mutates the token model. Reports false when the contract
// would revert (insufficient sender balance on send).
func (f *Fake) applyTransfer(p *fakePending) bool {
	if p.revert {
		return false
	}
	if p.mint {
		bal, ok := f.balances[p.to]
		if !ok {
			bal = new(big.Int)
		}
		f.balances[p.to] = new(big.Int).Add(bal, p.amount)
		return true
	}
	from, ok := f.balances[p.from]
	if !ok || from.Cmp(p.amount) < 0 {
		return false
	}
	f.balances[p.from] = new(big.Int).Sub(from, p.amount)
	to, ok := f.balances[p.to]
	if !ok {
		to = new(big.Int)
	}
	f.balances[p.to] = new(big.Int).Add(to, p.amount)
	return true
}

func (f *Fake) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.block, nil
}

func (f *Fake) Logs(ctx context.Context, flt Filter) ([]Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Log
	for _, l := range f.logs {
		if flt.Address != "" && norm(flt.Address) != l.Address {
			continue
		}
		if l.BlockNumber < flt.FromBlock || (flt.ToBlock > 0 && l.BlockNumber > flt.ToBlock) {
			continue
		}
		if !topicsMatch(flt.Topics, l.Topics) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func topicsMatch(want, have []string) bool {
	for i, w := range want {
		if w == "" {
			continue
		}
		if i >= len(have) || !strings.EqualFold(w, have[i]) {
			return false
		}
	}
	return true
}

// --- calldata helpers ---

func norm(addr string) string { return strings.ToLower(addr) }

// splitCalldata splits "0x" + 8-char selector + 64-char words.
func splitCalldata(calldata string) (sel string, words []string, err error) {
	s := strings.TrimPrefix(calldata, "0x")
	if len(s) < 8 {
		return "", nil, fmt.Errorf("calldata too short: %q", calldata)
	}
	sel, s = s[:8], s[8:]
	if len(s)%64 != 0 {
		return "", nil, fmt.Errorf("calldata not word-aligned: %q", calldata)
	}
	for len(s) > 0 {
		words = append(words, s[:64])
		s = s[64:]
	}
	return sel, words, nil
}

func wordBytes(word string) []byte {
	n, ok := new(big.Int).SetString(word, 16)
	if !ok {
		return nil
	}
	return n.Bytes()
}

// wordToAddr extracts the lower 20 bytes of a word as a 0x address.
func wordToAddr(word string) string {
	return "0x" + strings.ToLower(word[24:])
}

// padAddr left-pads a bare or 0x address to a 32-byte hex word.
func padAddr(addr string) string {
	return fmt.Sprintf("%064s", strings.ToLower(strings.TrimPrefix(addr, "0x")))
}
