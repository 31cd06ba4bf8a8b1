// Package session holds the authoritative client-side view of the wallet
// connection, balances, and the in-flight transaction. It is a pure data
// holder: no operation here performs I/O. The coordinator is the only
// writer; the presentation layer reads point-in-time snapshots.
package session

import (
	"math/big"
	"sync"
)

// ConnStatus is the wallet connection state.
type ConnStatus int

const (
	Disconnected ConnStatus = iota
	Connecting
	Connected
)

func (s ConnStatus) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// TxState is the lifecycle state of the active submission.
type TxState int

const (
	TxIdle TxState = iota
	TxAwaitingSignature
	TxBroadcast
	TxConfirmed
	TxFailed
)

func (s TxState) String() string {
	switch s {
	case TxAwaitingSignature:
		return "awaiting signature"
	case TxBroadcast:
		return "broadcast"
	case TxConfirmed:
		return "confirmed"
	case TxFailed:
		return "failed"
	default:
		return "idle"
	}
}

// TxAction labels what the active submission does.
type TxAction int

const (
	ActionNone TxAction = iota
	ActionTransfer
	ActionMint
)

func (a TxAction) String() string {
	switch a {
	case ActionTransfer:
		return "transfer"
	case ActionMint:
		return "mint"
	default:
		return ""
	}
}

// TxRecord is the display record of the most recent submission.
// A new submission overwrites the previous record (last-submission-wins).
type TxRecord struct {
	Action TxAction
	Hash   string
	State  TxState
}

// Snapshot is a value copy of the session for readers. Balances are
// defensive copies; mutating a snapshot never touches the live session.
type Snapshot struct {
	Status        ConnStatus
	Account       string
	NetworkID     int64
	NetworkKnown  bool
	WrongNetwork  bool
	NativeBalance *big.Int // base unit (wei)
	TokenBalance  *big.Int // token smallest unit
	IsPrivileged  bool
	Tx            TxRecord
	LastError     string
}

// Session is the single mutable state container for one client process.
type Session struct {
	mu sync.RWMutex

	status        ConnStatus
	account       string
	networkID     int64
	networkKnown  bool
	wrongNetwork  bool
	nativeBalance *big.Int
	tokenBalance  *big.Int
	isPrivileged  bool
	tx            TxRecord
	lastError     string
}

// New returns a session with process-start defaults: disconnected, no
// account, network unknown, zero balances, idle transaction record.
func New() *Session {
	return &Session{
		nativeBalance: new(big.Int),
		tokenBalance:  new(big.Int),
	}
}

// SetConnecting marks the connect attempt in progress.
func (s *Session) SetConnecting() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = Connecting
	s.lastError = ""
}

// SetConnected publishes the full connected view in one step so readers
// never observe a half-connected session (account set, balances missing).
func (s *Session) SetConnected(account string, networkID int64, wrongNetwork bool, native, token *big.Int, privileged bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = Connected
	s.account = account
	s.networkID = networkID
	s.networkKnown = true
	s.wrongNetwork = wrongNetwork
	s.nativeBalance = new(big.Int).Set(native)
	s.tokenBalance = new(big.Int).Set(token)
	s.isPrivileged = privileged
	s.lastError = ""
}

// SetDisconnected reverts to the disconnected state, surfacing reason as
// the user-visible report. Balances reset to defaults.
func (s *Session) SetDisconnected(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = Disconnected
	s.account = ""
	s.networkKnown = false
	s.wrongNetwork = false
	s.nativeBalance = new(big.Int)
	s.tokenBalance = new(big.Int)
	s.isPrivileged = false
	s.tx = TxRecord{}
	s.lastError = reason
}

// SetNetwork records a network change reported by the wallet.
func (s *Session) SetNetwork(networkID int64, wrongNetwork bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.networkID = networkID
	s.networkKnown = true
	s.wrongNetwork = wrongNetwork
}

// SetBalances overwrites both balances with the latest successful read.
func (s *Session) SetBalances(native, token *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if native != nil {
		s.nativeBalance = new(big.Int).Set(native)
	}
	if token != nil {
		s.tokenBalance = new(big.Int).Set(token)
	}
}

// SetTx overwrites the active transaction record.
func (s *Session) SetTx(rec TxRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tx = rec
}

// SetError surfaces a user-visible error report. Prior balance and
// connection values are left in place.
func (s *Session) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = msg
}

// ClearError clears the user-visible error report.
func (s *Session) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = ""
}

// Account returns the currently connected account ("" when disconnected).
func (s *Session) Account() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

// Snapshot returns a value copy of the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Status:        s.status,
		Account:       s.account,
		NetworkID:     s.networkID,
		NetworkKnown:  s.networkKnown,
		WrongNetwork:  s.wrongNetwork,
		NativeBalance: new(big.Int).Set(s.nativeBalance),
		TokenBalance:  new(big.Int).Set(s.tokenBalance),
		IsPrivileged:  s.isPrivileged,
		Tx:            s.tx,
		LastError:     s.lastError,
	}
}
