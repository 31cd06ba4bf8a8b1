package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dappcoin/coinctl/internal/session"
)

// Intents is what the session screen needs from the coordinator: read a
// snapshot, forward user intents. Nothing else couples the two.
type Intents interface {
	Connect() error
	SetRecipient(string)
	SetAmount(string)
	SetMintRecipient(string)
	SetMintAmount(string)
	SubmitTransfer() error
	SubmitMint() error
	Snapshot() session.Snapshot
}

// SessionChangedMsg tells the screen to re-read the session snapshot.
// The coordinator's change subscription sends it via Program.Send.
type SessionChangedMsg struct{}

type spinTickMsg struct{}

var spinFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

func spinTick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(time.Time) tea.Msg {
		return spinTickMsg{}
	})
}

// Input field indexes.
const (
	fieldRecipient = iota
	fieldAmount
	fieldMintRecipient
	fieldMintAmount
	numFields
)

// AppModel is the Bubble Tea model for the wallet session screen. It
// renders session snapshots and forwards intents; all decisions live in
// the coordinator.
type AppModel struct {
	intents Intents

	snap     session.Snapshot
	inputs   [numFields]string
	focus    int
	frame    int
	quitting bool
}

// NewAppModel creates the session screen bound to the coordinator.
func NewAppModel(intents Intents) AppModel {
	return AppModel{
		intents: intents,
		snap:    intents.Snapshot(),
	}
}

func (m AppModel) Init() tea.Cmd { return spinTick() }

func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case SessionChangedMsg:
		m.snap = m.intents.Snapshot()

	case spinTickMsg:
		m.frame = (m.frame + 1) % len(spinFrames)
		return m, spinTick()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {

	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		m.focus = (m.focus + 1) % m.visibleFields()
		return m, nil

	case "shift+tab":
		m.focus = (m.focus + m.visibleFields() - 1) % m.visibleFields()
		return m, nil

	case "enter":
		if m.snap.Status != session.Connected {
			go m.intents.Connect()
			return m, nil
		}
		if m.focus <= fieldAmount {
			go m.intents.SubmitTransfer()
		} else {
			go m.intents.SubmitMint()
		}
		return m, nil

	case "backspace":
		if m.snap.Status == session.Connected {
			cur := m.inputs[m.focus]
			if len(cur) > 0 {
				m.setField(m.focus, cur[:len(cur)-1])
			}
		}
		return m, nil
	}

	if m.snap.Status != session.Connected {
		if msg.String() == "c" {
			go m.intents.Connect()
		}
		return m, nil
	}

	if msg.Type == tea.KeyRunes {
		m.setField(m.focus, m.inputs[m.focus]+string(msg.Runes))
	}
	return m, nil
}

// setField updates an input and forwards the staged intent immediately,
// so the coordinator always holds the latest values on submit.
func (m *AppModel) setField(field int, value string) {
	m.inputs[field] = value
	switch field {
	case fieldRecipient:
		m.intents.SetRecipient(value)
	case fieldAmount:
		m.intents.SetAmount(value)
	case fieldMintRecipient:
		m.intents.SetMintRecipient(value)
	case fieldMintAmount:
		m.intents.SetMintAmount(value)
	}
}

func (m AppModel) visibleFields() int {
	if m.snap.IsPrivileged {
		return numFields
	}
	return fieldMintRecipient
}

func (m AppModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(StyleTitle.Render("🪙  DApp Coin") + "\n")

	switch m.snap.Status {
	case session.Disconnected:
		sb.WriteString(StyleMeta.Render("  wallet: ") + StyleError.Render("disconnected") + "\n\n")
		sb.WriteString("  Press " + StyleWarning.Render("[ c ]") + " to connect your wallet\n")
	case session.Connecting:
		sb.WriteString(StyleMeta.Render("  wallet: ") +
			StyleWarning.Render(spinFrames[m.frame]+" connecting…") + "\n")
	case session.Connected:
		m.viewConnected(&sb)
	}

	if m.snap.LastError != "" {
		sb.WriteString("\n" + Err(m.snap.LastError) + "\n")
	}

	sb.WriteString("\n" + m.controls())
	return sb.String()
}

func (m AppModel) viewConnected(sb *strings.Builder) {
	sb.WriteString(StyleMeta.Render("  account   ") + StyleAddress.Render(m.snap.Account) + "\n")

	network := fmt.Sprintf("chain %d", m.snap.NetworkID)
	if m.snap.WrongNetwork {
		sb.WriteString(StyleMeta.Render("  network   ") + Warn(network+": wrong network, transfers disabled") + "\n")
	} else {
		sb.WriteString(StyleMeta.Render("  network   ") + StyleAddress.Render(network) + "\n")
	}

	sb.WriteString(StyleMeta.Render("  ETH       ") + StyleValue.Render(FormatWei(m.snap.NativeBalance)) + "\n")
	sb.WriteString(StyleMeta.Render("  Coin      ") + StyleValue.Render(m.snap.TokenBalance.String()) + "\n")

	sb.WriteString("\n" + StyleTitle.Render("Transfer") + "\n")
	m.viewInput(sb, "recipient", fieldRecipient)
	m.viewInput(sb, "amount   ", fieldAmount)

	if m.snap.IsPrivileged {
		sb.WriteString("\n" + StyleTitle.Render("Mint") + StyleMeta.Render("  (minter account)") + "\n")
		m.viewInput(sb, "recipient", fieldMintRecipient)
		m.viewInput(sb, "amount   ", fieldMintAmount)
	}

	m.viewTx(sb)
}

func (m AppModel) viewInput(sb *strings.Builder, label string, field int) {
	value := m.inputs[field]
	if value == "" {
		value = " "
	}
	rendered := value
	if field == m.focus {
		rendered = StyleFocused.Render(value)
	}
	sb.WriteString(StyleMeta.Render("  "+label+" ") + rendered + "\n")
}

func (m AppModel) viewTx(sb *strings.Builder) {
	if m.snap.Tx.State == session.TxIdle {
		return
	}

	sb.WriteString("\n" + StyleTitle.Render("Last submission") + "\n")
	sb.WriteString(StyleMeta.Render("  action    ") + m.snap.Tx.Action.String() + "\n")
	if m.snap.Tx.Hash != "" {
		sb.WriteString(StyleMeta.Render("  hash      ") + StyleAddress.Render(TruncateAddr(m.snap.Tx.Hash)) + "\n")
	}

	var status string
	switch m.snap.Tx.State {
	case session.TxAwaitingSignature:
		status = StyleWarning.Render(spinFrames[m.frame] + " awaiting signature in wallet…")
	case session.TxBroadcast:
		status = StyleWarning.Render(spinFrames[m.frame] + " broadcast, waiting for confirmation…")
	case session.TxConfirmed:
		status = Success("confirmed")
	case session.TxFailed:
		status = Err("failed")
	}
	sb.WriteString(StyleMeta.Render("  status    ") + status + "\n")
}

func (m AppModel) controls() string {
	sep := StyleMeta.Render("   ")
	var sb strings.Builder
	if m.snap.Status == session.Connected {
		sb.WriteString(StyleMeta.Render("[ tab ] next field"))
		sb.WriteString(sep)
		sb.WriteString(StyleMeta.Render("[ enter ] submit"))
		sb.WriteString(sep)
	}
	sb.WriteString(StyleMeta.Render("[ esc ] quit"))
	return sb.String()
}
