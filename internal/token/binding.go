// Package token binds the deployed Coin contract to a wallet provider:
// typed reads (balances, minter) and typed writes (send, mint) that
// return an asynchronous submission handle.
package token

// Deployed contract identity. The binding is immutable for the process
// lifetime; submissions against any other network are refused upstream.
const (
	// ContractAddress is the Coin token deployment.
	ContractAddress = "0xfa95506583310999dc823f45CaeD5faE3c2ED1b9"

	// DeploymentChainID is the only network the address is valid on.
	DeploymentChainID int64 = 11155111 // sepolia
)

// Binding pairs a contract address with its deployment network.
type Binding struct {
	Address string
	ChainID int64
}

// DefaultBinding returns the built-in Coin deployment.
func DefaultBinding() Binding {
	return Binding{Address: ContractAddress, ChainID: DeploymentChainID}
}

// ABIEntry is a single interface descriptor entry (function or event).
type ABIEntry struct {
	Name    string
	Type    string
	Inputs  []ABIParam
	Outputs []ABIParam
}

// ABIParam is a parameter in an ABI entry.
type ABIParam struct {
	Name    string
	Type    string
	Indexed bool
}

// coinABI describes the Coin contract interface.
//
// Function selectors:
//
//	balances(address)       → read, uint256
//	minter()                → read, address of the privileged account
//	send(address,uint256)   → write
//	mint(address,uint256)   → write, minter only
//	Sent(address,address,uint256) → event, indexed from and to
var coinABI = []ABIEntry{
	{
		Name: "balances", Type: "function",
		Inputs:  []ABIParam{{Name: "account", Type: "address"}},
		Outputs: []ABIParam{{Name: "", Type: "uint256"}},
	},
	{
		Name: "minter", Type: "function",
		Inputs:  nil,
		Outputs: []ABIParam{{Name: "", Type: "address"}},
	},
	{
		Name: "send", Type: "function",
		Inputs: []ABIParam{{Name: "receiver", Type: "address"}, {Name: "amount", Type: "uint256"}},
	},
	{
		Name: "mint", Type: "function",
		Inputs: []ABIParam{{Name: "receiver", Type: "address"}, {Name: "amount", Type: "uint256"}},
	},
	{
		Name: "Sent", Type: "event",
		Inputs: []ABIParam{
			{Name: "from", Type: "address", Indexed: true},
			{Name: "to", Type: "address", Indexed: true},
			{Name: "amount", Type: "uint256"},
		},
	},
}

func findEntry(name, typ string) *ABIEntry {
	for i := range coinABI {
		if coinABI[i].Type == typ && coinABI[i].Name == name {
			return &coinABI[i]
		}
	}
	return nil
}

// SentTopic returns the topic hash of the Sent event, used by the
// subscription feed to filter incoming-transfer logs.
func SentTopic() string {
	return eventTopic(findEntry("Sent", "event"))
}
