package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"
)

// EIP-1193: the wallet reports a declined prompt with error code 4001.
const codeUserRejected = 4001

// RPCProvider speaks JSON-RPC to a wallet-backed endpoint. Signing happens
// wallet-side via eth_sendTransaction; this client never sees a key.
type RPCProvider struct {
	url          string
	client       *http.Client
	pollInterval time.Duration
}

// NewRPC creates a provider pointed at url. An empty url models the
// "no wallet injected" condition: every call fails with ErrUnavailable.
func NewRPC(url string, pollInterval time.Duration) *RPCProvider {
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	return &RPCProvider{
		url:          url,
		client:       &http.Client{Timeout: 15 * time.Second},
		pollInterval: pollInterval,
	}
}

// RequestAccounts prompts the wallet for account access. Falls back to
// eth_accounts for nodes that do not implement the prompt method.
func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	result, err := p.call(ctx, "eth_requestAccounts")
	if err != nil {
		var rpcErr *rpcError
		switch {
		case errAsRPC(err, &rpcErr) && rpcErr.Code == codeUserRejected:
			return nil, fmt.Errorf("%w: %s", ErrUserRejected, rpcErr.Message)
		case errAsRPC(err, &rpcErr) && rpcErr.Code == -32601:
			// Method not found: plain node without a wallet prompt.
			result, err = p.call(ctx, "eth_accounts")
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
		default:
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return nil, fmt.Errorf("%w: parsing accounts: %v", ErrNetwork, err)
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("%w: wallet returned no accounts", ErrUnavailable)
	}
	return accounts, nil
}

// NetworkID returns the chain id the wallet is connected to.
func (p *RPCProvider) NetworkID(ctx context.Context) (int64, error) {
	n, err := p.callBig(ctx, "eth_chainId")
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}

// NativeBalance returns the native balance in wei.
func (p *RPCProvider) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	return p.callBig(ctx, "eth_getBalance", address, "latest")
}

// SubscribeNetworkChange polls eth_chainId and fires cb on change.
func (p *RPCProvider) SubscribeNetworkChange(cb func(networkID int64)) (stop func()) {
	done := make(chan struct{})
	go func() {
		var last int64
		known := false
		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				id, err := p.NetworkID(context.Background())
				if err != nil {
					continue
				}
				if known && id == last {
					continue
				}
				changed := known
				last, known = id, true
				if changed {
					cb(id)
				}
			}
		}
	}()
	var once bool
	return func() {
		if !once {
			once = true
			close(done)
		}
	}
}

// CallContract executes a read-only contract call.
func (p *RPCProvider) CallContract(ctx context.Context, to, calldata string) (string, error) {
	result, err := p.call(ctx, "eth_call", map[string]string{
		"to":   to,
		"data": calldata,
	}, "latest")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	s, ok := result.(string)
	if !ok {
		return "", fmt.Errorf("%w: unexpected result type %T", ErrNetwork, result)
	}
	return s, nil
}

// SendTransaction asks the wallet to sign and broadcast a contract call.
// Returns the transaction hash once the wallet approves.
func (p *RPCProvider) SendTransaction(ctx context.Context, from, to, calldata string) (string, error) {
	result, err := p.call(ctx, "eth_sendTransaction", map[string]string{
		"from": from,
		"to":   to,
		"data": calldata,
	})
	if err != nil {
		var rpcErr *rpcError
		if errAsRPC(err, &rpcErr) && rpcErr.Code == codeUserRejected {
			return "", fmt.Errorf("%w: %s", ErrUserRejected, rpcErr.Message)
		}
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	hash, ok := result.(string)
	if !ok {
		return "", fmt.Errorf("%w: unexpected result type %T", ErrNetwork, result)
	}
	return hash, nil
}

// TransactionReceipt fetches the receipt for hash. Returns nil, nil while
// the transaction is still pending.
func (p *RPCProvider) TransactionReceipt(ctx context.Context, hash string) (*Receipt, error) {
	result, err := p.call(ctx, "eth_getTransactionReceipt", hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if result == nil {
		return nil, nil
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	var r struct {
		Status      string `json:"status"`
		BlockNumber string `json:"blockNumber"`
		GasUsed     string `json:"gasUsed"`
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("%w: parsing receipt: %v", ErrNetwork, err)
	}

	receipt := &Receipt{Hash: hash}
	if s, ok := parseBigHex(r.Status); ok {
		receipt.Status = s.Uint64()
	}
	if bn, ok := parseBigHex(r.BlockNumber); ok {
		receipt.BlockNumber = bn.Uint64()
	}
	if gu, ok := parseBigHex(r.GasUsed); ok {
		receipt.GasUsed = gu.Uint64()
	}
	return receipt, nil
}

// BlockNumber returns the latest block number.
func (p *RPCProvider) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := p.callBig(ctx, "eth_blockNumber")
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

// Logs queries event logs matching the filter.
func (p *RPCProvider) Logs(ctx context.Context, f Filter) ([]Log, error) {
	filter := map[string]interface{}{
		"address":   f.Address,
		"fromBlock": fmt.Sprintf("0x%x", f.FromBlock),
		"toBlock":   fmt.Sprintf("0x%x", f.ToBlock),
	}
	if len(f.Topics) > 0 {
		topics := make([]interface{}, len(f.Topics))
		for i, t := range f.Topics {
			if t == "" {
				topics[i] = nil
			} else {
				topics[i] = t
			}
		}
		filter["topics"] = topics
	}

	result, err := p.call(ctx, "eth_getLogs", filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	var rawLogs []struct {
		Address     string   `json:"address"`
		Topics      []string `json:"topics"`
		Data        string   `json:"data"`
		BlockNumber string   `json:"blockNumber"`
		TxHash      string   `json:"transactionHash"`
	}
	if err := json.Unmarshal(raw, &rawLogs); err != nil {
		return nil, fmt.Errorf("%w: parsing logs: %v", ErrNetwork, err)
	}

	logs := make([]Log, 0, len(rawLogs))
	for _, rl := range rawLogs {
		l := Log{
			Address: rl.Address,
			Topics:  rl.Topics,
			Data:    rl.Data,
			TxHash:  rl.TxHash,
		}
		if bn, ok := parseBigHex(rl.BlockNumber); ok {
			l.BlockNumber = bn.Uint64()
		}
		logs = append(logs, l)
	}
	return logs, nil
}

// --- internal JSON-RPC plumbing ---

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

func errAsRPC(err error, target **rpcError) bool {
	re, ok := err.(*rpcError)
	if ok {
		*target = re
	}
	return ok
}

func (p *RPCProvider) call(ctx context.Context, method string, params ...interface{}) (interface{}, error) {
	if p.url == "" {
		return nil, ErrUnavailable
	}

	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, strings.NewReader(string(reqBody)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("RPC request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	if len(rpcResp.Result) == 0 {
		return nil, nil
	}

	var result interface{}
	if err := json.Unmarshal(rpcResp.Result, &result); err != nil {
		return nil, fmt.Errorf("parsing result: %w", err)
	}
	return result, nil
}

// callBig calls a method whose result is a single hex quantity.
func (p *RPCProvider) callBig(ctx context.Context, method string, params ...interface{}) (*big.Int, error) {
	result, err := p.call(ctx, method, params...)
	if err != nil {
		if err == ErrUnavailable {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	hexStr, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected result type %T", ErrNetwork, result)
	}
	n, ok := parseBigHex(hexStr)
	if !ok {
		return nil, fmt.Errorf("%w: could not parse quantity %q", ErrNetwork, hexStr)
	}
	return n, nil
}

func parseBigHex(s string) (*big.Int, bool) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return new(big.Int), true
	}
	return new(big.Int).SetString(s, 16)
}
