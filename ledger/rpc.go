package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync/atomic"
	"time"
)

// RPCClient is a JSON-RPC 1.0 client for a node's wallet and mempool
// interface. Every node call is built on Call.
type RPCClient struct {
	url     string
	user    string
	pass    string
	network string
	client  *http.Client
	nextID  atomic.Int64
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewRPCClient creates a client for cfg. Basic auth is sent when User is set.
func NewRPCClient(cfg RPCConfig) *RPCClient {
	return &RPCClient{
		url:     cfg.URL,
		user:    cfg.User,
		pass:    cfg.Password,
		network: cfg.Network,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 10,
			},
		},
	}
}

// Network returns the chain this client is configured for.
func (c *RPCClient) Network() string { return c.network }

// Call invokes method and decodes the result into result, which may be nil.
//
// Transport failures and non-JSON error pages wrap ErrConnectionFailed.
// Nodes answer RPC-level failures with HTTP 500 and an error object; those
// wrap ErrRPC and carry the node's code and message.
func (c *RPCClient) Call(ctx context.Context, method string, params []any, result any) error {
	if params == nil {
		params = []any{}
	}
	reqBody := rpcRequest{
		JSONRPC: "1.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("ledger: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ledger: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: HTTP %d", ErrAuthFailed, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %w", ErrConnectionFailed, err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("%w: HTTP %d: %s", ErrConnectionFailed, resp.StatusCode, truncate(raw, 1024))
		}
		return fmt.Errorf("%w: decode response: %w", ErrInvalidResponse, err)
	}

	if rpcResp.Error != nil {
		return fmt.Errorf("%w %d: %s", ErrRPC, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrConnectionFailed, resp.StatusCode)
	}
	if rpcResp.ID != reqBody.ID {
		return fmt.Errorf("%w: response ID mismatch: expected %d, got %d",
			ErrInvalidResponse, reqBody.ID, rpcResp.ID)
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("%w: unmarshal result: %w", ErrInvalidResponse, err)
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

// UTXO is an unspent output held at an address.
type UTXO struct {
	TxID          string
	Vout          uint32
	Amount        uint64 // satoshis
	ScriptPubKey  string // hex
	Address       string
	Confirmations int64
}

// btcToSat converts a coin amount as returned by the node to satoshis.
func btcToSat(btc float64) uint64 {
	return uint64(math.Round(btc * 1e8))
}

type listUnspentResult struct {
	TxID          string  `json:"txid"`
	Vout          uint32  `json:"vout"`
	Amount        float64 `json:"amount"`
	ScriptPubKey  string  `json:"scriptPubKey"`
	Address       string  `json:"address"`
	Confirmations int64   `json:"confirmations"`
}

// ListUnspent returns every unspent output at address, including unconfirmed ones.
func (c *RPCClient) ListUnspent(ctx context.Context, address string) ([]*UTXO, error) {
	params := []any{0, 9999999, []string{address}}
	var results []listUnspentResult
	if err := c.Call(ctx, "listunspent", params, &results); err != nil {
		return nil, err
	}

	utxos := make([]*UTXO, len(results))
	for i, r := range results {
		utxos[i] = &UTXO{
			TxID:          r.TxID,
			Vout:          r.Vout,
			Amount:        btcToSat(r.Amount),
			ScriptPubKey:  r.ScriptPubKey,
			Address:       r.Address,
			Confirmations: r.Confirmations,
		}
	}
	return utxos, nil
}

// BroadcastTx submits a signed transaction and returns its txid. Any RPC
// error from the node is a rejection.
func (c *RPCClient) BroadcastTx(ctx context.Context, rawTxHex string) (string, error) {
	var txid string
	err := c.Call(ctx, "sendrawtransaction", []any{rawTxHex}, &txid)
	if err != nil {
		if isRPCError(err) {
			return "", fmt.Errorf("%w: %w", ErrBroadcastRejected, err)
		}
		return "", err
	}
	return txid, nil
}

// ImportAddress adds address to the node wallet as watch-only so that
// ListUnspent can see its outputs. Safe to call repeatedly.
func (c *RPCClient) ImportAddress(ctx context.Context, address string, rescan bool) error {
	return c.Call(ctx, "importaddress", []any{address, "", rescan}, nil)
}
