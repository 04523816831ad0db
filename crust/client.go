// Package crust talks to the blockchain storage market through the
// platform's pinning gateway, a JSON-RPC 2.0 endpoint in front of the
// chain. Orders settle asynchronously on-chain; success here only means
// the extrinsic was accepted.
package crust

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"golang.org/x/time/rate"
)

type Client struct {
	endpoint string
	tips     int64
	http     *http.Client
	limiter  *rate.Limiter
	reqID    atomic.Int64
}

// OrderReceipt acknowledges a submitted storage order.
type OrderReceipt struct {
	TxHash    string `json:"txHash"`
	BlockHash string `json:"blockHash"`
}

// OrderStatus is the on-chain state of a file order.
type OrderStatus struct {
	CID          string `json:"cid"`
	Size         int64  `json:"size"`
	ExpiresAt    int64  `json:"expiresAt"`
	ReplicaCount int    `json:"replicaCount"`
	Found        bool   `json:"found"`
}

// New builds a client throttled to ordersPerMinute submissions, so a
// large renewal backlog can't flood the gateway.
func New(endpoint string, tips int64, ordersPerMinute int) *Client {
	return &Client{
		endpoint: endpoint,
		tips:     tips,
		http:     &http.Client{},
		limiter:  rate.NewLimiter(rate.Limit(float64(ordersPerMinute)/60.0), 1),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.reqID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to encode rpc request, %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pinning gateway call %s failed, %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("pinning gateway %s: unexpected status %d: %s", method, resp.StatusCode, msg)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("failed to decode rpc response, %w", err)
	}

	if rpcResp.Error != nil {
		return fmt.Errorf("pinning gateway %s: %s (code %d)", method, rpcResp.Error.Message, rpcResp.Error.Code)
	}

	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("failed to decode rpc result, %w", err)
		}
	}

	return nil
}

// PlaceStorageOrder submits an order for (cid, size). The memo travels
// with the extrinsic and is what ties the order back to a bucket when
// reading chain events.
func (c *Client) PlaceStorageOrder(ctx context.Context, cid string, size int64, memo string) (*OrderReceipt, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var receipt OrderReceipt
	err := c.call(ctx, "market.placeStorageOrder", map[string]any{
		"cid":  cid,
		"size": size,
		"tips": c.tips,
		"memo": memo,
	}, &receipt)
	if err != nil {
		return nil, err
	}

	return &receipt, nil
}

// GetOrderStatus queries the current on-chain state of a CID's order.
func (c *Client) GetOrderStatus(ctx context.Context, cid string) (*OrderStatus, error) {
	var status OrderStatus
	err := c.call(ctx, "market.fileInfo", map[string]any{"cid": cid}, &status)
	if err != nil {
		return nil, err
	}

	return &status, nil
}
