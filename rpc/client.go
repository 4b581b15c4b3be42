package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Client is a minimal JSON-RPC client for the pool endpoint.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	nextID   atomic.Int64
}

func NewClient(endpoint, token string) *Client {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if !strings.HasSuffix(endpoint, "/rpc") {
		endpoint += "/rpc"
	}
	return &Client{
		endpoint: endpoint,
		token:    strings.TrimSpace(token),
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Call invokes method with params and decodes the result into out. A
// JSON-RPC error is returned as *RPCError.
func (c *Client) Call(ctx context.Context, method string, params interface{}, out interface{}) error {
	req := map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      c.nextID.Add(1),
		"method":  method,
		"params":  []interface{}{},
	}
	if params != nil {
		req["params"] = []interface{}{params}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var decoded RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("%s: unexpected response (HTTP %d): %w", method, resp.StatusCode, err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if out == nil || len(decoded.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}
