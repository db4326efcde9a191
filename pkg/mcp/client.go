// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
)

// Client calls the tool server over HTTP
type Client struct {
	endpoint string
	hc       *http.Client
	nextID   atomic.Int64
}

// NewClient targets the JSON-RPC endpoint, e.g. http://host/mcp
func NewClient(endpoint string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{endpoint: endpoint, hc: hc}
}

func (c *Client) ListResources(ctx context.Context) ([]Resource, error) {
	var out ListResult
	if err := c.CallTool(ctx, ToolListResources, struct{}{}, &out); err != nil {
		return nil, err
	}
	return out.Resources, nil
}

func (c *Client) RequestResource(ctx context.Context, resourceID, userID string) (*Grant, error) {
	var out Grant
	if err := c.CallTool(ctx, ToolRequestResource, RequestArgs{ResourceID: resourceID, UserID: userID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CompleteAdAndPay(ctx context.Context, args CompleteArgs) (*CompleteResult, error) {
	var out CompleteResult
	if err := c.CallTool(ctx, ToolCompleteAdAndPay, args, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CallTool invokes tools/call and decodes the structured result into out.
// Server side failures come back as *RPCError.
func (c *Client) CallTool(ctx context.Context, name string, args, out any) error {
	rawArgs, err := json.Marshal(args)
	if err != nil {
		return err
	}
	params, err := json.Marshal(CallParams{Name: name, Arguments: rawArgs})
	if err != nil {
		return err
	}

	var result ToolResult
	if err := c.call(ctx, "tools/call", params, &result); err != nil {
		return err
	}
	if result.IsError {
		msg := ""
		if len(result.Content) > 0 {
			msg = result.Content[0].Text
		}
		return &RPCError{Code: CodeInternalError, Message: msg}
	}
	return json.Unmarshal(result.StructuredContent, out)
}

func (c *Client) call(ctx context.Context, method string, params json.RawMessage, out any) error {
	body, err := json.Marshal(Request{
		JSONRPC: JSONRPCVersion,
		ID:      json.RawMessage(strconv.FormatInt(c.nextID.Add(1), 10)),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: status %d: %s", method, resp.StatusCode, msg)
	}

	var rpcResp Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	return json.Unmarshal(rpcResp.Result, out)
}
