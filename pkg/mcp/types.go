// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package mcp exposes the ad-gated resource catalog as JSON-RPC 2.0 tools:
// list_resources, request_resource and complete_ad_and_pay.
package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/adsdk/pkg/settlement"
	"github.com/luxfi/adsdk/pkg/x402"
)

const JSONRPCVersion = "2.0"

// Tool names
const (
	ToolListResources    = "list_resources"
	ToolRequestResource  = "request_resource"
	ToolCompleteAdAndPay = "complete_ad_and_pay"
)

// JSON-RPC error codes. Session problems use the application range.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeSessionError   = -32001
	CodeResourceError  = -32002
)

var (
	ErrUnknownResource  = errors.New("unknown resource")
	ErrSessionNotFound  = errors.New("ad session not found")
	ErrSessionExpired   = errors.New("ad session expired")
	ErrSessionConsumed  = errors.New("ad session already used")
	ErrAdNotFinished    = errors.New("ad has not finished playing")
	ErrResourceMismatch = errors.New("ad session belongs to another resource")
)

// Request is a JSON-RPC request
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC response; exactly one of Result and Error is set
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error object
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// CallParams are the params of tools/call
type CallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Content is a text block of a tool result
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResult wraps a tool's output
type ToolResult struct {
	Content           []Content       `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	IsError           bool            `json:"isError,omitempty"`
}

// ToolInfo describes a tool in tools/list
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Resource is a catalog entry. Content is only released through the tools.
type Resource struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`

	// Price in atomic units of the payment asset; empty or "0" means free
	Price        string `json:"price,omitempty"`
	DisplayPrice string `json:"displayPrice,omitempty"`
	Free         bool   `json:"free"`
	Content      string `json:"-"`
}

// ListResult is the output of list_resources
type ListResult struct {
	Resources []Resource `json:"resources"`
}

// RequestArgs are the arguments of request_resource
type RequestArgs struct {
	ResourceID string `json:"resourceId"`
	UserID     string `json:"userId,omitempty"`
}

// AdSession gates one paid resource behind one ad view
type AdSession struct {
	SessionID  string    `json:"sessionId"`
	AdURL      string    `json:"adUrl"`
	Duration   int       `json:"duration"`
	ResourceID string    `json:"resourceId"`
	PlaybackID string    `json:"playbackId,omitempty"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// DurationTime is Duration in seconds as a time.Duration
func (s AdSession) DurationTime() time.Duration {
	return time.Duration(s.Duration) * time.Second
}

// Grant is the output of request_resource. Free resources come back with
// Content; paid ones with a Session and PaymentRequirements.
type Grant struct {
	ResourceID          string                    `json:"resourceId"`
	Free                bool                      `json:"free"`
	Content             string                    `json:"content,omitempty"`
	MimeType            string                    `json:"mimeType,omitempty"`
	Session             *AdSession                `json:"session,omitempty"`
	PaymentRequirements *x402.PaymentRequirements `json:"paymentRequirements,omitempty"`
}

// CompleteArgs are the arguments of complete_ad_and_pay
type CompleteArgs struct {
	SessionID     string `json:"sessionId"`
	ResourceID    string `json:"resourceId"`
	UserID        string `json:"userId,omitempty"`
	PaymentHeader string `json:"paymentHeader"`
}

// CompleteResult is the output of complete_ad_and_pay. A refused payment
// is Success false with the facilitator's reason.
type CompleteResult struct {
	Success  bool                `json:"success"`
	Stage    settlement.Stage    `json:"stage,omitempty"`
	Reason   string              `json:"reason,omitempty"`
	Content  string              `json:"content,omitempty"`
	MimeType string              `json:"mimeType,omitempty"`
	Receipt  *settlement.Receipt `json:"receipt,omitempty"`
}
