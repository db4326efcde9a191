// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package x402 holds the wire types of the x402 "exact" payment scheme and
// the EIP-712 TransferWithAuthorization signing it relies on.
package x402

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/luxfi/adsdk/pkg/ids"
)

const (
	Version     = 1
	SchemeExact = "exact"

	// ValidAfterSkew backdates an authorization so clock drift between the
	// payer and the verifier does not reject it.
	ValidAfterSkew = 600 * time.Second
)

var (
	ErrInvalidHeader = errors.New("invalid payment header")
	ErrInvalidAmount = errors.New("invalid amount")
)

// PaymentRequirements is what a server demands before releasing a resource
type PaymentRequirements struct {
	Scheme            string         `json:"scheme"`
	Network           string         `json:"network"`
	MaxAmountRequired string         `json:"maxAmountRequired"`
	Resource          string         `json:"resource"`
	Description       string         `json:"description"`
	MimeType          string         `json:"mimeType"`
	PayTo             string         `json:"payTo"`
	MaxTimeoutSeconds int            `json:"maxTimeoutSeconds"`
	Asset             string         `json:"asset"`
	Extra             map[string]any `json:"extra,omitempty"`
}

// Timeout is MaxTimeoutSeconds as a duration
func (r PaymentRequirements) Timeout() time.Duration {
	return time.Duration(r.MaxTimeoutSeconds) * time.Second
}

// Authorization carries the EIP-3009 transferWithAuthorization parameters
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  int64  `json:"validAfter"`
	ValidBefore int64  `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// ExactPayload is the scheme specific part of a PaymentHeader
type ExactPayload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
	Asset         string        `json:"asset"`
}

// PaymentHeader travels base64 encoded to the server
type PaymentHeader struct {
	X402Version int          `json:"x402Version"`
	Scheme      string       `json:"scheme"`
	Network     string       `json:"network"`
	Payload     ExactPayload `json:"payload"`
}

// Encode returns base64(JSON(h))
func (h PaymentHeader) Encode() (string, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeHeader reverses Encode
func DecodeHeader(s string) (PaymentHeader, error) {
	var h PaymentHeader
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	if err := json.Unmarshal(data, &h); err != nil {
		return h, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	return h, nil
}

// NewAuthorization fills an authorization for exactly the required amount,
// valid from now-ValidAfterSkew until now+MaxTimeoutSeconds, with a fresh
// 32 byte nonce.
func NewAuthorization(from string, req PaymentRequirements, now time.Time) (Authorization, error) {
	nonce, err := ids.Generate()
	if err != nil {
		return Authorization{}, err
	}
	return Authorization{
		From:        from,
		To:          req.PayTo,
		Value:       req.MaxAmountRequired,
		ValidAfter:  now.Add(-ValidAfterSkew).Unix(),
		ValidBefore: now.Add(req.Timeout()).Unix(),
		Nonce:       nonce.String(),
	}, nil
}

// FormatAmount renders atomic units as a display amount, "5000000" with 6
// decimals being "5".
func FormatAmount(atomic string, decimals int32) (string, error) {
	d, err := decimal.NewFromString(atomic)
	if err != nil || d.IsNegative() || !d.Equal(d.Truncate(0)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAmount, atomic)
	}
	return d.Shift(-decimals).String(), nil
}

// ToAtomic converts a display amount into atomic units
func ToAtomic(amount string, decimals int32) (string, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil || d.IsNegative() {
		return "", fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	d = d.Shift(decimals)
	if !d.Equal(d.Truncate(0)) {
		return "", fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, amount, decimals)
	}
	return d.String(), nil
}
