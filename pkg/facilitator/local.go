// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package facilitator verifies and settles x402 "exact" payments against an
// in-memory token ledger, and serves that over HTTP.
package facilitator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"

	"github.com/luxfi/adsdk/pkg/crypto"
	"github.com/luxfi/adsdk/pkg/log"
	"github.com/luxfi/adsdk/pkg/settlement"
	"github.com/luxfi/adsdk/pkg/x402"
)

// DefaultSkew tolerates payer clocks running slightly ahead
const DefaultSkew = 5 * time.Second

// Local is an in-process facilitator
type Local struct {
	ledger *settlement.Ledger
	clock  clock.Clock
	log    log.Logger
	skew   time.Duration

	// settle re-verifies and applies as one step
	mu sync.Mutex
}

var _ settlement.Facilitator = (*Local)(nil)

// NewLocal creates a facilitator over ledger
func NewLocal(ledger *settlement.Ledger, clk clock.Clock, logger log.Logger) *Local {
	if clk == nil {
		clk = clock.New()
	}
	return &Local{
		ledger: ledger,
		clock:  clk,
		log:    logger,
		skew:   DefaultSkew,
	}
}

// Ledger exposes the backing ledger for funding and inspection
func (f *Local) Ledger() *settlement.Ledger { return f.ledger }

// Supported lists the scheme and networks this facilitator accepts
func (f *Local) Supported(context.Context) (x402.SupportedResponse, error) {
	var resp x402.SupportedResponse
	for _, n := range x402.Networks() {
		resp.Kinds = append(resp.Kinds, x402.SupportedKind{
			X402Version: x402.Version,
			Scheme:      x402.SchemeExact,
			Network:     n,
		})
	}
	return resp, nil
}

func (f *Local) Verify(ctx context.Context, header string, req x402.PaymentRequirements) (x402.VerifyResponse, error) {
	if err := ctx.Err(); err != nil {
		return x402.VerifyResponse{}, err
	}
	_, payer, reason := f.check(header, req)
	if reason != "" {
		f.log.Debug("verify rejected", log.String("reason", reason), log.String("payer", payer))
		return x402.VerifyResponse{InvalidReason: reason, Payer: payer}, nil
	}
	return x402.VerifyResponse{IsValid: true, Payer: payer}, nil
}

func (f *Local) Settle(ctx context.Context, header string, req x402.PaymentRequirements) (x402.SettleResponse, error) {
	if err := ctx.Err(); err != nil {
		return x402.SettleResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	t, payer, reason := f.check(header, req)
	if reason != "" {
		return x402.SettleResponse{ErrorReason: reason, Payer: payer, Network: req.Network}, nil
	}

	receipt, err := f.ledger.Apply(t)
	switch {
	case errors.Is(err, settlement.ErrNonceUsed):
		return x402.SettleResponse{ErrorReason: x402.ReasonNonceUsed, Payer: payer, Network: req.Network}, nil
	case errors.Is(err, settlement.ErrInsufficientBalance):
		return x402.SettleResponse{ErrorReason: x402.ReasonInsufficientFunds, Payer: payer, Network: req.Network}, nil
	case err != nil:
		f.log.Error("settlement failed", log.Error(err))
		return x402.SettleResponse{ErrorReason: x402.ReasonSettlementFailed, Payer: payer, Network: req.Network}, nil
	}

	return x402.SettleResponse{
		Success:     true,
		Payer:       payer,
		Transaction: receipt.TxHash,
		Network:     req.Network,
		BlockNumber: receipt.BlockNumber,
		Timestamp:   receipt.Timestamp,
	}, nil
}

// check validates header against req and returns the transfer it
// authorises, or the reason it is invalid.
func (f *Local) check(header string, req x402.PaymentRequirements) (settlement.Transfer, string, string) {
	h, err := x402.DecodeHeader(header)
	if err != nil {
		return settlement.Transfer{}, "", x402.ReasonInvalidPayload
	}
	auth := h.Payload.Authorization
	payer := auth.From

	if h.Scheme != x402.SchemeExact || req.Scheme != x402.SchemeExact {
		return settlement.Transfer{}, payer, x402.ReasonUnsupportedScheme
	}
	network, err := x402.LookupNetwork(req.Network)
	if err != nil || h.Network != req.Network {
		return settlement.Transfer{}, payer, x402.ReasonInvalidNetwork
	}
	if !crypto.SameAddress(auth.To, req.PayTo) {
		return settlement.Transfer{}, payer, x402.ReasonInvalidRecipient
	}

	asset := req.Asset
	if asset == "" {
		asset = network.USDC
	}
	if h.Payload.Asset != "" && !crypto.SameAddress(h.Payload.Asset, asset) {
		return settlement.Transfer{}, payer, x402.ReasonInvalidAsset
	}

	value, err := decimal.NewFromString(auth.Value)
	required, rerr := decimal.NewFromString(req.MaxAmountRequired)
	if err != nil || rerr != nil || !value.Equal(required) {
		return settlement.Transfer{}, payer, x402.ReasonInvalidValue
	}

	now := f.clock.Now().Unix()
	if auth.ValidAfter > now {
		return settlement.Transfer{}, payer, x402.ReasonNotYetValid
	}
	latest := now + int64(req.MaxTimeoutSeconds) + int64(f.skew/time.Second)
	if auth.ValidBefore <= now || auth.ValidBefore > latest {
		return settlement.Transfer{}, payer, x402.ReasonExpired
	}

	domain, err := x402.DomainFor(req)
	if err != nil {
		return settlement.Transfer{}, payer, x402.ReasonInvalidNetwork
	}
	domain.VerifyingContract = asset
	signer, err := x402.RecoverSigner(domain, auth, h.Payload.Signature)
	if err != nil || !crypto.SameAddress(signer, auth.From) {
		return settlement.Transfer{}, payer, x402.ReasonInvalidSignature
	}

	if f.ledger.NonceUsed(asset, auth.From, auth.Nonce) {
		return settlement.Transfer{}, payer, x402.ReasonNonceUsed
	}
	if f.ledger.Balance(asset, auth.From).LessThan(value) {
		return settlement.Transfer{}, payer, x402.ReasonInsufficientFunds
	}

	return settlement.Transfer{
		Network: req.Network,
		Asset:   asset,
		From:    auth.From,
		To:      auth.To,
		Value:   value,
		Nonce:   auth.Nonce,
	}, payer, ""
}
