// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/luxfi/adsdk/pkg/log"
	"github.com/luxfi/adsdk/pkg/x402"
)

// Facilitator verifies and settles x402 payments
type Facilitator interface {
	Verify(ctx context.Context, header string, req x402.PaymentRequirements) (x402.VerifyResponse, error)
	Settle(ctx context.Context, header string, req x402.PaymentRequirements) (x402.SettleResponse, error)
}

// Stage of the two phase round trip
type Stage string

const (
	StageVerify Stage = "verify"
	StageSettle Stage = "settle"
)

// Outcome of Process. A payment the facilitator refuses is an unsuccessful
// outcome carrying its reason, not an error.
type Outcome struct {
	Success bool     `json:"success"`
	Stage   Stage    `json:"stage,omitempty"`
	Reason  string   `json:"reason,omitempty"`
	Receipt *Receipt `json:"receipt,omitempty"`
}

// Stats tracks settlement throughput
type Stats struct {
	Verified          uint64          `json:"verified"`
	Rejected          uint64          `json:"rejected"`
	Settled           uint64          `json:"settled"`
	Failed            uint64          `json:"failed"`
	Volume            decimal.Decimal `json:"volume"`
	AvgSettlementTime time.Duration   `json:"avgSettlementTime"`
}

// Settler runs verify then settle against a facilitator
type Settler struct {
	facilitator Facilitator
	log         log.Logger

	mu    sync.Mutex
	stats Stats
	total time.Duration
}

// NewSettler creates the orchestrator
func NewSettler(f Facilitator, logger log.Logger) *Settler {
	return &Settler{
		facilitator: f,
		log:         logger,
		stats:       Stats{Volume: decimal.Zero},
	}
}

// Process verifies the header against req and, when valid, settles it.
// Errors are reserved for transport and protocol failures.
func (s *Settler) Process(ctx context.Context, header string, req x402.PaymentRequirements) (Outcome, error) {
	start := time.Now()

	verified, err := s.facilitator.Verify(ctx, header, req)
	if err != nil {
		return Outcome{}, fmt.Errorf("verify: %w", err)
	}
	if !verified.IsValid {
		s.count(func(st *Stats) { st.Rejected++ })
		s.log.Info("payment rejected", log.String("reason", verified.InvalidReason))
		return Outcome{Stage: StageVerify, Reason: verified.InvalidReason}, nil
	}
	s.count(func(st *Stats) { st.Verified++ })

	settled, err := s.facilitator.Settle(ctx, header, req)
	if err != nil {
		return Outcome{}, fmt.Errorf("settle: %w", err)
	}
	if !settled.Success {
		s.count(func(st *Stats) { st.Failed++ })
		s.log.Warn("settlement failed", log.String("reason", settled.ErrorReason))
		return Outcome{Stage: StageSettle, Reason: settled.ErrorReason}, nil
	}

	// Receipt fields come from the signed authorization; the facilitator
	// contributes the chain side.
	h, err := x402.DecodeHeader(header)
	if err != nil {
		return Outcome{}, err
	}
	auth := h.Payload.Authorization
	receipt := &Receipt{
		TxHash:      settled.Transaction,
		From:        auth.From,
		To:          auth.To,
		Value:       auth.Value,
		BlockNumber: settled.BlockNumber,
		Timestamp:   settled.Timestamp,
		Network:     settled.Network,
		Asset:       h.Payload.Asset,
	}

	elapsed := time.Since(start)
	value, _ := decimal.NewFromString(auth.Value)
	s.mu.Lock()
	s.stats.Settled++
	s.stats.Volume = s.stats.Volume.Add(value)
	s.total += elapsed
	s.stats.AvgSettlementTime = s.total / time.Duration(s.stats.Settled)
	s.mu.Unlock()

	s.log.Info("payment settled",
		log.String("txHash", receipt.TxHash),
		log.String("payer", receipt.From),
		log.Duration("elapsed", elapsed),
	)
	return Outcome{Success: true, Receipt: receipt}, nil
}

// Stats returns a snapshot of the counters
func (s *Settler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Settler) count(fn func(*Stats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}
