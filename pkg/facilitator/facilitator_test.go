// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package facilitator

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/adsdk/pkg/crypto"
	"github.com/luxfi/adsdk/pkg/log"
	"github.com/luxfi/adsdk/pkg/settlement"
	"github.com/luxfi/adsdk/pkg/x402"
)

const merchant = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

type fixture struct {
	clk   *clock.Mock
	f     *Local
	payer *crypto.PrivateKey
	req   x402.PaymentRequirements
}

func newFixture(t *testing.T) *fixture {
	clk := clock.NewMock()
	clk.Set(time.Unix(1_750_000_000, 0))
	f := NewLocal(settlement.NewLedger(clk, log.NoOp()), clk, log.NoOp())

	payer, err := crypto.GenerateKey()
	require.NoError(t, err)

	req := x402.PaymentRequirements{
		Scheme:            x402.SchemeExact,
		Network:           x402.NetworkBaseSepolia,
		MaxAmountRequired: "5000000",
		Resource:          "mcp://resource/premium-analysis-1",
		PayTo:             merchant,
		MaxTimeoutSeconds: 300,
		Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
	}
	require.NoError(t, f.Ledger().Fund(req.Asset, payer.Address(), decimal.NewFromInt(20_000_000)))
	return &fixture{clk: clk, f: f, payer: payer, req: req}
}

// header signs an authorization for req, letting mutate adjust it first
func (fx *fixture) header(t *testing.T, signer *crypto.PrivateKey, mutate func(*x402.Authorization)) string {
	auth, err := x402.NewAuthorization(fx.payer.Address(), fx.req, fx.clk.Now())
	require.NoError(t, err)
	if mutate != nil {
		mutate(&auth)
	}
	domain, err := x402.DomainFor(fx.req)
	require.NoError(t, err)
	sig, err := x402.Sign(signer, domain, auth)
	require.NoError(t, err)

	h, err := x402.PaymentHeader{
		X402Version: x402.Version,
		Scheme:      x402.SchemeExact,
		Network:     fx.req.Network,
		Payload:     x402.ExactPayload{Signature: sig, Authorization: auth, Asset: fx.req.Asset},
	}.Encode()
	require.NoError(t, err)
	return h
}

func TestVerifyAndSettle(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	fx := newFixture(t)
	h := fx.header(t, fx.payer, nil)

	v, err := fx.f.Verify(ctx, h, fx.req)
	require.NoError(err)
	require.True(v.IsValid, v.InvalidReason)
	require.Equal(fx.payer.Address(), v.Payer)

	s, err := fx.f.Settle(ctx, h, fx.req)
	require.NoError(err)
	require.True(s.Success, s.ErrorReason)
	require.Equal(uint64(1), s.BlockNumber)
	require.Len(s.Transaction, 66)
	require.Equal(fx.clk.Now().Unix(), s.Timestamp)

	ledger := fx.f.Ledger()
	require.Equal("15000000", ledger.Balance(fx.req.Asset, fx.payer.Address()).String())
	require.Equal("5000000", ledger.Balance(fx.req.Asset, merchant).String())
	require.Equal(uint64(1), ledger.Height())

	replay, err := fx.f.Settle(ctx, h, fx.req)
	require.NoError(err)
	require.False(replay.Success)
	require.Equal(x402.ReasonNonceUsed, replay.ErrorReason)
}

func TestVerifyRejectsLongValidity(t *testing.T) {
	require := require.New(t)
	fx := newFixture(t)

	h := fx.header(t, fx.payer, func(a *x402.Authorization) {
		a.ValidBefore = fx.clk.Now().Unix() + 400
	})
	v, err := fx.f.Verify(context.Background(), h, fx.req)
	require.NoError(err)
	require.False(v.IsValid)
	require.Equal(x402.ReasonExpired, v.InvalidReason)
}

func TestVerifyRejections(t *testing.T) {
	fx := newFixture(t)
	stranger, err := crypto.GenerateKey()
	require.NoError(t, err)

	cases := []struct {
		name   string
		signer *crypto.PrivateKey
		mutate func(*x402.Authorization)
		want   string
	}{
		{"wrong value", fx.payer, func(a *x402.Authorization) { a.Value = "4999999" }, x402.ReasonInvalidValue},
		{"wrong recipient", fx.payer, func(a *x402.Authorization) { a.To = stranger.Address() }, x402.ReasonInvalidRecipient},
		{"not yet valid", fx.payer, func(a *x402.Authorization) { a.ValidAfter = fx.clk.Now().Unix() + 60 }, x402.ReasonNotYetValid},
		{"already expired", fx.payer, func(a *x402.Authorization) { a.ValidBefore = fx.clk.Now().Unix() }, x402.ReasonExpired},
		{"foreign signature", stranger, nil, x402.ReasonInvalidSignature},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := fx.f.Verify(context.Background(), fx.header(t, tc.signer, tc.mutate), fx.req)
			require.NoError(t, err)
			require.False(t, v.IsValid)
			require.Equal(t, tc.want, v.InvalidReason)
		})
	}

	v, err := fx.f.Verify(context.Background(), "not-base64!", fx.req)
	require.NoError(t, err)
	require.Equal(t, x402.ReasonInvalidPayload, v.InvalidReason)

	other := fx.req
	other.Network = x402.NetworkBase
	v, err = fx.f.Verify(context.Background(), fx.header(t, fx.payer, nil), other)
	require.NoError(t, err)
	require.Equal(t, x402.ReasonInvalidNetwork, v.InvalidReason)
}

func TestSkewTolerance(t *testing.T) {
	require := require.New(t)
	fx := newFixture(t)

	h := fx.header(t, fx.payer, func(a *x402.Authorization) {
		a.ValidBefore = fx.clk.Now().Unix() + 303
	})
	v, err := fx.f.Verify(context.Background(), h, fx.req)
	require.NoError(err)
	require.True(v.IsValid, v.InvalidReason)
}

func TestInsufficientFunds(t *testing.T) {
	require := require.New(t)
	fx := newFixture(t)
	fx.req.MaxAmountRequired = "25000000"

	v, err := fx.f.Verify(context.Background(), fx.header(t, fx.payer, nil), fx.req)
	require.NoError(err)
	require.Equal(x402.ReasonInsufficientFunds, v.InvalidReason)
}

func TestHTTPRoundTrip(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	fx := newFixture(t)

	srv := httptest.NewServer(NewRouter(fx.f, log.NoOp()))
	defer srv.Close()
	c := NewClient(srv.URL, srv.Client())

	sup, err := c.Supported(ctx)
	require.NoError(err)
	require.Len(sup.Kinds, 2)

	h := fx.header(t, fx.payer, nil)
	v, err := c.Verify(ctx, h, fx.req)
	require.NoError(err)
	require.True(v.IsValid)

	s, err := c.Settle(ctx, h, fx.req)
	require.NoError(err)
	require.True(s.Success)
	require.Equal(x402.NetworkBaseSepolia, s.Network)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = c.Verify(cancelled, h, fx.req)
	require.ErrorIs(err, context.Canceled)
}
