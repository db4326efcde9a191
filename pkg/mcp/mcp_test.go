// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mcp

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/adsdk/pkg/adclient"
	"github.com/luxfi/adsdk/pkg/crypto"
	"github.com/luxfi/adsdk/pkg/facilitator"
	"github.com/luxfi/adsdk/pkg/log"
	"github.com/luxfi/adsdk/pkg/metric"
	"github.com/luxfi/adsdk/pkg/settlement"
	"github.com/luxfi/adsdk/pkg/x402"
)

const merchant = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

var catalog = []Resource{
	{ID: "weather-today", Title: "Today's weather", MimeType: "text/plain", Content: "sunny"},
	{ID: "premium-analysis-1", Title: "Premium analysis", MimeType: "text/markdown", Price: "5000000", Content: "# Buy low"},
}

type adStub struct{ err error }

func (a adStub) FetchAd(context.Context, string) (*adclient.FetchResponse, error) {
	if a.err != nil {
		return nil, a.err
	}
	return &adclient.FetchResponse{PlaybackID: "pb_1", Ad: adclient.FetchedAd{AssetURL: "https://ads.example/spot.mp4"}}, nil
}

type env struct {
	clk   *clock.Mock
	srv   *Server
	payer *crypto.PrivateKey
	f     *facilitator.Local
}

func newEnv(t *testing.T, opts ...Option) *env {
	clk := clock.NewMock()
	clk.Set(time.Unix(1_750_000_000, 0))
	f := facilitator.NewLocal(settlement.NewLedger(clk, log.NoOp()), clk, log.NoOp())

	payer, err := crypto.GenerateKey()
	require.NoError(t, err)
	network, _ := x402.LookupNetwork(x402.NetworkBaseSepolia)
	require.NoError(t, f.Ledger().Fund(network.USDC, payer.Address(), decimal.NewFromInt(10_000_000)))

	opts = append([]Option{WithClock(clk)}, opts...)
	srv, err := NewServer(Config{
		Network:       x402.NetworkBaseSepolia,
		PayTo:         merchant,
		FallbackAdURL: "https://ads.example/fallback.html",
	}, catalog, settlement.NewSettler(f, log.NoOp()), opts...)
	require.NoError(t, err)
	return &env{clk: clk, srv: srv, payer: payer, f: f}
}

func (e *env) pay(t *testing.T, req x402.PaymentRequirements, mutate func(*x402.Authorization)) string {
	auth, err := x402.NewAuthorization(e.payer.Address(), req, e.clk.Now())
	require.NoError(t, err)
	if mutate != nil {
		mutate(&auth)
	}
	domain, err := x402.DomainFor(req)
	require.NoError(t, err)
	sig, err := x402.Sign(e.payer, domain, auth)
	require.NoError(t, err)
	h, err := x402.PaymentHeader{
		X402Version: x402.Version,
		Scheme:      req.Scheme,
		Network:     req.Network,
		Payload:     x402.ExactPayload{Signature: sig, Authorization: auth, Asset: req.Asset},
	}.Encode()
	require.NoError(t, err)
	return h
}

func TestListResources(t *testing.T) {
	require := require.New(t)
	list := newEnv(t).srv.ListResources()

	require.Len(list.Resources, 2)
	require.True(list.Resources[0].Free)
	require.False(list.Resources[1].Free)
	require.Equal("5", list.Resources[1].DisplayPrice)
}

func TestFreeResourceSkipsSession(t *testing.T) {
	require := require.New(t)
	g, err := newEnv(t).srv.RequestResource(context.Background(), RequestArgs{ResourceID: "weather-today"})
	require.NoError(err)
	require.True(g.Free)
	require.Equal("sunny", g.Content)
	require.Nil(g.Session)
	require.Nil(g.PaymentRequirements)
}

func TestPaidFlow(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	m := metric.MustNew()
	e := newEnv(t, WithAdSource(adStub{}), WithMetrics(m))

	g, err := e.srv.RequestResource(ctx, RequestArgs{ResourceID: "premium-analysis-1", UserID: "u1"})
	require.NoError(err)
	require.NotNil(g.Session)
	require.Equal(15, g.Session.Duration)
	require.Equal("https://ads.example/spot.mp4", g.Session.AdURL)
	require.Equal("pb_1", g.Session.PlaybackID)

	req := *g.PaymentRequirements
	require.Equal("5000000", req.MaxAmountRequired)
	require.Equal(300, req.MaxTimeoutSeconds)
	require.Equal(merchant, req.PayTo)

	args := CompleteArgs{SessionID: g.Session.SessionID, ResourceID: "premium-analysis-1", PaymentHeader: e.pay(t, req, nil)}

	_, err = e.srv.CompleteAdAndPay(ctx, args)
	require.ErrorIs(err, ErrAdNotFinished)

	e.clk.Add(15 * time.Second)

	bad := args
	bad.PaymentHeader = e.pay(t, req, func(a *x402.Authorization) { a.ValidBefore = e.clk.Now().Unix() + 400 })
	res, err := e.srv.CompleteAdAndPay(ctx, bad)
	require.NoError(err)
	require.False(res.Success)
	require.Equal(settlement.StageVerify, res.Stage)
	require.Equal(x402.ReasonExpired, res.Reason)
	require.Empty(res.Content)

	args.PaymentHeader = e.pay(t, req, nil)
	res, err = e.srv.CompleteAdAndPay(ctx, args)
	require.NoError(err)
	require.True(res.Success, res.Reason)
	require.Equal("# Buy low", res.Content)
	require.NotNil(res.Receipt)
	require.Equal("5000000", res.Receipt.Value)
	require.Equal(e.payer.Address(), res.Receipt.From)
	require.Equal(uint64(1), res.Receipt.BlockNumber)

	_, err = e.srv.CompleteAdAndPay(ctx, args)
	require.ErrorIs(err, ErrSessionConsumed)

	require.Equal(2.0, testutil.ToFloat64(m.Payments.WithLabelValues("rejected")))
	require.Equal(1.0, testutil.ToFloat64(m.Payments.WithLabelValues("verify_failed")))
	require.Equal(1.0, testutil.ToFloat64(m.Payments.WithLabelValues("settled")))
}

func TestSessionRules(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	e := newEnv(t, WithAdSource(adStub{err: errors.New("down")}))

	g, err := e.srv.RequestResource(ctx, RequestArgs{ResourceID: "premium-analysis-1"})
	require.NoError(err)
	require.Equal("https://ads.example/fallback.html", g.Session.AdURL)

	_, err = e.srv.CompleteAdAndPay(ctx, CompleteArgs{SessionID: "ads_missing", ResourceID: "premium-analysis-1"})
	require.ErrorIs(err, ErrSessionNotFound)

	_, err = e.srv.CompleteAdAndPay(ctx, CompleteArgs{SessionID: g.Session.SessionID, ResourceID: "nope"})
	require.ErrorIs(err, ErrUnknownResource)

	e.clk.Add(DefaultAdDuration + DefaultSessionTTL + time.Second)
	_, err = e.srv.CompleteAdAndPay(ctx, CompleteArgs{SessionID: g.Session.SessionID, ResourceID: "premium-analysis-1"})
	require.ErrorIs(err, ErrSessionExpired)

	_, err = e.srv.RequestResource(ctx, RequestArgs{ResourceID: "nope"})
	require.ErrorIs(err, ErrUnknownResource)
}

func TestRPCOverHTTP(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	e := newEnv(t)

	hs := httptest.NewServer(e.srv.Handler())
	defer hs.Close()
	c := NewClient(hs.URL+"/mcp", hs.Client())

	list, err := c.ListResources(ctx)
	require.NoError(err)
	require.Len(list, 2)
	require.Empty(list[1].Content, "content never leaks through the listing")

	g, err := c.RequestResource(ctx, "premium-analysis-1", "u1")
	require.NoError(err)
	e.clk.Add(15 * time.Second)

	res, err := c.CompleteAdAndPay(ctx, CompleteArgs{
		SessionID:     g.Session.SessionID,
		ResourceID:    g.ResourceID,
		PaymentHeader: e.pay(t, *g.PaymentRequirements, nil),
	})
	require.NoError(err)
	require.True(res.Success)
	require.NotEmpty(res.Receipt.TxHash)

	_, err = c.CompleteAdAndPay(ctx, CompleteArgs{SessionID: g.Session.SessionID, ResourceID: g.ResourceID})
	var rpcErr *RPCError
	require.ErrorAs(err, &rpcErr)
	require.Equal(CodeSessionError, rpcErr.Code)

	err = c.CallTool(ctx, "delete_everything", struct{}{}, &struct{}{})
	require.ErrorAs(err, &rpcErr)
	require.Equal(CodeMethodNotFound, rpcErr.Code)
}

func TestNewServerRejectsUnknownNetwork(t *testing.T) {
	_, err := NewServer(Config{Network: "mars"}, nil, nil)
	require.ErrorIs(t, err, x402.ErrUnknownNetwork)
}
