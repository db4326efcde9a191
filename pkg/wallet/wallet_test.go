// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/adsdk/pkg/crypto"
	"github.com/luxfi/adsdk/pkg/x402"
)

func newWallet(t *testing.T, opts ...Option) *Local {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return NewLocal(key, 1, opts...)
}

func typedData(t *testing.T, from string) x402.TypedData {
	req := x402.PaymentRequirements{
		Scheme:            x402.SchemeExact,
		Network:           x402.NetworkBaseSepolia,
		MaxAmountRequired: "5000000",
		PayTo:             "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		MaxTimeoutSeconds: 300,
	}
	domain, err := x402.DomainFor(req)
	require.NoError(t, err)
	auth, err := x402.NewAuthorization(from, req, time.Now())
	require.NoError(t, err)
	return x402.TypedData{Domain: domain, Message: auth}
}

func TestSwitchUnknownChain(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	w := newWallet(t)

	sepolia, err := x402.LookupNetwork(x402.NetworkBaseSepolia)
	require.NoError(err)

	err = w.SwitchChain(ctx, sepolia.ChainID)
	require.ErrorIs(err, ErrChainNotAdded)

	require.NoError(w.AddChain(ctx, ParamsFor(sepolia)))
	id, err := w.ChainID(ctx)
	require.NoError(err)
	require.Equal(int64(1), id, "adding does not switch")

	require.NoError(w.SwitchChain(ctx, sepolia.ChainID))
	id, err = w.ChainID(ctx)
	require.NoError(err)
	require.Equal(sepolia.ChainID, id)
}

func TestAddChainFromHex(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	w := newWallet(t)

	require.NoError(w.AddChain(ctx, ChainParams{ChainID: "0x2105", ChainName: "Base"}))
	require.NoError(w.SwitchChain(ctx, 8453))

	require.Error(w.AddChain(ctx, ChainParams{ChainID: "base"}))
}

func TestSignTypedData(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	w := newWallet(t)
	td := typedData(t, w.Address())

	_, err := w.SignTypedData(ctx, w.Address(), td)
	require.ErrorIs(err, ErrNotConnected)

	addr, err := w.Connect(ctx)
	require.NoError(err)
	require.Equal(w.Address(), addr)

	_, err = w.SignTypedData(ctx, addr, td)
	require.ErrorIs(err, ErrChainMismatch)

	sepolia, _ := x402.LookupNetwork(x402.NetworkBaseSepolia)
	require.NoError(w.AddChain(ctx, ParamsFor(sepolia)))
	require.NoError(w.SwitchChain(ctx, sepolia.ChainID))

	_, err = w.SignTypedData(ctx, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", td)
	require.ErrorIs(err, ErrUnknownAccount)

	sig, err := w.SignTypedData(ctx, addr, td)
	require.NoError(err)
	signer, err := x402.RecoverSigner(td.Domain, td.Message, sig)
	require.NoError(err)
	require.Equal(addr, signer)
}

func TestRejections(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	w := newWallet(t, WithApprover(Reject(ActionConnect)))
	_, err := w.Connect(ctx)
	require.ErrorIs(err, ErrUserRejected)

	w = newWallet(t, WithApprover(Reject(ActionSign)))
	_, err = w.Connect(ctx)
	require.NoError(err)
	require.NoError(w.SwitchChain(ctx, 1))

	td := typedData(t, w.Address())
	td.Domain.ChainID = 1
	_, err = w.SignTypedData(ctx, w.Address(), td)
	require.ErrorIs(err, ErrUserRejected)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = newWallet(t).Connect(cancelled)
	require.ErrorIs(err, context.Canceled)
}
