// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package x402

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/adsdk/pkg/crypto"
)

const payTo = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

func requirements() PaymentRequirements {
	return PaymentRequirements{
		Scheme:            SchemeExact,
		Network:           NetworkBaseSepolia,
		MaxAmountRequired: "5000000",
		Resource:          "mcp://resource/premium-analysis-1",
		Description:       "Premium market analysis",
		MimeType:          "text/markdown",
		PayTo:             payTo,
		MaxTimeoutSeconds: 300,
		Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Extra:             map[string]any{"name": "USDC", "version": "2"},
	}
}

func TestNewAuthorization(t *testing.T) {
	require := require.New(t)
	now := time.Unix(1_700_000_000, 0)

	a, err := NewAuthorization("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", requirements(), now)
	require.NoError(err)
	require.Equal("5000000", a.Value)
	require.Equal(payTo, a.To)
	require.Equal(now.Unix()+300, a.ValidBefore)
	require.Equal(now.Unix()-600, a.ValidAfter)
	require.Len(a.Nonce, 66)

	b, err := NewAuthorization(a.From, requirements(), now)
	require.NoError(err)
	require.NotEqual(a.Nonce, b.Nonce)
}

func TestSignRecover(t *testing.T) {
	require := require.New(t)
	key, err := crypto.GenerateKey()
	require.NoError(err)

	req := requirements()
	domain, err := DomainFor(req)
	require.NoError(err)
	require.Equal(int64(84532), domain.ChainID)

	auth, err := NewAuthorization(key.Address(), req, time.Now())
	require.NoError(err)
	sig, err := Sign(key, domain, auth)
	require.NoError(err)
	require.Len(sig, 2+2*crypto.SignatureLength)

	signer, err := RecoverSigner(domain, auth, sig)
	require.NoError(err)
	require.Equal(key.Address(), signer)

	tampered := auth
	tampered.Value = "5000001"
	signer, err = RecoverSigner(domain, tampered, sig)
	require.NoError(err)
	require.NotEqual(key.Address(), signer)

	mainnet, err := LookupNetwork(NetworkBase)
	require.NoError(err)
	signer, err = RecoverSigner(mainnet.Domain(), auth, sig)
	require.NoError(err)
	require.NotEqual(key.Address(), signer, "domain binds the chain")
}

func TestHeaderEncoding(t *testing.T) {
	require := require.New(t)
	h := PaymentHeader{
		X402Version: Version,
		Scheme:      SchemeExact,
		Network:     NetworkBaseSepolia,
		Payload: ExactPayload{
			Signature:     "0xabc",
			Authorization: Authorization{From: "0x1", To: payTo, Value: "5000000", ValidBefore: 10, Nonce: "0x00"},
			Asset:         requirements().Asset,
		},
	}
	enc, err := h.Encode()
	require.NoError(err)

	got, err := DecodeHeader(enc)
	require.NoError(err)
	require.Equal(h, got)

	_, err = DecodeHeader("%%%")
	require.ErrorIs(err, ErrInvalidHeader)
}

func TestAuthorizationValidation(t *testing.T) {
	require := require.New(t)
	domain, err := DomainFor(requirements())
	require.NoError(err)

	auth := Authorization{From: payTo, To: payTo, Value: "1", Nonce: "0x01"}
	_, err = TypedData{Domain: domain, Message: auth}.Hash()
	require.ErrorIs(err, ErrInvalidHeader)

	auth.Nonce = "0x00000000000000000000000000000000000000000000000000000000000000ff"
	auth.Value = "-1"
	_, err = TypedData{Domain: domain, Message: auth}.Hash()
	require.ErrorIs(err, ErrInvalidAmount)

	auth.Value = "1"
	auth.To = "nope"
	_, err = TypedData{Domain: domain, Message: auth}.Hash()
	require.ErrorIs(err, crypto.ErrInvalidAddress)
}

func TestAmounts(t *testing.T) {
	require := require.New(t)

	s, err := FormatAmount("5000000", 6)
	require.NoError(err)
	require.Equal("5", s)

	s, err = FormatAmount("1234567", 6)
	require.NoError(err)
	require.Equal("1.234567", s)

	_, err = FormatAmount("1.5", 6)
	require.ErrorIs(err, ErrInvalidAmount)

	a, err := ToAtomic("0.25", 6)
	require.NoError(err)
	require.Equal("250000", a)

	_, err = ToAtomic("0.0000001", 6)
	require.ErrorIs(err, ErrInvalidAmount)
}

func TestNetworks(t *testing.T) {
	require := require.New(t)
	require.Equal([]string{NetworkBase, NetworkBaseSepolia}, Networks())

	n, err := LookupNetwork(NetworkBase)
	require.NoError(err)
	require.Equal("0x2105", n.ChainIDHex())

	_, err = LookupNetwork("solana")
	require.ErrorIs(err, ErrUnknownNetwork)
}
