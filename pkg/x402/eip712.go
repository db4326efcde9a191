// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package x402

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/luxfi/adsdk/pkg/crypto"
	"github.com/luxfi/adsdk/pkg/crypto/hashing"
	"github.com/luxfi/adsdk/pkg/ids"
)

const (
	domainType   = "EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"
	transferType = "TransferWithAuthorization(address from,address to,uint256 value,uint256 validAfter,uint256 validBefore,bytes32 nonce)"
)

var (
	domainTypeHash   = hashing.Keccak256String(domainType)
	transferTypeHash = hashing.Keccak256String(transferType)
)

// Domain is an EIP-712 signing domain
type Domain struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           int64  `json:"chainId"`
	VerifyingContract string `json:"verifyingContract"`
}

// Separator is hashStruct(domain)
func (d Domain) Separator() ([]byte, error) {
	contract, err := addressWord(d.VerifyingContract)
	if err != nil {
		return nil, err
	}
	return hashing.Keccak256(
		domainTypeHash,
		hashing.Keccak256String(d.Name),
		hashing.Keccak256String(d.Version),
		uintWord(big.NewInt(d.ChainID)),
		contract,
	), nil
}

// TypedData is a TransferWithAuthorization message bound to its domain
type TypedData struct {
	Domain  Domain        `json:"domain"`
	Message Authorization `json:"message"`
}

// PrimaryType names the signed struct
func (TypedData) PrimaryType() string { return "TransferWithAuthorization" }

// Hash is the EIP-712 digest keccak256(0x1901 || domainSeparator || hashStruct(message))
func (td TypedData) Hash() ([]byte, error) {
	sep, err := td.Domain.Separator()
	if err != nil {
		return nil, err
	}
	msg, err := td.Message.structHash()
	if err != nil {
		return nil, err
	}
	return hashing.Keccak256([]byte{0x19, 0x01}, sep, msg), nil
}

func (a Authorization) structHash() ([]byte, error) {
	from, err := addressWord(a.From)
	if err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	to, err := addressWord(a.To)
	if err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	value, err := decimal.NewFromString(a.Value)
	if err != nil || value.IsNegative() || value.BigInt().BitLen() > 256 {
		return nil, fmt.Errorf("%w: value %q", ErrInvalidAmount, a.Value)
	}
	nonce, err := ids.FromString(a.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce must be 32 bytes", ErrInvalidHeader)
	}
	return hashing.Keccak256(
		transferTypeHash,
		from,
		to,
		uintWord(value.BigInt()),
		uintWord(big.NewInt(a.ValidAfter)),
		uintWord(big.NewInt(a.ValidBefore)),
		nonce.Bytes(),
	), nil
}

// Sign produces the hex signature of the authorization under domain
func Sign(signer crypto.Signer, domain Domain, auth Authorization) (string, error) {
	digest, err := TypedData{Domain: domain, Message: auth}.Hash()
	if err != nil {
		return "", err
	}
	sig, err := signer.SignHash(digest)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// RecoverSigner returns the address that signed auth under domain
func RecoverSigner(domain Domain, auth Authorization, signature string) (string, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return "", crypto.ErrInvalidSignature
	}
	digest, err := TypedData{Domain: domain, Message: auth}.Hash()
	if err != nil {
		return "", err
	}
	return crypto.RecoverAddress(digest, sig)
}

func addressWord(s string) ([]byte, error) {
	b, err := crypto.ParseAddress(s)
	if err != nil {
		return nil, err
	}
	word := make([]byte, 32)
	copy(word[12:], b)
	return word, nil
}

func uintWord(v *big.Int) []byte {
	return v.FillBytes(make([]byte, 32))
}
