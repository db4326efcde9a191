// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package crypto

import (
	"encoding/hex"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/luxfi/adsdk/pkg/crypto/hashing"
)

// PrivateKey is a secp256k1 account key
type PrivateKey struct {
	key  *secp256k1.PrivateKey
	addr string
}

var _ Signer = (*PrivateKey)(nil)

// GenerateKey creates a random account key
func GenerateKey() (*PrivateKey, error) {
	k, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return wrap(k), nil
}

// HexToKey parses a 32 byte hex private key, with or without 0x
func HexToKey(s string) (*PrivateKey, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, ErrInvalidKeySize
	}
	return wrap(secp256k1.PrivKeyFromBytes(b)), nil
}

func wrap(k *secp256k1.PrivateKey) *PrivateKey {
	return &PrivateKey{key: k, addr: pubToAddress(k.PubKey())}
}

func (k *PrivateKey) Address() string { return k.addr }

// Hex returns the 0x prefixed private key
func (k *PrivateKey) Hex() string {
	return "0x" + hex.EncodeToString(k.key.Serialize())
}

// SignHash signs a digest. The compact form from secp256k1 is v || r || s
// with v = 27 + recovery id; accounts expect r || s || v.
func (k *PrivateKey) SignHash(hash []byte) ([]byte, error) {
	if len(hash) != HashLength {
		return nil, ErrInvalidKeySize
	}
	compact := ecdsa.SignCompact(k.key, hash, false)
	sig := make([]byte, SignatureLength)
	copy(sig, compact[1:])
	sig[64] = compact[0]
	return sig, nil
}

// RecoverAddress returns the checksummed address that produced sig over hash.
// v may be 0/1 or 27/28.
func RecoverAddress(hash, sig []byte) (string, error) {
	if len(hash) != HashLength || len(sig) != SignatureLength {
		return "", ErrInvalidSignature
	}
	v := sig[64]
	if v < 27 {
		v += 27
	}
	if v != 27 && v != 28 {
		return "", ErrInvalidSignature
	}
	compact := make([]byte, SignatureLength)
	compact[0] = v
	copy(compact[1:], sig[:64])

	pub, _, err := ecdsa.RecoverCompact(compact, hash)
	if err != nil {
		return "", ErrInvalidSignature
	}
	return pubToAddress(pub), nil
}

func pubToAddress(pub *secp256k1.PublicKey) string {
	raw := pub.SerializeUncompressed()
	return ChecksumAddress(hashing.Keccak256(raw[1:])[12:])
}

// ChecksumAddress renders a 20 byte address with mixed-case checksum
func ChecksumAddress(addr []byte) string {
	lower := hex.EncodeToString(addr)
	sum := hashing.Keccak256([]byte(lower))

	out := make([]byte, len(lower))
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		nibble := sum[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if c >= 'a' && nibble&0xf >= 8 {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return "0x" + string(out)
}

// ParseAddress decodes a 0x prefixed hex address
func ParseAddress(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, ErrInvalidAddress
	}
	b, err := hex.DecodeString(s[2:])
	if err != nil || len(b) != AddressLength {
		return nil, ErrInvalidAddress
	}
	return b, nil
}

// NormalizeAddress returns the checksummed form of s
func NormalizeAddress(s string) (string, error) {
	b, err := ParseAddress(s)
	if err != nil {
		return "", err
	}
	return ChecksumAddress(b), nil
}

// SameAddress compares two addresses ignoring case
func SameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}
