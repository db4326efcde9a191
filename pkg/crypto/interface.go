// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package crypto

import (
	"errors"
)

var (
	// ErrInvalidKeySize indicates the key size is incorrect
	ErrInvalidKeySize = errors.New("invalid key size")
	// ErrInvalidSignature indicates the signature is malformed or does not recover
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrInvalidAddress indicates a string is not a 20 byte hex address
	ErrInvalidAddress = errors.New("invalid address")
)

const (
	// HashLength is the size of a Keccak-256 digest
	HashLength = 32
	// AddressLength is the size of an account address
	AddressLength = 20
	// SignatureLength is r || s || v
	SignatureLength = 65
)

// Signer signs 32 byte digests for one account
type Signer interface {
	// Address is the checksummed account address
	Address() string
	// SignHash returns a 65 byte r || s || v signature with v in {27, 28}
	SignHash(hash []byte) ([]byte, error)
}
