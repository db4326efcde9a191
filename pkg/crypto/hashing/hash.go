// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hashing

import (
	"golang.org/x/crypto/sha3"
)

// Keccak256 hashes the concatenation of data with the legacy (pre-NIST)
// Keccak-256 used by Ethereum
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// Keccak256String hashes a UTF-8 string, as EIP-712 does for string members
func Keccak256String(s string) []byte {
	return Keccak256([]byte(s))
}
