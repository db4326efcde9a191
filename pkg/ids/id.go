// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ids

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID is a 32 byte random identifier, used for payment nonces
type ID [32]byte

// Generate creates a cryptographically random ID
func Generate() (ID, error) {
	var id ID
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("read random: %w", err)
	}
	return id, nil
}

// String returns the 0x-prefixed hex representation of the ID
func (id ID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// Bytes returns the byte representation of the ID
func (id ID) Bytes() []byte {
	return id[:]
}

// FromString parses an ID from hex, with or without 0x prefix
func FromString(s string) (ID, error) {
	var id ID
	bytes, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return id, err
	}
	if len(bytes) != 32 {
		return id, fmt.Errorf("invalid ID length: expected 32, got %d", len(bytes))
	}
	copy(id[:], bytes)
	return id, nil
}

// Prefixed uuid identifiers. The prefix keeps ids readable in logs and
// lets the backend tell them apart.

func NewSessionID() string   { return "sess_" + uuid.NewString() }
func NewRequestID() string   { return "req_" + uuid.NewString() }
func NewPlaybackID() string  { return "pb_" + uuid.NewString() }
func NewAdSessionID() string { return "ads_" + uuid.NewString() }
