// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package x402

// Invalid reasons reported by verification
const (
	ReasonUnsupportedScheme = "unsupported_scheme"
	ReasonInvalidNetwork    = "invalid_network"
	ReasonInvalidPayload    = "invalid_payload"
	ReasonInvalidRecipient  = "invalid_exact_evm_payload_recipient_mismatch"
	ReasonInvalidAsset      = "invalid_exact_evm_payload_asset_mismatch"
	ReasonInvalidValue      = "invalid_exact_evm_payload_authorization_value"
	ReasonNotYetValid       = "invalid_exact_evm_payload_authorization_valid_after"
	ReasonExpired           = "invalid_exact_evm_payload_authorization_valid_before"
	ReasonInvalidSignature  = "invalid_exact_evm_payload_signature"
	ReasonNonceUsed         = "invalid_exact_evm_payload_authorization_nonce_used"
	ReasonInsufficientFunds = "insufficient_funds"
	ReasonSettlementFailed  = "settlement_failed"
)

// VerifyRequest is the body of a facilitator verify or settle call
type VerifyRequest struct {
	X402Version         int                 `json:"x402Version"`
	PaymentHeader       string              `json:"paymentHeader"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// VerifyResponse reports whether a payment would settle
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse reports the outcome of moving funds
type SettleResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Payer       string `json:"payer,omitempty"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`
}

// SupportedKind is a scheme and network a facilitator accepts
type SupportedKind struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
}

// SupportedResponse lists what a facilitator accepts
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}
