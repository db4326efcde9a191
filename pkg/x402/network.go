// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package x402

import (
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownNetwork = errors.New("unknown network")

const (
	NetworkBase        = "base"
	NetworkBaseSepolia = "base-sepolia"
)

// NativeCurrency of a chain, as wallets want it when adding the chain
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// Network describes a chain and the USDC deployment payments settle in
type Network struct {
	Name           string
	ChainID        int64
	DisplayName    string
	RPCURL         string
	ExplorerURL    string
	NativeCurrency NativeCurrency

	// token contract and its EIP-712 domain
	USDC         string
	TokenName    string
	TokenVersion string
	Decimals     int32
}

// ChainIDHex is the 0x prefixed chain id wallets use
func (n Network) ChainIDHex() string {
	return fmt.Sprintf("0x%x", n.ChainID)
}

// Domain is the token's EIP-712 domain
func (n Network) Domain() Domain {
	return Domain{
		Name:              n.TokenName,
		Version:           n.TokenVersion,
		ChainID:           n.ChainID,
		VerifyingContract: n.USDC,
	}
}

var networks = map[string]Network{
	NetworkBase: {
		Name:           NetworkBase,
		ChainID:        8453,
		DisplayName:    "Base",
		RPCURL:         "https://mainnet.base.org",
		ExplorerURL:    "https://basescan.org",
		NativeCurrency: NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		USDC:           "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		TokenName:      "USD Coin",
		TokenVersion:   "2",
		Decimals:       6,
	},
	NetworkBaseSepolia: {
		Name:           NetworkBaseSepolia,
		ChainID:        84532,
		DisplayName:    "Base Sepolia",
		RPCURL:         "https://sepolia.base.org",
		ExplorerURL:    "https://sepolia.basescan.org",
		NativeCurrency: NativeCurrency{Name: "Sepolia Ether", Symbol: "ETH", Decimals: 18},
		USDC:           "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		TokenName:      "USDC",
		TokenVersion:   "2",
		Decimals:       6,
	},
}

// LookupNetwork returns the named network
func LookupNetwork(name string) (Network, error) {
	n, ok := networks[name]
	if !ok {
		return Network{}, fmt.Errorf("%w: %q", ErrUnknownNetwork, name)
	}
	return n, nil
}

// Networks lists the supported network names in order
func Networks() []string {
	out := make([]string, 0, len(networks))
	for name := range networks {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DomainFor resolves the signing domain for requirements. Extra may
// override the token name and version, as servers advertise them there.
func DomainFor(req PaymentRequirements) (Domain, error) {
	n, err := LookupNetwork(req.Network)
	if err != nil {
		return Domain{}, err
	}
	d := n.Domain()
	if req.Asset != "" {
		d.VerifyingContract = req.Asset
	}
	if name, ok := req.Extra["name"].(string); ok && name != "" {
		d.Name = name
	}
	if version, ok := req.Extra["version"].(string); ok && version != "" {
		d.Version = version
	}
	return d, nil
}
