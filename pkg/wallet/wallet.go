// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/adsdk/pkg/crypto"
	"github.com/luxfi/adsdk/pkg/log"
	"github.com/luxfi/adsdk/pkg/x402"
)

var (
	ErrUserRejected   = errors.New("user rejected the request")
	ErrChainNotAdded  = errors.New("chain has not been added to the wallet")
	ErrChainMismatch  = errors.New("signing domain is not the active chain")
	ErrNotConnected   = errors.New("wallet not connected")
	ErrUnknownAccount = errors.New("account not managed by this wallet")
)

// Wallet is the account provider the payment flow drives. Every call may
// prompt the user and so may fail with ErrUserRejected.
type Wallet interface {
	// Connect asks for account access and returns the selected address
	Connect(ctx context.Context) (string, error)
	// ChainID reports the active chain
	ChainID(ctx context.Context) (int64, error)
	// SwitchChain activates a known chain, ErrChainNotAdded otherwise
	SwitchChain(ctx context.Context, chainID int64) error
	// AddChain registers a chain; it does not switch to it
	AddChain(ctx context.Context, params ChainParams) error
	// SignTypedData signs EIP-712 data for account. Nothing is broadcast.
	SignTypedData(ctx context.Context, account string, td x402.TypedData) (string, error)
}

// ChainParams is the add-chain request body wallets accept
type ChainParams struct {
	ChainID           string              `json:"chainId"`
	ChainName         string              `json:"chainName"`
	RPCURLs           []string            `json:"rpcUrls"`
	NativeCurrency    x402.NativeCurrency `json:"nativeCurrency"`
	BlockExplorerURLs []string            `json:"blockExplorerUrls,omitempty"`

	id int64
}

// ParamsFor builds add-chain parameters for a network
func ParamsFor(n x402.Network) ChainParams {
	p := ChainParams{
		ChainID:        n.ChainIDHex(),
		ChainName:      n.DisplayName,
		RPCURLs:        []string{n.RPCURL},
		NativeCurrency: n.NativeCurrency,
		id:             n.ChainID,
	}
	if n.ExplorerURL != "" {
		p.BlockExplorerURLs = []string{n.ExplorerURL}
	}
	return p
}

// Action is a wallet prompt
type Action string

const (
	ActionConnect     Action = "connect"
	ActionSwitchChain Action = "switch_chain"
	ActionAddChain    Action = "add_chain"
	ActionSign        Action = "sign"
)

// Approver decides on prompts. A non-nil error denies the action.
type Approver func(ctx context.Context, action Action) error

// ApproveAll accepts every prompt
func ApproveAll(context.Context, Action) error { return nil }

// Local is an in-process wallet backed by one private key. It starts on
// chainID with only that chain known.
type Local struct {
	key     *crypto.PrivateKey
	approve Approver
	log     log.Logger

	mu        sync.Mutex
	connected bool
	chainID   int64
	chains    map[int64]ChainParams
}

var _ Wallet = (*Local)(nil)

type Option func(*Local)

func WithApprover(a Approver) Option { return func(w *Local) { w.approve = a } }
func WithLogger(l log.Logger) Option { return func(w *Local) { w.log = l } }

// NewLocal creates a wallet for key, active on chainID
func NewLocal(key *crypto.PrivateKey, chainID int64, opts ...Option) *Local {
	w := &Local{
		key:     key,
		approve: ApproveAll,
		log:     log.NoOp(),
		chainID: chainID,
		chains:  map[int64]ChainParams{chainID: {id: chainID, ChainID: fmt.Sprintf("0x%x", chainID)}},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Address of the managed account
func (w *Local) Address() string { return w.key.Address() }

func (w *Local) Connect(ctx context.Context) (string, error) {
	if err := w.ask(ctx, ActionConnect); err != nil {
		return "", err
	}
	w.mu.Lock()
	w.connected = true
	w.mu.Unlock()
	return w.key.Address(), nil
}

func (w *Local) ChainID(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chainID, nil
}

func (w *Local) SwitchChain(ctx context.Context, chainID int64) error {
	w.mu.Lock()
	_, known := w.chains[chainID]
	w.mu.Unlock()
	if !known {
		return fmt.Errorf("%w: %d", ErrChainNotAdded, chainID)
	}
	if err := w.ask(ctx, ActionSwitchChain); err != nil {
		return err
	}

	w.mu.Lock()
	w.chainID = chainID
	w.mu.Unlock()
	w.log.Debug("switched chain", log.Int64("chainId", chainID))
	return nil
}

func (w *Local) AddChain(ctx context.Context, params ChainParams) error {
	if params.id == 0 {
		if _, err := fmt.Sscanf(params.ChainID, "0x%x", &params.id); err != nil {
			return fmt.Errorf("invalid chain id %q: %w", params.ChainID, err)
		}
	}
	if err := w.ask(ctx, ActionAddChain); err != nil {
		return err
	}

	w.mu.Lock()
	w.chains[params.id] = params
	w.mu.Unlock()
	return nil
}

func (w *Local) SignTypedData(ctx context.Context, account string, td x402.TypedData) (string, error) {
	w.mu.Lock()
	connected, active := w.connected, w.chainID
	w.mu.Unlock()

	if !connected {
		return "", ErrNotConnected
	}
	if !crypto.SameAddress(account, w.key.Address()) {
		return "", fmt.Errorf("%w: %s", ErrUnknownAccount, account)
	}
	if td.Domain.ChainID != active {
		return "", fmt.Errorf("%w: domain %d, active %d", ErrChainMismatch, td.Domain.ChainID, active)
	}
	if err := w.ask(ctx, ActionSign); err != nil {
		return "", err
	}
	return x402.Sign(w.key, td.Domain, td.Message)
}

func (w *Local) ask(ctx context.Context, action Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := w.approve(ctx, action); err != nil {
		if errors.Is(err, ErrUserRejected) {
			return err
		}
		return fmt.Errorf("%s: %w", action, err)
	}
	return nil
}

// Reject denies the listed actions with ErrUserRejected and approves the rest
func Reject(actions ...Action) Approver {
	return func(_ context.Context, a Action) error {
		for _, r := range actions {
			if a == r {
				return fmt.Errorf("%w: %s", ErrUserRejected, a)
			}
		}
		return nil
	}
}
