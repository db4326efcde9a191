// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package settlement

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"

	"github.com/luxfi/adsdk/pkg/crypto/hashing"
	"github.com/luxfi/adsdk/pkg/log"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNonceUsed           = errors.New("authorization nonce already used")
	ErrNegativeDelta       = errors.New("negative amount")
)

// Transfer is one token movement authorised by the payer
type Transfer struct {
	Network string
	Asset   string
	From    string
	To      string
	Value   decimal.Decimal
	Nonce   string
}

// Receipt is the settlement record shown to the payer
type Receipt struct {
	TxHash      string `json:"txHash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	BlockNumber uint64 `json:"blockNumber"`
	Timestamp   int64  `json:"timestamp"`
	Network     string `json:"network,omitempty"`
	Asset       string `json:"asset,omitempty"`
}

// Block groups the transfers applied at one height
type Block struct {
	Number     uint64
	Hash       string
	ParentHash string
	Timestamp  time.Time
	TxHashes   []string
}

// Ledger is an in-memory token ledger keyed by asset and account. Each
// applied transfer mints its own block.
type Ledger struct {
	mu       sync.RWMutex
	balances map[string]decimal.Decimal
	nonces   map[string]struct{}
	blocks   []Block
	receipts []*Receipt
	clock    clock.Clock
	log      log.Logger
}

// NewLedger creates a ledger holding only the genesis block
func NewLedger(clk clock.Clock, logger log.Logger) *Ledger {
	if clk == nil {
		clk = clock.New()
	}
	genesis := Block{Number: 0, Timestamp: clk.Now()}
	genesis.Hash = blockHash(genesis)
	return &Ledger{
		balances: make(map[string]decimal.Decimal),
		nonces:   make(map[string]struct{}),
		blocks:   []Block{genesis},
		clock:    clk,
		log:      logger,
	}
}

// Fund credits an account out of thin air
func (l *Ledger) Fund(asset, account string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeDelta
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	key := accountKey(asset, account)
	l.balances[key] = l.balances[key].Add(amount)

	l.log.Info("account funded",
		log.String("account", account),
		log.String("amount", amount.String()),
	)
	return nil
}

// Balance returns the account's holdings of asset
func (l *Ledger) Balance(asset, account string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[accountKey(asset, account)]
}

// NonceUsed reports whether the payer already spent nonce on asset
func (l *Ledger) NonceUsed(asset, from, nonce string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, used := l.nonces[nonceKey(asset, from, nonce)]
	return used
}

// Apply moves the funds, burns the nonce and mints a block
func (l *Ledger) Apply(t Transfer) (*Receipt, error) {
	if t.Value.IsNegative() {
		return nil, ErrNegativeDelta
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	nk := nonceKey(t.Asset, t.From, t.Nonce)
	if _, used := l.nonces[nk]; used {
		return nil, ErrNonceUsed
	}
	from, to := accountKey(t.Asset, t.From), accountKey(t.Asset, t.To)
	if l.balances[from].LessThan(t.Value) {
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, l.balances[from], t.Value)
	}

	l.balances[from] = l.balances[from].Sub(t.Value)
	l.balances[to] = l.balances[to].Add(t.Value)
	l.nonces[nk] = struct{}{}

	parent := l.blocks[len(l.blocks)-1]
	block := Block{
		Number:     parent.Number + 1,
		ParentHash: parent.Hash,
		Timestamp:  l.clock.Now(),
	}
	txHash := transferHash(t, block.Number)
	block.TxHashes = []string{txHash}
	block.Hash = blockHash(block)
	l.blocks = append(l.blocks, block)

	receipt := &Receipt{
		TxHash:      txHash,
		From:        t.From,
		To:          t.To,
		Value:       t.Value.String(),
		BlockNumber: block.Number,
		Timestamp:   block.Timestamp.Unix(),
		Network:     t.Network,
		Asset:       t.Asset,
	}
	l.receipts = append(l.receipts, receipt)

	l.log.Info("transfer applied",
		log.String("txHash", txHash),
		log.Int64("block", int64(block.Number)),
	)
	return receipt, nil
}

// Height is the latest block number
func (l *Ledger) Height() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.blocks[len(l.blocks)-1].Number
}

// Block returns the block at number
func (l *Ledger) Block(number uint64) (Block, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if number >= uint64(len(l.blocks)) {
		return Block{}, false
	}
	return l.blocks[number], true
}

// Receipts returns every applied transfer in order
func (l *Ledger) Receipts() []Receipt {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Receipt, len(l.receipts))
	for i, r := range l.receipts {
		out[i] = *r
	}
	return out
}

func accountKey(asset, account string) string {
	return strings.ToLower(asset) + "/" + strings.ToLower(account)
}

func nonceKey(asset, from, nonce string) string {
	return accountKey(asset, from) + "/" + strings.ToLower(nonce)
}

// transferHash commits to the transfer and the height it landed at
func transferHash(t Transfer, height uint64) string {
	return "0x" + hex.EncodeToString(hashing.Keccak256(
		[]byte(strings.ToLower(t.Asset)),
		[]byte(strings.ToLower(t.From)),
		[]byte(strings.ToLower(t.To)),
		[]byte(t.Value.String()),
		[]byte(strings.ToLower(t.Nonce)),
		[]byte(strconv.FormatUint(height, 10)),
	))
}

func blockHash(b Block) string {
	parts := [][]byte{
		[]byte(strconv.FormatUint(b.Number, 10)),
		[]byte(b.ParentHash),
		[]byte(strconv.FormatInt(b.Timestamp.UnixNano(), 10)),
	}
	for _, tx := range b.TxHashes {
		parts = append(parts, []byte(tx))
	}
	return "0x" + hex.EncodeToString(hashing.Keccak256(parts...))
}
