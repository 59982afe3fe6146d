// Package balance tracks which (address, token) balances a block touched
// and resolves them against the node.
package balance

import (
	"context"
	"log/slog"
	"math/big"
	"sync"

	"github.com/devblac/block-fetcher/internal/chain"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// Source reads a balance at a block.
type Source interface {
	GetBalance(ctx context.Context, address common.Address, blockNumber uint64, token common.Address) (*big.Int, error)
}

type key struct {
	address common.Address
	token   common.Address
}

type changed struct {
	order []key
	types map[key]chain.TokenType
}

// Tracker holds pending balance changes per block. Callers must Clear a
// block once its balances are resolved or abandoned.
type Tracker struct {
	mu          sync.Mutex
	blocks      map[uint64]*changed
	src         Source
	concurrency int
	log         *slog.Logger
}

// NewTracker returns a tracker that resolves up to concurrency balances at
// once; zero or less means unbounded.
func NewTracker(src Source, concurrency int, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{blocks: map[uint64]*changed{}, src: src, concurrency: concurrency, log: log}
}

// Track records the sender and receiver of every transfer. A later transfer
// of the same token for the same address overwrites the pending token type.
func (t *Tracker) Track(transfers []*chain.Transfer) {
	if len(transfers) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tr := range transfers {
		c := t.blocks[tr.BlockNumber]
		if c == nil {
			c = &changed{types: map[key]chain.TokenType{}}
			t.blocks[tr.BlockNumber] = c
		}
		for _, addr := range []common.Address{tr.From, tr.To} {
			if addr == chain.ZeroAddress {
				continue
			}
			k := key{address: addr, token: tr.TokenAddress}
			if _, ok := c.types[k]; !ok {
				c.order = append(c.order, k)
			}
			c.types[k] = tr.TokenType
		}
	}
}

// Resolve queries every tracked balance of the block concurrently. A failed
// lookup is logged and left out; it never fails the batch.
func (t *Tracker) Resolve(ctx context.Context, blockNumber uint64) []*chain.Balance {
	t.mu.Lock()
	c := t.blocks[blockNumber]
	var pending []key
	var tokenTypes []chain.TokenType
	if c != nil {
		pending = append(pending, c.order...)
		for _, k := range pending {
			tokenTypes = append(tokenTypes, c.types[k])
		}
	}
	t.mu.Unlock()

	if len(pending) == 0 {
		return []*chain.Balance{}
	}

	results := make([]*chain.Balance, len(pending))
	var g errgroup.Group
	if t.concurrency > 0 {
		g.SetLimit(t.concurrency)
	}
	for i, k := range pending {
		i, k := i, k
		g.Go(func() error {
			value, err := t.src.GetBalance(ctx, k.address, blockNumber, k.token)
			if err != nil {
				t.log.Warn("get balance for token failed", "block", blockNumber, "address", k.address.Hex(), "token_address", k.token.Hex(), "error", err)
				return nil
			}
			results[i] = &chain.Balance{
				Address:      k.address,
				TokenAddress: k.token,
				BlockNumber:  blockNumber,
				Balance:      value,
				TokenType:    tokenTypes[i],
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*chain.Balance, 0, len(results))
	for _, b := range results {
		if b != nil {
			out = append(out, b)
		}
	}
	return out
}

// Clear drops the block's tracked state.
func (t *Tracker) Clear(blockNumber uint64) {
	t.mu.Lock()
	delete(t.blocks, blockNumber)
	t.mu.Unlock()
}

// Pending returns the number of blocks with tracked state. Tests use it to
// check that every block was cleared.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.blocks)
}
