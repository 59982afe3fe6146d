// Package fetcher assembles one block's normalized dataset from the node.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/devblac/block-fetcher/internal/balance"
	"github.com/devblac/block-fetcher/internal/chain"
	"github.com/devblac/block-fetcher/internal/gateway"
	"github.com/devblac/block-fetcher/internal/nft"
	"github.com/devblac/block-fetcher/internal/token"
	"github.com/devblac/block-fetcher/internal/trace"
	"github.com/devblac/block-fetcher/internal/transfer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"
)

// ErrTransactionNotFound is returned when the node has no transaction or
// receipt for a hash listed in the block.
var ErrTransactionNotFound = errors.New("transaction not found")

// Source is the node surface the fetcher reads through. *gateway.Gateway
// implements it.
type Source interface {
	GetBlock(ctx context.Context, number uint64) (*chain.Block, error)
	GetBlockDetails(ctx context.Context, number uint64) (*chain.BlockDetails, error)
	GetTransaction(ctx context.Context, hash common.Hash) (*chain.Transaction, error)
	GetTransactionDetails(ctx context.Context, hash common.Hash) (*chain.TransactionDetails, error)
	GetTransactionReceipt(ctx context.Context, hash common.Hash) (*chain.Receipt, error)
	GetLogs(ctx context.Context, from, to uint64) ([]*types.Log, error)
	GetCode(ctx context.Context, address common.Address) (hexutil.Bytes, error)
	TraceTransaction(ctx context.Context, hash common.Hash, onlyTopCall bool) (*chain.TraceCall, error)
	TraceBlock(ctx context.Context, number uint64, onlyTopCall bool) ([]chain.BlockTrace, error)
	GetBalance(ctx context.Context, address common.Address, blockNumber uint64, token common.Address) (*big.Int, error)
	GetERC20TokenData(ctx context.Context, address common.Address) (*gateway.TokenData, error)
	GetTokenURI(ctx context.Context, token common.Address, tokenID *big.Int) (string, error)
	TokenAddressByAssetID(ctx context.Context, assetID common.Hash) (common.Address, error)
}

// Observer receives processing durations.
type Observer interface {
	ObserveBlock(status string, d time.Duration)
	ObserveBalances(d time.Duration)
	ObserveTransaction(d time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveBlock(string, time.Duration) {}
func (nopObserver) ObserveBalances(time.Duration)      {}
func (nopObserver) ObserveTransaction(time.Duration)   {}

// Options tunes the fetcher.
type Options struct {
	// MaxConcurrency bounds concurrent transaction and balance lookups.
	// Zero means unbounded.
	MaxConcurrency int
	// NFTMetadata enables ERC721 owner resolution.
	NFTMetadata bool
	// Metadata fetches off-chain NFT documents; nil skips them.
	Metadata nft.MetadataFetcher
}

// Fetcher builds BlockData. It processes one block at a time; concurrent
// callers are serialized so per-block tracked state never overlaps.
type Fetcher struct {
	mu        sync.Mutex
	src       Source
	walker    *trace.Walker
	transfers *transfer.Extractor
	tokens    *token.Extractor
	balances  *balance.Tracker
	nfts      *nft.Tracker
	opts      Options
	obs       Observer
	log       *slog.Logger
}

func New(src Source, abis *chain.ABIs, addrs chain.Addresses, opts Options, obs Observer, log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	if obs == nil {
		obs = nopObserver{}
	}
	addrs = addrs.WithDefaults()
	return &Fetcher{
		src:       src,
		walker:    trace.NewWalker(abis, addrs),
		transfers: transfer.NewExtractor(abis, addrs, src, log),
		tokens:    token.NewExtractor(abis, addrs, src, log),
		balances:  balance.NewTracker(src, opts.MaxConcurrency, log),
		nfts:      nft.NewTracker(src, opts.Metadata, opts.MaxConcurrency, log),
		opts:      opts,
		obs:       obs,
		log:       log,
	}
}

// GetBlockData returns the block's dataset, or nil when the node does not
// have the block yet. Any transaction failure fails the whole block.
func (f *Fetcher) GetBlockData(ctx context.Context, number uint64) (data *chain.BlockData, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	start := time.Now()
	defer func() {
		f.balances.Clear(number)
		f.nfts.Clear(number)
		status := "success"
		if err != nil {
			status = "error"
		}
		f.obs.ObserveBlock(status, time.Since(start))
	}()

	var (
		block   *chain.Block
		details *chain.BlockDetails
		traces  []chain.BlockTrace
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		block, err = f.src.GetBlock(gctx, number)
		return err
	})
	g.Go(func() (err error) {
		details, err = f.src.GetBlockDetails(gctx, number)
		return err
	})
	g.Go(func() (err error) {
		traces, err = f.src.TraceBlock(gctx, number, false)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("get block %d: %w", number, err)
	}
	if block == nil {
		return nil, nil
	}

	f.log.Debug("getting block data", "block", number, "transactions", len(block.Transactions))
	return f.build(ctx, block, details, traces)
}

func (f *Fetcher) build(ctx context.Context, block *chain.Block, details *chain.BlockDetails, traces []chain.BlockTrace) (*chain.BlockData, error) {
	number := uint64(block.Number)
	byHash := make(map[common.Hash]*chain.TraceCall, len(traces))
	for _, t := range traces {
		if t.Result != nil {
			byHash[t.TxHash] = t.Result
		}
	}

	txs := make([]*chain.TransactionData, len(block.Transactions))
	var (
		orphanLogs      []*types.Log
		orphanTransfers []*chain.Transfer
	)
	g, gctx := errgroup.WithContext(ctx)
	if f.opts.MaxConcurrency > 0 {
		g.SetLimit(f.opts.MaxConcurrency + 1)
	}
	g.Go(func() (err error) {
		orphanLogs, orphanTransfers, err = f.blockLogs(gctx, block)
		return err
	})
	for i, hash := range block.Transactions {
		i, hash := i, hash
		g.Go(func() error {
			td, err := f.transaction(gctx, block, hash, byHash[hash])
			if err != nil {
				return err
			}
			txs[i] = td
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	balanceStart := time.Now()
	balances := f.balances.Resolve(ctx, number)
	f.obs.ObserveBalances(time.Since(balanceStart))

	data := &chain.BlockData{
		Block:           block,
		BlockDetails:    details,
		Transactions:    txs,
		Logs:            orphanLogs,
		Transfers:       orphanTransfers,
		ChangedBalances: balances,
	}
	if f.opts.NFTMetadata {
		data.NftItems = f.nfts.Resolve(ctx, number)
	}
	f.log.Debug("successfully generated block data", "block", number)
	return data, nil
}

func (f *Fetcher) transaction(ctx context.Context, block *chain.Block, hash common.Hash, root *chain.TraceCall) (*chain.TransactionData, error) {
	start := time.Now()
	var (
		tx      *chain.Transaction
		receipt *chain.Receipt
		details *chain.TransactionDetails
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		tx, err = f.src.GetTransaction(gctx, hash)
		return err
	})
	g.Go(func() (err error) {
		receipt, err = f.src.GetTransactionReceipt(gctx, hash)
		return err
	})
	g.Go(func() (err error) {
		details, err = f.src.GetTransactionDetails(gctx, hash)
		return err
	})
	if root == nil {
		g.Go(func() (err error) {
			root, err = f.src.TraceTransaction(gctx, hash, false)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", hash.Hex(), err)
	}
	if tx == nil || receipt == nil {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, hash.Hex())
	}

	walked, err := f.walker.Walk(root, tx, block.Time())
	if err != nil {
		return nil, fmt.Errorf("walk trace of %s: %w", hash.Hex(), err)
	}
	contracts, err := trace.Enrich(ctx, f.src, walked.ContractAddresses)
	if err != nil {
		return nil, fmt.Errorf("get contract code for %s: %w", hash.Hex(), err)
	}
	tokens, err := f.tokens.Tokens(ctx, contracts, receipt)
	if err != nil {
		return nil, fmt.Errorf("get tokens for %s: %w", hash.Hex(), err)
	}

	tx.ReceiptStatus = uint64(receipt.Status)
	if receipt.Status == 0 {
		tx.Error = walked.Error
		tx.RevertReason = walked.RevertReason
	}

	ec := &transfer.Context{
		BlockNumber: uint64(block.Number),
		Timestamp:   block.Time(),
		Details:     details,
		Receipt:     receipt,
		HasTrace:    root != nil,
	}
	fromLogs, err := f.transfers.Extract(ctx, receipt.Logs, ec)
	if err != nil {
		return nil, err
	}
	transfers := append(walked.Transfers, fromLogs...)
	f.transfers.Finalize(transfers, ec)
	f.balances.Track(transfers)
	f.nfts.Track(transfers)

	f.obs.ObserveTransaction(time.Since(start))
	return &chain.TransactionData{
		Transaction:        tx,
		TransactionReceipt: receipt,
		ContractAddresses:  contracts,
		Tokens:             tokens,
		Transfers:          transfers,
	}, nil
}

// blockLogs extracts transfers from the block's logs that no transaction of
// the block emitted.
func (f *Fetcher) blockLogs(ctx context.Context, block *chain.Block) ([]*types.Log, []*chain.Transfer, error) {
	number := uint64(block.Number)
	logs, err := f.src.GetLogs(ctx, number, number)
	if err != nil {
		return nil, nil, fmt.Errorf("get logs of block %d: %w", number, err)
	}
	known := make(map[common.Hash]struct{}, len(block.Transactions))
	for _, h := range block.Transactions {
		known[h] = struct{}{}
	}
	var orphans []*types.Log
	for _, lg := range logs {
		if lg == nil {
			continue
		}
		if _, ok := known[lg.TxHash]; !ok {
			orphans = append(orphans, lg)
		}
	}
	if len(orphans) == 0 {
		return nil, nil, nil
	}

	ec := &transfer.Context{BlockNumber: number, Timestamp: block.Time()}
	transfers, err := f.transfers.Extract(ctx, orphans, ec)
	if err != nil {
		return nil, nil, err
	}
	f.transfers.Finalize(transfers, ec)
	f.balances.Track(transfers)
	f.nfts.Track(transfers)
	return orphans, transfers, nil
}
