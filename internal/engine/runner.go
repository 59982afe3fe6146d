package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/devblac/block-fetcher/internal/chain"
	"github.com/devblac/block-fetcher/internal/config"
	"github.com/devblac/block-fetcher/internal/sink"
	"github.com/devblac/block-fetcher/internal/storage"
)

// SourceID keys the node cursor in storage.
const SourceID = "node"

// ErrTargetReached is returned once the cursor passes Options.To.
var ErrTargetReached = errors.New("target block reached")

// BlockFetcher builds the dataset of one block. *fetcher.Fetcher satisfies it.
type BlockFetcher interface {
	GetBlockData(ctx context.Context, number uint64) (*chain.BlockData, error)
}

// Head reads the chain tip and block headers. *gateway.Gateway satisfies it.
type Head interface {
	GetBlockNumber(ctx context.Context) (uint64, error)
	GetBlock(ctx context.Context, number uint64) (*chain.Block, error)
}

// Observer receives runner counters. *metrics.Metrics satisfies it.
type Observer interface {
	BlocksProcessed()
	Delivered(sink, status string)
	Errors()
}

type nopObserver struct{}

func (nopObserver) BlocksProcessed()         {}
func (nopObserver) Delivered(string, string) {}
func (nopObserver) Errors()                  {}

// Options control which blocks are processed.
type Options struct {
	Confirmations uint64
	StartBlock    string
	From          uint64
	To            uint64
	DryRun        bool
}

// Runner moves the cursor one block at a time and hands every block to all
// sinks.
type Runner struct {
	store   *storage.Store
	fetcher BlockFetcher
	head    Head
	sinks   []sink.Named
	opts    Options
	obs     Observer
	log     *slog.Logger
	nowFunc func() time.Time
}

// NewRunner builds a runner. obs may be nil.
func NewRunner(store *storage.Store, fetcher BlockFetcher, head Head, sinks []sink.Named, opts Options, obs Observer, log *slog.Logger) (*Runner, error) {
	if _, _, err := config.ParseStartBlock(opts.StartBlock); err != nil {
		return nil, fmt.Errorf("start_block: %w", err)
	}
	if opts.To > 0 && opts.From > opts.To {
		return nil, fmt.Errorf("from %d is past to %d", opts.From, opts.To)
	}
	if obs == nil {
		obs = nopObserver{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		store:   store,
		fetcher: fetcher,
		head:    head,
		sinks:   sinks,
		opts:    opts,
		obs:     obs,
		log:     log,
		nowFunc: time.Now,
	}, nil
}

// RunOnce processes the next eligible block. It reports whether a block was
// completed; false with a nil error means there is nothing to do yet.
func (r *Runner) RunOnce(ctx context.Context) (bool, error) {
	curHeight, curHash, hasCursor, err := r.store.GetCursor(ctx, SourceID)
	if err != nil {
		return false, err
	}

	latest, err := r.head.GetBlockNumber(ctx)
	if err != nil {
		return false, fmt.Errorf("latest block: %w", err)
	}
	if r.opts.Confirmations > latest {
		return false, nil
	}
	safeHeight := latest - r.opts.Confirmations

	target := curHeight + 1
	if !hasCursor {
		target = r.startHeight(safeHeight)
	}
	if r.opts.To > 0 && target > r.opts.To {
		return false, ErrTargetReached
	}
	if target > safeHeight {
		return false, nil
	}

	data, err := r.fetcher.GetBlockData(ctx, target)
	if err != nil {
		return false, fmt.Errorf("block %d: %w", target, err)
	}
	if data == nil || data.Block == nil {
		r.log.Debug("block not available yet", "block", target)
		return false, nil
	}

	if hasCursor && curHash != "" && data.Block.ParentHash.Hex() != curHash {
		return false, r.rewind(ctx, curHeight)
	}

	hash := data.Block.Hash.Hex()
	if !r.opts.DryRun {
		if err := r.deliver(ctx, target, hash, data); err != nil {
			return false, err
		}
	}

	if err := r.store.CompleteBlock(ctx, SourceID, target, hash); err != nil {
		return false, err
	}
	r.obs.BlocksProcessed()
	r.log.Info("block processed",
		"block", target,
		"hash", hash,
		"transactions", len(data.Transactions),
		"lag", latest-target,
		"dry_run", r.opts.DryRun,
	)
	return true, nil
}

// Run calls RunOnce until the context ends or the target block is passed.
// Idle and failed ticks wait pollInterval; a completed block is followed by
// the next one immediately.
func (r *Runner) Run(ctx context.Context, pollInterval time.Duration) error {
	for {
		processed, err := r.RunOnce(ctx)
		switch {
		case errors.Is(err, ErrTargetReached):
			r.log.Info("target reached", "to", r.opts.To)
			return nil
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.obs.Errors()
			r.log.Error("run error", "error", err)
		case processed:
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (r *Runner) startHeight(safeHeight uint64) uint64 {
	if r.opts.From > 0 {
		return r.opts.From
	}
	n, relative, _ := config.ParseStartBlock(r.opts.StartBlock)
	if !relative {
		return n
	}
	if n > safeHeight {
		return 0
	}
	return safeHeight - n
}

// rewind steps the cursor back one block after the parent hash stopped
// matching. Deeper reorgs unwind one block per tick.
func (r *Runner) rewind(ctx context.Context, curHeight uint64) error {
	r.log.Warn("reorg detected", "block", curHeight+1, "cursor", curHeight)
	if curHeight == 0 {
		return r.store.UpsertCursor(ctx, SourceID, 0, "")
	}
	prev, err := r.head.GetBlock(ctx, curHeight-1)
	if err != nil {
		return fmt.Errorf("rewind to %d: %w", curHeight-1, err)
	}
	if prev == nil {
		return fmt.Errorf("rewind to %d: block not found", curHeight-1)
	}
	return r.store.UpsertCursor(ctx, SourceID, curHeight-1, prev.Hash.Hex())
}

func (r *Runner) deliver(ctx context.Context, number uint64, hash string, data *chain.BlockData) error {
	done, err := r.store.DeliveredSinks(ctx, number, hash)
	if err != nil {
		return err
	}

	var errs []error
	for _, s := range r.sinks {
		if done[s.ID] {
			continue
		}
		d := storage.Delivery{
			BlockNumber: number,
			BlockHash:   hash,
			SinkID:      s.ID,
			Status:      storage.StatusDelivered,
			At:          r.nowFunc(),
		}
		if err := s.Sender.Send(ctx, data); err != nil {
			d.Status = storage.StatusFailed
			d.Error = err.Error()
			errs = append(errs, fmt.Errorf("sink %s: %w", s.ID, err))
		}
		r.obs.Delivered(s.ID, d.Status)
		if err := r.store.RecordDelivery(ctx, d); err != nil {
			return err
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("deliver block %d: %w", number, errors.Join(errs...))
	}
	return nil
}
