// Package transfer reconstructs canonical value transfers from a
// transaction's event logs.
package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/devblac/block-fetcher/internal/chain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Context carries the transaction-level facts handlers need. Receipt is nil
// for block-level logs that have no originating transaction.
type Context struct {
	BlockNumber uint64
	Timestamp   time.Time
	Details     *chain.TransactionDetails
	Receipt     *chain.Receipt
	HasTrace    bool
}

func (c *Context) timestamp() time.Time {
	if c.Details != nil && !c.Details.ReceivedAt.IsZero() {
		return c.Details.ReceivedAt
	}
	return c.Timestamp
}

// Handler turns one recognized log shape into a Transfer. Extract may
// return nil when the log carries no transfer to emit.
type Handler interface {
	Matches(lg *types.Log, receipt *chain.Receipt) bool
	Extract(ctx context.Context, lg *types.Log, ec *Context) (*chain.Transfer, error)
}

// AssetResolver maps a bridged asset id to its L2 token address.
type AssetResolver interface {
	TokenAddressByAssetID(ctx context.Context, assetID common.Hash) (common.Address, error)
}

// conflict pairs the current log shape of a bridging event with its legacy
// shape.
type conflict struct {
	current common.Hash
	legacy  common.Hash
}

// Extractor dispatches logs to handlers by topic.
type Extractor struct {
	handlers  map[common.Hash][]Handler
	conflicts []conflict
	addrs     chain.Addresses
	log       *slog.Logger
}

// NewExtractor builds the handler table. Per-topic order is significant:
// the first matching handler wins.
func NewExtractor(abis *chain.ABIs, addrs chain.Addresses, assets AssetResolver, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	addrs = addrs.WithDefaults()
	d := deps{abis: abis, addrs: addrs, assets: assets}
	return &Extractor{
		handlers: map[common.Hash][]Handler{
			chain.TopicFinalizeDeposit:                {finalizeDepositHandler{d}},
			chain.TopicDepositFinalizedAssetRouter:    {assetRouterDepositHandler{d}},
			chain.TopicWithdrawalInitiated:            {withdrawalInitiatedHandler{d}},
			chain.TopicWithdrawalInitiatedAssetRouter: {assetRouterWithdrawalHandler{d}},
			chain.TopicTransfer:                       {erc721TransferHandler{d}, deployerMintHandler{d}, defaultTransferHandler{d}},
			chain.TopicMint:                           {baseMintHandler{d}},
			chain.TopicWithdrawal:                     {baseWithdrawalHandler{d}},
		},
		conflicts: []conflict{
			{current: chain.TopicDepositFinalizedAssetRouter, legacy: chain.TopicFinalizeDeposit},
			{current: chain.TopicWithdrawalInitiatedAssetRouter, legacy: chain.TopicWithdrawalInitiated},
		},
		addrs: addrs,
		log:   log,
	}
}

// Extract returns the transfers of logs in log order. A handler failure
// aborts the whole transaction; no partial list is returned.
func (e *Extractor) Extract(ctx context.Context, logs []*types.Log, ec *Context) ([]*chain.Transfer, error) {
	disabled := e.disabledTopics(logs)
	var out []*chain.Transfer
	for _, lg := range logs {
		if lg == nil || len(lg.Topics) == 0 {
			continue
		}
		if _, off := disabled[lg.Topics[0]]; off {
			continue
		}
		h := e.handlerFor(lg, ec.Receipt)
		if h == nil {
			continue
		}
		t, err := h.Extract(ctx, lg, ec)
		if err != nil {
			e.log.Error("failed to parse transfer", "block", ec.BlockNumber, "tx", lg.TxHash.Hex(), "log_index", lg.Index, "error", err)
			return nil, fmt.Errorf("extract transfer from log %d of tx %s: %w", lg.Index, lg.TxHash.Hex(), err)
		}
		if t != nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func (e *Extractor) handlerFor(lg *types.Log, receipt *chain.Receipt) Handler {
	for _, h := range e.handlers[lg.Topics[0]] {
		if h.Matches(lg, receipt) {
			return h
		}
	}
	return nil
}

// disabledTopics turns off the legacy shape of every bridging event whose
// current shape is present in the transaction.
func (e *Extractor) disabledTopics(logs []*types.Log) map[common.Hash]struct{} {
	present := map[common.Hash]struct{}{}
	for _, lg := range logs {
		if lg != nil && len(lg.Topics) > 0 {
			present[lg.Topics[0]] = struct{}{}
		}
	}
	disabled := map[common.Hash]struct{}{}
	for _, c := range e.conflicts {
		if _, ok := present[c.current]; ok {
			disabled[c.legacy] = struct{}{}
		}
	}
	return disabled
}

// Finalize classifies fee and refund deposits, marks internal transfers
// and reassigns log indexes 1..N in emission order.
func (e *Extractor) Finalize(transfers []*chain.Transfer, ec *Context) {
	if len(transfers) == 0 {
		return
	}
	ClassifyFeeAndRefund(transfers, ec, e.addrs)
	MarkInternal(transfers, ec.Receipt, e.addrs)
	Reindex(transfers)
}
