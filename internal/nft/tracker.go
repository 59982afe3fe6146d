// Package nft tracks ERC721 ownership changes per block and resolves the
// final owners with their off-chain metadata.
package nft

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/devblac/block-fetcher/internal/chain"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// URIReader reads tokenURI from an ERC721 contract.
type URIReader interface {
	GetTokenURI(ctx context.Context, token common.Address, tokenID *big.Int) (string, error)
}

// MetadataFetcher loads the JSON document a token URI points to.
type MetadataFetcher interface {
	Fetch(ctx context.Context, uri string) (*Metadata, error)
}

type key struct {
	token   common.Address
	tokenID string
}

type owner struct {
	timestamp time.Time
	address   common.Address
}

type changed struct {
	order  []key
	owners map[key]owner
}

// Tracker keeps, per block, the owner from the transfer with the latest
// chain timestamp for every token.
type Tracker struct {
	mu          sync.Mutex
	blocks      map[uint64]*changed
	uris        URIReader
	metadata    MetadataFetcher
	concurrency int
	log         *slog.Logger
}

// NewTracker builds a tracker. A nil metadata fetcher skips the off-chain
// lookup.
func NewTracker(uris URIReader, metadata MetadataFetcher, concurrency int, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		blocks:      map[uint64]*changed{},
		uris:        uris,
		metadata:    metadata,
		concurrency: concurrency,
		log:         log,
	}
}

// Track records ERC721 transfers; other token types are ignored.
func (t *Tracker) Track(transfers []*chain.Transfer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tr := range transfers {
		if tr.TokenType != chain.TokenTypeERC721 {
			continue
		}
		tokenID := tr.Fields["tokenId"]
		if tokenID == "" {
			continue
		}
		c := t.blocks[tr.BlockNumber]
		if c == nil {
			c = &changed{owners: map[key]owner{}}
			t.blocks[tr.BlockNumber] = c
		}
		k := key{token: tr.TokenAddress, tokenID: tokenID}
		prev, ok := c.owners[k]
		if !ok {
			c.order = append(c.order, k)
		}
		if !ok || tr.Timestamp.After(prev.timestamp) {
			c.owners[k] = owner{timestamp: tr.Timestamp, address: tr.To}
		}
	}
}

// Resolve returns one item per tracked token. Failed URI or metadata
// lookups leave the corresponding fields empty.
func (t *Tracker) Resolve(ctx context.Context, blockNumber uint64) []*chain.NftItem {
	t.mu.Lock()
	c := t.blocks[blockNumber]
	var items []*chain.NftItem
	if c != nil {
		for _, k := range c.order {
			items = append(items, &chain.NftItem{
				Owner:        c.owners[k].address,
				TokenAddress: k.token,
				TokenID:      k.tokenID,
			})
		}
	}
	t.mu.Unlock()

	if len(items) == 0 {
		return []*chain.NftItem{}
	}

	var g errgroup.Group
	if t.concurrency > 0 {
		g.SetLimit(t.concurrency)
	}
	for _, item := range items {
		item := item
		g.Go(func() error {
			t.enrich(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
	return items
}

func (t *Tracker) enrich(ctx context.Context, item *chain.NftItem) {
	id, ok := new(big.Int).SetString(item.TokenID, 10)
	if !ok || t.uris == nil {
		return
	}
	uri, err := t.uris.GetTokenURI(ctx, item.TokenAddress, id)
	if err != nil {
		t.log.Info("could not fetch token uri", "token_address", item.TokenAddress.Hex(), "token_id", item.TokenID, "error", err)
		return
	}
	item.MetadataURL = uri
	if uri == "" || t.metadata == nil {
		return
	}
	md, err := t.metadata.Fetch(ctx, uri)
	if err != nil {
		t.log.Info("could not fetch nft metadata", "uri", uri, "error", err)
		return
	}
	item.Name = md.Name
	item.Description = md.Description
	item.ImageURL = md.Image
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
