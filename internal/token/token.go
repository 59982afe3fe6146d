// Package token derives token metadata for newly deployed contracts.
package token

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/devblac/block-fetcher/internal/chain"
	"github.com/devblac/block-fetcher/internal/eventlog"
	"github.com/devblac/block-fetcher/internal/gateway"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"
)

// Reader loads ERC20 metadata from the token contract.
type Reader interface {
	GetERC20TokenData(ctx context.Context, address common.Address) (*gateway.TokenData, error)
}

type Extractor struct {
	abis   *chain.ABIs
	addrs  chain.Addresses
	reader Reader
	log    *slog.Logger
}

func NewExtractor(abis *chain.ABIs, addrs chain.Addresses, reader Reader, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{abis: abis, addrs: addrs.WithDefaults(), reader: reader, log: log}
}

// Tokens resolves every contract concurrently and keeps the ones that look
// like tokens, in contract order. A malformed bridge initialization log
// fails the whole set.
func (e *Extractor) Tokens(ctx context.Context, contracts []*chain.ContractAddress, receipt *chain.Receipt) ([]*chain.Token, error) {
	if len(contracts) == 0 {
		return nil, nil
	}
	found := make([]*chain.Token, len(contracts))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range contracts {
		i, c := i, c
		g.Go(func() (err error) {
			found[i], err = e.Token(gctx, c, receipt)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []*chain.Token
	for _, t := range found {
		if t != nil {
			out = append(out, t)
		}
	}
	return out, nil
}

// Token returns nil when the contract carries no usable symbol or its
// metadata could not be read. Only an unparsable bridge initialization log
// is an error.
func (e *Extractor) Token(ctx context.Context, contract *chain.ContractAddress, receipt *chain.Receipt) (*chain.Token, error) {
	var (
		data      *gateway.TokenData
		l1Address *common.Address
	)
	if lg := e.bridgeLog(contract.Address, receipt); lg != nil {
		var err error
		data, l1Address, err = e.fromBridgeLog(lg)
		if err != nil {
			return nil, fmt.Errorf("parse bridge initialization log of %s: %w", contract.Address.Hex(), err)
		}
	} else {
		var err error
		data, err = e.reader.GetERC20TokenData(ctx, contract.Address)
		if err != nil {
			if gateway.IsPermanent(err) {
				e.log.Debug("contract is not an erc20 token", "address", contract.Address.Hex(), "error", err)
			} else {
				e.log.Warn("failed to read token data", "address", contract.Address.Hex(), "error", err)
			}
			return nil, nil
		}
	}

	symbol := clean(data.Symbol)
	if symbol == "" {
		return nil, nil
	}
	t := &chain.Token{
		L2Address:       contract.Address,
		L1Address:       l1Address,
		Symbol:          symbol,
		Decimals:        data.Decimals,
		Name:            clean(data.Name),
		Type:            chain.TokenTypeERC20,
		BlockNumber:     contract.BlockNumber,
		TransactionHash: contract.TransactionHash,
		LogIndex:        contract.LogIndex,
	}
	if e.addrs.IsBaseToken(contract.Address) {
		l1 := e.addrs.EthL1
		t.L1Address = &l1
		t.Type = chain.TokenTypeBase
	}
	return t, nil
}

func (e *Extractor) bridgeLog(address common.Address, receipt *chain.Receipt) *types.Log {
	if receipt == nil || receipt.To == nil || e.addrs.L2ERC20Bridge == chain.ZeroAddress || *receipt.To != e.addrs.L2ERC20Bridge {
		return nil
	}
	for _, lg := range receipt.Logs {
		if lg == nil || len(lg.Topics) == 0 || lg.Address != address {
			continue
		}
		if lg.Topics[0] == chain.TopicBridgeInitialization || lg.Topics[0] == chain.TopicBridgeInitialize {
			return lg
		}
	}
	return nil
}

func (e *Extractor) fromBridgeLog(lg *types.Log) (*gateway.TokenData, *common.Address, error) {
	ev, err := eventlog.Parse(&e.abis.L2StandardERC20, lg)
	if err != nil {
		return nil, nil, err
	}
	l1Token, err := ev.Address("l1Token")
	if err != nil {
		return nil, nil, err
	}
	name, err := ev.String("name")
	if err != nil {
		return nil, nil, err
	}
	symbol, err := ev.String("symbol")
	if err != nil {
		return nil, nil, err
	}
	decimals, err := ev.BigInt("decimals")
	if err != nil {
		return nil, nil, err
	}
	return &gateway.TokenData{Symbol: symbol, Decimals: uint8(decimals.Uint64()), Name: name}, &l1Token, nil
}

// clean drops NUL and other control characters some tokens pad their
// metadata with.
func clean(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
