package trace

import (
	"context"

	"github.com/devblac/block-fetcher/internal/chain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/sync/errgroup"
)

// CodeSource returns the deployed bytecode of an address.
type CodeSource interface {
	GetCode(ctx context.Context, address common.Address) (hexutil.Bytes, error)
}

// Enrich loads bytecode for every contract concurrently. Contracts whose
// code is empty were destroyed within the same transaction and are dropped.
// Any lookup error fails the whole set.
func Enrich(ctx context.Context, src CodeSource, contracts []*chain.ContractAddress) ([]*chain.ContractAddress, error) {
	if len(contracts) == 0 {
		return contracts, nil
	}
	codes := make([]hexutil.Bytes, len(contracts))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range contracts {
		i, addr := i, c.Address
		g.Go(func() error {
			code, err := src.GetCode(gctx, addr)
			if err != nil {
				return err
			}
			codes[i] = code
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := contracts[:0]
	for i, c := range contracts {
		if len(codes[i]) == 0 {
			continue
		}
		c.Bytecode = codes[i]
		c.IsEvmLike = true
		out = append(out, c)
	}
	return out, nil
}
