package gateway

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/devblac/block-fetcher/internal/chain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/lru"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"
)

const assetCacheSize = 1024

// Node is the ledger node collaborator. Implementations return nil results
// (and no error) for unknown blocks and transactions.
type Node interface {
	ContractCaller
	BlockByNumber(ctx context.Context, number uint64) (*chain.Block, error)
	BlockDetails(ctx context.Context, number uint64) (*chain.BlockDetails, error)
	BlockNumber(ctx context.Context) (uint64, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*chain.Transaction, error)
	TransactionDetails(ctx context.Context, hash common.Hash) (*chain.TransactionDetails, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*chain.Receipt, error)
	Logs(ctx context.Context, from, to uint64) ([]*types.Log, error)
	Code(ctx context.Context, address common.Address) (hexutil.Bytes, error)
	Balance(ctx context.Context, address common.Address, blockNumber uint64) (*big.Int, error)
	Send(ctx context.Context, result any, method string, params ...any) error
}

// TokenData is the ERC20 metadata read from a token contract.
type TokenData struct {
	Symbol   string
	Decimals uint8
	Name     string
}

type tracerConfig struct {
	OnlyTopCall bool `json:"onlyTopCall"`
}

type traceOptions struct {
	Tracer       string       `json:"tracer"`
	TracerConfig tracerConfig `json:"tracerConfig"`
}

// Gateway is the resilient facade over a Node used by every fetcher stage.
type Gateway struct {
	node   Node
	retry  *Retrier
	abis   *chain.ABIs
	addrs  chain.Addresses
	assets *lru.Cache[common.Hash, common.Address]
	log    *slog.Logger
}

// New builds a gateway.
func New(node Node, retry *Retrier, abis *chain.ABIs, addrs chain.Addresses, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		node:   node,
		retry:  retry,
		abis:   abis,
		addrs:  addrs.WithDefaults(),
		assets: lru.NewCache[common.Hash, common.Address](assetCacheSize),
		log:    log,
	}
}

// ABIs returns the contract interface table.
func (g *Gateway) ABIs() *chain.ABIs { return g.abis }

// Addresses returns the system address set.
func (g *Gateway) Addresses() chain.Addresses { return g.addrs }

// Contract binds a retryable contract.
func (g *Gateway) Contract(address common.Address, contractABI *abi.ABI) *RetryableContract {
	return NewRetryableContract(address, contractABI, g.node, g.retry)
}

func (g *Gateway) GetBlock(ctx context.Context, number uint64) (*chain.Block, error) {
	return Call(ctx, g.retry, "getBlock", func(ctx context.Context) (*chain.Block, error) {
		return g.node.BlockByNumber(ctx, number)
	})
}

func (g *Gateway) GetBlockDetails(ctx context.Context, number uint64) (*chain.BlockDetails, error) {
	return Call(ctx, g.retry, "getBlockDetails", func(ctx context.Context) (*chain.BlockDetails, error) {
		return g.node.BlockDetails(ctx, number)
	})
}

func (g *Gateway) GetBlockNumber(ctx context.Context) (uint64, error) {
	return Call(ctx, g.retry, "getBlockNumber", g.node.BlockNumber)
}

func (g *Gateway) GetTransaction(ctx context.Context, hash common.Hash) (*chain.Transaction, error) {
	return Call(ctx, g.retry, "getTransaction", func(ctx context.Context) (*chain.Transaction, error) {
		return g.node.TransactionByHash(ctx, hash)
	})
}

func (g *Gateway) GetTransactionDetails(ctx context.Context, hash common.Hash) (*chain.TransactionDetails, error) {
	return Call(ctx, g.retry, "getTransactionDetails", func(ctx context.Context) (*chain.TransactionDetails, error) {
		return g.node.TransactionDetails(ctx, hash)
	})
}

func (g *Gateway) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*chain.Receipt, error) {
	return Call(ctx, g.retry, "getTransactionReceipt", func(ctx context.Context) (*chain.Receipt, error) {
		return g.node.TransactionReceipt(ctx, hash)
	})
}

func (g *Gateway) GetLogs(ctx context.Context, from, to uint64) ([]*types.Log, error) {
	return Call(ctx, g.retry, "getLogs", func(ctx context.Context) ([]*types.Log, error) {
		return g.node.Logs(ctx, from, to)
	})
}

func (g *Gateway) GetCode(ctx context.Context, address common.Address) (hexutil.Bytes, error) {
	return Call(ctx, g.retry, "getCode", func(ctx context.Context) (hexutil.Bytes, error) {
		return g.node.Code(ctx, address)
	})
}

// TraceTransaction runs the call tracer over one transaction.
func (g *Gateway) TraceTransaction(ctx context.Context, hash common.Hash, onlyTopCall bool) (*chain.TraceCall, error) {
	return Call(ctx, g.retry, "debugTraceTransaction", func(ctx context.Context) (*chain.TraceCall, error) {
		var trace *chain.TraceCall
		opts := traceOptions{Tracer: "callTracer", TracerConfig: tracerConfig{OnlyTopCall: onlyTopCall}}
		if err := g.node.Send(ctx, &trace, "debug_traceTransaction", hash, opts); err != nil {
			return nil, err
		}
		return trace, nil
	})
}

// TraceBlock runs the call tracer over every transaction of a block.
func (g *Gateway) TraceBlock(ctx context.Context, number uint64, onlyTopCall bool) ([]chain.BlockTrace, error) {
	return Call(ctx, g.retry, "debugTraceBlock", func(ctx context.Context) ([]chain.BlockTrace, error) {
		var traces []chain.BlockTrace
		opts := traceOptions{Tracer: "callTracer", TracerConfig: tracerConfig{OnlyTopCall: onlyTopCall}}
		if err := g.node.Send(ctx, &traces, "debug_traceBlockByNumber", hexutil.Uint64(number), opts); err != nil {
			return nil, err
		}
		return traces, nil
	})
}

// GetBalance returns the balance of address in token at blockNumber.
func (g *Gateway) GetBalance(ctx context.Context, address common.Address, blockNumber uint64, token common.Address) (*big.Int, error) {
	if g.addrs.IsBaseToken(token) {
		return Call(ctx, g.retry, "getBalance", func(ctx context.Context) (*big.Int, error) {
			return g.node.Balance(ctx, address, blockNumber)
		})
	}
	return g.Contract(token, &g.abis.ERC20).ReadBigInt(ctx, "balanceOf", &blockNumber, address)
}

// GetERC20TokenData reads symbol, decimals and name concurrently.
func (g *Gateway) GetERC20TokenData(ctx context.Context, address common.Address) (*TokenData, error) {
	c := g.Contract(address, &g.abis.ERC20)
	var out TokenData
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		s, err := c.ReadString(egCtx, "symbol", nil)
		out.Symbol = s
		return err
	})
	eg.Go(func() error {
		d, err := c.ReadUint8(egCtx, "decimals", nil)
		out.Decimals = d
		return err
	})
	eg.Go(func() error {
		n, err := c.ReadString(egCtx, "name", nil)
		out.Name = n
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTokenURI reads the metadata URI of an ERC721 token.
func (g *Gateway) GetTokenURI(ctx context.Context, token common.Address, tokenID *big.Int) (string, error) {
	return g.Contract(token, &g.abis.ERC721).ReadString(ctx, "tokenURI", nil, tokenID)
}

// TokenAddressByAssetID resolves a bridged asset id to its L2 token through
// the native token vault. The mapping never changes once set, so resolved
// addresses are cached.
func (g *Gateway) TokenAddressByAssetID(ctx context.Context, assetID common.Hash) (common.Address, error) {
	if addr, ok := g.assets.Get(assetID); ok {
		return addr, nil
	}
	addr, err := g.Contract(g.addrs.NativeTokenVault, &g.abis.NativeTokenVault).ReadAddress(ctx, "tokenAddress", nil, [32]byte(assetID))
	if err != nil {
		return common.Address{}, err
	}
	if addr != (common.Address{}) {
		g.assets.Add(assetID, addr)
	}
	return addr, nil
}
