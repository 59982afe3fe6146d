// Package node talks JSON-RPC to the ledger node. It is the transport-level
// collaborator of the gateway: one round trip per method, no retries.
package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/devblac/block-fetcher/internal/chain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"
)

const methodNotFound = -32601

// Transport issues a single JSON-RPC call. *rpc.Client satisfies it.
type Transport interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
	Close()
}

// Options tune the client.
type Options struct {
	Headers           map[string]string
	QuickTimeout      time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Client is a rate-limited JSON-RPC client that re-sends a call once when
// it outlives the quick timeout.
type Client struct {
	rpc          Transport
	eth          *ethclient.Client
	limiter      *rate.Limiter
	quickTimeout time.Duration
	log          *slog.Logger
}

// Dial connects to the node at url.
func Dial(ctx context.Context, url string, opts Options, log *slog.Logger) (*Client, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	for k, v := range opts.Headers {
		rc.SetHeader(k, v)
	}
	c := NewClient(rc, opts, log)
	c.eth = ethclient.NewClient(rc)
	return c, nil
}

// NewClient wraps an existing transport.
func NewClient(t Transport, opts Options, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return &Client{
		rpc:          t,
		limiter:      limiter,
		quickTimeout: opts.QuickTimeout,
		log:          log,
	}
}

// Close releases the transport.
func (c *Client) Close() {
	c.rpc.Close()
}

// Send issues method and decodes the result into result (may be nil).
func (c *Client) Send(ctx context.Context, result any, method string, params ...any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	raw, err := c.race(ctx, method, params)
	if err != nil {
		return err
	}
	if result == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

func (c *Client) race(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if c.quickTimeout <= 0 {
		return c.call(ctx, method, params)
	}

	type outcome struct {
		raw json.RawMessage
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		raw, err := c.call(ctx, method, params)
		done <- outcome{raw: raw, err: err}
	}()

	timer := time.NewTimer(c.quickTimeout)
	defer timer.Stop()
	select {
	case o := <-done:
		return o.raw, o.err
	case <-timer.C:
		c.log.Warn("rpc call exceeded quick timeout, sending again", "method", method, "quick_timeout", c.quickTimeout)
		return c.call(ctx, method, params)
	}
}

func (c *Client) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.rpc.CallContext(ctx, &raw, method, params...)
	return raw, err
}

func (c *Client) BlockByNumber(ctx context.Context, number uint64) (*chain.Block, error) {
	var b *chain.Block
	if err := c.Send(ctx, &b, "eth_getBlockByNumber", hexutil.Uint64(number), false); err != nil {
		return nil, err
	}
	return b, nil
}

// BlockDetails returns nil when the node does not serve zks_ methods.
func (c *Client) BlockDetails(ctx context.Context, number uint64) (*chain.BlockDetails, error) {
	var d *chain.BlockDetails
	if err := c.Send(ctx, &d, "zks_getBlockDetails", number); err != nil {
		if isMethodNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return d, nil
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	if c.eth != nil {
		return c.eth.BlockNumber(ctx)
	}
	var n hexutil.Uint64
	if err := c.Send(ctx, &n, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	if c.eth != nil {
		return c.eth.ChainID(ctx)
	}
	var id hexutil.Big
	if err := c.Send(ctx, &id, "eth_chainId"); err != nil {
		return nil, err
	}
	return id.ToInt(), nil
}

func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*chain.Transaction, error) {
	var tx *chain.Transaction
	if err := c.Send(ctx, &tx, "eth_getTransactionByHash", hash); err != nil {
		return nil, err
	}
	return tx, nil
}

// TransactionDetails returns nil when the node does not serve zks_ methods.
func (c *Client) TransactionDetails(ctx context.Context, hash common.Hash) (*chain.TransactionDetails, error) {
	var d *chain.TransactionDetails
	if err := c.Send(ctx, &d, "zks_getTransactionDetails", hash); err != nil {
		if isMethodNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return d, nil
}

func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*chain.Receipt, error) {
	var r *chain.Receipt
	if err := c.Send(ctx, &r, "eth_getTransactionReceipt", hash); err != nil {
		return nil, err
	}
	return r, nil
}

func (c *Client) Logs(ctx context.Context, from, to uint64) ([]*types.Log, error) {
	var logs []*types.Log
	filter := map[string]any{
		"fromBlock": hexutil.Uint64(from),
		"toBlock":   hexutil.Uint64(to),
	}
	if err := c.Send(ctx, &logs, "eth_getLogs", filter); err != nil {
		return nil, err
	}
	return logs, nil
}

func (c *Client) Code(ctx context.Context, address common.Address) (hexutil.Bytes, error) {
	var code hexutil.Bytes
	if err := c.Send(ctx, &code, "eth_getCode", address, "latest"); err != nil {
		return nil, err
	}
	return code, nil
}

func (c *Client) Balance(ctx context.Context, address common.Address, blockNumber uint64) (*big.Int, error) {
	var bal hexutil.Big
	if err := c.Send(ctx, &bal, "eth_getBalance", address, hexutil.Uint64(blockNumber)); err != nil {
		return nil, err
	}
	return bal.ToInt(), nil
}

// Call runs eth_call against to at blockNumber, or latest when nil.
func (c *Client) Call(ctx context.Context, to common.Address, data []byte, blockNumber *uint64) (hexutil.Bytes, error) {
	msg := map[string]any{
		"to":   to,
		"data": hexutil.Bytes(data),
	}
	var tag any = "latest"
	if blockNumber != nil {
		tag = hexutil.Uint64(*blockNumber)
	}
	var out hexutil.Bytes
	if err := c.Send(ctx, &out, "eth_call", msg, tag); err != nil {
		return nil, err
	}
	return out, nil
}

func isMethodNotFound(err error) bool {
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr) && rpcErr.ErrorCode() == methodNotFound
}
