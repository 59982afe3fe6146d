package health

import (
	"context"
	"fmt"
	"math/big"
)

// ChainIDReader is satisfied by *node.Client.
type ChainIDReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// RPCChecker pings the node with eth_chainId and, when an expected id is
// known, rejects a node serving another chain.
type RPCChecker struct {
	client   ChainIDReader
	expected *big.Int
}

// NewRPCChecker creates a checker for the node. expected may be nil.
func NewRPCChecker(client ChainIDReader, expected *big.Int) *RPCChecker {
	return &RPCChecker{client: client, expected: expected}
}

// Ping checks the configured RPC endpoint.
func (c *RPCChecker) Ping(ctx context.Context) error {
	id, err := c.client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("node: %w", err)
	}
	if c.expected != nil && id.Cmp(c.expected) != 0 {
		return fmt.Errorf("node: chain id %s, want %s", id, c.expected)
	}
	return nil
}
