package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/devblac/block-fetcher/internal/chain"
	"github.com/devblac/block-fetcher/internal/config"
	"github.com/devblac/block-fetcher/internal/fetcher"
	"github.com/devblac/block-fetcher/internal/gateway"
	"github.com/devblac/block-fetcher/internal/metrics"
	"github.com/devblac/block-fetcher/internal/nft"
	"github.com/devblac/block-fetcher/internal/node"
)

// pipeline is the node → gateway → fetcher chain shared by run and fetch.
type pipeline struct {
	node    *node.Client
	gateway *gateway.Gateway
	fetcher *fetcher.Fetcher
}

func newPipeline(ctx context.Context, cfg *config.Config, mtr *metrics.Metrics, log *slog.Logger) (*pipeline, error) {
	addrs, err := cfg.Chain.Addresses()
	if err != nil {
		return nil, fmt.Errorf("chain addresses: %w", err)
	}
	abis, err := chain.LoadABIs()
	if err != nil {
		return nil, fmt.Errorf("load abis: %w", err)
	}

	client, err := dialNode(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	gw := gateway.New(client, gateway.NewRetrier(cfg.Retry.Policy(), log, mtr), abis, addrs, log)

	opts := fetcher.Options{
		MaxConcurrency: cfg.Fetcher.MaxConcurrency,
		NFTMetadata:    cfg.Fetcher.NFTMetadata,
	}
	if cfg.Fetcher.NFTMetadata {
		opts.Metadata = nft.NewHTTPFetcher(cfg.Fetcher.IPFSGateway, cfg.Fetcher.MetadataTimeout)
	}

	return &pipeline{
		node:    client,
		gateway: gw,
		fetcher: fetcher.New(gw, abis, addrs, opts, mtr, log),
	}, nil
}

func dialNode(ctx context.Context, cfg *config.Config, log *slog.Logger) (*node.Client, error) {
	client, err := node.Dial(ctx, cfg.Node.RPCURL, node.Options{
		Headers:           cfg.Node.Headers,
		QuickTimeout:      cfg.Node.QuickTimeout,
		RequestsPerSecond: cfg.Node.RequestsPerSecond,
		Burst:             cfg.Node.Burst,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("dial node: %w", err)
	}
	return client, nil
}

func (p *pipeline) Close() {
	p.node.Close()
}
