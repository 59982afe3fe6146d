package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/devblac/block-fetcher/internal/config"
	"github.com/devblac/block-fetcher/internal/logging"
	"github.com/spf13/cobra"
)

const defaultPingTimeout = 8 * time.Second

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config and ping the node",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		fmt.Fprintf(out, "config OK (version %d, %d sink(s))\n", cfg.Version, len(cfg.Sinks))

		ctx, cancel := context.WithTimeout(cmd.Context(), defaultPingTimeout)
		defer cancel()

		client, err := dialNode(ctx, cfg, logging.NewWriter(io.Discard, ""))
		if err != nil {
			fmt.Fprintf(out, "- node: ERROR %v\n", err)
			return fmt.Errorf("validate: node unreachable")
		}
		defer client.Close()

		chainID, err := client.ChainID(ctx)
		if err != nil {
			fmt.Fprintf(out, "- node: ERROR %v\n", err)
			return fmt.Errorf("validate: node failed connectivity")
		}
		head, err := client.BlockNumber(ctx)
		if err != nil {
			fmt.Fprintf(out, "- node: chainId %s, head ERROR %v\n", chainID, err)
			return fmt.Errorf("validate: node failed connectivity")
		}
		fmt.Fprintf(out, "- node: chainId %s, head %d OK\n", chainID, head)

		fmt.Fprintln(out, "validate: success")
		return nil
	},
}
