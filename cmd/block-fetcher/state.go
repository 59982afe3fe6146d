package main

import (
	"context"
	"fmt"
	"io"

	"github.com/devblac/block-fetcher/internal/config"
	"github.com/devblac/block-fetcher/internal/engine"
	"github.com/devblac/block-fetcher/internal/logging"
	"github.com/devblac/block-fetcher/internal/storage"
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the cursor and processing lag",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		store, err := storage.Open(cfg.Global.DBPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		height, hash, ok, err := store.GetCursor(cmd.Context(), engine.SourceID)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(out, "cursor: none (start_block %q)\n", cfg.Global.StartBlock)
		} else {
			fmt.Fprintf(out, "cursor: %d %s\n", height, hash)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), defaultPingTimeout)
		defer cancel()
		client, err := dialNode(ctx, cfg, logging.NewWriter(io.Discard, ""))
		if err != nil {
			fmt.Fprintf(out, "head: unavailable (%v)\n", err)
			return nil
		}
		defer client.Close()

		head, err := client.BlockNumber(ctx)
		if err != nil {
			fmt.Fprintf(out, "head: unavailable (%v)\n", err)
			return nil
		}
		fmt.Fprintf(out, "head: %d (confirmations %d)\n", head, cfg.Global.Confirmations)
		if ok {
			fmt.Fprintf(out, "lag: %d\n", lag(head, cfg.Global.Confirmations, height))
		}
		return nil
	},
}

// lag is the number of confirmed blocks past the cursor.
func lag(head, confirmations, cursor uint64) uint64 {
	if confirmations > head {
		return 0
	}
	safe := head - confirmations
	if cursor >= safe {
		return 0
	}
	return safe - cursor
}
