package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/devblac/block-fetcher/internal/config"
	"github.com/devblac/block-fetcher/internal/logging"
	"github.com/spf13/cobra"
)

var flagCompact bool

func init() {
	fetchCmd.Flags().BoolVar(&flagCompact, "compact", false, "Print single-line JSON")
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <blockNumber>",
	Short: "Fetch one block and print its data as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid block number %q", args[0])
		}
		log := logging.NewWriter(os.Stderr, os.Getenv("LOG_LEVEL"))
		ctx := cmd.Context()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		p, err := newPipeline(ctx, cfg, nil, log)
		if err != nil {
			return err
		}
		defer p.Close()

		data, err := p.fetcher.GetBlockData(ctx, number)
		if err != nil {
			return fmt.Errorf("fetch block %d: %w", number, err)
		}
		if data == nil {
			return fmt.Errorf("block %d not found", number)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		if !flagCompact {
			enc.SetIndent("", "  ")
		}
		return enc.Encode(data)
	},
}
