package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
)

var flagForce bool

func init() {
	initCmd.Flags().BoolVar(&flagForce, "force", false, "Overwrite an existing config file")
}

const sampleConfig = `version: 1

global:
  db_path: block-fetcher.db
  confirmations: 0
  start_block: latest
  poll_interval: 2s

node:
  rpc_url: ${RPC_URL}
  quick_timeout: 10s
  requests_per_second: 0

retry:
  default_timeout: 30s
  quick_timeout: 500ms
  max_total_timeout: 120s
  contract_backoff: 1s

fetcher:
  max_concurrency: 16
  nft_metadata: false
  ipfs_gateway: https://ipfs.io/ipfs/
  metadata_timeout: 8s

sinks:
  - id: stdout
    type: log
  # - id: indexer
  #   type: webhook
  #   url: https://indexer.example.com/blocks
  # - id: queue
  #   type: redis
  #   redis_addr: localhost:6379
  #   redis_key: blocks
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !flagForce {
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
			} else if !errors.Is(err, fs.ErrNotExist) {
				return err
			}
		}
		if err := os.WriteFile(cfgPath, []byte(sampleConfig), 0o644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", cfgPath)
		return nil
	},
}
