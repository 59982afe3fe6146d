package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/devblac/block-fetcher/internal/config"
	"github.com/devblac/block-fetcher/internal/engine"
	"github.com/devblac/block-fetcher/internal/health"
	"github.com/devblac/block-fetcher/internal/logging"
	"github.com/devblac/block-fetcher/internal/metrics"
	"github.com/devblac/block-fetcher/internal/sink"
	"github.com/devblac/block-fetcher/internal/storage"
	"github.com/spf13/cobra"
)

var (
	flagOnce    bool
	flagDryRun  bool
	flagFrom    uint64
	flagTo      uint64
	flagHealth  string
	flagMetrics string
)

func init() {
	runCmd.Flags().BoolVar(&flagOnce, "once", false, "Process one block and exit")
	runCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Do not send to sinks")
	runCmd.Flags().Uint64Var(&flagFrom, "from", 0, "Start height override when no cursor exists")
	runCmd.Flags().Uint64Var(&flagTo, "to", 0, "Stop at height (inclusive)")
	runCmd.Flags().StringVar(&flagHealth, "health", "", "Health check HTTP address (e.g., :8080)")
	runCmd.Flags().StringVar(&flagMetrics, "metrics", "", "Metrics HTTP address (e.g., :9090)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch blocks past the cursor and deliver them to sinks",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.New()
		ctx := cmd.Context()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		store, err := storage.Open(cfg.Global.DBPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		var mtr *metrics.Metrics
		if flagMetrics != "" {
			mtr = metrics.Init()
			log.Info("metrics enabled", "addr", flagMetrics)
			srv := &http.Server{Addr: flagMetrics, Handler: metricsMux(), ReadHeaderTimeout: 3 * time.Second}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("metrics server error", "error", err)
				}
			}()
			defer shutdown(srv)
		}

		p, err := newPipeline(ctx, cfg, mtr, log)
		if err != nil {
			return err
		}
		defer p.Close()

		if flagHealth != "" {
			rpcChecker := health.NewRPCChecker(p.node, nil)
			healthSrv := health.Serve(flagHealth, health.Checker{
				DBPing:  store.Ping,
				RPCPing: rpcChecker.Ping,
				Cursor: func(ctx context.Context) (uint64, bool, error) {
					h, _, ok, err := store.GetCursor(ctx, engine.SourceID)
					return h, ok, err
				},
			})
			log.Info("health check enabled", "addr", flagHealth)
			defer shutdown(healthSrv)
		}

		sinks, err := sink.Build(ctx, cfg.Sinks, log)
		if err != nil {
			return err
		}
		defer sink.Close(sinks)

		runner, err := engine.NewRunner(store, p.fetcher, p.gateway, sinks, engine.Options{
			Confirmations: cfg.Global.Confirmations,
			StartBlock:    cfg.Global.StartBlock,
			From:          flagFrom,
			To:            flagTo,
			DryRun:        flagDryRun,
		}, mtr, log)
		if err != nil {
			return err
		}

		if flagOnce {
			processed, err := runner.RunOnce(ctx)
			if err != nil && !errors.Is(err, engine.ErrTargetReached) {
				mtr.Errors()
				log.Error("run error", "error", err)
				return err
			}
			log.Info("tick complete", "processed", processed, "dry_run", flagDryRun)
			return nil
		}

		err = runner.Run(ctx, cfg.Global.PollInterval)
		if errors.Is(err, context.Canceled) {
			log.Info("shutting down")
			return nil
		}
		return err
	},
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = health.Shutdown(ctx, srv)
}
