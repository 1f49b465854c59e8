package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/devblac/paywatch/internal/config"
	"github.com/devblac/paywatch/internal/engine"
	"github.com/devblac/paywatch/internal/health"
	"github.com/devblac/paywatch/internal/metrics"
	"github.com/devblac/paywatch/internal/sink"
	"github.com/devblac/paywatch/internal/storage"
)

var (
	flagOnce    bool
	flagDryRun  bool
	flagHealth  string
	flagMetrics string
)

func init() {
	runCmd.Flags().BoolVar(&flagOnce, "once", false, "Process one tick and exit")
	runCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Do not send to sinks")
	runCmd.Flags().StringVar(&flagHealth, "health", "", "Health check HTTP address (e.g., :8080)")
	runCmd.Flags().StringVar(&flagMetrics, "metrics", "", "Metrics HTTP address (e.g., :9090)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll payment events and dispatch them to sinks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := newLogger(cfg)

		store, err := storage.Open(cfg.Global.DBPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		cursors, closeCursors, err := openCursorStore(cfg, store)
		if err != nil {
			return fmt.Errorf("open cursor store: %w", err)
		}
		defer closeCursors()

		client := newClient(cfg)
		fetcher, err := newFetcher(cfg, client)
		if err != nil {
			return err
		}

		var mtr *metrics.Metrics
		if flagMetrics != "" {
			mtr = metrics.Init()
		}

		sinks, err := sink.FromConfig(ctx, cfg.Sinks, cfg.NATS, log)
		if err != nil {
			return fmt.Errorf("build sinks: %w", err)
		}
		defer sinks.Close()

		dispatcher, err := engine.NewDispatcher(store, cfg, sinks.Senders, flagDryRun, log, mtr)
		if err != nil {
			return err
		}
		poller := engine.NewPoller(fetcher, dispatcher, cursors, engine.PollerConfig{
			StreamID:  cfg.Module.StreamID(),
			BatchSize: cfg.Poller.BatchSize,
			Schedule:  cfg.Poller.Schedule,
		}, log, mtr)

		log.Info("paywatch starting",
			"node", client.URL(),
			"fetch_mode", cfg.Poller.FetchMode,
			"event_type", cfg.Module.EventType(),
			"cursor_store", cfg.Global.CursorStore,
			"schedule", cfg.Poller.Schedule,
			"dry_run", flagDryRun)

		if flagOnce {
			if err := poller.LoadCursor(ctx); err != nil {
				return err
			}
			res, err := poller.Tick(ctx)
			if err != nil {
				return err
			}
			log.Info("tick complete", "outcome", res.Outcome, "fetched", res.Fetched, "processed", res.Processed, "cursor", res.Cursor.String())
			return nil
		}

		g, gctx := errgroup.WithContext(ctx)

		if flagHealth != "" {
			srv := health.Serve(flagHealth, health.Checker{
				DBPing:   store.Ping,
				NodePing: health.NewNodeChecker(client, cfg.Node.ChainID).Ping,
			}, log)
			log.Info("health check enabled", "addr", flagHealth)
			g.Go(func() error {
				<-gctx.Done()
				return shutdown(srv)
			})
		}

		if flagMetrics != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			srv := &http.Server{Addr: flagMetrics, Handler: mux, ReadHeaderTimeout: 3 * time.Second}
			log.Info("metrics enabled", "addr", flagMetrics)
			g.Go(func() error {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("metrics server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				return shutdown(srv)
			})
		}

		g.Go(func() error { return poller.Start(gctx) })

		err = g.Wait()
		log.Info("paywatch stopped", "cursor", poller.Cursor().String())
		return err
	},
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return health.Shutdown(ctx, srv)
}
