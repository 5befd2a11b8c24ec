package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/Pokedex-Companion/internal/api"
	"github.com/ramonehamilton/Pokedex-Companion/internal/daemon"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		port          int
		verboseEvents bool
		noAPI         bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync engine and the local API",
		Long: `Run the sync engine in the foreground.

The catalog is served from the local cache first and refreshed when stale.
Pending edits are flushed to the remote authority on a debounce and on an
interval. The local HTTP/WebSocket API exposes the engine to UI clients.

Example:
  pokedex-companion serve
  pokedex-companion serve --port 9000 --verbose-events`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if port > 0 {
				opts.cfg.API.Port = port
			}
			return runServe(ctx, opts, verboseEvents, !noAPI)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "API port (overrides api.port)")
	cmd.Flags().BoolVar(&verboseEvents, "verbose-events", false, "log event payloads")
	cmd.Flags().BoolVar(&noAPI, "no-api", false, "run the engine without the HTTP API")

	return cmd
}

func runServe(ctx context.Context, opts *rootOptions, verboseEvents, withAPI bool) error {
	logger := opts.logger

	svc, err := daemon.New(opts.cfg, daemon.Options{
		Logger:        logger,
		DBPath:        opts.DBPath,
		ConfigPath:    opts.configPath(),
		VerboseEvents: verboseEvents,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Stop(); err != nil {
			logger.Error("Failed to stop sync engine", "error", err)
		}
	}()

	if err := svc.Start(ctx); err != nil {
		return err
	}

	var server *api.Server
	if withAPI {
		apiCfg := api.DefaultConfig()
		apiCfg.Port = opts.cfg.API.Port
		if len(opts.cfg.API.AllowedOrigins) > 0 {
			apiCfg.AllowedOrigins = opts.cfg.API.AllowedOrigins
		}
		server = api.NewServer(apiCfg, api.Deps{
			Variants:   svc.Variants(),
			Instances:  svc.Instances(),
			Tags:       svc.Tags(),
			Trades:     svc.Trades(),
			Queue:      svc.Queue(),
			Dispatcher: svc.Dispatcher(),
			Metrics:    svc.Metrics(),
			Logger:     logger,
		})
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
	}

	logger.Info("Sync engine running", "api", withAPI, "port", opts.cfg.API.Port)
	<-ctx.Done()
	logger.Info("Shutting down")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("API shutdown failed", "error", err)
		}
	}
	return nil
}
