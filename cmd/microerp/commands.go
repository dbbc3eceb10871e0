package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"microerp/internal/adapters/httpapi"
	"microerp/internal/automation"
	"microerp/internal/config"
	"microerp/internal/infra/persistence"
	"microerp/internal/infra/persistence/sqlbundle"
)

func newRunCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one automation pass and print its report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			report := a.engine.RunPass(cmd.Context())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}

type serveFlags struct {
	addr        string
	interval    time.Duration
	minInterval time.Duration
}

func newServeCommand(flags *rootFlags) *cobra.Command {
	sf := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, running passes on access and on an optional ticker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.HTTPAddr = sf.addr
			}
			if cmd.Flags().Changed("interval") {
				cfg.Interval = sf.interval
			}
			if cmd.Flags().Changed("min-interval") {
				cfg.MinInterval = sf.minInterval
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ln, err := net.Listen("tcp", cfg.HTTPAddr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", cfg.HTTPAddr, err)
			}
			return serve(cmd.Context(), a, ln)
		},
	}
	cmd.Flags().StringVar(&sf.addr, "addr", config.DefaultHTTPAddr, "listen address; overrides MICROERP_HTTP_ADDR")
	cmd.Flags().DurationVar(&sf.interval, "interval", 0, "run a pass on this interval; 0 disables the ticker")
	cmd.Flags().DurationVar(&sf.minInterval, "min-interval", config.DefaultMinInterval, "minimum gap between passes triggered by API reads")
	return cmd
}

func newServeHandler(a *app) http.Handler {
	api := httpapi.NewHandler(a.store)
	api.Logger = a.logger.With("component", "httpapi")
	api.OnAccess = automation.NewThrottle(a.engine, a.cfg.MinInterval, nil)
	api.Runner = a.engine
	if a.archive != nil {
		api.Passes = a.archive
	}

	mux := http.NewServeMux()
	mux.Handle("/", api)
	if a.metricsHandler != nil {
		mux.Handle(a.metricsPath, a.metricsHandler)
	}
	return httpapi.WithCORS(mux, a.cfg.CORSOrigins)
}

func serve(ctx context.Context, a *app, ln net.Listener) error {
	srv := &http.Server{
		Handler:           newServeHandler(a),
		ReadHeaderTimeout: 10 * time.Second,
	}
	schedCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	scheduler := automation.NewScheduler(a.engine, a.cfg.Interval, a.logger.With("component", "scheduler"))
	scheduler.Start(schedCtx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	a.logger.Info("http server listening", "addr", ln.Addr().String(), "interval", a.cfg.Interval, "min_interval", a.cfg.MinInterval)

	var err error
	select {
	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		} else {
			err = fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownGrace)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			err = fmt.Errorf("shutdown http server: %w", serr)
		}
	}
	stopScheduler()
	<-scheduler.Done()
	a.logger.Info("http server stopped")
	return err
}

func newMigrateCommand(flags *rootFlags) *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the bundled schema to the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if printOnly {
				switch cfg.Storage {
				case config.StorageSQLite:
					_, err = fmt.Fprint(out, sqlbundle.SQLite())
				case config.StoragePostgres:
					_, err = fmt.Fprint(out, sqlbundle.Postgres())
				default:
					err = fmt.Errorf("no schema for %s storage", cfg.Storage)
				}
				return err
			}
			if cfg.Storage == config.StorageMemory {
				_, err = fmt.Fprintln(out, "memory storage needs no migration")
				return err
			}
			store, err := persistence.Open(cmd.Context(), cfg.StorageSettings())
			if err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
			if err := store.Close(); err != nil {
				return fmt.Errorf("close store: %w", err)
			}
			_, err = fmt.Fprintf(out, "schema applied to %s store\n", cfg.Storage)
			return err
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "print the DDL for the configured driver instead of applying it")
	return cmd
}
