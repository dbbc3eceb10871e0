package main

import (
	"context"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"microerp/internal/adapters/archive"
	"microerp/internal/automation"
	"microerp/internal/blob"
	"microerp/internal/config"
	"microerp/internal/infra/persistence"
	"microerp/internal/observability"
	"microerp/pkg/domain"
)

// app holds the wired dependencies shared by the subcommands.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	store   domain.RecordStore
	archive *archive.Archive
	engine  *automation.Engine

	metricsPath    string
	metricsHandler http.Handler
}

func loadConfig(flags *rootFlags) (config.Config, error) {
	if err := config.LoadEnvFile(flags.envFile); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if flags.storage != "" {
		cfg.Storage = config.StorageDriver(flags.storage)
	}
	if flags.sqlitePath != "" {
		cfg.SQLitePath = flags.sqlitePath
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.LogLevel}))
}

func buildApp(ctx context.Context, cfg config.Config, flags *rootFlags, stderr io.Writer) (*app, error) {
	a := &app{cfg: cfg, logger: newLogger(cfg, stderr)}

	store, err := persistence.Open(ctx, cfg.StorageSettings())
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage, err)
	}
	a.store = store

	opts := []automation.Option{
		automation.WithLocation(cfg.Location),
		automation.WithLogger(a.logger.With("component", "automation")),
	}

	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open %s blob store: %w", cfg.Blob.Driver, err)
	}
	if blobs != nil {
		a.archive = archive.New(blobs, cfg.ArchivePrefix)
		opts = append(opts, automation.WithArchive(a.archive))
	}

	switch cfg.Metrics {
	case "prometheus":
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		recorder, err := observability.NewPrometheusRecorder(reg)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		opts = append(opts, automation.WithMetricsRecorder(recorder))
		a.metricsPath = "/metrics"
		a.metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	case "expvar":
		opts = append(opts, automation.WithMetricsRecorder(observability.NewExpvarRecorder("")))
		a.metricsPath = "/debug/vars"
		a.metricsHandler = expvar.Handler()
	}

	if flags.trace {
		opts = append(opts, automation.WithTracer(observability.NewJSONTracer(stderr)))
	}

	a.engine = automation.NewEngine(store, opts...)
	a.logger.Debug("microerp wired",
		"storage", cfg.Storage,
		"blob", cfg.Blob.Driver,
		"metrics", cfg.Metrics,
		"timezone", cfg.Location.String())
	return a, nil
}

func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
