// LedgerLens - Fraud analytics over a transaction ledger.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/ledgerlens/internal/api"
	"github.com/opensource-finance/ledgerlens/internal/bus"
	"github.com/opensource-finance/ledgerlens/internal/cache"
	"github.com/opensource-finance/ledgerlens/internal/domain"
	"github.com/opensource-finance/ledgerlens/internal/ledger"
	"github.com/opensource-finance/ledgerlens/internal/metrics"
	"github.com/opensource-finance/ledgerlens/internal/repository"
	"github.com/opensource-finance/ledgerlens/internal/rules"
	"github.com/opensource-finance/ledgerlens/internal/stats"
	"github.com/opensource-finance/ledgerlens/internal/telemetry"
	"github.com/opensource-finance/ledgerlens/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	importMode := flag.Bool("import", false, "Import the configured ledger file into the SQL repository and exit")
	flag.Parse()

	cfg, err := domain.FromEnv(os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(os.Stdout, cfg.Logging))

	slog.Info("starting ledgerlens",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"ledger_source", cfg.Ledger.Source,
		"schema", cfg.Ledger.Schema,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *importMode {
		if err := runImport(ctx, cfg); err != nil {
			slog.Error("import failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Tracing, Version)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Metric observers stay nil interfaces when metrics are off; loads are always logged.
	var (
		collector *metrics.Collector
		loadObs   ledger.LoadObserver
		cacheObs  stats.CacheObserver
		verdicts  api.VerdictObserver
		requests  api.RequestObserver
		metricsH  http.Handler
	)
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
		loadObs, cacheObs, verdicts, requests = collector, collector, collector, collector
		metricsH = collector.Handler()
	}
	loadObs = loadLogger{next: loadObs}

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// The repository backs the sql ledger source and the metadata timestamp.
	var store domain.LedgerStore
	if cfg.Ledger.Source == "sql" {
		repo, err := repository.New(cfg.Repository)
		if err != nil {
			slog.Error("failed to initialize repository", "error", err)
			os.Exit(1)
		}
		defer repo.Close()
		store = repo
		slog.Info("repository initialized", "driver", cfg.Repository.Driver)
	}

	data, sources, err := ledger.NewFromConfig(ctx, cfg.Ledger, store, loadObs)
	if err != nil {
		slog.Error("failed to initialize ledger", "error", err)
		os.Exit(1)
	}
	defer sources.Close()

	if cfg.Ledger.WarmOnStart {
		if _, err := data.Snapshot(ctx); err != nil {
			slog.Warn("ledger not loaded; data routes return 503 until it loads", "error", err)
		}
	}

	scorer, err := rules.NewScorer()
	if err != nil {
		slog.Error("failed to initialize fraud scorer", "error", err)
		os.Exit(1)
	}
	slog.Info("fraud scorer initialized", "rules_count", len(scorer.Rules()))

	// Every replica listens for invalidations, including the one that published.
	invalidator := worker.NewWorker(busImpl, data, cacheImpl)
	if err := invalidator.Start(); err != nil {
		slog.Error("failed to start invalidation worker", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(api.Dependencies{
		Data:     data,
		Scorer:   scorer,
		Cache:    cacheImpl,
		Bus:      busImpl,
		Store:    store,
		Verdicts: verdicts,
		Version:  Version,
	}, cfg.Cache.ResultTTL, cacheObs)

	srv := api.NewServer(cfg.Server, handler, api.Options{
		Metrics:     metricsH,
		MetricsPath: cfg.Metrics.Path,
		Requests:    requests,
	})

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("ledgerlens is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"dataset_loaded", data.Loaded(),
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	if err := invalidator.Stop(); err != nil {
		slog.Error("failed to stop invalidation worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("failed to flush traces", "error", err)
	}

	slog.Info("ledgerlens shutdown complete")
}

func newLogger(w io.Writer, cfg domain.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// loadLogger writes one line per ledger load and forwards to next when set.
type loadLogger struct {
	next ledger.LoadObserver
}

func (l loadLogger) ObserveLoad(d time.Duration, rows int, err error) {
	if err != nil {
		slog.Warn("ledger load failed", "error", err, "duration_ms", d.Milliseconds())
	} else {
		slog.Info("ledger loaded", "rows", rows, "duration_ms", d.Milliseconds())
	}
	if l.next != nil {
		l.next.ObserveLoad(d, rows, err)
	}
}

// runImport copies the configured ledger file and labels into the repository,
// then tells running replicas to reload.
func runImport(ctx context.Context, cfg *domain.Config) error {
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()

	fileCfg := cfg.Ledger
	if fileCfg.Source == "sql" {
		fileCfg.Source = "file"
	}
	srcs, err := ledger.Resolve(ctx, fileCfg, nil)
	if err != nil {
		return err
	}
	defer srcs.Close()

	header, rows, err := srcs.Ledger.ReadTable(ctx)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", srcs.Ledger.Describe(), err)
	}

	var labels map[int64]bool
	if srcs.Labels != nil {
		if labels, err = srcs.Labels.ReadLabels(ctx); err != nil {
			return fmt.Errorf("failed to read labels: %w", err)
		}
	}

	if err := repo.Import(ctx, header, rows, labels); err != nil {
		return err
	}
	slog.Info("ledger imported",
		"source", srcs.Ledger.Describe(),
		"driver", cfg.Repository.Driver,
		"rows", len(rows),
		"labels", len(labels),
	)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()

	return worker.PublishInvalidate(ctx, busImpl, domain.InvalidateEvent{
		Reason:      "import",
		RequestedBy: "ledgerlens -import",
		Warm:        true,
	})
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  +-------------------------------------------+")
	fmt.Println("  |                LEDGERLENS                 |")
	fmt.Println("  |     Fraud analytics for your ledger       |")
	fmt.Println("  +-------------------------------------------+")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Ledger:   %s (%s)\n", cfg.Ledger.Source, cfg.Ledger.Schema)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /health                          - Health check")
	fmt.Println("    GET  /api/metadata                    - Ledger metadata")
	fmt.Println("    GET  /api/transactions                - Filtered, paginated rows")
	fmt.Println("    GET  /api/transactions/{id}           - Get transaction by ID")
	fmt.Println("    POST /api/transactions/search         - Search transactions")
	fmt.Println("    GET  /api/stats/overview              - Ledger overview")
	fmt.Println("    GET  /api/stats/amount-distribution   - Amount histogram")
	fmt.Println("    GET  /api/fraud/summary               - Scorer precision and recall")
	fmt.Println("    POST /api/fraud/predict               - Score a transaction")
	fmt.Println("    GET  /api/customers/top               - Top customers")
	fmt.Println("    POST /api/admin/invalidate            - Reload the ledger")
	if cfg.Metrics.Enabled {
		fmt.Printf("    GET  %-34s - Prometheus metrics\n", cfg.Metrics.Path)
	}
	fmt.Println()
}
