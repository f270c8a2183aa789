package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dshills/tome/internal/api"
	"github.com/dshills/tome/internal/chunker"
	"github.com/dshills/tome/internal/config"
	"github.com/dshills/tome/internal/fetcher"
	"github.com/dshills/tome/internal/indexer"
	"github.com/dshills/tome/internal/mcp"
	"github.com/dshills/tome/internal/query"
	"github.com/dshills/tome/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	_ = godotenv.Load()

	showVersion := flag.Bool("version", false, "print version information and exit")
	configPath := flag.String("config", defaultConfigPath(), "path to the YAML config file")
	transport := flag.String("transport", "stdio", "transport to serve: stdio (MCP) or http (REST)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tome\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// stdout is reserved for the MCP protocol
	log := newLogger(cfg.Log)
	slog.SetDefault(log)

	if err := run(cfg, *transport, log); err != nil {
		log.Error("tome stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, transport string, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	estimator, err := chunker.EstimatorByName(cfg.Chunker.Estimator)
	if err != nil {
		return err
	}

	engine := query.New(store,
		query.WithCacheSize(cfg.Search.CacheSize),
		query.WithCacheTTL(cfg.Search.CacheTTL),
		query.WithLimits(cfg.Search.DefaultLimit, cfg.Search.MaxLimit),
		query.WithLogger(log),
	)

	retry := fetcher.DefaultRetryConfig()
	retry.MaxRetries = cfg.Crawl.MaxRetries
	f := fetcher.New(fetcher.Config{
		Timeout:   cfg.Crawl.Timeout,
		UserAgent: cfg.Crawl.UserAgent,
		Retry:     retry,
	}, log)

	idx := indexer.New(store,
		indexer.WithChunker(chunker.New(
			chunker.WithBudget(cfg.Chunker.Budget),
			chunker.WithEstimator(estimator),
		)),
		indexer.WithFetcher(f),
		indexer.WithInvalidator(engine),
		indexer.WithWorkers(cfg.Crawl.Concurrency),
		indexer.WithLogger(log),
	)

	log.Info("tome starting",
		"version", version,
		"transport", transport,
		"build_mode", storage.BuildMode,
		"driver", storage.DriverName,
		"database", cfg.Database.Path,
		"budget", cfg.Chunker.Budget)

	switch transport {
	case "stdio":
		return serveStdio(ctx, mcp.NewServer(store, idx, engine,
			mcp.WithLogger(log),
			mcp.WithDefaultDepth(cfg.Crawl.MaxDepth),
		))
	case "http":
		return serveHTTP(ctx, cfg.Server.HTTPAddr, api.NewServer(store, engine, idx, log, cfg.Crawl.MaxDepth), log)
	default:
		return fmt.Errorf("unknown transport %q (want stdio or http)", transport)
	}
}

func serveStdio(ctx context.Context, server *mcp.Server) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Serve(ctx)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errChan:
		return err
	}
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler, log *slog.Logger) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // Domain ingestion runs inside the request
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func defaultConfigPath() string {
	if p := os.Getenv("TOME_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "tome.yaml"
	}
	return filepath.Join(home, ".tome", "config.yaml")
}
