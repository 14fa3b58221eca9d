package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sphinxdocs/search-mcp/internal/analytics"
	"github.com/sphinxdocs/search-mcp/internal/cache"
	"github.com/sphinxdocs/search-mcp/internal/catalog"
	"github.com/sphinxdocs/search-mcp/internal/config"
	"github.com/sphinxdocs/search-mcp/internal/logging"
	"github.com/sphinxdocs/search-mcp/internal/metrics"
	"github.com/sphinxdocs/search-mcp/internal/store"
	"github.com/sphinxdocs/search-mcp/internal/web"
)

func main() {
	configPath := flag.String("config", os.Getenv("SXS_CONFIG"), "Path to YAML config file")
	addr := flag.String("addr", "", "HTTP bind address (overrides server.addr)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger := logging.BuildLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)
	slog.Info("starting search API", "addr", cfg.Server.Addr, "sites", len(cfg.Sites))

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
	}

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisStore, err := cache.NewRedisStore(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			queryCache = cache.New(redisStore, cfg.Redis.CacheTTL, logger)
			defer queryCache.Close()
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	events := analytics.New(cfg.Kafka, logger)
	defer events.Close()
	if cfg.Kafka.Enabled {
		slog.Info("search analytics enabled", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := catalog.Options{
		DataDir:  cfg.DataDir,
		Fulltext: cfg.Search.Fulltext,
		Metrics:  m,
		Logger:   logger.With("component", "catalog"),
		OnSwap: func(site string) {
			if err := queryCache.InvalidateSite(ctx, site); err != nil {
				slog.Warn("cache invalidation failed", "site", site, "error", err)
			}
		},
	}

	var sqliteSearcher *store.SQLiteSearcher
	if cfg.Search.SQLitePath != "" {
		indexer, err := store.NewSQLiteIndexer(cfg.Search.SQLitePath)
		if err != nil {
			slog.Error("failed to open sqlite database", "path", cfg.Search.SQLitePath, "error", err)
			os.Exit(1)
		}
		defer indexer.Close()
		opts.Store = indexer

		sqliteSearcher, err = store.NewSQLiteSearcher(cfg.Search.SQLitePath)
		if err != nil {
			slog.Error("failed to open sqlite searcher", "path", cfg.Search.SQLitePath, "error", err)
			os.Exit(1)
		}
		defer sqliteSearcher.Close()
		slog.Info("sqlite full-text engine enabled", "path", cfg.Search.SQLitePath)
	}

	c := catalog.New(cfg, opts)
	defer c.Close()

	if err := c.LoadAll(ctx); err != nil {
		slog.Warn("some sites failed to load; they are retried on first request", "error", err)
	}
	go c.Run(ctx, cfg.Search.ReloadInterval)

	srv := web.NewServer(c, cfg.Search, web.Options{
		Cache:   queryCache,
		Metrics: m,
		Events:  events,
		SQLite:  sqliteSearcher,
		Logger:  logger,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search API stopped")
}
