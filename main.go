package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sphinxdocs/search-mcp/internal/catalog"
	"github.com/sphinxdocs/search-mcp/internal/config"
	"github.com/sphinxdocs/search-mcp/internal/logging"
	"github.com/sphinxdocs/search-mcp/internal/store"
	"github.com/sphinxdocs/search-mcp/tools"
)

const (
	version     = "0.3.0"
	serverName  = "sphinx-search-mcp"
	description = "MCP server for searching Sphinx documentation sites"
)

func main() {
	// Handle version flag
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("%s version %s\n", serverName, version)
		os.Exit(0)
	}

	configPath := flag.String("config", os.Getenv("SXS_CONFIG"), "Path to YAML config file")
	flag.Parse()

	// Set up logging to stderr (MCP uses stdout for protocol)
	log.SetOutput(os.Stderr)
	log.Printf("%s v%s starting...", serverName, version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Printf("✓ Configuration loaded: %d site(s), data directory %s", len(cfg.Sites), cfg.DataDir)

	logger := logging.BuildLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format).With("component", "catalog")
	opts := catalog.Options{
		DataDir:  cfg.DataDir,
		Fulltext: cfg.Search.Fulltext,
		Logger:   logger,
	}
	if cfg.Search.SQLitePath != "" {
		indexer, err := store.NewSQLiteIndexer(cfg.Search.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to open SQLite database: %v", err)
		}
		defer indexer.Close()
		opts.Store = indexer
		log.Printf("✓ SQLite mirror: %s", cfg.Search.SQLitePath)
	}
	c := catalog.New(cfg, opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Sites that fail here are retried on first use
	if err := c.LoadAll(ctx); err != nil {
		log.Printf("Warning: some sites failed to load: %v", err)
		log.Printf("Failed sites will be loaded again on first search")
	}

	server := createMCPServer()
	count, err := tools.Register(server, c, cfg.Search)
	if err != nil {
		log.Fatalf("Failed to register tools: %v", err)
	}
	log.Printf("✓ All tools registered: %d tools", count)

	if cfg.Search.ReloadInterval > 0 {
		go c.Run(ctx, cfg.Search.ReloadInterval)
		log.Printf("✓ Background reload every %s", cfg.Search.ReloadInterval)
	}

	log.Printf("✓ Server ready and waiting for connections")

	// Set up cleanup on shutdown
	defer func() {
		if err := c.Close(); err != nil {
			log.Printf("Error closing search indexes: %v", err)
		}
	}()

	// Run server with stdio transport
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		log.Printf("Server error: %v", err)
	}
}

// createMCPServer initializes the MCP server
func createMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    serverName,
			Version: version,
		},
		&mcp.ServerOptions{
			Instructions: description + ". Use search_docs for Sphinx-ranked results, lookup_object for API names and fulltext_search for free-text questions.",
		},
	)

	log.Printf("Server initialized: %s v%s", serverName, version)
	return server
}
