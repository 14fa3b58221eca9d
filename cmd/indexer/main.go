package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/sphinxdocs/search-mcp/internal/indexing"
	"github.com/sphinxdocs/search-mcp/internal/query"
	"github.com/sphinxdocs/search-mcp/internal/searchindex"
	"github.com/sphinxdocs/search-mcp/internal/sources"
	"github.com/sphinxdocs/search-mcp/internal/store"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] <searchindex.js|site-dir> <index-dir> [sqlite-db]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nExample:\n")
	fmt.Fprintf(os.Stderr, "  %s -site python -url-root https://docs.example.org/ build/html search/index search/entries.db\n\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	site := flag.String("site", "default", "Site name stored with every entry")
	urlRoot := flag.String("url-root", "", "Prefix for entry URLs")
	builder := flag.String("builder", "html", "Sphinx builder that produced the site (html or dirhtml)")
	withText := flag.Bool("text", true, "Chunk the page sources under _sources/ into text entries")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 2 || flag.NArg() > 3 {
		usage()
		os.Exit(1)
	}

	input := flag.Arg(0)
	indexDir := flag.Arg(1)
	sqlitePath := flag.Arg(2)
	ctx := context.Background()

	log.Printf("Sphinx Search Indexer v%d", indexing.IndexSchemaVersion)
	log.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	// Step 1: Parse searchindex.js
	siteDir := input
	if info, err := os.Stat(input); err == nil && !info.IsDir() {
		siteDir = filepath.Dir(input)
	}
	src := sources.DirSource{Dir: siteDir}

	log.Printf("Parsing search index: %s", input)
	ix, err := searchindex.Load(input)
	if err != nil {
		log.Fatalf("Failed to parse search index: %v", err)
	}
	if report := searchindex.Validate(ix); !report.Valid {
		for _, issue := range report.Errors {
			log.Printf("  %s %s: %s", issue.Code, issue.Path, issue.Message)
		}
		log.Fatalf("%s", report.Summary)
	}
	fingerprint, err := searchindex.Fingerprint(ix)
	if err != nil {
		log.Fatalf("Failed to fingerprint search index: %v", err)
	}
	stats := searchindex.ComputeStats(ix)
	log.Printf("✓ Parsed %d documents, %d titles, %d index entries, %d objects", stats.Documents, stats.Titles, stats.IndexEntries, stats.Objects)

	// Step 2: Read page sources
	texts := map[int]string{}
	if *withText {
		missing := 0
		for _, doc := range ix.Documents() {
			text, err := sources.SourceText(ctx, src, doc)
			if errors.Is(err, sources.ErrNotFound) {
				missing++
				continue
			}
			if err != nil {
				log.Fatalf("Failed to read page source: %v", err)
			}
			texts[doc.ID] = text
		}
		log.Printf("✓ Read %d page sources (%d without _sources/ copy)", len(texts), missing)
	}

	// Step 3: Build entries
	suffix := ""
	if *builder == "html" {
		suffix = ".html"
	}
	links := query.LinkBuilder{URLRoot: *urlRoot, FileSuffix: suffix, Builder: *builder}
	entries := indexing.BuildEntries(ix, *site, links, texts)

	kinds := map[string]int{}
	totalTokens := 0
	oversized := 0
	for _, e := range entries {
		kinds[e.Kind]++
		totalTokens += e.TokenCount
		if e.TokenCount > indexing.MaxChunkTokens {
			oversized++
		}
	}
	avgTokens := 0
	if len(entries) > 0 {
		avgTokens = totalTokens / len(entries)
	}
	log.Printf("✓ Built %d entries (avg: %d tokens, %d oversized)", len(entries), avgTokens, oversized)

	// Step 4: Write bleve index
	log.Printf("Creating search index: %s", indexDir)
	if err := indexing.WriteIndex(indexDir, entries, fingerprint); err != nil {
		log.Fatalf("Failed to write index: %v", err)
	}
	log.Printf("✓ Indexed %d entries successfully", len(entries))
	log.Printf("✓ Index schema version: v%d", indexing.IndexSchemaVersion)

	// Step 5: Optional SQLite FTS5 export
	if sqlitePath != "" {
		log.Printf("Writing SQLite database: %s", sqlitePath)
		if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
			log.Fatalf("Failed to create database directory: %v", err)
		}
		indexer, err := store.NewSQLiteIndexer(sqlitePath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		if err := indexer.ReplaceSite(ctx, *site, entries); err != nil {
			indexer.Close()
			log.Fatalf("Failed to write entries: %v", err)
		}
		if err := indexer.Close(); err != nil {
			log.Fatalf("Failed to close database: %v", err)
		}
		log.Printf("✓ Stored %d entries for site %q", len(entries), *site)
	}

	log.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Printf("✓ Indexing complete!")
	log.Printf("")
	log.Printf("Index details:")
	log.Printf("  Location:     %s", indexDir)
	log.Printf("  Fingerprint:  %s", fingerprint)
	log.Printf("  Total:        %d entries", len(entries))
	names := make([]string, 0, len(kinds))
	for k := range kinds {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		log.Printf("    %-10s  %d", k, kinds[k])
	}
	log.Printf("  Avg size:     %d tokens (~%d chars)", avgTokens, avgTokens*indexing.CharsPerToken)
}
