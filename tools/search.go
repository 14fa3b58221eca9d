package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sphinxdocs/search-mcp/internal/indexing"
	"github.com/sphinxdocs/search-mcp/internal/query"
)

// SearchDocsInput defines input for search_docs tool
type SearchDocsInput struct {
	Query     string   `json:"query" jsonschema:"Search query: words to match, and -word to exclude pages containing word"`
	Site      string   `json:"site,omitempty" jsonschema:"Configured site to search (optional, defaults to the first site)"`
	Limit     int      `json:"limit,omitempty" jsonschema:"Maximum number of results (optional, defaults to the configured limit)"`
	Kinds     []string `json:"kinds,omitempty" jsonschema:"Restrict results to these kinds: title, index, object, text (optional)"`
	Summaries bool     `json:"summaries,omitempty" jsonschema:"Attach a text snippet from the page source to each result (optional)"`
}

// SearchDocsOutput defines output for search_docs tool
type SearchDocsOutput struct {
	Site        string         `json:"site"`
	Query       string         `json:"query"`
	Fingerprint string         `json:"fingerprint"`
	TotalHits   int            `json:"total_hits"`
	Results     []query.Result `json:"results"`
}

// FulltextSearchInput defines input for fulltext_search tool
type FulltextSearchInput struct {
	Query string   `json:"query" jsonschema:"Free-text query matched against titles, objects and page text"`
	Site  string   `json:"site,omitempty" jsonschema:"Configured site to search (optional, defaults to the first site)"`
	Limit int      `json:"limit,omitempty" jsonschema:"Maximum number of results (optional, defaults to the configured limit)"`
	Kinds []string `json:"kinds,omitempty" jsonschema:"Restrict results to these kinds: title, index, object, text (optional)"`
}

// FulltextResult is one full-text hit.
type FulltextResult struct {
	Entry indexing.Entry `json:"entry"`
	Score float64        `json:"score"`
}

// FulltextSearchOutput defines output for fulltext_search tool
type FulltextSearchOutput struct {
	Site      string           `json:"site"`
	Query     string           `json:"query"`
	TotalHits int              `json:"total_hits"`
	Results   []FulltextResult `json:"results"`
}

// LookupObjectInput defines input for lookup_object tool
type LookupObjectInput struct {
	Name string `json:"name" jsonschema:"Object name, fully qualified (pkg.mod.Class.method) or its last component"`
	Site string `json:"site,omitempty" jsonschema:"Configured site to search (optional, defaults to the first site)"`
}

// LookupObjectOutput defines output for lookup_object tool
type LookupObjectOutput struct {
	Site    string              `json:"site"`
	Name    string              `json:"name"`
	Found   bool                `json:"found"`
	Matches []query.ObjectMatch `json:"matches"`
}

// SearchDocs ranks a query against a site's searchindex.js the way the
// Sphinx HTML search page does.
func SearchDocs(ctx context.Context, req *mcp.CallToolRequest, input SearchDocsInput) (*mcp.CallToolResult, SearchDocsOutput, error) {
	c, err := currentCatalog()
	if err != nil {
		return nil, SearchDocsOutput{}, err
	}
	kinds, err := query.ParseKinds(input.Kinds)
	if err != nil {
		return nil, SearchDocsOutput{}, err
	}

	snap, release, err := c.Acquire(ctx, input.Site)
	if err != nil {
		return nil, SearchDocsOutput{}, err
	}
	defer release()

	results, err := snap.Searcher.Search(ctx, input.Query, query.Options{
		Limit:     limit(input.Limit),
		Kinds:     kinds,
		Summaries: input.Summaries || state.search.Summaries,
	})
	if err != nil {
		return nil, SearchDocsOutput{}, fmt.Errorf("search failed: %w", err)
	}
	if results == nil {
		results = []query.Result{}
	}

	output := SearchDocsOutput{
		Site:        snap.Site.Name,
		Query:       input.Query,
		Fingerprint: snap.Fingerprint,
		TotalHits:   len(results),
		Results:     results,
	}
	return nil, output, nil
}

// FulltextSearch runs a fuzzy bleve query over a site's titles, index
// entries, objects and page text.
func FulltextSearch(ctx context.Context, req *mcp.CallToolRequest, input FulltextSearchInput) (*mcp.CallToolResult, FulltextSearchOutput, error) {
	c, err := currentCatalog()
	if err != nil {
		return nil, FulltextSearchOutput{}, err
	}
	if strings.TrimSpace(input.Query) == "" {
		return nil, FulltextSearchOutput{}, fmt.Errorf("query is required")
	}
	kinds, err := query.ParseKinds(input.Kinds)
	if err != nil {
		return nil, FulltextSearchOutput{}, err
	}

	snap, release, err := c.Acquire(ctx, input.Site)
	if err != nil {
		return nil, FulltextSearchOutput{}, err
	}
	defer release()

	if snap.Fulltext == nil {
		return nil, FulltextSearchOutput{}, fmt.Errorf("full-text search is disabled for site %q", snap.Site.Name)
	}

	output, err := searchFulltext(snap.Fulltext, input.Query, limit(input.Limit), kinds)
	if err != nil {
		return nil, FulltextSearchOutput{}, err
	}
	output.Site = snap.Site.Name
	return nil, output, nil
}

func searchFulltext(index indexing.Index, text string, size int, kinds []query.Kind) (FulltextSearchOutput, error) {
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, string(k))
	}

	hits, total, err := indexing.Search(index, text, size, names)
	if err != nil {
		return FulltextSearchOutput{}, err
	}

	results := make([]FulltextResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, FulltextResult{Entry: hit.Entry, Score: hit.Score})
	}
	return FulltextSearchOutput{Query: text, TotalHits: int(total), Results: results}, nil
}

// LookupObject resolves a documented object by name.
func LookupObject(ctx context.Context, req *mcp.CallToolRequest, input LookupObjectInput) (*mcp.CallToolResult, LookupObjectOutput, error) {
	c, err := currentCatalog()
	if err != nil {
		return nil, LookupObjectOutput{}, err
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, LookupObjectOutput{}, fmt.Errorf("name is required")
	}

	snap, release, err := c.Acquire(ctx, input.Site)
	if err != nil {
		return nil, LookupObjectOutput{}, err
	}
	defer release()

	matches := snap.Searcher.LookupObject(input.Name)
	if matches == nil {
		matches = []query.ObjectMatch{}
	}
	return nil, LookupObjectOutput{
		Site:    snap.Site.Name,
		Name:    input.Name,
		Found:   len(matches) > 0,
		Matches: matches,
	}, nil
}

// RegisterSearchTools registers search_docs, fulltext_search and
// lookup_object.
func RegisterSearchTools(server *mcp.Server) {
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "search_docs",
			Description: "Search a Sphinx documentation site with the same ranking as its built-in search page. Matches page titles, section titles, index entries, documented objects and page text. Prefix a word with - to exclude pages containing it.",
		},
		SearchDocs,
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "fulltext_search",
			Description: "Fuzzy full-text search over a Sphinx site's titles, objects, index entries and page source text. Use when search_docs finds nothing for natural-language questions.",
		},
		FulltextSearch,
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "lookup_object",
			Description: "Resolve a documented object (module, class, function, method...) by its dotted name and return its page and anchor URL.",
		},
		LookupObject,
	)
}
