package tools

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sphinxdocs/search-mcp/internal/catalog"
	"github.com/sphinxdocs/search-mcp/internal/searchindex"
)

// ValidateSearchIndexInput defines input for validate_search_index tool
type ValidateSearchIndexInput struct {
	Index string `json:"index,omitempty" jsonschema:"searchindex.js content (JS wrapper or bare JSON) or a file path (optional)"`
	Site  string `json:"site,omitempty" jsonschema:"Validate the searchindex.js currently published by this site when index is empty (optional)"`
}

// ValidateSearchIndexOutput defines output for validate_search_index tool
type ValidateSearchIndexOutput struct {
	searchindex.Report
	Source string             `json:"source"`
	Stats  *searchindex.Stats `json:"stats,omitempty"`
}

// IndexStatsInput defines input for index_stats tool
type IndexStatsInput struct {
	Site string `json:"site,omitempty" jsonschema:"Only report this site (optional, defaults to all sites)"`
}

// IndexStatsOutput defines output for index_stats tool
type IndexStatsOutput struct {
	Sites []catalog.SiteStatus `json:"sites"`
}

// ReloadSearchIndexInput defines input for reload_search_index tool
type ReloadSearchIndexInput struct {
	Site  string `json:"site,omitempty" jsonschema:"Site to reload (optional, defaults to all sites)"`
	Force bool   `json:"force,omitempty" jsonschema:"Rebuild even when searchindex.js is unchanged (optional, defaults to false)"`
}

// ReloadSearchIndexOutput defines output for reload_search_index tool
type ReloadSearchIndexOutput struct {
	Results []catalog.ReloadResult `json:"results"`
	Errors  []string               `json:"errors,omitempty"`
	Message string                 `json:"message"`
}

// isIndexPath determines if a string is a file path rather than index content
// Returns true if it looks like a path, false if it looks like JSON or JS
func isIndexPath(s string) bool {
	if s == "" {
		return false
	}

	// Index content starts with { or the Search.setIndex( wrapper
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "Search.setIndex(") {
		return false
	}
	if strings.Contains(s, "\n") {
		return false
	}

	// Unix absolute or relative path
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../") {
		return true
	}

	// Windows absolute path (C:\, D:\, etc.)
	if len(s) >= 3 && s[1] == ':' && (s[2] == '\\' || s[2] == '/') {
		return true
	}

	return strings.HasSuffix(s, ".js") || strings.HasSuffix(s, ".json")
}

// ValidateSearchIndex checks a searchindex.js payload against the index
// schema and its internal cross-references.
func ValidateSearchIndex(ctx context.Context, req *mcp.CallToolRequest, input ValidateSearchIndexInput) (*mcp.CallToolResult, ValidateSearchIndexOutput, error) {
	var (
		data   []byte
		source string
	)

	switch {
	case isIndexPath(input.Index):
		content, err := os.ReadFile(input.Index)
		if err != nil {
			return nil, ValidateSearchIndexOutput{}, fmt.Errorf("failed to read index file %s: %w", input.Index, err)
		}
		data, source = content, input.Index
	case strings.TrimSpace(input.Index) != "":
		data, source = []byte(input.Index), "inline"
	default:
		c, err := currentCatalog()
		if err != nil {
			return nil, ValidateSearchIndexOutput{}, err
		}
		site, err := c.Site(input.Site)
		if err != nil {
			return nil, ValidateSearchIndexOutput{}, err
		}
		content, err := site.Source().Fetch(ctx, searchindex.FileName)
		if err != nil {
			return nil, ValidateSearchIndexOutput{}, fmt.Errorf("failed to fetch %s for site %q: %w", searchindex.FileName, site.Name(), err)
		}
		data, source = content, site.Name()
	}

	report, ix := searchindex.ValidateAll(data)
	output := ValidateSearchIndexOutput{Report: report, Source: source}
	if ix != nil {
		stats := searchindex.ComputeStats(ix)
		output.Stats = &stats
	}
	return nil, output, nil
}

// IndexStats reports what every site has loaded.
func IndexStats(ctx context.Context, req *mcp.CallToolRequest, input IndexStatsInput) (*mcp.CallToolResult, IndexStatsOutput, error) {
	c, err := currentCatalog()
	if err != nil {
		return nil, IndexStatsOutput{}, err
	}

	all := c.Status()
	if input.Site == "" {
		return nil, IndexStatsOutput{Sites: all}, nil
	}
	for _, st := range all {
		if st.Name == input.Site {
			return nil, IndexStatsOutput{Sites: []catalog.SiteStatus{st}}, nil
		}
	}
	_, err = c.Site(input.Site)
	return nil, IndexStatsOutput{}, err
}

// ReloadSearchIndex re-reads searchindex.js for one or all sites. A site's
// snapshot is only replaced when its fingerprint changed, unless forced.
func ReloadSearchIndex(ctx context.Context, req *mcp.CallToolRequest, input ReloadSearchIndexInput) (*mcp.CallToolResult, ReloadSearchIndexOutput, error) {
	c, err := currentCatalog()
	if err != nil {
		return nil, ReloadSearchIndexOutput{}, err
	}

	var sites []*catalog.Site
	if input.Site != "" {
		site, err := c.Site(input.Site)
		if err != nil {
			return nil, ReloadSearchIndexOutput{}, err
		}
		sites = []*catalog.Site{site}
	} else {
		sites = c.Sites()
	}

	start := time.Now()
	output := ReloadSearchIndexOutput{Results: []catalog.ReloadResult{}}
	swapped := 0
	for _, site := range sites {
		res, err := site.Reload(ctx, input.Force)
		if err != nil {
			output.Errors = append(output.Errors, fmt.Sprintf("%s: %v", site.Name(), err))
			continue
		}
		if res.Swapped {
			swapped++
		}
		output.Results = append(output.Results, res)
	}

	output.Message = fmt.Sprintf("Reloaded %d site(s) in %s: %d updated, %d unchanged, %d failed",
		len(sites), time.Since(start).Round(time.Millisecond), swapped, len(output.Results)-swapped, len(output.Errors))
	return nil, output, nil
}

// RegisterIndexTools registers validate_search_index, index_stats and
// reload_search_index.
func RegisterIndexTools(server *mcp.Server) {
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "validate_search_index",
			Description: "Validate a Sphinx searchindex.js (inline content, a file path, or a configured site's published index) against the index schema and check that every document and object-type reference resolves.",
		},
		ValidateSearchIndex,
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "index_stats",
			Description: "Report every configured site's loaded search index: fingerprint, load time, document, object and full-text entry counts, and the last load error.",
		},
		IndexStats,
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "reload_search_index",
			Description: "Re-read searchindex.js for one or all sites and swap in the new index when it changed (force rebuilds regardless).",
		},
		ReloadSearchIndex,
	)
}
