package tools

import (
	"fmt"
	"log"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sphinxdocs/search-mcp/internal/catalog"
	"github.com/sphinxdocs/search-mcp/internal/config"
)

// catalogHolder is the state shared by every tool handler.
type catalogHolder struct {
	catalog *catalog.Catalog
	search  config.SearchConfig
}

var (
	state *catalogHolder
)

// Register wires every search tool to c and adds them to server. It returns
// the number of tools registered.
func Register(server *mcp.Server, c *catalog.Catalog, search config.SearchConfig) (int, error) {
	if c == nil {
		return 0, fmt.Errorf("catalog is required")
	}
	state = &catalogHolder{catalog: c, search: search}

	RegisterSearchTools(server)
	RegisterIndexTools(server)

	sites := c.Sites()
	names := make([]string, 0, len(sites))
	for _, s := range sites {
		names = append(names, s.Name())
	}
	log.Printf("✓ Tools registered for %d site(s): %v", len(sites), names)
	return 6, nil
}

// limit clamps a requested result count to the configured bounds.
func limit(requested int) int {
	if state == nil {
		return requested
	}
	if requested <= 0 {
		return state.search.DefaultLimit
	}
	if state.search.MaxLimit > 0 && requested > state.search.MaxLimit {
		return state.search.MaxLimit
	}
	return requested
}

func currentCatalog() (*catalog.Catalog, error) {
	if state == nil || state.catalog == nil {
		return nil, fmt.Errorf("search tools are not initialized")
	}
	return state.catalog, nil
}
