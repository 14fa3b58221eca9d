// Package catalog keeps the loaded search index of every configured site.
//
// Each site publishes an immutable Snapshot through an atomic pointer:
// searches read it lock-free, reloads build a new snapshot in the
// background and swap it in only when the index fingerprint changed. The
// full-text index of a replaced snapshot is closed once the searches that
// still hold it have released it.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sphinxdocs/search-mcp/internal/config"
	"github.com/sphinxdocs/search-mcp/internal/indexing"
	"github.com/sphinxdocs/search-mcp/internal/metrics"
	"github.com/sphinxdocs/search-mcp/internal/sources"
)

var (
	// ErrUnknownSite is returned for a site name that is not configured.
	ErrUnknownSite = errors.New("unknown site")
	// ErrNotLoaded is returned when a site has no usable snapshot.
	ErrNotLoaded = errors.New("site not loaded")
)

// EntryStore receives the full-text entries of every (re)loaded site.
type EntryStore interface {
	ReplaceSite(ctx context.Context, site string, entries []indexing.Entry) error
}

// Options configures how sites are loaded.
type Options struct {
	// DataDir keeps on-disk full-text indexes; empty keeps them in memory.
	DataDir string
	// Fulltext builds a bleve index per site.
	Fulltext bool
	// Store, when set, is refreshed with each site's entries.
	Store EntryStore
	// Metrics records reloads; nil disables them.
	Metrics *metrics.Metrics
	// OnSwap is called with the site name after a new snapshot is published.
	OnSwap func(site string)
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Catalog is the set of configured sites.
type Catalog struct {
	sites map[string]*Site
	order []string
	opts  Options
}

// New creates a catalog for the configured sites. Nothing is loaded until
// LoadAll or the first Acquire.
func New(cfg *config.Config, opts Options) *Catalog {
	c := &Catalog{sites: make(map[string]*Site), opts: opts.withDefaults()}
	for _, sc := range cfg.Sites {
		c.Add(NewSite(sc, sources.Open(sc.Root), c.opts))
	}
	return c
}

// NewEmpty creates a catalog without sites.
func NewEmpty(opts Options) *Catalog {
	return &Catalog{sites: make(map[string]*Site), opts: opts.withDefaults()}
}

// Add registers site, replacing any site of the same name.
func (c *Catalog) Add(site *Site) {
	if _, ok := c.sites[site.Name()]; !ok {
		c.order = append(c.order, site.Name())
	}
	c.sites[site.Name()] = site
}

// Sites returns the sites in configuration order.
func (c *Catalog) Sites() []*Site {
	out := make([]*Site, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.sites[name])
	}
	return out
}

// Site returns the named site. An empty name selects the first configured
// site.
func (c *Catalog) Site(name string) (*Site, error) {
	if name == "" {
		if len(c.order) == 0 {
			return nil, fmt.Errorf("%w: no sites configured", ErrUnknownSite)
		}
		name = c.order[0]
	}
	site, ok := c.sites[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSite, name)
	}
	return site, nil
}

// Acquire returns the current snapshot of the named site; see Site.Acquire.
func (c *Catalog) Acquire(ctx context.Context, name string) (*Snapshot, func(), error) {
	site, err := c.Site(name)
	if err != nil {
		return nil, nil, err
	}
	return site.Acquire(ctx)
}

// LoadAll loads every site concurrently. A site that fails to load does not
// stop the others; the failures are returned joined.
func (c *Catalog) LoadAll(ctx context.Context) error {
	return c.reloadAll(ctx, false)
}

// ReloadAll reloads every site concurrently; see Site.Reload.
func (c *Catalog) ReloadAll(ctx context.Context, force bool) error {
	return c.reloadAll(ctx, force)
}

func (c *Catalog) reloadAll(ctx context.Context, force bool) error {
	sites := c.Sites()
	errs := make([]error, len(sites))

	var g errgroup.Group
	for i, site := range sites {
		g.Go(func() error {
			_, errs[i] = site.Reload(ctx, force)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Run reloads every site each interval until ctx is cancelled. A zero
// interval returns immediately.
func (c *Catalog) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ReloadAll(ctx, false); err != nil {
				c.opts.Logger.Warn("periodic reload had failures", "error", err)
			}
		}
	}
}

// SiteStatus summarises one site for status endpoints and tools.
type SiteStatus struct {
	Name        string    `json:"name"`
	Root        string    `json:"root"`
	URLRoot     string    `json:"url_root,omitempty"`
	Loaded      bool      `json:"loaded"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	LoadedAt    time.Time `json:"loaded_at,omitempty"`
	Documents   int       `json:"documents"`
	Objects     int       `json:"objects"`
	Entries     int       `json:"fulltext_entries"`
	Error       string    `json:"error,omitempty"`
}

// Status returns the status of every site in configuration order.
func (c *Catalog) Status() []SiteStatus {
	out := make([]SiteStatus, 0, len(c.order))
	for _, site := range c.Sites() {
		st := SiteStatus{Name: site.Name(), Root: site.Source().Root(), URLRoot: site.Config().URLRoot}
		if snap := site.Current(); snap != nil {
			st.Loaded = true
			st.Fingerprint = snap.Fingerprint
			st.LoadedAt = snap.LoadedAt
			st.Documents = snap.Stats.Documents
			st.Objects = snap.Stats.Objects
			st.Entries = snap.Entries
		}
		if err := site.LastError(); err != nil {
			st.Error = err.Error()
		}
		out = append(out, st)
	}
	return out
}

// Close unpublishes every site and closes their full-text indexes.
func (c *Catalog) Close() error {
	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	for _, site := range c.Sites() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := site.close(); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("close %s: %w", site.Name(), err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
