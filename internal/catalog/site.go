package catalog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sphinxdocs/search-mcp/internal/config"
	"github.com/sphinxdocs/search-mcp/internal/indexing"
	"github.com/sphinxdocs/search-mcp/internal/query"
	"github.com/sphinxdocs/search-mcp/internal/searchindex"
	"github.com/sphinxdocs/search-mcp/internal/sources"
)

// sourceFetchLimit bounds concurrent _sources/ fetches while building the
// full-text index.
const sourceFetchLimit = 8

// Snapshot is one loaded version of a site. It is immutable once published.
type Snapshot struct {
	Site        config.SiteConfig
	Index       *searchindex.Index
	Searcher    *query.Searcher
	Fingerprint string
	Stats       searchindex.Stats
	LoadedAt    time.Time

	// Fulltext is the bleve index over the site's entries, nil when
	// full-text search is disabled.
	Fulltext indexing.Index
	// Entries is the number of full-text entries built for the site.
	Entries int

	texts map[int]string

	// refs counts the site's own reference while published plus one per
	// Acquire. The full-text index is closed when it drops to zero.
	refs atomic.Int64
	// idle is closed once the full-text index has been closed, with the
	// outcome in closeErr.
	idle     chan struct{}
	closeErr error
}

// ReloadResult describes the outcome of Site.Reload.
type ReloadResult struct {
	Site        string        `json:"site"`
	Swapped     bool          `json:"swapped"`
	Fingerprint string        `json:"fingerprint"`
	Previous    string        `json:"previous,omitempty"`
	Documents   int           `json:"documents"`
	Entries     int           `json:"entries"`
	Duration    time.Duration `json:"duration"`
}

// Site holds the live snapshot of one configured site.
type Site struct {
	cfg  config.SiteConfig
	src  sources.Source
	opts Options

	// current holds the active snapshot (atomic access for lock-free reads)
	current atomic.Pointer[Snapshot]

	// refreshMu prevents concurrent reloads
	// NOT used for searches - they are lock-free via atomic pointer
	refreshMu sync.Mutex

	errMu   sync.Mutex
	lastErr error
}

// NewSite returns an unloaded site reading from src.
func NewSite(cfg config.SiteConfig, src sources.Source, opts Options) *Site {
	opts = opts.withDefaults()
	return &Site{cfg: cfg, src: src, opts: opts}
}

// Name returns the configured site name.
func (s *Site) Name() string {
	return s.cfg.Name
}

// Config returns the site configuration.
func (s *Site) Config() config.SiteConfig {
	return s.cfg
}

// Source returns where the site is read from.
func (s *Site) Source() sources.Source {
	return s.src
}

// Current returns the published snapshot without tracking it; nil before
// the first successful load. Use Acquire for anything that searches.
func (s *Site) Current() *Snapshot {
	return s.current.Load()
}

// LastError returns the error of the most recent failed reload, or nil.
func (s *Site) LastError() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.lastErr
}

func (s *Site) setLastError(err error) {
	s.errMu.Lock()
	s.lastErr = err
	s.errMu.Unlock()
}

// Acquire returns the current snapshot and a release func that must be
// called when the caller is done with it. An unloaded site is loaded first.
func (s *Site) Acquire(ctx context.Context) (*Snapshot, func(), error) {
	if snap, release := s.acquire(); snap != nil {
		return snap, release, nil
	}

	s.opts.Logger.Info("site not loaded, loading now", "site", s.cfg.Name)
	if _, err := s.Reload(ctx, false); err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrNotLoaded, s.cfg.Name, err)
	}

	snap, release := s.acquire()
	if snap == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotLoaded, s.cfg.Name)
	}
	return snap, release, nil
}

// acquire takes a reference on the published snapshot. A snapshot whose
// count already reached zero was retired; the loop retries with its
// replacement.
func (s *Site) acquire() (*Snapshot, func()) {
	for {
		snap := s.current.Load()
		if snap == nil {
			return nil, nil
		}
		if snap.tryRef() {
			var once sync.Once
			return snap, func() { once.Do(func() { s.unref(snap) }) }
		}
	}
}

func (snap *Snapshot) tryRef() bool {
	for {
		n := snap.refs.Load()
		if n <= 0 {
			return false
		}
		if snap.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// unref drops one reference and closes the full-text index with the last.
func (s *Site) unref(snap *Snapshot) {
	if snap.refs.Add(-1) != 0 {
		return
	}
	defer close(snap.idle)
	if snap.Fulltext == nil {
		return
	}
	if err := snap.Fulltext.Close(); err != nil {
		snap.closeErr = err
		s.opts.Logger.Warn("error closing old full-text index", "site", s.cfg.Name, "error", err)
		return
	}
	s.opts.Logger.Debug("old full-text index closed", "site", s.cfg.Name, "age", time.Since(snap.LoadedAt).Round(time.Millisecond))
}

// Reload re-reads the site's searchindex.js and publishes a new snapshot
// when its fingerprint changed, or always when force is set. Searches keep
// running against the old snapshot until they release it; its full-text
// index is closed afterwards.
func (s *Site) Reload(ctx context.Context, force bool) (ReloadResult, error) {
	start := time.Now()
	result := ReloadResult{Site: s.cfg.Name}

	// Serialize reloads of this site
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	ix, _, err := sources.LoadIndex(ctx, s.src)
	if err != nil {
		return result, s.fail(err)
	}
	fingerprint, err := searchindex.Fingerprint(ix)
	if err != nil {
		return result, s.fail(fmt.Errorf("fingerprint %s: %w", s.cfg.Name, err))
	}

	old := s.current.Load()
	result.Fingerprint = fingerprint
	if old != nil {
		result.Previous = old.Fingerprint
	}
	if old != nil && old.Fingerprint == fingerprint && !force {
		result.Documents = old.Stats.Documents
		result.Entries = old.Entries
		result.Duration = time.Since(start)
		s.setLastError(nil)
		s.opts.Metrics.RecordReload(s.cfg.Name, "unchanged", old.Stats.Documents)
		s.opts.Logger.Debug("search index unchanged", "site", s.cfg.Name, "fingerprint", short(fingerprint))
		return result, nil
	}

	snap, err := s.build(ctx, ix, fingerprint, old == nil)
	if err != nil {
		return result, s.fail(err)
	}

	// ATOMIC SWAP: replace the published snapshot
	snap.refs.Store(1)
	snap.idle = make(chan struct{})
	previous := s.current.Swap(snap)
	s.retire(previous)

	result.Swapped = true
	result.Documents = snap.Stats.Documents
	result.Entries = snap.Entries
	result.Duration = time.Since(start)
	s.setLastError(nil)
	s.opts.Metrics.RecordReload(s.cfg.Name, "swapped", snap.Stats.Documents)
	s.opts.Logger.Info("✓ search index loaded",
		"site", s.cfg.Name,
		"root", s.src.Root(),
		"documents", snap.Stats.Documents,
		"objects", snap.Stats.Objects,
		"entries", snap.Entries,
		"fingerprint", short(fingerprint),
		"duration", result.Duration.Round(time.Millisecond),
	)
	if s.opts.OnSwap != nil {
		s.opts.OnSwap(s.cfg.Name)
	}
	return result, nil
}

func (s *Site) fail(err error) error {
	s.setLastError(err)
	s.opts.Metrics.RecordReload(s.cfg.Name, "error", -1)
	s.opts.Logger.Error("search index reload failed", "site", s.cfg.Name, "error", err)
	return err
}

// retire drops the site's reference on old. Its full-text index is closed
// once every search that acquired old has released it; searches holding
// newer snapshots do not delay it.
func (s *Site) retire(old *Snapshot) {
	if old == nil {
		return
	}
	s.unref(old)
}

func (s *Site) build(ctx context.Context, ix *searchindex.Index, fingerprint string, initial bool) (*Snapshot, error) {
	links := query.LinkBuilder{URLRoot: s.cfg.URLRoot, FileSuffix: s.cfg.FileSuffix, Builder: s.cfg.Builder}
	snap := &Snapshot{
		Site:        s.cfg,
		Index:       ix,
		Fingerprint: fingerprint,
		Stats:       searchindex.ComputeStats(ix),
		LoadedAt:    time.Now(),
	}

	if s.opts.Fulltext || s.opts.Store != nil {
		texts, err := s.fetchTexts(ctx, ix)
		if err != nil {
			return nil, err
		}
		snap.texts = texts

		entries := indexing.BuildEntries(ix, s.cfg.Name, links, texts)
		snap.Entries = len(entries)

		if s.opts.Fulltext {
			fulltext, err := s.openFulltext(ctx, entries, fingerprint, initial)
			if err != nil {
				return nil, err
			}
			snap.Fulltext = fulltext
		}
		if s.opts.Store != nil {
			if err := s.opts.Store.ReplaceSite(ctx, s.cfg.Name, entries); err != nil {
				if snap.Fulltext != nil {
					snap.Fulltext.Close()
				}
				return nil, fmt.Errorf("sqlite export of %s: %w", s.cfg.Name, err)
			}
		}
	}

	snap.Searcher = query.New(ix,
		query.WithLinks(links),
		query.WithText(snap.text(s.src)),
	)
	return snap, nil
}

// text returns the TextFunc of the snapshot: sources fetched while building
// the full-text index are reused, anything else is fetched on demand.
func (snap *Snapshot) text(src sources.Source) query.TextFunc {
	return func(ctx context.Context, doc searchindex.Document) (string, error) {
		if text, ok := snap.texts[doc.ID]; ok {
			return text, nil
		}
		return sources.SourceText(ctx, src, doc)
	}
}

// fetchTexts downloads the _sources/ copy of every document. Pages without
// one are skipped.
func (s *Site) fetchTexts(ctx context.Context, ix *searchindex.Index) (map[int]string, error) {
	docs := ix.Documents()
	texts := make([]string, len(docs))
	found := make([]bool, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sourceFetchLimit)
	for i, doc := range docs {
		g.Go(func() error {
			text, err := sources.SourceText(gctx, s.src, doc)
			switch {
			case err == nil:
				texts[i], found[i] = text, true
			case errors.Is(err, sources.ErrNotFound):
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				s.opts.Logger.Warn("skipping page source", "site", s.cfg.Name, "doc", doc.Name, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch sources of %s: %w", s.cfg.Name, err)
	}

	out := make(map[int]string, len(docs))
	for i, doc := range docs {
		if found[i] {
			out[doc.ID] = texts[i]
		}
	}
	return out, nil
}

// openFulltext returns the bleve index for entries. Without a data
// directory it lives in memory. Otherwise it is kept on disk under the PID
// lock; an index built from the same fingerprint is reused at startup.
func (s *Site) openFulltext(ctx context.Context, entries []indexing.Entry, fingerprint string, initial bool) (indexing.Index, error) {
	if s.opts.DataDir == "" {
		index, err := indexing.NewMemIndex(entries)
		if err != nil {
			return nil, fmt.Errorf("full-text index of %s: %w", s.cfg.Name, err)
		}
		return index, nil
	}

	dir := s.indexDir()
	lock := NewLock(dir+".lock", s.opts.Logger)
	if err := lock.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("failed to acquire index lock: %w", err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			s.opts.Logger.Warn("failed to release index lock", "site", s.cfg.Name, "error", err)
		}
	}()

	// The directory of a published index is still open, so it is only
	// reused before the first snapshot exists.
	if initial && indexing.ReadFingerprint(dir) == fingerprint {
		index, err := indexing.OpenIndex(dir)
		if err == nil {
			s.opts.Logger.Info("✓ reusing on-disk full-text index", "site", s.cfg.Name, "dir", dir)
			return index, nil
		}
		s.opts.Logger.Warn("on-disk full-text index unusable, rebuilding", "site", s.cfg.Name, "error", err)
	}

	if err := indexing.WriteIndex(dir, entries, fingerprint); err != nil {
		return nil, fmt.Errorf("full-text index of %s: %w", s.cfg.Name, err)
	}
	index, err := indexing.OpenIndex(dir)
	if err != nil {
		return nil, fmt.Errorf("full-text index of %s: %w", s.cfg.Name, err)
	}
	return index, nil
}

func (s *Site) indexDir() string {
	return filepath.Join(s.opts.DataDir, "sites", safeName(s.cfg.Name), "index")
}

// close unpublishes the snapshot and closes its full-text index once
// in-flight searches are done.
func (s *Site) close() error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	old := s.current.Swap(nil)
	if old == nil {
		return nil
	}
	s.unref(old)
	<-old.idle
	return old.closeErr
}

func short(fingerprint string) string {
	if len(fingerprint) > 12 {
		return fingerprint[:12]
	}
	return fingerprint
}

// safeName maps a site name onto a single path element.
func safeName(name string) string {
	b := []byte(name)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			b[i] = '_'
		}
	}
	if s := string(b); s != "." && s != ".." {
		return s
	}
	return "_"
}
