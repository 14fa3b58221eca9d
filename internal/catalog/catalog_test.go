package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sphinxdocs/search-mcp/internal/config"
	"github.com/sphinxdocs/search-mcp/internal/indexing"
	"github.com/sphinxdocs/search-mcp/internal/query"
	"github.com/sphinxdocs/search-mcp/internal/searchindex"
	"github.com/sphinxdocs/search-mcp/internal/sources"
)

const pageSource = "fst_runtime package\n" +
	"===================\n" +
	"\n" +
	"Module contents\n" +
	"---------------\n" +
	"\n" +
	"The fst_runtime package runs compiled transducers.\n"

func sampleData(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "searchindex", "testdata", "searchindex.js"))
	if err != nil {
		t.Fatalf("Failed to read sample index: %v", err)
	}
	return data
}

func newSampleSource(t *testing.T) *sources.MemorySource {
	t.Helper()
	src := sources.NewMemorySource("sample")
	src.AddFile(searchindex.FileName, sampleData(t))
	src.AddFile("_sources/source/fst_runtime.rst.txt", []byte(pageSource))
	return src
}

func siteConfig(name string) config.SiteConfig {
	return config.SiteConfig{Name: name, Root: "memory", URLRoot: "https://docs.example.org", FileSuffix: ".html", Builder: "html"}
}

// changedIndex returns the sample index with one extra section title.
func changedIndex(t *testing.T) []byte {
	t.Helper()
	ix, err := searchindex.Parse(sampleData(t))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	anchor := "extra"
	ix.AllTitles["Extra section"] = []searchindex.TitleRef{{Doc: 0, Anchor: &anchor}}
	data, err := searchindex.Render(ix)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	return data
}

type recordingStore struct {
	mu      sync.Mutex
	entries map[string]int
}

func (r *recordingStore) ReplaceSite(ctx context.Context, site string, entries []indexing.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries == nil {
		r.entries = map[string]int{}
	}
	r.entries[site] = len(entries)
	return nil
}

func TestSite_Reload(t *testing.T) {
	ctx := context.Background()
	src := newSampleSource(t)
	var swaps []string
	site := NewSite(siteConfig("docs"), src, Options{
		Fulltext: true,
		OnSwap:   func(name string) { swaps = append(swaps, name) },
	})
	defer site.close()

	first, err := site.Reload(ctx, false)
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if !first.Swapped || first.Documents != 3 || first.Entries == 0 || first.Previous != "" {
		t.Errorf("first reload = %+v", first)
	}

	t.Run("unchanged index is not swapped", func(t *testing.T) {
		before := site.Current()
		res, err := site.Reload(ctx, false)
		if err != nil {
			t.Fatalf("Reload() error = %v", err)
		}
		if res.Swapped {
			t.Error("unchanged index was swapped")
		}
		if site.Current() != before {
			t.Error("snapshot replaced")
		}
	})

	t.Run("force swaps", func(t *testing.T) {
		res, err := site.Reload(ctx, true)
		if err != nil {
			t.Fatalf("Reload() error = %v", err)
		}
		if !res.Swapped || res.Fingerprint != first.Fingerprint {
			t.Errorf("forced reload = %+v", res)
		}
	})

	t.Run("changed index swaps", func(t *testing.T) {
		src.AddFile(searchindex.FileName, changedIndex(t))
		res, err := site.Reload(ctx, false)
		if err != nil {
			t.Fatalf("Reload() error = %v", err)
		}
		if !res.Swapped || res.Previous != first.Fingerprint || res.Fingerprint == first.Fingerprint {
			t.Errorf("changed reload = %+v", res)
		}
		if _, ok := site.Current().Index.AllTitles["Extra section"]; !ok {
			t.Error("new snapshot does not carry the changed index")
		}
	})

	if len(swaps) != 3 {
		t.Errorf("OnSwap called %d times, want 3", len(swaps))
	}
}

func TestSite_ReloadFailureKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	src := newSampleSource(t)
	site := NewSite(siteConfig("docs"), src, Options{})

	if _, err := site.Reload(ctx, false); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	before := site.Current()

	src.AddFile(searchindex.FileName, []byte("Search.setIndex({broken"))
	if _, err := site.Reload(ctx, false); !errors.Is(err, searchindex.ErrMalformed) {
		t.Fatalf("Reload() error = %v, want ErrMalformed", err)
	}
	if site.Current() != before {
		t.Error("failed reload replaced the snapshot")
	}
	if site.LastError() == nil {
		t.Error("LastError() should report the failure")
	}
}

func TestSite_AcquireLoadsLazily(t *testing.T) {
	site := NewSite(siteConfig("docs"), newSampleSource(t), Options{})

	snap, release, err := site.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer release()

	results, err := snap.Searcher.Search(context.Background(), "runtime", query.Options{Summaries: true})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) == 0 {
		t.Fatal("Search() returned no results")
	}
	for _, r := range results {
		if !strings.HasPrefix(r.URL, "https://docs.example.org/") {
			t.Errorf("result URL %q does not use the site URL root", r.URL)
		}
		if r.DocName == "source/fst_runtime" && r.Summary == "" {
			t.Errorf("result %q has no summary", r.Title)
		}
	}
}

func TestSite_AcquireFailure(t *testing.T) {
	site := NewSite(siteConfig("empty"), sources.NewMemorySource("empty"), Options{})

	_, _, err := site.Acquire(context.Background())
	if !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Acquire() error = %v, want ErrNotLoaded", err)
	}
}

func TestSite_OldFulltextClosedAfterRelease(t *testing.T) {
	ctx := context.Background()
	site := NewSite(siteConfig("docs"), newSampleSource(t), Options{Fulltext: true})
	defer site.close()

	held, release, err := site.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if _, err := site.Reload(ctx, true); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	// Still usable while held
	if _, err := held.Fulltext.DocCount(); err != nil {
		t.Fatalf("held index unusable before release: %v", err)
	}

	release()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := held.Fulltext.DocCount(); err != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("old full-text index was not closed after release")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := site.Current().Fulltext.DocCount(); err != nil {
		t.Errorf("current index unusable: %v", err)
	}
}

func TestSite_OldFulltextClosedWhileNewerHeld(t *testing.T) {
	ctx := context.Background()
	site := NewSite(siteConfig("docs"), newSampleSource(t), Options{Fulltext: true})

	first, releaseFirst, err := site.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, err := site.Reload(ctx, true); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	second, releaseSecond, err := site.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if second == first {
		t.Fatal("Acquire() after Reload() returned the retired snapshot")
	}

	// The newer snapshot stays held; the old one only waits for its own readers.
	releaseFirst()
	releaseFirst() // second call is a no-op
	if _, err := first.Fulltext.DocCount(); err == nil {
		t.Error("old full-text index still open while only a newer snapshot is held")
	}
	if _, err := second.Fulltext.DocCount(); err != nil {
		t.Errorf("held index unusable: %v", err)
	}

	releaseSecond()
	if err := site.close(); err != nil {
		t.Fatalf("close() error = %v", err)
	}
	if _, err := second.Fulltext.DocCount(); err == nil {
		t.Error("full-text index still open after close()")
	}
	if site.Current() != nil {
		t.Error("Current() after close() is not nil")
	}
}

func TestSite_OnDiskFulltext(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()
	opts := Options{DataDir: dataDir, Fulltext: true}

	site := NewSite(siteConfig("docs/v1"), newSampleSource(t), opts)
	res, err := site.Reload(ctx, false)
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	dir := filepath.Join(dataDir, "sites", "docs_v1", "index")
	if site.indexDir() != dir {
		t.Errorf("indexDir() = %q, want %q", site.indexDir(), dir)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("index directory missing: %v", err)
	}
	if fp := indexing.ReadFingerprint(dir); fp != res.Fingerprint {
		t.Errorf("fingerprint file = %q, want %q", fp, res.Fingerprint)
	}
	if _, err := os.Stat(dir + ".lock"); !os.IsNotExist(err) {
		t.Errorf("lock file left behind: %v", err)
	}
	if err := site.close(); err != nil {
		t.Fatalf("close() error = %v", err)
	}

	reopened := NewSite(siteConfig("docs/v1"), newSampleSource(t), opts)
	defer reopened.close()
	again, err := reopened.Reload(ctx, false)
	if err != nil {
		t.Fatalf("Reload() after restart error = %v", err)
	}
	count, err := reopened.Current().Fulltext.DocCount()
	if err != nil {
		t.Fatalf("DocCount() error = %v", err)
	}
	if int(count) != again.Entries {
		t.Errorf("DocCount() = %d, want %d", count, again.Entries)
	}
}

func TestCatalog_LoadAll(t *testing.T) {
	ctx := context.Background()
	store := &recordingStore{}
	c := NewEmpty(Options{Store: store})
	c.Add(NewSite(siteConfig("good"), newSampleSource(t), c.opts))
	c.Add(NewSite(siteConfig("broken"), sources.NewMemorySource("broken"), c.opts))
	defer c.Close()

	err := c.LoadAll(ctx)
	if !errors.Is(err, sources.ErrNotFound) {
		t.Fatalf("LoadAll() error = %v, want ErrNotFound", err)
	}

	status := c.Status()
	if len(status) != 2 {
		t.Fatalf("Status() returned %d sites, want 2", len(status))
	}
	if status[0].Name != "good" || !status[0].Loaded || status[0].Documents != 3 || status[0].Error != "" {
		t.Errorf("good site status = %+v", status[0])
	}
	if status[1].Name != "broken" || status[1].Loaded || status[1].Error == "" {
		t.Errorf("broken site status = %+v", status[1])
	}
	if store.entries["good"] == 0 {
		t.Error("entry store was not refreshed for the good site")
	}
	if status[0].Entries != store.entries["good"] {
		t.Errorf("Entries = %d, store got %d", status[0].Entries, store.entries["good"])
	}

	_, release, err := c.Acquire(ctx, "good")
	if err != nil {
		t.Fatalf("Acquire(good) error = %v", err)
	}
	release()
}

func TestCatalog_Site(t *testing.T) {
	c := NewEmpty(Options{})
	if _, err := c.Site(""); !errors.Is(err, ErrUnknownSite) {
		t.Errorf("Site(\"\") on empty catalog error = %v", err)
	}

	c.Add(NewSite(siteConfig("first"), sources.NewMemorySource("a"), c.opts))
	c.Add(NewSite(siteConfig("second"), sources.NewMemorySource("b"), c.opts))

	tests := []struct {
		name    string
		want    string
		wantErr error
	}{
		{"", "first", nil},
		{"second", "second", nil},
		{"missing", "", ErrUnknownSite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site, err := c.Site(tt.name)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Site(%q) error = %v, want %v", tt.name, err, tt.wantErr)
			}
			if err == nil && site.Name() != tt.want {
				t.Errorf("Site(%q) = %s, want %s", tt.name, site.Name(), tt.want)
			}
		})
	}
}

func TestCatalog_New(t *testing.T) {
	cfg := &config.Config{Sites: []config.SiteConfig{
		{Name: "local", Root: t.TempDir()},
		{Name: "remote", Root: "https://docs.example.org/"},
	}}
	c := New(cfg, Options{})

	sites := c.Sites()
	if len(sites) != 2 {
		t.Fatalf("Sites() returned %d, want 2", len(sites))
	}
	if _, ok := sites[0].Source().(sources.DirSource); !ok {
		t.Errorf("local site source = %T, want DirSource", sites[0].Source())
	}
	if _, ok := sites[1].Source().(*sources.HTTPSource); !ok {
		t.Errorf("remote site source = %T, want *HTTPSource", sites[1].Source())
	}
}

func TestCatalog_RunStopsOnCancel(t *testing.T) {
	c := NewEmpty(Options{})
	c.Add(NewSite(siteConfig("docs"), newSampleSource(t), c.opts))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for c.sites["docs"].Current() == nil {
		if time.Now().After(deadline) {
			t.Fatal("periodic reload never loaded the site")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
