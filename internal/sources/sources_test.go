package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sphinxdocs/search-mcp/internal/searchindex"
)

func sampleIndex(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "searchindex", "testdata", "searchindex.js"))
	if err != nil {
		t.Fatalf("Failed to read sample index: %v", err)
	}
	return data
}

func writeSite(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "searchindex.js"), sampleIndex(t), 0644); err != nil {
		t.Fatal(err)
	}
	srcDir := filepath.Join(dir, "_sources", "source")
	if err := os.MkdirAll(srcDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "fst_runtime.rst.txt"), []byte("fst_runtime package\n==================="), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestOpen(t *testing.T) {
	if _, ok := Open("https://docs.example.org").(*HTTPSource); !ok {
		t.Error("Expected HTTPSource for https URL")
	}
	if _, ok := Open("http://localhost:8000/").(*HTTPSource); !ok {
		t.Error("Expected HTTPSource for http URL")
	}
	if _, ok := Open("./_build/html").(DirSource); !ok {
		t.Error("Expected DirSource for a path")
	}
}

func TestDirSource(t *testing.T) {
	dir := writeSite(t)
	src := DirSource{Dir: dir}
	ctx := context.Background()

	ix, raw, err := LoadIndex(ctx, src)
	if err != nil {
		t.Fatalf("LoadIndex() error = %v", err)
	}
	if len(raw) == 0 || len(ix.DocNames) != 3 {
		t.Fatalf("Unexpected index: %d bytes, %d docs", len(raw), len(ix.DocNames))
	}

	text, err := SourceText(ctx, src, ix.Documents()[1])
	if err != nil {
		t.Fatalf("SourceText() error = %v", err)
	}
	if !strings.HasPrefix(text, "fst_runtime package") {
		t.Errorf("SourceText() = %q", text)
	}

	_, err = SourceText(ctx, src, ix.Documents()[0])
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	// Paths cannot escape the site root.
	if _, err := src.Fetch(ctx, "../../etc/passwd"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for escaping path, got %v", err)
	}
}

func TestHTTPSource(t *testing.T) {
	index := sampleIndex(t)
	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = append(requested, r.URL.Path)
		switch r.URL.Path {
		case "/docs/searchindex.js":
			w.Write(index)
		case "/docs/_sources/index.rst.txt":
			w.Write([]byte("Welcome"))
		case "/docs/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL+"/docs", srv.Client())
	ctx := context.Background()

	ix, _, err := LoadIndex(ctx, src)
	if err != nil {
		t.Fatalf("LoadIndex() error = %v", err)
	}

	text, err := SourceText(ctx, src, ix.Documents()[0])
	if err != nil {
		t.Fatalf("SourceText() error = %v", err)
	}
	if text != "Welcome" {
		t.Errorf("SourceText() = %q", text)
	}

	if _, err := src.Fetch(ctx, "missing.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	_, err = src.Fetch(ctx, "broken")
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("Expected status error, got %v", err)
	}

	if requested[0] != "/docs/searchindex.js" {
		t.Errorf("First request = %q", requested[0])
	}
}

func TestLoadIndex_Malformed(t *testing.T) {
	src := NewMemorySource("bad")
	src.AddFile("searchindex.js", []byte("Search.setIndex({nope"))

	_, raw, err := LoadIndex(context.Background(), src)
	if !errors.Is(err, searchindex.ErrMalformed) {
		t.Errorf("Expected ErrMalformed, got %v", err)
	}
	if string(raw) != "Search.setIndex({nope" {
		t.Errorf("Expected raw bytes to be returned, got %q", raw)
	}
}

func TestMemorySource(t *testing.T) {
	src := NewMemorySource("test")
	src.AddFile("/_sources/a.md.txt", []byte("A"))

	data, err := src.Fetch(context.Background(), "_sources/a.md.txt")
	if err != nil || string(data) != "A" {
		t.Errorf("Fetch() = %q, %v", data, err)
	}
	if _, err := src.Fetch(context.Background(), "b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if src.Root() != "memory:test" {
		t.Errorf("Root() = %q", src.Root())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Fetch(ctx, "_sources/a.md.txt"); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestSourcePath(t *testing.T) {
	tests := map[string]string{
		"source/fst_runtime.rst": "_sources/source/fst_runtime.rst.txt",
		"guide.md":               "_sources/guide.md.txt",
		"notes.txt":              "_sources/notes.txt",
	}
	for in, want := range tests {
		if got := SourcePath(in); got != want {
			t.Errorf("SourcePath(%q) = %q, want %q", in, got, want)
		}
	}
}
