// Package sources fetches the files of a built Sphinx site: its
// searchindex.js and the plain-text page sources under _sources/.
//
// A site root is either a local output directory (DirSource) or the base URL
// of a published site (HTTPSource). MemorySource keeps files in memory and is
// used for inline indexes and in tests.
package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sphinxdocs/search-mcp/internal/searchindex"
)

// DefaultTimeout bounds a single HTTP fetch.
const DefaultTimeout = 30 * time.Second

// ErrNotFound is returned when the requested file does not exist at the
// source.
var ErrNotFound = errors.New("file not found")

// Source reads files relative to a site root.
type Source interface {
	// Fetch returns the contents of name, a slash-separated path relative to
	// the site root ("searchindex.js", "_sources/index.rst.txt").
	Fetch(ctx context.Context, name string) ([]byte, error)

	// Root describes where files come from, for logs and tool output.
	Root() string
}

// Open selects a Source for root: http(s) URLs become an HTTPSource,
// everything else is treated as a local directory.
func Open(root string) Source {
	if strings.HasPrefix(root, "http://") || strings.HasPrefix(root, "https://") {
		return NewHTTPSource(root, nil)
	}
	return DirSource{Dir: root}
}

// LoadIndex fetches and parses the site's searchindex.js. The raw bytes are
// returned alongside for validation.
func LoadIndex(ctx context.Context, src Source) (*searchindex.Index, []byte, error) {
	data, err := src.Fetch(ctx, searchindex.FileName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch %s from %s: %w", searchindex.FileName, src.Root(), err)
	}
	ix, err := searchindex.Parse(data)
	if err != nil {
		return nil, data, fmt.Errorf("failed to parse %s from %s: %w", searchindex.FileName, src.Root(), err)
	}
	return ix, data, nil
}

// SourcePath returns the path of the plain-text copy Sphinx writes for a
// source file, relative to the output root: "_sources/<filename>.txt".
func SourcePath(filename string) string {
	if strings.HasSuffix(filename, ".txt") {
		return "_sources/" + filename
	}
	return "_sources/" + filename + ".txt"
}

// SourceText returns the plain-text source Sphinx copied for doc.
func SourceText(ctx context.Context, src Source, doc searchindex.Document) (string, error) {
	name := doc.Filename
	if name == "" {
		name = doc.Name
	}
	data, err := src.Fetch(ctx, SourcePath(name))
	if err != nil {
		return "", fmt.Errorf("failed to fetch source of %s: %w", doc.Name, err)
	}
	return string(data), nil
}

// DirSource reads a local Sphinx output directory.
type DirSource struct {
	Dir string
}

func (s DirSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean := path.Clean("/" + name)
	data, err := os.ReadFile(filepath.Join(s.Dir, filepath.FromSlash(clean)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

func (s DirSource) Root() string {
	return s.Dir
}

// HTTPSource reads a published Sphinx site.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPSource returns an HTTPSource for baseURL. A nil client gets one with
// DefaultTimeout.
func NewHTTPSource(baseURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &HTTPSource{BaseURL: baseURL, Client: client}
}

func (s *HTTPSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	url := s.BaseURL + strings.TrimPrefix(name, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", url, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("download of %s failed with status: %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}
	return data, nil
}

func (s *HTTPSource) Root() string {
	return s.BaseURL
}

// MemorySource serves files from memory.
type MemorySource struct {
	mu    sync.RWMutex
	name  string
	files map[string][]byte
}

// NewMemorySource creates an empty MemorySource; name is reported by Root.
func NewMemorySource(name string) *MemorySource {
	return &MemorySource{name: name, files: make(map[string][]byte)}
}

// AddFile stores content under name.
func (m *MemorySource) AddFile(name string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[strings.TrimPrefix(name, "/")] = content
}

func (m *MemorySource) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.files[strings.TrimPrefix(name, "/")]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return content, nil
}

func (m *MemorySource) Root() string {
	return "memory:" + m.name
}
