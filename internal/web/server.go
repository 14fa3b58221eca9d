// Package web serves the search API over HTTP: Sphinx-ranked search, object
// lookup, full-text search, site status and reloads.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sphinxdocs/search-mcp/internal/analytics"
	"github.com/sphinxdocs/search-mcp/internal/apperr"
	"github.com/sphinxdocs/search-mcp/internal/cache"
	"github.com/sphinxdocs/search-mcp/internal/catalog"
	"github.com/sphinxdocs/search-mcp/internal/config"
	"github.com/sphinxdocs/search-mcp/internal/indexing"
	"github.com/sphinxdocs/search-mcp/internal/metrics"
	"github.com/sphinxdocs/search-mcp/internal/query"
	"github.com/sphinxdocs/search-mcp/internal/store"
)

// Options carries the optional collaborators of a Server. Nil fields
// disable the feature.
type Options struct {
	Cache   *cache.QueryCache
	Metrics *metrics.Metrics
	Events  analytics.Publisher
	SQLite  *store.SQLiteSearcher
	Logger  *slog.Logger
}

type Server struct {
	catalog *catalog.Catalog
	search  config.SearchConfig
	cache   *cache.QueryCache
	metrics *metrics.Metrics
	events  analytics.Publisher
	sqlite  *store.SQLiteSearcher
	logger  *slog.Logger
}

type searchResponse struct {
	Site        string         `json:"site"`
	Query       string         `json:"query"`
	Fingerprint string         `json:"fingerprint"`
	Total       int            `json:"total"`
	CacheHit    bool           `json:"cache_hit"`
	Results     []query.Result `json:"results"`
}

type objectResponse struct {
	Site    string              `json:"site"`
	Name    string              `json:"name"`
	Matches []query.ObjectMatch `json:"matches"`
}

type fulltextHit struct {
	indexing.Entry
	Score float64 `json:"score"`
}

type fulltextResponse struct {
	Site    string        `json:"site"`
	Query   string        `json:"query"`
	Engine  string        `json:"engine"`
	Total   uint64        `json:"total"`
	Results []fulltextHit `json:"results"`
}

type reloadResponse struct {
	Results []catalog.ReloadResult `json:"results"`
	Errors  []string               `json:"errors,omitempty"`
}

func NewServer(c *catalog.Catalog, search config.SearchConfig, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	events := opts.Events
	if events == nil {
		events = analytics.Nop{}
	}
	return &Server{
		catalog: c,
		search:  search,
		cache:   opts.Cache,
		metrics: opts.Metrics,
		events:  events,
		sqlite:  opts.SQLite,
		logger:  logger.With("component", "http"),
	}
}

// Handler returns the routed API wrapped in request logging and metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/object", s.handleObject)
	mux.HandleFunc("GET /api/fulltext", s.handleFulltext)
	mux.HandleFunc("GET /api/sites", s.handleSites)
	mux.HandleFunc("POST /api/reload", s.handleReload)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	var h http.Handler = mux
	h = s.instrument(h)
	h = s.logRequests(h)
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	loaded := 0
	status := s.catalog.Status()
	for _, st := range status {
		if st.Loaded {
			loaded++
		}
	}
	code := http.StatusOK
	state := "ok"
	if loaded == 0 {
		code = http.StatusServiceUnavailable
		state = "unavailable"
	}
	s.writeJSON(w, code, map[string]any{
		"status":       state,
		"sites":        len(status),
		"sites_loaded": loaded,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	params := r.URL.Query()

	q := params.Get("q")
	if strings.TrimSpace(q) == "" {
		s.writeError(w, apperr.New(apperr.ErrInvalidInput, "query parameter 'q' is required"))
		return
	}
	limit, err := s.parseLimit(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	kinds, err := query.ParseKinds(splitList(params["kind"]))
	if err != nil {
		s.writeError(w, apperr.New(apperr.ErrInvalidInput, err.Error()))
		return
	}
	summaries := s.search.Summaries
	if v := params.Get("summaries"); v != "" {
		summaries, _ = strconv.ParseBool(v)
	}

	snap, release, err := s.catalog.Acquire(ctx, params.Get("site"))
	if err != nil {
		s.writeError(w, classify(err))
		return
	}
	defer release()

	key := cache.Key{
		Site:        snap.Site.Name,
		Fingerprint: snap.Fingerprint,
		Query:       q,
		Limit:       limit,
		Kinds:       kinds,
		Summaries:   summaries,
	}
	results, hit, err := s.cache.GetOrCompute(ctx, key, func() ([]query.Result, error) {
		return snap.Searcher.Search(ctx, q, query.Options{Limit: limit, Kinds: kinds, Summaries: summaries})
	})
	elapsed := time.Since(start)
	cacheStatus := s.cacheStatus(hit)
	if err != nil {
		s.metrics.RecordSearch(snap.Site.Name, "error", cacheStatus, elapsed.Seconds(), 0)
		s.logger.Error("search failed", "site", snap.Site.Name, "query", q, "error", err)
		s.writeError(w, err)
		return
	}
	if results == nil {
		results = []query.Result{}
	}

	outcome := "hit"
	if len(results) == 0 {
		outcome = "zero_result"
	}
	s.metrics.RecordSearch(snap.Site.Name, outcome, cacheStatus, elapsed.Seconds(), len(results))
	s.publish(r, analytics.SearchEvent{
		Site:      snap.Site.Name,
		Query:     q,
		Hits:      len(results),
		LatencyMS: float64(elapsed.Microseconds()) / 1000,
		CacheHit:  hit,
		Source:    "sphinx",
		At:        time.Now().UTC(),
	})
	s.logger.Debug("search completed",
		"site", snap.Site.Name,
		"query", q,
		"returned", len(results),
		"cache_hit", hit,
		"latency", elapsed,
	)

	s.writeJSON(w, http.StatusOK, searchResponse{
		Site:        snap.Site.Name,
		Query:       q,
		Fingerprint: snap.Fingerprint,
		Total:       len(results),
		CacheHit:    hit,
		Results:     results,
	})
}

func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	name := strings.TrimSpace(params.Get("name"))
	if name == "" {
		s.writeError(w, apperr.New(apperr.ErrInvalidInput, "query parameter 'name' is required"))
		return
	}

	snap, release, err := s.catalog.Acquire(r.Context(), params.Get("site"))
	if err != nil {
		s.writeError(w, classify(err))
		return
	}
	defer release()

	matches := snap.Searcher.LookupObject(name)
	if len(matches) == 0 {
		s.writeError(w, apperr.Newf(apperr.ErrNotFound, "no object named %q in site %q", name, snap.Site.Name))
		return
	}
	s.writeJSON(w, http.StatusOK, objectResponse{Site: snap.Site.Name, Name: name, Matches: matches})
}

func (s *Server) handleFulltext(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	params := r.URL.Query()

	q := params.Get("q")
	if strings.TrimSpace(q) == "" {
		s.writeError(w, apperr.New(apperr.ErrInvalidInput, "query parameter 'q' is required"))
		return
	}
	limit, err := s.parseLimit(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	kinds, err := query.ParseKinds(splitList(params["kind"]))
	if err != nil {
		s.writeError(w, apperr.New(apperr.ErrInvalidInput, err.Error()))
		return
	}

	site, err := s.catalog.Site(params.Get("site"))
	if err != nil {
		s.writeError(w, classify(err))
		return
	}

	var resp fulltextResponse
	switch engine := params.Get("engine"); engine {
	case "", "bleve":
		resp, err = s.fulltextBleve(r, site.Name(), q, limit, kinds)
	case "sqlite":
		resp, err = s.fulltextSQLite(r, site.Name(), q, limit, kinds)
	default:
		err = apperr.Newf(apperr.ErrInvalidInput, "unknown engine %q (want bleve or sqlite)", engine)
	}
	if err != nil {
		s.metrics.RecordSearch(site.Name(), "error", "none", time.Since(start).Seconds(), 0)
		s.writeError(w, err)
		return
	}

	outcome := "hit"
	if len(resp.Results) == 0 {
		outcome = "zero_result"
	}
	elapsed := time.Since(start)
	s.metrics.RecordSearch(site.Name(), outcome, "none", elapsed.Seconds(), len(resp.Results))
	s.publish(r, analytics.SearchEvent{
		Site:      site.Name(),
		Query:     q,
		Hits:      len(resp.Results),
		LatencyMS: float64(elapsed.Microseconds()) / 1000,
		Source:    resp.Engine,
		At:        time.Now().UTC(),
	})
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) fulltextBleve(r *http.Request, siteName, q string, limit int, kinds []query.Kind) (fulltextResponse, error) {
	snap, release, err := s.catalog.Acquire(r.Context(), siteName)
	if err != nil {
		return fulltextResponse{}, classify(err)
	}
	defer release()

	if snap.Fulltext == nil {
		return fulltextResponse{}, apperr.Newf(apperr.ErrUnavailable, "full-text search is disabled for site %q", siteName)
	}

	hits, total, err := indexing.Search(snap.Fulltext, q, limit, kindNames(kinds))
	if err != nil {
		return fulltextResponse{}, err
	}
	resp := fulltextResponse{Site: siteName, Query: q, Engine: "bleve", Total: total, Results: make([]fulltextHit, 0, len(hits))}
	for _, h := range hits {
		resp.Results = append(resp.Results, fulltextHit{Entry: h.Entry, Score: h.Score})
	}
	return resp, nil
}

func (s *Server) fulltextSQLite(r *http.Request, siteName, q string, limit int, kinds []query.Kind) (fulltextResponse, error) {
	if s.sqlite == nil {
		return fulltextResponse{}, apperr.New(apperr.ErrUnavailable, "sqlite search is not configured")
	}
	if len(kinds) > 1 {
		return fulltextResponse{}, apperr.New(apperr.ErrInvalidInput, "the sqlite engine filters on a single kind")
	}
	filter := store.Filter{Site: siteName}
	if len(kinds) == 1 {
		filter.Kind = string(kinds[0])
	}
	offset := parseIntQuery(r, "offset", 0)

	res, err := s.sqlite.Search(r.Context(), q, filter, limit, offset)
	if err != nil {
		return fulltextResponse{}, err
	}
	resp := fulltextResponse{Site: siteName, Query: q, Engine: "sqlite", Total: res.Total, Results: make([]fulltextHit, 0, len(res.Results))}
	for _, e := range res.Results {
		resp.Results = append(resp.Results, fulltextHit{Entry: indexing.Entry{
			ID:         e.ID,
			Site:       e.Site,
			Kind:       e.Kind,
			DocName:    e.DocName,
			Title:      e.Title,
			Anchor:     e.Anchor,
			URL:        e.URL,
			Breadcrumb: e.Breadcrumb,
			Type:       e.Type,
		}})
	}
	return resp, nil
}

func (s *Server) handleSites(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"sites": s.catalog.Status()})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	force, _ := strconv.ParseBool(params.Get("force"))

	var sites []*catalog.Site
	if name := params.Get("site"); name != "" {
		site, err := s.catalog.Site(name)
		if err != nil {
			s.writeError(w, classify(err))
			return
		}
		sites = []*catalog.Site{site}
	} else {
		sites = s.catalog.Sites()
	}

	resp := reloadResponse{Results: []catalog.ReloadResult{}}
	for _, site := range sites {
		res, err := site.Reload(r.Context(), force)
		if err != nil {
			resp.Errors = append(resp.Errors, site.Name()+": "+err.Error())
			continue
		}
		resp.Results = append(resp.Results, res)
	}

	code := http.StatusOK
	if len(resp.Results) == 0 && len(resp.Errors) > 0 {
		code = http.StatusBadGateway
	}
	s.writeJSON(w, code, resp)
}

func (s *Server) parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return s.search.DefaultLimit, nil
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit < 1 {
		return 0, apperr.New(apperr.ErrInvalidInput, "limit must be a positive integer")
	}
	if s.search.MaxLimit > 0 && limit > s.search.MaxLimit {
		limit = s.search.MaxLimit
	}
	return limit, nil
}

func (s *Server) cacheStatus(hit bool) string {
	switch {
	case s.cache == nil:
		return "none"
	case hit:
		return "hit"
	default:
		return "miss"
	}
}

func (s *Server) publish(r *http.Request, event analytics.SearchEvent) {
	if err := s.events.Publish(r.Context(), event); err != nil {
		s.logger.Warn("search event not published", "site", event.Site, "error", err)
	}
}

// classify maps catalog errors onto API error kinds.
func classify(err error) error {
	switch {
	case errors.Is(err, catalog.ErrUnknownSite):
		return apperr.New(apperr.ErrNotFound, err.Error())
	case errors.Is(err, catalog.ErrNotLoaded):
		return apperr.New(apperr.ErrUnavailable, err.Error())
	default:
		return err
	}
}

func kindNames(kinds []query.Kind) []string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return names
}

// splitList accepts repeated and comma-separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		out = append(out, strings.Split(v, ",")...)
	}
	return out
}

func parseIntQuery(r *http.Request, key string, fallback int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := apperr.HTTPStatusCode(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, code, map[string]string{"error": apperr.Message(err)})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w}
		next.ServeHTTP(rw, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", filepath.Clean(r.URL.Path),
			"status", rw.statusCode,
			"duration", time.Since(start),
		)
	})
}

var routes = map[string]bool{
	"/healthz":      true,
	"/metrics":      true,
	"/api/search":   true,
	"/api/object":   true,
	"/api/fulltext": true,
	"/api/sites":    true,
	"/api/reload":   true,
}

// instrument records request count and latency per route.
func (s *Server) instrument(next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		path := r.URL.Path
		if !routes[path] {
			path = "other"
		}
		s.metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
		s.metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
