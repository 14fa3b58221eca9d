package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetrics_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SearchQueriesTotal.WithLabelValues("python", "hit").Inc()
	m.CacheHitsTotal.Inc()
	m.ReloadsTotal.WithLabelValues("python", "swapped").Inc()
	m.SiteDocuments.WithLabelValues("python").Set(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(rec.Result().Body)
	text := string(body)
	for _, want := range []string{
		`sxs_search_queries_total{outcome="hit",site="python"} 1`,
		`sxs_cache_hits_total 1`,
		`sxs_index_reloads_total{site="python",status="swapped"} 1`,
		`sxs_site_documents{site="python"} 3`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in scrape output", want)
		}
	}
}

func TestNew_SeparateRegistries(t *testing.T) {
	// Registering twice on distinct registries must not panic.
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}

func TestMetrics_Recorders(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordReload("python", "swapped", 3)
	m.RecordReload("python", "error", -1)
	m.RecordSearch("python", "hit", "miss", 0.01, 4)
	m.RecordSearch("python", "hit", "hit", 0.001, 4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Result().Body)
	text := string(body)
	for _, want := range []string{
		`sxs_index_reloads_total{site="python",status="error"} 1`,
		`sxs_site_documents{site="python"} 3`,
		`sxs_search_queries_total{outcome="hit",site="python"} 2`,
		`sxs_cache_hits_total 1`,
		`sxs_cache_misses_total 1`,
		`sxs_search_results_count_count 2`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in scrape output", want)
		}
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordReload("python", "swapped", 1)
	m.RecordSearch("python", "hit", "none", 0.1, 1)
}
