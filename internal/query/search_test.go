package query_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sphinxdocs/search-mcp/internal/query"
	"github.com/sphinxdocs/search-mcp/internal/searchindex"
)

func loadSample(t *testing.T) *searchindex.Index {
	t.Helper()
	ix, err := searchindex.Load(filepath.Join("..", "searchindex", "testdata", "searchindex.js"))
	if err != nil {
		t.Fatalf("Failed to load sample index: %v", err)
	}
	return ix
}

func TestSearch_TextTerm(t *testing.T) {
	s := query.New(loadSample(t))

	results, err := s.Search(context.Background(), "compiled", query.Options{Kinds: []query.Kind{query.KindText}})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d: %+v", len(results), results)
	}

	r := results[0]
	if r.DocName != "source/fst_runtime" {
		t.Errorf("DocName = %q", r.DocName)
	}
	if r.Title != "fst_runtime package" {
		t.Errorf("Title = %q", r.Title)
	}
	if r.Score != 5 {
		t.Errorf("Score = %d, want 5", r.Score)
	}
	if r.URL != "source/fst_runtime.html" {
		t.Errorf("URL = %q", r.URL)
	}
	if r.Kind != query.KindText {
		t.Errorf("Kind = %q", r.Kind)
	}
}

func TestSearch_PartialTerms(t *testing.T) {
	s := query.New(loadSample(t))

	tests := []struct {
		name  string
		query string
		want  map[string]int // docname -> score
	}{
		{
			// partial title term on the package page, partial body term elsewhere
			name:  "prefix of tokenize_input",
			query: "tokeniz",
			want:  map[string]int{"source/fst_runtime": 7, "index": 2, "source/modules": 2},
		},
		{
			name:  "prefix of submodule",
			query: "submod",
			want:  map[string]int{"source/fst_runtime": 7, "index": 2, "source/modules": 2},
		},
		{
			name:  "short words are not matched partially",
			query: "mo",
			want:  map[string]int{},
		},
		{
			name:  "unmatched short word is ignored",
			query: "fst zz",
			want:  map[string]int{"source/fst_runtime": 15, "index": 5, "source/modules": 5},
		},
		{
			name:  "unmatched long word drops every page",
			query: "fst zzz",
			want:  map[string]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := s.Search(context.Background(), tt.query, query.Options{Kinds: []query.Kind{query.KindText}})
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			got := map[string]int{}
			for _, r := range results {
				got[r.DocName] = r.Score
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for doc, score := range tt.want {
				if got[doc] != score {
					t.Errorf("score of %s = %d, want %d", doc, got[doc], score)
				}
			}
			if len(results) > 0 && results[0].DocName != "source/fst_runtime" {
				t.Errorf("top result = %s, want source/fst_runtime", results[0].DocName)
			}
		})
	}
}

func TestSearch_ExcludedTerm(t *testing.T) {
	s := query.New(loadSample(t))

	results, err := s.Search(context.Background(), "fst -compiled", query.Options{Kinds: []query.Kind{query.KindText}})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	var got []string
	for _, r := range results {
		got = append(got, r.DocName)
	}
	want := []string{"source/modules", "index"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestSearch_TitleTermBeatsBodyTerm(t *testing.T) {
	s := query.New(loadSample(t))

	results, err := s.Search(context.Background(), "fst", query.Options{Kinds: []query.Kind{query.KindText}})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	if results[0].DocName != "source/fst_runtime" || results[0].Score != 15 {
		t.Errorf("Expected title match first with score 15, got %+v", results[0])
	}
}

func TestSearch_Object(t *testing.T) {
	s := query.New(loadSample(t), query.WithLinks(query.LinkBuilder{URLRoot: "https://docs.example.org"}))

	results, err := s.Search(context.Background(), "up_analysis", query.Options{Kinds: []query.Kind{query.KindObject}})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d: %+v", len(results), results)
	}

	r := results[0]
	if r.Title != "fst_runtime.fst.Fst.up_analysis" {
		t.Errorf("Title = %q", r.Title)
	}
	if r.Score != 16 {
		t.Errorf("Score = %d, want 16 (name match + priority 1)", r.Score)
	}
	if r.Anchor != "#fst_runtime.fst.Fst.up_analysis" {
		t.Errorf("Anchor = %q", r.Anchor)
	}
	if r.Description != "Python method, in fst_runtime package" {
		t.Errorf("Description = %q", r.Description)
	}
	if r.URL != "https://docs.example.org/source/fst_runtime.html#fst_runtime.fst.Fst.up_analysis" {
		t.Errorf("URL = %q", r.URL)
	}
}

func TestSearch_ObjectRanksFirst(t *testing.T) {
	s := query.New(loadSample(t))

	results, err := s.Search(context.Background(), "up_analysis", query.Options{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) == 0 {
		t.Fatal("Expected results")
	}
	if results[0].Kind != query.KindObject {
		t.Errorf("Expected object result first, got %+v", results[0])
	}
}

func TestSearch_Titles(t *testing.T) {
	s := query.New(loadSample(t))

	tests := []struct {
		name    string
		query   string
		titles  []string
		anchors []string
		scores  []int
	}{
		{
			name:    "document title",
			query:   "fst_runtime package",
			titles:  []string{"fst_runtime package"},
			anchors: []string{""},
			scores:  []int{16},
		},
		{
			name:    "section title",
			query:   "Classes",
			titles:  []string{"fst_runtime package > Classes", "fst_runtime package > Classes"},
			anchors: []string{"#classes", "#id1"},
			scores:  []int{15, 15},
		},
		{
			name:  "query too short for title",
			query: "pack",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := s.Search(context.Background(), tt.query, query.Options{Kinds: []query.Kind{query.KindTitle}})
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if len(results) != len(tt.titles) {
				t.Fatalf("Expected %d results, got %d: %+v", len(tt.titles), len(results), results)
			}
			for i, r := range results {
				if r.Title != tt.titles[i] || r.Anchor != tt.anchors[i] || r.Score != tt.scores[i] {
					t.Errorf("result %d = {%q %q %d}, want {%q %q %d}",
						i, r.Title, r.Anchor, r.Score, tt.titles[i], tt.anchors[i], tt.scores[i])
				}
			}
		})
	}
}

func TestSearch_NonMainIndexEntriesTrail(t *testing.T) {
	s := query.New(loadSample(t))

	results, err := s.Search(context.Background(), "attformaterror", query.Options{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) < 2 {
		t.Fatalf("Expected several results, got %d", len(results))
	}

	first := results[0]
	if first.Kind != query.KindObject || first.Title != "fst_runtime.att_format_error.AttFormatError" {
		t.Errorf("Expected exception object first, got %+v", first)
	}

	last := results[len(results)-1]
	if last.Kind != query.KindIndex {
		t.Fatalf("Expected index entry last, got %+v", last)
	}
	if last.Score != 100 {
		t.Errorf("Index entry score = %d, want 100", last.Score)
	}
	if last.Anchor != "#fst_runtime.att_format_error.AttFormatError" {
		t.Errorf("Index entry anchor = %q", last.Anchor)
	}
}

func TestSearch_LimitAndEmpty(t *testing.T) {
	s := query.New(loadSample(t))

	results, err := s.Search(context.Background(), "classes", query.Options{Limit: 1})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Expected limit to cap results at 1, got %d", len(results))
	}

	results, err = s.Search(context.Background(), "   ", query.Options{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Errorf("Expected empty non-nil results, got %#v", results)
	}
}

func TestSearch_Deduplicates(t *testing.T) {
	s := query.New(loadSample(t))

	results, err := s.Search(context.Background(), "fst up_analysis", query.Options{Kinds: []query.Kind{query.KindObject}})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	seen := map[string]bool{}
	for _, r := range results {
		key := r.DocName + "|" + r.Title + "|" + r.Anchor + "|" + r.Description
		if seen[key] {
			t.Errorf("Duplicate result %+v", r)
		}
		seen[key] = true
	}
	if len(results) == 0 || results[0].Title != "fst_runtime.fst.Fst.up_analysis" {
		t.Errorf("Expected up_analysis first, got %+v", results)
	}
}

func TestSearch_CanceledContext(t *testing.T) {
	s := query.New(loadSample(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Search(ctx, "fst", query.Options{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestSearch_Summaries(t *testing.T) {
	texts := map[string]string{
		"source/fst_runtime": "This package is compiled into a tiny runtime.",
	}
	s := query.New(loadSample(t), query.WithText(func(_ context.Context, doc searchindex.Document) (string, error) {
		text, ok := texts[doc.Name]
		if !ok {
			return "", errors.New("no text")
		}
		return text, nil
	}))

	results, err := s.Search(context.Background(), "compiled", query.Options{Summaries: true})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].Summary != texts["source/fst_runtime"] {
		t.Errorf("Summary = %q", results[0].Summary)
	}

	results, err = s.Search(context.Background(), "compiled", query.Options{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if results[0].Summary != "" {
		t.Errorf("Expected no summary without Summaries option, got %q", results[0].Summary)
	}
}

func TestLookupObject(t *testing.T) {
	s := query.New(loadSample(t))

	matches := s.LookupObject("fst_runtime.fst.Fst")
	if len(matches) != 1 {
		t.Fatalf("Expected 1 match, got %d", len(matches))
	}
	m := matches[0]
	if m.Type != "class" || m.Label != "Python class" {
		t.Errorf("Type/Label = %q/%q", m.Type, m.Label)
	}
	if m.Anchor != "#fst_runtime.fst.Fst" || m.URL != "source/fst_runtime.html#fst_runtime.fst.Fst" {
		t.Errorf("Anchor/URL = %q/%q", m.Anchor, m.URL)
	}

	matches = s.LookupObject("FST")
	if len(matches) != 2 {
		t.Fatalf("Expected 2 short-name matches, got %d: %+v", len(matches), matches)
	}
	if matches[0].Name != "fst_runtime.fst" || matches[0].Anchor != "#module-fst_runtime.fst" {
		t.Errorf("First match = %+v", matches[0])
	}
	if matches[1].Name != "fst_runtime.fst.Fst" {
		t.Errorf("Second match = %+v", matches[1])
	}

	if got := s.LookupObject("does_not_exist"); len(got) != 0 {
		t.Errorf("Expected no matches, got %+v", got)
	}
}

func TestParseKinds(t *testing.T) {
	kinds, err := query.ParseKinds([]string{"Title", " object ", ""})
	if err != nil {
		t.Fatalf("ParseKinds() error = %v", err)
	}
	if len(kinds) != 2 || kinds[0] != query.KindTitle || kinds[1] != query.KindObject {
		t.Errorf("ParseKinds() = %v", kinds)
	}

	if _, err := query.ParseKinds([]string{"glossary"}); err == nil {
		t.Error("ParseKinds() should reject unknown kinds")
	}
}
