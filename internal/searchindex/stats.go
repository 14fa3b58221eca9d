package searchindex

import (
	"crypto/sha256"
	"encoding/hex"
)

// Stats summarises the size of an index.
type Stats struct {
	Documents     int            `json:"documents"`
	Terms         int            `json:"terms"`
	TitleTerms    int            `json:"title_terms"`
	Titles        int            `json:"titles"`
	IndexEntries  int            `json:"index_entries"`
	Objects       int            `json:"objects"`
	ObjectsByType map[string]int `json:"objects_by_type"`
	SphinxEnv     int            `json:"sphinx_env_version"`
}

// ComputeStats counts the entries of each section.
func ComputeStats(ix *Index) Stats {
	s := Stats{
		Documents:     len(ix.DocNames),
		Terms:         len(ix.Terms),
		TitleTerms:    len(ix.TitleTerms),
		Titles:        len(ix.AllTitles),
		IndexEntries:  len(ix.IndexEntries),
		ObjectsByType: make(map[string]int),
		SphinxEnv:     ix.EnvVersion["sphinx"],
	}
	for _, objs := range ix.Objects {
		for _, obj := range objs {
			s.Objects++
			label := ix.ObjectTypeLabel(obj.TypeIdx)
			if label == "" {
				label = "unknown"
			}
			s.ObjectsByType[label]++
		}
	}
	return s
}

// Fingerprint returns a stable hash of the index content. Two indexes that
// render identically share a fingerprint, whatever their source formatting.
func Fingerprint(ix *Index) (string, error) {
	body, err := renderJSON(ix)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}
