// Package query ranks searches against a Sphinx search index the way the
// search page shipped with Sphinx HTML output does: title, index entry and
// object matches, then stemmed full-text terms.
package query
