// Package searchindex reads, validates and writes the searchindex.js file
// produced by Sphinx HTML builders.
//
// The file is a single JavaScript call, Search.setIndex({...}), whose
// argument maps documents, titles, index entries, API objects and stemmed
// words to document numbers. Document numbers index the parallel docnames,
// filenames and titles arrays; Validate checks that every reference lands
// inside them.
package searchindex
