package searchindex

import (
	"fmt"
	"sort"
	"strings"
)

// Issue codes reported by Validate and ValidateSchema.
const (
	CodeDocOutOfRange     = "DOC_OUT_OF_RANGE"
	CodeLengthMismatch    = "LENGTH_MISMATCH"
	CodeUnknownObjType    = "UNKNOWN_OBJTYPE"
	CodeObjTypeMismatch   = "OBJTYPE_MISMATCH"
	CodeMissingEnvVersion = "MISSING_ENV_VERSION"
	CodeEmptyName         = "EMPTY_NAME"
	CodeDuplicateDocName  = "DUPLICATE_DOCNAME"
	CodeUnknownKey        = "UNKNOWN_KEY"
	CodeSchema            = "SCHEMA_VALIDATION_ERROR"
	CodeInvalidJSON       = "INVALID_JSON"
)

// Issue severities. Only errors make a report invalid.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Issue is one problem found in an index. Path points into the payload,
// e.g. "$.terms.fst[1]".
type Issue struct {
	Path     string `json:"path,omitempty"`
	Message  string `json:"message"`
	Code     string `json:"code"`
	Severity string `json:"severity"`
}

// Report collects validation results. Errors holds the issues of severity
// error and Warnings the rest; Valid is false iff Errors is non-empty.
type Report struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
	Summary  string  `json:"summary"`
}

func newReport() Report {
	return Report{Valid: true, Errors: []Issue{}, Warnings: []Issue{}}
}

func (r *Report) fail(path, code, format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, Issue{Path: path, Code: code, Message: fmt.Sprintf(format, args...), Severity: SeverityError})
}

func (r *Report) warn(path, code, format string, args ...any) {
	r.Warnings = append(r.Warnings, Issue{Path: path, Code: code, Message: fmt.Sprintf(format, args...), Severity: SeverityWarning})
}

// Merge appends other's issues to r.
func (r *Report) Merge(other Report) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Valid = r.Valid && other.Valid
	r.summarize()
}

func (r *Report) summarize() {
	switch {
	case !r.Valid:
		r.Summary = fmt.Sprintf("Search index is invalid: %d error(s), %d warning(s)", len(r.Errors), len(r.Warnings))
	case len(r.Warnings) > 0:
		r.Summary = fmt.Sprintf("Search index is valid with %d warning(s)", len(r.Warnings))
	default:
		r.Summary = "Search index is valid"
	}
}

// Validate checks the cross-references of a parsed index: every document
// number used by terms, titleterms, alltitles, indexentries and objects
// must exist in docnames, the per-document arrays must line up, and every
// object type must be described by objnames and objtypes.
func Validate(ix *Index) Report {
	r := newReport()
	docCount := len(ix.DocNames)

	if len(ix.Filenames) != docCount {
		r.fail("$.filenames", CodeLengthMismatch, "filenames has %d entries, docnames has %d", len(ix.Filenames), docCount)
	}
	if len(ix.Titles) != docCount {
		r.fail("$.titles", CodeLengthMismatch, "titles has %d entries, docnames has %d", len(ix.Titles), docCount)
	}

	seen := make(map[string]int, docCount)
	for i, name := range ix.DocNames {
		if prev, ok := seen[name]; ok {
			r.fail(fmt.Sprintf("$.docnames[%d]", i), CodeDuplicateDocName, "docname %q already used by document %d", name, prev)
			continue
		}
		seen[name] = i
	}

	if _, ok := ix.EnvVersion["sphinx"]; !ok {
		r.warn("$.envversion", CodeMissingEnvVersion, "envversion has no \"sphinx\" entry")
	}

	checkDoc := func(path string, doc int) {
		if doc < 0 || doc >= docCount {
			r.fail(path, CodeDocOutOfRange, "document %d does not exist (%d documents)", doc, docCount)
		}
	}

	for _, term := range sortedKeys(ix.Terms) {
		for i, doc := range ix.Terms[term].Docs {
			checkDoc(refPath("terms", term, i, ix.Terms[term].Single), doc)
		}
	}
	for _, term := range sortedKeys(ix.TitleTerms) {
		for i, doc := range ix.TitleTerms[term].Docs {
			checkDoc(refPath("titleterms", term, i, ix.TitleTerms[term].Single), doc)
		}
	}
	for _, title := range sortedKeys(ix.AllTitles) {
		for i, ref := range ix.AllTitles[title] {
			checkDoc(fmt.Sprintf("$.alltitles%s[%d][0]", member(title), i), ref.Doc)
		}
	}
	for _, entry := range sortedKeys(ix.IndexEntries) {
		for i, ref := range ix.IndexEntries[entry] {
			checkDoc(fmt.Sprintf("$.indexentries%s[%d][0]", member(entry), i), ref.Doc)
		}
	}

	for _, prefix := range sortedKeys(ix.Objects) {
		for i, obj := range ix.Objects[prefix] {
			base := fmt.Sprintf("$.objects%s[%d]", member(prefix), i)
			checkDoc(base+"[0]", obj.Doc)
			if obj.Name == "" {
				r.fail(base+"[4]", CodeEmptyName, "object has an empty name")
			}
			_, named := ix.ObjNames[obj.TypeIdx]
			_, typed := ix.ObjTypes[obj.TypeIdx]
			if !named || !typed {
				r.fail(base+"[1]", CodeUnknownObjType, "object type %d is not described by objnames and objtypes", obj.TypeIdx)
			}
		}
	}

	for _, idx := range sortedIntKeys(ix.ObjNames) {
		name := ix.ObjNames[idx]
		objType, ok := ix.ObjTypes[idx]
		if !ok {
			r.fail(fmt.Sprintf("$.objnames.%d", idx), CodeObjTypeMismatch, "objnames entry %d has no objtypes counterpart", idx)
			continue
		}
		if want := name.Domain + ":" + name.Type; objType != want {
			r.fail(fmt.Sprintf("$.objtypes.%d", idx), CodeObjTypeMismatch, "objtypes %d is %q, objnames says %q", idx, objType, want)
		}
	}
	for _, idx := range sortedIntKeys(ix.ObjTypes) {
		if _, ok := ix.ObjNames[idx]; !ok {
			r.fail(fmt.Sprintf("$.objtypes.%d", idx), CodeObjTypeMismatch, "objtypes entry %d has no objnames counterpart", idx)
		}
	}

	r.summarize()
	return r
}

func refPath(section, key string, i int, single bool) string {
	if single {
		return "$." + section + member(key)
	}
	return fmt.Sprintf("$.%s%s[%d]", section, member(key), i)
}

// member renders a map key as a path segment, quoting keys that are not
// plain identifiers.
func member(key string) string {
	if key != "" && !strings.ContainsAny(key, " .[]\"'()") {
		return "." + key
	}
	return fmt.Sprintf("[%q]", key)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedIntKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
