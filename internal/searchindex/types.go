package searchindex

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Index mirrors the object passed to Search.setIndex by a Sphinx HTML build.
// Field order matches the sorted key order Sphinx writes.
type Index struct {
	AllTitles    map[string][]TitleRef `json:"alltitles"`
	DocNames     []string              `json:"docnames"`
	EnvVersion   map[string]int        `json:"envversion"`
	Filenames    []string              `json:"filenames"`
	IndexEntries map[string][]EntryRef `json:"indexentries"`
	Objects      ObjectTable           `json:"objects"`
	ObjNames     ObjNameTable          `json:"objnames"`
	ObjTypes     ObjTypeTable          `json:"objtypes"`
	Terms        map[string]DocRefs    `json:"terms"`
	Titles       []string              `json:"titles"`
	TitleTerms   map[string]DocRefs    `json:"titleterms"`
}

// DocRefs is the set of documents a term occurs in. Sphinx writes a bare
// integer when a term occurs in exactly one document; Single remembers that
// form so a rendered index matches its input.
type DocRefs struct {
	Docs   []int
	Single bool
}

// Refs builds a DocRefs in array form.
func Refs(docs ...int) DocRefs {
	return DocRefs{Docs: docs}
}

// Ref builds a DocRefs in bare-integer form.
func Ref(doc int) DocRefs {
	return DocRefs{Docs: []int{doc}, Single: true}
}

// Contains reports whether doc is referenced.
func (r DocRefs) Contains(doc int) bool {
	for _, d := range r.Docs {
		if d == doc {
			return true
		}
	}
	return false
}

func (r *DocRefs) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var docs []int
		if err := json.Unmarshal(data, &docs); err != nil {
			return fmt.Errorf("document list: %w", err)
		}
		if docs == nil {
			docs = []int{}
		}
		*r = DocRefs{Docs: docs}
		return nil
	}
	var doc int
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("document reference: %w", err)
	}
	*r = DocRefs{Docs: []int{doc}, Single: true}
	return nil
}

func (r DocRefs) MarshalJSON() ([]byte, error) {
	if r.Single && len(r.Docs) == 1 {
		return marshalValue(r.Docs[0])
	}
	docs := r.Docs
	if docs == nil {
		docs = []int{}
	}
	return marshalValue(docs)
}

// TitleRef locates a section title: [doc, anchor|null]. A nil Anchor is the
// document's own title.
type TitleRef struct {
	Doc    int
	Anchor *string
}

func (t *TitleRef) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("title reference: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("title reference: want 2 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &t.Doc); err != nil {
		return fmt.Errorf("title reference document: %w", err)
	}
	t.Anchor = nil
	if err := json.Unmarshal(raw[1], &t.Anchor); err != nil {
		return fmt.Errorf("title reference anchor: %w", err)
	}
	return nil
}

func (t TitleRef) MarshalJSON() ([]byte, error) {
	return marshalValue([]any{t.Doc, t.Anchor})
}

// AnchorOrEmpty returns the anchor, or "" for a document title.
func (t TitleRef) AnchorOrEmpty() string {
	if t.Anchor == nil {
		return ""
	}
	return *t.Anchor
}

// EntryRef locates an index directive entry: [doc, anchor, main].
type EntryRef struct {
	Doc    int
	Anchor string
	Main   bool
}

func (e *EntryRef) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("index entry: %w", err)
	}
	if len(raw) < 2 || len(raw) > 3 {
		return fmt.Errorf("index entry: want 2 or 3 elements, got %d", len(raw))
	}
	*e = EntryRef{}
	if err := json.Unmarshal(raw[0], &e.Doc); err != nil {
		return fmt.Errorf("index entry document: %w", err)
	}
	if err := json.Unmarshal(raw[1], &e.Anchor); err != nil {
		return fmt.Errorf("index entry anchor: %w", err)
	}
	if len(raw) == 3 {
		if err := json.Unmarshal(raw[2], &e.Main); err != nil {
			return fmt.Errorf("index entry main flag: %w", err)
		}
	}
	return nil
}

func (e EntryRef) MarshalJSON() ([]byte, error) {
	return marshalValue([]any{e.Doc, e.Anchor, e.Main})
}

// Object is one documented API object: [doc, objtype, prio, anchor, name].
//
// Anchor "" means the anchor is the full dotted name and "-" means
// "<objtype>-<fullname>".
type Object struct {
	Doc     int
	TypeIdx int
	Prio    int
	Anchor  string
	Name    string
}

func (o *Object) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("object: %w", err)
	}
	if len(raw) != 5 {
		return fmt.Errorf("object: want 5 elements, got %d", len(raw))
	}
	fields := []any{&o.Doc, &o.TypeIdx, &o.Prio, &o.Anchor, &o.Name}
	for i, f := range fields {
		if err := json.Unmarshal(raw[i], f); err != nil {
			return fmt.Errorf("object element %d: %w", i, err)
		}
	}
	return nil
}

func (o Object) MarshalJSON() ([]byte, error) {
	return marshalValue([]any{o.Doc, o.TypeIdx, o.Prio, o.Anchor, o.Name})
}

// ObjectTable maps a dotted prefix ("" for top level) to the objects under
// it. Indexes written before Sphinx 7.3 use a name-keyed object per prefix
// with 4-element tuples; both forms are accepted and rendered as lists.
type ObjectTable map[string][]Object

func (t *ObjectTable) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("objects: %w", err)
	}
	table := make(ObjectTable, len(raw))
	for prefix, value := range raw {
		value = bytes.TrimSpace(value)
		if len(value) > 0 && value[0] == '{' {
			objs, err := legacyObjects(value)
			if err != nil {
				return fmt.Errorf("objects[%q]: %w", prefix, err)
			}
			table[prefix] = objs
			continue
		}
		var objs []Object
		if err := json.Unmarshal(value, &objs); err != nil {
			return fmt.Errorf("objects[%q]: %w", prefix, err)
		}
		table[prefix] = objs
	}
	*t = table
	return nil
}

func legacyObjects(data []byte) ([]Object, error) {
	var byName map[string][]json.RawMessage
	if err := json.Unmarshal(data, &byName); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	objs := make([]Object, 0, len(names))
	for _, name := range names {
		raw := byName[name]
		if len(raw) != 4 {
			return nil, fmt.Errorf("%s: want 4 elements, got %d", name, len(raw))
		}
		o := Object{Name: name}
		fields := []any{&o.Doc, &o.TypeIdx, &o.Prio, &o.Anchor}
		for i, f := range fields {
			if err := json.Unmarshal(raw[i], f); err != nil {
				return nil, fmt.Errorf("%s element %d: %w", name, i, err)
			}
		}
		objs = append(objs, o)
	}
	return objs, nil
}

// ObjName describes an object type: [domain, type, label],
// e.g. ["py", "method", "Python method"].
type ObjName struct {
	Domain string
	Type   string
	Label  string
}

func (n *ObjName) UnmarshalJSON(data []byte) error {
	var parts []string
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("object name: %w", err)
	}
	if len(parts) != 3 {
		return fmt.Errorf("object name: want 3 elements, got %d", len(parts))
	}
	*n = ObjName{Domain: parts[0], Type: parts[1], Label: parts[2]}
	return nil
}

func (n ObjName) MarshalJSON() ([]byte, error) {
	return marshalValue([]string{n.Domain, n.Type, n.Label})
}

// ObjNameTable maps an object type index to its description.
type ObjNameTable map[int]ObjName

// MarshalJSON writes the keys in numeric order, as Python's sort_keys does
// for integer keys.
func (t ObjNameTable) MarshalJSON() ([]byte, error) {
	return marshalIntKeyed(map[int]ObjName(t))
}

// ObjTypeTable maps an object type index to "domain:type".
type ObjTypeTable map[int]string

func (t ObjTypeTable) MarshalJSON() ([]byte, error) {
	return marshalIntKeyed(map[int]string(t))
}

func marshalIntKeyed[V any](m map[int]V) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range sortedIntKeys(m) {
		if i > 0 {
			buf.WriteByte(',')
		}
		v, err := marshalValue(m[k])
		if err != nil {
			return nil, err
		}
		buf.WriteString(`"` + strconv.Itoa(k) + `":`)
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalValue encodes v without HTML escaping; json.dumps leaves <, > and &
// alone.
func marshalValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Document is a convenience view over the parallel docnames, filenames and
// titles arrays.
type Document struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Filename string `json:"filename"`
	Title    string `json:"title"`
}

// Documents returns one Document per docname. Missing filenames or titles
// (an inconsistent index) are left empty.
func (ix *Index) Documents() []Document {
	docs := make([]Document, len(ix.DocNames))
	for i, name := range ix.DocNames {
		docs[i] = Document{ID: i, Name: name}
		if i < len(ix.Filenames) {
			docs[i].Filename = ix.Filenames[i]
		}
		if i < len(ix.Titles) {
			docs[i].Title = ix.Titles[i]
		}
	}
	return docs
}

// Title returns the title of doc, or "" when doc is out of range.
func (ix *Index) Title(doc int) string {
	if doc < 0 || doc >= len(ix.Titles) {
		return ""
	}
	return ix.Titles[doc]
}

// DocName returns the docname of doc, or "" when doc is out of range.
func (ix *Index) DocName(doc int) string {
	if doc < 0 || doc >= len(ix.DocNames) {
		return ""
	}
	return ix.DocNames[doc]
}

// Filename returns the source filename of doc, or "" when doc is out of range.
func (ix *Index) Filename(doc int) string {
	if doc < 0 || doc >= len(ix.Filenames) {
		return ""
	}
	return ix.Filenames[doc]
}

// ObjectTypeLabel returns the human label for an object type index
// ("Python method"), falling back to the objtypes entry.
func (ix *Index) ObjectTypeLabel(idx int) string {
	if n, ok := ix.ObjNames[idx]; ok {
		return n.Label
	}
	return ix.ObjTypes[idx]
}

// ObjectTypeName returns the bare type name ("method") for idx.
func (ix *Index) ObjectTypeName(idx int) string {
	if n, ok := ix.ObjNames[idx]; ok {
		return n.Type
	}
	if t, ok := ix.ObjTypes[idx]; ok {
		if i := strings.IndexByte(t, ':'); i >= 0 {
			return t[i+1:]
		}
		return t
	}
	return ""
}

// NamedObject is an object together with its full dotted name.
type NamedObject struct {
	Object
	Prefix   string
	FullName string
}

// AllObjects returns every object, ordered by prefix and then by table order.
func (ix *Index) AllObjects() []NamedObject {
	prefixes := make([]string, 0, len(ix.Objects))
	for prefix := range ix.Objects {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)

	var out []NamedObject
	for _, prefix := range prefixes {
		for _, obj := range ix.Objects[prefix] {
			full := obj.Name
			if prefix != "" {
				full = prefix + "." + obj.Name
			}
			out = append(out, NamedObject{Object: obj, Prefix: prefix, FullName: full})
		}
	}
	return out
}

// ObjectAnchor expands the anchor shorthands Sphinx stores: "" stands for
// the full name and "-" for "<objtype>-<fullname>".
func (ix *Index) ObjectAnchor(o NamedObject) string {
	switch o.Anchor {
	case "":
		return o.FullName
	case "-":
		return ix.ObjectTypeName(o.TypeIdx) + "-" + o.FullName
	}
	return o.Anchor
}

// normalize replaces nil maps and slices so a rendered index never contains
// null where Sphinx writes an empty container.
func (ix *Index) normalize() {
	if ix.AllTitles == nil {
		ix.AllTitles = map[string][]TitleRef{}
	}
	if ix.DocNames == nil {
		ix.DocNames = []string{}
	}
	if ix.EnvVersion == nil {
		ix.EnvVersion = map[string]int{}
	}
	if ix.Filenames == nil {
		ix.Filenames = []string{}
	}
	if ix.IndexEntries == nil {
		ix.IndexEntries = map[string][]EntryRef{}
	}
	if ix.Objects == nil {
		ix.Objects = ObjectTable{}
	}
	if ix.ObjNames == nil {
		ix.ObjNames = ObjNameTable{}
	}
	if ix.ObjTypes == nil {
		ix.ObjTypes = ObjTypeTable{}
	}
	if ix.Terms == nil {
		ix.Terms = map[string]DocRefs{}
	}
	if ix.Titles == nil {
		ix.Titles = []string{}
	}
	if ix.TitleTerms == nil {
		ix.TitleTerms = map[string]DocRefs{}
	}
}
