// Package layout extracts the layout library from an application settings
// document and compares two library states.
//
// The settings file is XML; the library itself is a JSON array of
// {Key, Value} records embedded in the text of a value node. Extraction is
// deliberately tolerant: a malformed payload degrades to a partial mapping,
// never to an error, because the worst acceptable outcome is missing
// entries, not a crashed cycle.
package layout

import (
	"sort"
	"strings"
)

// Entry is one layout in the library: a stable key plus its display label.
type Entry struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Mapping is the key → label index built from one document state. Keys are
// compared case-insensitively. A Mapping is built once per extraction and
// never mutated afterwards; each cycle replaces it wholesale.
type Mapping struct {
	entries map[string]Entry // keyed by lower-cased key
}

// NewMapping returns an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{entries: make(map[string]Entry)}
}

// add records an entry, overwriting any previous entry with the same key
// regardless of case. Last write wins.
func (m *Mapping) add(key, label string) {
	m.entries[strings.ToLower(key)] = Entry{Key: key, Label: label}
}

// Len returns the number of entries.
func (m *Mapping) Len() int { return len(m.entries) }

// Lookup finds an entry by key, case-insensitively.
func (m *Mapping) Lookup(key string) (Entry, bool) {
	e, ok := m.entries[strings.ToLower(key)]
	return e, ok
}

// Entries returns all entries sorted by label, then key, for stable
// human-readable listings.
func (m *Mapping) Entries() []Entry {
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		li, lj := strings.ToLower(out[i].Label), strings.ToLower(out[j].Label)
		if li != lj {
			return li < lj
		}
		return strings.ToLower(out[i].Key) < strings.ToLower(out[j].Key)
	})
	return out
}
