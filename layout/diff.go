package layout

import "sort"

// Diff is the membership change between two library states. A key appears
// in Added or Removed, never both — one comparison only ever sees two
// mappings. Removed entries carry the previous mapping's labels, the
// removed layout's last-known display name.
type Diff struct {
	Added   []Entry
	Removed []Entry
}

// Changed reports whether membership differs. Label-only edits do not
// count as change.
func (d Diff) Changed() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0
}

// Compare computes the case-insensitive key set difference between a
// previous and a current mapping. A nil mapping is treated as empty.
// Both result slices are sorted by key.
func Compare(previous, current *Mapping) Diff {
	if previous == nil {
		previous = NewMapping()
	}
	if current == nil {
		current = NewMapping()
	}

	var d Diff
	for lk, e := range current.entries {
		if _, ok := previous.entries[lk]; !ok {
			d.Added = append(d.Added, e)
		}
	}
	for lk, e := range previous.entries {
		if _, ok := current.entries[lk]; !ok {
			d.Removed = append(d.Removed, e)
		}
	}

	sortByKey(d.Added)
	sortByKey(d.Removed)
	return d
}

func sortByKey(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})
}
