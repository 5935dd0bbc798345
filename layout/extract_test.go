package layout

import (
	"errors"
	"strings"
	"testing"
)

const sourceDoc = `<?xml version="1.0" encoding="utf-8"?>
<settings>
  <collection name="Preferences">
    <property name="value">{"theme":"dark"}</property>
  </collection>
  <collection name="Layouts">
    <property name="value">[{"Key":"grid","Value":"1|0|Grid View"},{"Key":"list","Value":"1|0|List View"}]</property>
  </collection>
</settings>`

func mustCollection(t *testing.T, doc, name string) *Collection {
	t.Helper()
	d, err := ParseDocument([]byte(doc))
	if err != nil {
		t.Fatalf("parse document: %v", err)
	}
	c, err := d.Collection(name)
	if err != nil {
		t.Fatalf("collection %q: %v", name, err)
	}
	return c
}

// payloadDoc wraps a raw payload string in a minimal settings document.
func payloadDoc(payload string) string {
	return `<settings><collection name="Layouts"><property name="value">` +
		payload + `</property></collection></settings>`
}

func TestCollectionLookup_CaseInsensitive(t *testing.T) {
	// WHAT: Collection names match regardless of case.
	// WHY: The source application is not consistent about casing.
	c := mustCollection(t, sourceDoc, "layouts")
	if c.Name() != "Layouts" {
		t.Errorf("Name: got %q, want %q", c.Name(), "Layouts")
	}
}

func TestCollectionMissing(t *testing.T) {
	d, err := ParseDocument([]byte(sourceDoc))
	if err != nil {
		t.Fatalf("parse document: %v", err)
	}
	_, err = d.Collection("Workspaces")
	if !errors.Is(err, ErrCollectionNotFound) {
		t.Errorf("error: got %v, want ErrCollectionNotFound", err)
	}
}

func TestExtract_Basic(t *testing.T) {
	m := ExtractLayouts(mustCollection(t, sourceDoc, "Layouts"))
	if m.Len() != 2 {
		t.Fatalf("Len: got %d, want 2", m.Len())
	}
	e, ok := m.Lookup("GRID")
	if !ok {
		t.Fatal("Lookup(GRID) should find the grid entry")
	}
	if e.Label != "Grid View" {
		t.Errorf("Label: got %q, want %q", e.Label, "Grid View")
	}
}

func TestExtract_NoValueNode(t *testing.T) {
	// WHAT: A collection without a value node yields an empty mapping.
	// WHY: Zero layouts is a normal library state, not an error.
	doc := `<settings><collection name="Layouts"><property name="other">x</property></collection></settings>`
	m := ExtractLayouts(mustCollection(t, doc, "Layouts"))
	if m.Len() != 0 {
		t.Errorf("Len: got %d, want 0", m.Len())
	}
}

func TestExtract_EmptyPayload(t *testing.T) {
	m := ExtractLayouts(mustCollection(t, payloadDoc("  "), "Layouts"))
	if m.Len() != 0 {
		t.Errorf("Len: got %d, want 0", m.Len())
	}
}

func TestExtract_LabelRules(t *testing.T) {
	// WHAT: The label is pipe segment index 2 when present and non-blank,
	// otherwise the key itself.
	// WHY: Positional convention of the external format — index 2 exactly.
	cases := []struct {
		name  string
		value string
		want  string
	}{
		{"empty value", "", "k"},
		{"one segment", "solo", "k"},
		{"two segments", "a|b", "k"},
		{"three segments", "a|b|Label", "Label"},
		{"blank third segment", "a|b|   ", "k"},
		{"four segments", "a|b|Third|d", "Third"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := payloadDoc(`[{"Key":"k","Value":"` + tc.value + `"}]`)
			m := ExtractLayouts(mustCollection(t, doc, "Layouts"))
			e, ok := m.Lookup("k")
			if !ok {
				t.Fatal("entry k should exist")
			}
			if e.Label != tc.want {
				t.Errorf("Label: got %q, want %q", e.Label, tc.want)
			}
		})
	}
}

func TestExtract_DuplicateKeysLastWins(t *testing.T) {
	doc := payloadDoc(`[` +
		`{"Key":"Grid","Value":"a|b|First"},` +
		`{"Key":"other","Value":"a|b|Other"},` +
		`{"Key":"GRID","Value":"a|b|Second"}]`)
	m := ExtractLayouts(mustCollection(t, doc, "Layouts"))
	if m.Len() != 2 {
		t.Fatalf("Len: got %d, want 2", m.Len())
	}
	e, _ := m.Lookup("grid")
	if e.Label != "Second" {
		t.Errorf("Label: got %q, want %q (last occurrence wins)", e.Label, "Second")
	}
	if e.Key != "GRID" {
		t.Errorf("Key: got %q, want %q", e.Key, "GRID")
	}
}

func TestExtract_SkipsBlankKeys(t *testing.T) {
	doc := payloadDoc(`[{"Key":"","Value":"a|b|X"},{"Key":"  ","Value":"a|b|Y"},{"Key":"ok","Value":""}]`)
	m := ExtractLayouts(mustCollection(t, doc, "Layouts"))
	if m.Len() != 1 {
		t.Errorf("Len: got %d, want 1", m.Len())
	}
}

func TestExtract_MalformedTailKeepsPartial(t *testing.T) {
	// WHAT: A syntax error mid-payload returns the records parsed so far.
	// WHY: Partial visibility beats a crashed cycle.
	doc := payloadDoc(`[{"Key":"a","Value":"x|y|A"},{"Key":"b","Value":"x|y|B"},{"Key":`)
	m := ExtractLayouts(mustCollection(t, doc, "Layouts"))
	if m.Len() != 2 {
		t.Fatalf("Len: got %d, want 2", m.Len())
	}
	if _, ok := m.Lookup("b"); !ok {
		t.Error("entry b should survive the malformed tail")
	}
}

func TestExtract_SkipsInvalidItems(t *testing.T) {
	// WHAT: A structurally invalid item is skipped; later items still parse.
	doc := payloadDoc(`[{"Key":"a"},{"Key":42,"Value":"x"},{"Key":"c","Value":"x|y|C"}]`)
	m := ExtractLayouts(mustCollection(t, doc, "Layouts"))
	if m.Len() != 2 {
		t.Fatalf("Len: got %d, want 2", m.Len())
	}
	if _, ok := m.Lookup("c"); !ok {
		t.Error("entry c should parse after the invalid item")
	}
}

func TestExtract_NonArrayPayload(t *testing.T) {
	doc := payloadDoc(`{"Key":"a"}`)
	m := ExtractLayouts(mustCollection(t, doc, "Layouts"))
	if m.Len() != 0 {
		t.Errorf("Len: got %d, want 0", m.Len())
	}
}

func TestCollectionXML_Verbatim(t *testing.T) {
	// WHAT: XML() reproduces the element with its raw inner content.
	// WHY: Snapshots persist the collection bit-for-bit.
	c := mustCollection(t, sourceDoc, "Layouts")
	out := string(c.XML())
	if !strings.HasPrefix(out, `<collection name="Layouts">`) {
		t.Errorf("XML should open with the original element, got: %.60s", out)
	}
	if !strings.Contains(out, `{"Key":"grid","Value":"1|0|Grid View"}`) {
		t.Errorf("XML should carry the raw payload, got: %s", out)
	}
	if !strings.HasSuffix(out, "</collection>") {
		t.Errorf("XML should close the element, got: %.40s", out[len(out)-40:])
	}
}

func TestEntries_SortedByLabel(t *testing.T) {
	doc := payloadDoc(`[{"Key":"z","Value":"a|b|Alpha"},{"Key":"a","Value":"a|b|Zulu"},{"Key":"m","Value":"a|b|Mike"}]`)
	m := ExtractLayouts(mustCollection(t, doc, "Layouts"))
	entries := m.Entries()
	got := []string{entries[0].Label, entries[1].Label, entries[2].Label}
	want := []string{"Alpha", "Mike", "Zulu"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Entries[%d].Label: got %q, want %q", i, got[i], want[i])
		}
	}
}
