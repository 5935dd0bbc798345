package layout

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

// ErrCollectionNotFound is returned when the target collection is absent
// from the document. Callers treat it as a warning, not a failure.
var ErrCollectionNotFound = errors.New("layout: collection not found")

// node is a generic XML element. Inner keeps the raw inner XML so that a
// collection can be persisted verbatim into a snapshot.
type node struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   []byte     `xml:",innerxml"`
	Nodes   []node     `xml:",any"`
}

// Document is a parsed settings file.
type Document struct {
	root node
}

// ParseDocument parses the source XML into a Document.
func ParseDocument(data []byte) (*Document, error) {
	var d Document
	if err := xml.Unmarshal(data, &d.root); err != nil {
		return nil, fmt.Errorf("layout: parse document: %w", err)
	}
	return &d, nil
}

// Collection is one named collection element, carried with its raw inner
// XML for verbatim snapshot persistence.
type Collection struct {
	name  string
	elem  xml.Name
	attrs []xml.Attr
	inner []byte
	nodes []node
}

// Name returns the collection's name attribute as it appeared in the source.
func (c *Collection) Name() string { return c.name }

// Collection locates the element whose name attribute equals target,
// case-insensitively. Element local names are ignored: any element carrying
// a matching name attribute is the collection.
func (d *Document) Collection(target string) (*Collection, error) {
	if c := findCollection(&d.root, func(name string) bool {
		return strings.EqualFold(name, target)
	}); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrCollectionNotFound, target)
}

// FirstCollection returns the first element carrying a name attribute.
// Snapshot files contain exactly one collection, so this is how they are
// read back.
func (d *Document) FirstCollection() (*Collection, error) {
	if c := findCollection(&d.root, func(string) bool { return true }); c != nil {
		return c, nil
	}
	return nil, ErrCollectionNotFound
}

// findCollection walks the tree depth-first, pre-order, and returns the
// first element whose name attribute satisfies match.
func findCollection(n *node, match func(string) bool) *Collection {
	if name, ok := attrValue(n.Attrs, "name"); ok && match(name) {
		return &Collection{
			name:  name,
			elem:  n.XMLName,
			attrs: n.Attrs,
			inner: n.Inner,
			nodes: n.Nodes,
		}
	}
	for i := range n.Nodes {
		if c := findCollection(&n.Nodes[i], match); c != nil {
			return c
		}
	}
	return nil
}

// XML reconstructs the collection element as it appeared in the source:
// original element name and attributes, raw inner XML.
func (c *Collection) XML() []byte {
	var b bytes.Buffer
	b.WriteByte('<')
	b.WriteString(c.elem.Local)
	for _, a := range c.attrs {
		b.WriteByte(' ')
		b.WriteString(a.Name.Local)
		b.WriteString(`="`)
		xml.EscapeText(&b, []byte(a.Value))
		b.WriteByte('"')
	}
	if len(bytes.TrimSpace(c.inner)) == 0 {
		b.WriteString("/>")
		return b.Bytes()
	}
	b.WriteByte('>')
	b.Write(c.inner)
	b.WriteString("</")
	b.WriteString(c.elem.Local)
	b.WriteByte('>')
	return b.Bytes()
}

// record is the typed shape of one serialized layout item.
type record struct {
	Key   string `json:"Key"`
	Value string `json:"Value"`
}

// ExtractLayouts builds the Mapping from a collection's embedded payload.
//
// The payload lives in the text of the descendant element whose name
// attribute is "value". No value node, or an empty one, means the library
// currently holds zero layouts — an empty mapping, not an error.
//
// Per record: blank keys are skipped; the label defaults to the key; when
// Value splits on "|" into at least three segments and segment index 2 is
// non-blank, that segment is the label. The index-2 convention is the
// external application's format and must not change. Duplicate keys keep
// the last occurrence.
func ExtractLayouts(c *Collection) *Mapping {
	m := NewMapping()

	payload := strings.TrimSpace(valuePayload(c))
	if payload == "" {
		return m
	}

	for _, r := range parseRecords(payload) {
		if strings.TrimSpace(r.Key) == "" {
			continue
		}
		label := r.Key
		if r.Value != "" {
			parts := strings.Split(r.Value, "|")
			if len(parts) >= 3 && strings.TrimSpace(parts[2]) != "" {
				label = parts[2]
			}
		}
		m.add(r.Key, label)
	}
	return m
}

// valuePayload finds the value node and returns its text content.
func valuePayload(c *Collection) string {
	var value *node
	for i := range c.nodes {
		if value = findValueNode(&c.nodes[i]); value != nil {
			break
		}
	}
	if value == nil {
		return ""
	}
	return textContent(value.Inner)
}

func findValueNode(n *node) *node {
	if name, ok := attrValue(n.Attrs, "name"); ok && strings.EqualFold(name, "value") {
		return n
	}
	for i := range n.Nodes {
		if v := findValueNode(&n.Nodes[i]); v != nil {
			return v
		}
	}
	return nil
}

// parseRecords decodes a JSON array of records with a streaming decoder.
// Items with the wrong shape are skipped; a syntax error ends the parse and
// whatever was accumulated so far is returned. Partial results are
// acceptable — correctness only degrades in which entries are visible.
func parseRecords(payload string) []record {
	dec := json.NewDecoder(strings.NewReader(payload))

	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil
	}

	var out []record
	for dec.More() {
		var r record
		if err := dec.Decode(&r); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				// Structurally invalid item: skip it, keep going.
				continue
			}
			return out
		}
		out = append(out, r)
	}
	return out
}

// textContent collects the character data of raw inner XML, unescaping
// entities and CDATA along the way. Stops silently at the first malformed
// token.
func textContent(inner []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(inner))
	var b strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		if cd, ok := tok.(xml.CharData); ok {
			b.Write(cd)
		}
	}
	return b.String()
}

func attrValue(attrs []xml.Attr, name string) (string, bool) {
	for _, a := range attrs {
		if strings.EqualFold(a.Name.Local, name) {
			return a.Value, true
		}
	}
	return "", false
}
