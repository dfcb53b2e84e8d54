package route

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Header is a single response header as stored, casing untouched.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HeaderSet is an insertion-ordered list of response headers. It encodes as
// a JSON object / YAML mapping so stored documents stay readable, but keeps
// the order in which the entries were written.
type HeaderSet []Header

// Get returns the first value whose name case-insensitively equals name.
func (h HeaderSet) Get(name string) (string, bool) {
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			return hdr.Value, true
		}
	}
	return "", false
}

// Has reports whether a header with the given name exists, ignoring case.
func (h HeaderSet) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// Clone returns a copy that shares no backing array with h.
func (h HeaderSet) Clone() HeaderSet {
	if h == nil {
		return nil
	}
	out := make(HeaderSet, len(h))
	copy(out, h)
	return out
}

// MarshalJSON writes the set as a JSON object in insertion order.
func (h HeaderSet) MarshalJSON() ([]byte, error) {
	if h == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, hdr := range h {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(hdr.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(hdr.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object and keeps its key order. String values
// are taken as-is, numbers and booleans by their literal text, null as "".
// Nested objects and arrays are rejected.
func (h *HeaderSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*h = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("headers must be a JSON object")
	}

	out := HeaderSet{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := keyTok.(string)

		valTok, err := dec.Token()
		if err != nil {
			return err
		}
		var value string
		switch v := valTok.(type) {
		case string:
			value = v
		case json.Number:
			value = v.String()
		case bool:
			value = fmt.Sprint(v)
		case nil:
			value = ""
		default:
			return fmt.Errorf("header %q: value must be a scalar", name)
		}
		out = append(out, Header{Name: name, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*h = out
	return nil
}

// MarshalYAML writes the set as an ordered YAML mapping.
func (h HeaderSet) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, hdr := range h {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: hdr.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Value: hdr.Value, Style: yaml.DoubleQuotedStyle},
		)
	}
	return node, nil
}

// UnmarshalYAML reads a YAML mapping and keeps its key order. Scalars are
// taken by their source text, so `X-Count: 2` yields "2".
func (h *HeaderSet) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*h = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: headers must be a mapping", node.Line)
	}
	out := make(HeaderSet, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: header %q must have a scalar value", val.Line, key.Value)
		}
		value := val.Value
		if val.Tag == "!!null" {
			value = ""
		}
		out = append(out, Header{Name: key.Value, Value: value})
	}
	*h = out
	return nil
}
