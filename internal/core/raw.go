package core

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Top-level document keys.
const (
	KeyUser         = "user"
	KeyPreferences  = "preferences"
	KeyIntegrations = "integrations"
	KeyIA           = "ia"
)

// DocumentKeys lists the top-level keys a full document carries.
func DocumentKeys() []string {
	return []string{KeyUser, KeyPreferences, KeyIntegrations, KeyIA}
}

// RawDocument is the top-level-key view of a stored or fetched document.
// Unknown keys are preserved.
type RawDocument map[string]json.RawMessage

// ParseRaw parses data as a JSON object.
func ParseRaw(data []byte) (RawDocument, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("document is not a JSON object")
	}
	var raw RawDocument
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	if raw == nil {
		raw = RawDocument{}
	}
	return raw, nil
}

// Clone returns a shallow copy; the raw messages themselves are immutable.
func (r RawDocument) Clone() RawDocument {
	out := make(RawDocument, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Bytes serializes the document with sorted keys.
func (r RawDocument) Bytes() ([]byte, error) {
	if r == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]json.RawMessage(r))
}

// IsObject reports whether key holds a JSON object.
func (r RawDocument) IsObject(key string) bool {
	v, ok := r[key]
	if !ok {
		return false
	}
	v = bytes.TrimSpace(v)
	return len(v) > 0 && v[0] == '{'
}

// Encode produces the canonical raw view of doc.
func Encode(doc ConfigDocument) RawDocument {
	raw := make(RawDocument, 4)
	for key, part := range map[string]any{
		KeyUser:         doc.User,
		KeyPreferences:  doc.Preferences,
		KeyIntegrations: doc.Integrations,
		KeyIA:           doc.IA,
	} {
		// Plain structs of strings, ints and bools always marshal.
		b, _ := json.Marshal(part)
		raw[key] = b
	}
	return raw
}

// Decode builds a document from raw, starting from the defaults. Every
// tracked field is looked up at its path (then its aliases) and coerced to
// the field's kind; values of the wrong type keep the default.
func Decode(raw RawDocument) ConfigDocument {
	doc := DefaultDocument()
	tree := make(map[string]any, len(raw))
	for k, v := range raw {
		var node any
		dec := json.NewDecoder(bytes.NewReader(v))
		dec.UseNumber()
		if err := dec.Decode(&node); err == nil {
			tree[k] = node
		}
	}
	reg := DefaultRegistry()
	for _, spec := range reg.specs {
		v, ok := lookupPath(tree, spec.Path)
		for _, alias := range spec.Aliases {
			if ok && !IsEmpty(v) {
				break
			}
			v, ok = lookupPath(tree, alias)
		}
		if !ok {
			continue
		}
		_ = spec.set(&doc, v)
	}
	return doc
}

func lookupPath(tree map[string]any, path []string) (any, bool) {
	var node any = tree
	for _, key := range path {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	if node == nil {
		return nil, false
	}
	return node, true
}
