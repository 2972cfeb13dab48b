package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Document is a semi-structured JSON object (scene, mood, composition, ...).
// Its shape varies by enrichment version, so it is kept as a generic tree.
type Document map[string]any

// ParseDocument decodes raw JSON into a Document. Empty input and JSON null yield nil.
func ParseDocument(raw []byte) (Document, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var d Document
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return d, nil
}

// Lookup walks nested objects along path. It reports false when any step is
// missing or is not an object.
func (d Document) Lookup(path ...string) (any, bool) {
	if d == nil || len(path) == 0 {
		return nil, false
	}
	var cur any = map[string]any(d)
	for _, key := range path {
		obj, ok := asObject(cur)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the string at key, or "" when absent or not a string.
func (d Document) String(key string) string {
	v, ok := d.Lookup(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Strings returns the string elements of the array at key. Non-string
// elements are skipped; a single string is returned as a one-element slice.
func (d Document) Strings(key string) []string {
	v, ok := d.Lookup(key)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	case string:
		return []string{t}
	}
	return nil
}

// Bool resolves path to a boolean the way a Postgres ::boolean cast would.
// The second return is false when the value is missing or not boolean-like.
func (d Document) Bool(path ...string) (bool, bool) {
	v, ok := d.Lookup(path...)
	if !ok || v == nil {
		return false, false
	}
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "t", "true", "y", "yes", "on", "1":
			return true, true
		case "f", "false", "n", "no", "off", "0":
			return false, true
		}
	}
	return false, false
}

// Int resolves path to an integer. JSON numbers with a fractional part and
// non-numeric strings are rejected.
func (d Document) Int(path ...string) (int, bool) {
	v, ok := d.Lookup(path...)
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		if t != float64(int(t)) {
			return 0, false
		}
		return int(t), true
	case int:
		return t, true
	case int64:
		return int(t), true
	case json.Number:
		n, err := strconv.Atoi(t.String())
		return n, err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}

// Object returns the nested object at key, or nil.
func (d Document) Object(key string) Document {
	v, ok := d.Lookup(key)
	if !ok {
		return nil
	}
	obj, _ := asObject(v)
	return obj
}

func asObject(v any) (Document, bool) {
	switch t := v.(type) {
	case Document:
		return t, true
	case map[string]any:
		return Document(t), true
	}
	return nil, false
}
