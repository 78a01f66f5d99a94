package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Clone deep-copies a document so callers never share nested maps or slices.
func Clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Document:
		return Clone(t)
	case map[string]any:
		return map[string]any(Clone(Document(t)))
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Encode converts a struct into a Document through its JSON representation.
func Encode(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}
	return doc, nil
}

// Decode fills dest from a Document through its JSON representation.
func Decode(doc Document, dest any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("docstore: decode: %w", err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("docstore: decode: %w", err)
	}
	return nil
}

// equalValues compares a stored value with a filter value. Numbers are
// compared by value so an int filter matches a float64 decoded from JSON.
func equalValues(stored, want any) bool {
	if sf, ok := toFloat(stored); ok {
		if wf, ok := toFloat(want); ok {
			return sf == wf
		}
	}
	return reflect.DeepEqual(stored, want)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
