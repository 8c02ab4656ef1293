// Package hasher provides the stable content-hash primitive used by the
// build cache, float/view deduplication, and external-render task keys
// (§2 "Hasher").
package hasher

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Bytes returns the hex-encoded SHA-1 of b.
func Bytes(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

// String is a convenience wrapper over Bytes for text content.
func String(s string) string {
	return Bytes([]byte(s))
}

// Canonical returns a stable SHA-1 over a structured value by first
// encoding it to JSON with map keys sorted, so that two semantically
// equal values (e.g. the same attribute set built in different source
// order) hash identically.
func Canonical(v any) (string, error) {
	b, err := canonicalJSON(v)
	if err != nil {
		return "", err
	}
	return Bytes(b), nil
}

// canonicalJSON marshals v via the standard encoding/json round trip
// through a generic map so that struct field order never affects the
// byte stream, then re-marshals with keys already sorted by Go's map
// iteration-independent encoder (encoding/json sorts map keys).
func canonicalJSON(v any) ([]byte, error) {
	first, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var generic any
	if err := json.Unmarshal(first, &generic); err != nil {
		return nil, err
	}

	return marshalSorted(generic)
}

func marshalSorted(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			kb, _ := json.Marshal(k)
			out = append(out, kb...)
			out = append(out, ':')
			vb, err := marshalSorted(val[k])
			if err != nil {
				return nil, err
			}
			out = append(out, vb...)
		}
		out = append(out, '}')
		return out, nil
	case []any:
		out := []byte{'['}
		for i, item := range val {
			if i > 0 {
				out = append(out, ',')
			}
			ib, err := marshalSorted(item)
			if err != nil {
				return nil, err
			}
			out = append(out, ib...)
		}
		out = append(out, ']')
		return out, nil
	default:
		return json.Marshal(val)
	}
}
