package simplecache

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DeriveKey computes the cache key for a call. altKey, when non-nil, is used
// as the key source and excludeKeys is ignored. Otherwise fields named in
// excludeKeys are removed from options at every nesting level of plain
// objects; arrays are kept as values and not walked.
//
// The result is JSON text with object fields sorted and numbers kept exactly
// as encoded. A nil source encodes as "null".
func DeriveKey(options any, excludeKeys []string, altKey any) (string, error) {
	src := options
	if altKey != nil {
		src = altKey
		excludeKeys = nil
	}

	v, err := normalize(src)
	if err != nil {
		return "", err
	}
	if len(excludeKeys) > 0 {
		drop := make(map[string]struct{}, len(excludeKeys))
		for _, k := range excludeKeys {
			drop[k] = struct{}{}
		}
		v = filterKeys(v, drop)
	}
	return encode(v)
}

// normalize round-trips v through JSON into maps, slices and json.Number so
// that struct, map and raw JSON sources produce identical keys.
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("simplecache: encode key source: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("simplecache: decode key source: %w", err)
	}
	return out, nil
}

func filterKeys(v any, drop map[string]struct{}) any {
	obj, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(obj))
	for k, val := range obj {
		if _, skip := drop[k]; skip {
			continue
		}
		out[k] = filterKeys(val, drop)
	}
	return out
}

// encode writes v without HTML escaping so keys match those produced by
// plain JSON serializers in other runtimes, which matters for primed
// snapshots.
func encode(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("simplecache: encode key: %w", err)
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}
