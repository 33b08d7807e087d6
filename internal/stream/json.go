package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/BartekS5/streamkit/pkg/utils"
)

// JSONLines writes one JSON object per line. Decoding turns integers into
// int64 and other numbers into float64.
type JSONLines struct{}

func (JSONLines) Kind() Kind         { return KindJSONLines }
func (JSONLines) Extension() string  { return "njson" }
func (JSONLines) MimeType() string   { return "application/x-ndjson" }
func (JSONLines) Strategy() Strategy { return PullThrough }

func (JSONLines) Encode(r Record) ([]byte, error) {
	return encodeJSONLine(r)
}

func (JSONLines) Decode(data []byte) (Record, error) {
	return decodeJSONLine(data)
}

// NormalizedJSON is JSONLines with every key, at any depth, rewritten by
// NormalizeKey.
type NormalizedJSON struct{}

func (NormalizedJSON) Kind() Kind         { return KindNormalizedJSON }
func (NormalizedJSON) Extension() string  { return "njson" }
func (NormalizedJSON) MimeType() string   { return "application/x-ndjson" }
func (NormalizedJSON) Strategy() Strategy { return PullThrough }

func (NormalizedJSON) Encode(r Record) ([]byte, error) {
	return encodeJSONLine(normalizeKeys(map[string]any(r)))
}

func (NormalizedJSON) Decode(data []byte) (Record, error) {
	r, err := decodeJSONLine(data)
	if err != nil {
		return nil, err
	}
	return Record(normalizeKeys(map[string]any(r))), nil
}

var keyReplacer = strings.NewReplacer(
	" ", "_",
	"-", "_",
	".", "_",
	"(", "",
	")", "",
	"/", "",
	"\\", "",
)

// NormalizeKey lower-cases and trims key, turns spaces, dashes and dots into
// underscores and drops parentheses and slashes.
func NormalizeKey(key string) string {
	return keyReplacer.Replace(strings.ToLower(strings.TrimSpace(key)))
}

// normalizeKeys rewrites keys recursively. When two keys collide, the one
// sorting last wins.
func normalizeKeys(m map[string]any) map[string]any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(m))
	for _, k := range keys {
		out[NormalizeKey(k)] = normalizeNested(m[k])
	}
	return out
}

func normalizeNested(v any) any {
	switch t := v.(type) {
	case Record:
		return normalizeKeys(map[string]any(t))
	case map[string]any:
		return normalizeKeys(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalizeNested(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalizeKeys(item)
		}
		return out
	default:
		return v
	}
}

func encodeJSONLine(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding json record: %w", err)
	}
	return append(data, '\n'), nil
}

func decodeJSONLine(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding json record: %w", err)
	}
	return Record(utils.NormalizeMap(m)), nil
}
