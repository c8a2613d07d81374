package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Metadata is the decoded source document of a Record.
type Metadata map[string]any

// ParseMetadata decodes raw JSON object text. Empty text, malformed JSON and
// JSON values other than objects return an empty Metadata and an error
// wrapping ErrInvalidMetadata.
func ParseMetadata(raw string) (Metadata, error) {
	if strings.TrimSpace(raw) == "" {
		return Metadata{}, fmt.Errorf("%w: empty", ErrInvalidMetadata)
	}
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return Metadata{}, fmt.Errorf("%w: %w", ErrInvalidMetadata, err)
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return Metadata{}, fmt.Errorf("%w: got %T", ErrInvalidMetadata, decoded)
	}
	return Metadata(obj), nil
}

// Has reports whether key is present, whatever its value.
func (m Metadata) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// Text renders the value stored under key as text. Missing keys render as "".
func (m Metadata) Text(key string) string {
	return FormatValue(m[key])
}

// Truthy reports whether key is present with a non-empty, non-zero value.
func (m Metadata) Truthy(key string) bool {
	v, ok := m[key]
	if !ok {
		return false
	}
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case float64:
		return val != 0
	case bool:
		return val
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}

// First returns the text of the first truthy key, or "" if none is.
func (m Metadata) First(keys ...string) string {
	for _, key := range keys {
		if m.Truthy(key) {
			return m.Text(key)
		}
	}
	return ""
}

// String encodes the metadata back to JSON object text.
func (m Metadata) String() string {
	if m == nil {
		return "{}"
	}
	data, err := json.Marshal(map[string]any(m))
	if err != nil {
		return "{}"
	}
	return string(data)
}

// FormatValue renders a decoded JSON value as text. Integral numbers have no
// fraction, lists are joined with ", " and objects are re-encoded as JSON.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == math.Trunc(val) && !math.IsInf(val, 0) && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, FormatValue(item))
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}
