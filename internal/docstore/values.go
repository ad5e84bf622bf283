package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// TimeLayout is the fixed-width UTC layout used for every stored timestamp, so that
// lexical order of stored values equals chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

type serverTimestamp struct{}

// ServerTimestamp is a sentinel value replaced by the store clock when a write is applied.
var ServerTimestamp = serverTimestamp{}

// FormatTime renders t the way the store persists timestamps.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime decodes a stored timestamp value.
func ParseTime(value any) (time.Time, bool) {
	raw, ok := value.(string)
	if !ok || raw == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return parsed.UTC(), true
}

// normalizeDocument resolves sentinels and converts data into its JSON shape (numbers as
// float64, timestamps as strings) so in-memory comparisons match what is read back.
func normalizeDocument(data map[string]any, now time.Time) (map[string]any, error) {
	if data == nil {
		return map[string]any{}, nil
	}
	resolved := resolveValue(data, now)
	raw, err := json.Marshal(resolved)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode document: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("docstore: decode document: %w", err)
	}
	return out, nil
}

// normalizeValue converts a single query operand into its stored representation.
func normalizeValue(value any) any {
	resolved := resolveValue(value, time.Time{})
	raw, err := json.Marshal(resolved)
	if err != nil {
		return resolved
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return resolved
	}
	return out
}

func resolveValue(value any, now time.Time) any {
	switch v := value.(type) {
	case serverTimestamp:
		return FormatTime(now)
	case time.Time:
		return FormatTime(v)
	case *time.Time:
		if v == nil {
			return nil
		}
		return FormatTime(*v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = resolveValue(item, now)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = resolveValue(item, now)
		}
		return out
	default:
		return value
	}
}

// mergeInto applies patch onto base field by field; nested maps merge recursively and
// every other value replaces the existing one.
func mergeInto(base, patch map[string]any) map[string]any {
	if base == nil {
		base = map[string]any{}
	}
	for key, value := range patch {
		incoming, incomingIsMap := value.(map[string]any)
		existing, existingIsMap := base[key].(map[string]any)
		if incomingIsMap && existingIsMap {
			base[key] = mergeInto(existing, incoming)
			continue
		}
		base[key] = value
	}
	return base
}

// setPath assigns value at a dotted field path, creating intermediate maps.
func setPath(doc map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

// lookupPath returns the value stored at a dotted field path.
func lookupPath(doc map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = doc
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// compareValues orders two stored values of the same kind. ok is false when the values
// are not comparable (different kinds or unsupported types).
func compareValues(a, b any) (cmp int, ok bool) {
	switch av := a.(type) {
	case nil:
		if b == nil {
			return 0, true
		}
		return -1, true
	case float64:
		bv, isNum := b.(float64)
		if !isNum {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case string:
		bv, isString := b.(string)
		if !isString {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, isBool := b.(bool)
		if !isBool {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	}
	if b == nil {
		return 1, true
	}
	return 0, false
}

func valuesEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
