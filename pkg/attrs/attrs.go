// Package attrs reads values back out of slog-style key/value slices.
package attrs

import "time"

// ExtractString extracts a string value from a key-value attribute slice.
// The slice should be formatted as [key1, value1, key2, value2, ...].
// Returns empty string if the key is not found or the value is not a string.
func ExtractString(attrs []any, key string) string {
	if v, ok := lookup(attrs, key).(string); ok {
		return v
	}
	return ""
}

// ExtractDuration extracts a time.Duration value; ok is false when the key is
// absent or holds another type.
func ExtractDuration(attrs []any, key string) (time.Duration, bool) {
	d, ok := lookup(attrs, key).(time.Duration)
	return d, ok
}

func lookup(attrs []any, key string) any {
	for i := 0; i < len(attrs)-1; i += 2 {
		if k, ok := attrs[i].(string); ok && k == key {
			return attrs[i+1]
		}
	}
	return nil
}
