package platform

import "strconv"

// Int64 converts a decoded numeric value to int64.
// JSON numbers decode as float64; strings are parsed as a fallback.
func Int64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case float32:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// String returns v as a string, or "" when v is not a string.
func String(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// Bool returns v as a bool, or false when v is not a bool.
func Bool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}
