package printer

import "strconv"

// The firmware is inconsistent about scalar encodings: the same field can
// arrive as a JSON number on one model and a quoted string on another.
// These helpers accept either and report failure instead of guessing.

// asInt converts a decoded JSON value to int.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		if n == "" {
			return 0, false
		}
		i, err := strconv.Atoi(n)
		if err != nil {
			// Some firmware reports integers as "1.0".
			f, ferr := strconv.ParseFloat(n, 64)
			if ferr != nil {
				return 0, false
			}
			return int(f), true
		}
		return i, true
	default:
		return 0, false
	}
}

// asFloat converts a decoded JSON value to float64.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		if n == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// asString converts a decoded JSON value to string.
func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// asHexBits converts a decoded JSON value holding a hex bitmask (reported
// as a bare hex string, e.g. "3" or "f0") to uint64.
func asHexBits(v any) (uint64, bool) {
	switch n := v.(type) {
	case float64:
		return uint64(n), true
	case string:
		if n == "" {
			return 0, false
		}
		bits, err := strconv.ParseUint(n, 16, 64)
		if err != nil {
			return 0, false
		}
		return bits, true
	default:
		return 0, false
	}
}

// asMap converts a decoded JSON value to an object.
func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// asSlice converts a decoded JSON value to an array.
func asSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

// intField reads an int field from a report object, nil when absent or
// malformed.
func intField(m map[string]any, key string) *int {
	v, ok := m[key]
	if !ok {
		return nil
	}
	i, ok := asInt(v)
	if !ok {
		return nil
	}
	return &i
}

// floatField reads a float field from a report object, nil when absent or
// malformed.
func floatField(m map[string]any, key string) *float64 {
	v, ok := m[key]
	if !ok {
		return nil
	}
	f, ok := asFloat(v)
	if !ok {
		return nil
	}
	return &f
}

// stringField reads a string field from a report object, nil when absent.
func stringField(m map[string]any, key string) *string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	s, ok := asString(v)
	if !ok {
		return nil
	}
	return &s
}
