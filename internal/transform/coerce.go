package transform

import (
	"encoding/base64"
	"reflect"
	"sort"
	"time"
)

const dateOnlyLayout = "2006-01-02"

// CoerceValue converts a source value into its document-safe
// representation:
//   - date-only values become midnight-anchored datetimes
//   - set-like values become ordered sequences
//   - binary blobs become base64 text
//   - opaque structured values become their plain-field representation
//
// Values that need no conversion pass through unchanged.
func CoerceValue(value any) any {
	switch val := value.(type) {
	case nil:
		return nil
	case time.Time:
		return val
	case string:
		if t, ok := parseDateOnly(val); ok {
			return t
		}
		return val
	case []byte:
		return base64.StdEncoding.EncodeToString(val)
	case map[string]struct{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys
	case map[string]bool:
		keys := make([]string, 0, len(val))
		for k, member := range val {
			if member {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		return keys
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CoerceValue(item)
		}
		return out
	default:
		return coerceStructured(value)
	}
}

// parseDateOnly recognizes a bare date and anchors it to midnight.
func parseDateOnly(s string) (time.Time, bool) {
	if len(s) != len(dateOnlyLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(dateOnlyLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// coerceStructured flattens struct values (and pointers to them) into
// maps of their exported fields. Scalars fall through unchanged.
func coerceStructured(value any) any {
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return value
	}
	if _, isTime := rv.Interface().(time.Time); isTime {
		return rv.Interface()
	}

	rt := rv.Type()
	out := make(map[string]any, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		out[field.Name] = CoerceValue(rv.Field(i).Interface())
	}
	return out
}
