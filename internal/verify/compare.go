package verify

import (
	"encoding/base64"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/ugdata/mysql2mongo/internal/schema"
)

// maxDiffsPerRecord bounds how many field diffs are retained per
// divergent record. The remainder is counted, not stored.
const maxDiffsPerRecord = 5

// CompareRecord compares a source row against its target document and
// returns all differing fields. Provenance fields and the identity field
// are excluded; the identity lives in _id on the target side and is
// matched before this function is called.
func CompareRecord(row schema.Row, doc schema.Document, identityField string) []FieldDiff {
	fields := make(map[string]struct{}, len(row)+len(doc))
	for k := range row {
		if k == identityField {
			continue
		}
		fields[k] = struct{}{}
	}
	for k := range doc {
		switch k {
		case schema.FieldID, schema.FieldOrigin, schema.FieldMigrationTime:
			continue
		}
		fields[k] = struct{}{}
	}

	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)

	var diffs []FieldDiff
	for _, name := range names {
		sv, inRow := row[name]
		tv, inDoc := doc[name]
		if !inRow || !inDoc {
			// A field absent on one side only diverges when the
			// present side carries a value.
			if (inRow && sv != nil) || (inDoc && tv != nil) {
				diffs = append(diffs, FieldDiff{Field: name, Source: sv, Target: tv})
			}
			continue
		}
		if !equalValues(sv, tv) {
			diffs = append(diffs, FieldDiff{Field: name, Source: sv, Target: tv})
		}
	}
	return diffs
}

// boundDiffs trims a diff list to maxDiffsPerRecord and reports how many
// were dropped.
func boundDiffs(diffs []FieldDiff) ([]FieldDiff, int) {
	if len(diffs) <= maxDiffsPerRecord {
		return diffs, 0
	}
	return diffs[:maxDiffsPerRecord], len(diffs) - maxDiffsPerRecord
}

// equalValues compares a source value and a target value with the type
// tolerance required by cross-database storage: numeric values compare
// by magnitude regardless of width, strings compare after trailing and
// leading whitespace is trimmed, and datetimes compare as instants
// regardless of representation.
func equalValues(sv, tv any) bool {
	if sv == nil || tv == nil {
		return sv == nil && tv == nil
	}

	if sf, ok := toFloat(sv); ok {
		if tf, ok := toFloat(tv); ok {
			return sf == tf
		}
	}

	if st, ok := toTime(sv); ok {
		if tt, ok := toTime(tv); ok {
			return st.Equal(tt)
		}
	}

	if ss, ok := toComparableString(sv); ok {
		if ts, ok := toComparableString(tv); ok {
			return strings.TrimSpace(ss) == strings.TrimSpace(ts)
		}
	}

	if sb, ok := sv.(bool); ok {
		if tb, ok := tv.(bool); ok {
			return sb == tb
		}
	}

	if sl, ok := toSlice(sv); ok {
		if tl, ok := toSlice(tv); ok {
			if len(sl) != len(tl) {
				return false
			}
			for i := range sl {
				if !equalValues(sl[i], tl[i]) {
					return false
				}
			}
			return true
		}
	}

	if sm, ok := toMap(sv); ok {
		if tm, ok := toMap(tv); ok {
			if len(sm) != len(tm) {
				return false
			}
			for k, v := range sm {
				ov, present := tm[k]
				if !present || !equalValues(v, ov) {
					return false
				}
			}
			return true
		}
	}

	return reflect.DeepEqual(sv, tv)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// timeLayouts covers the textual datetime forms seen on either side of
// the migration.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

// toComparableString treats byte slices as their base64 form, matching
// how binary source columns are stored on the target.
func toComparableString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return base64.StdEncoding.EncodeToString(s), true
	}
	return "", false
}

func toSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	}
	return nil, false
}

func toMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	return nil, false
}
