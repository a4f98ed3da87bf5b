package verify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ugdata/mysql2mongo/internal/schema"
)

func TestEqualValuesNumericWidening(t *testing.T) {
	assert.True(t, equalValues(int32(100), float64(100)))
	assert.True(t, equalValues(int64(7), 7))
	assert.True(t, equalValues(uint8(255), int64(255)))
	assert.True(t, equalValues(float32(1.5), float64(1.5)))
	assert.False(t, equalValues(int64(100), float64(150)))
}

func TestEqualValuesStrings(t *testing.T) {
	assert.True(t, equalValues("abc", "abc"))
	assert.True(t, equalValues("abc  ", "abc"), "trailing whitespace is ignored")
	assert.True(t, equalValues("  abc", "abc"))
	assert.False(t, equalValues("abc", "abd"))
}

func TestEqualValuesBytesAgainstBase64(t *testing.T) {
	assert.True(t, equalValues([]byte("hello"), "aGVsbG8="))
	assert.False(t, equalValues([]byte("hello"), "hello"))
}

func TestEqualValuesDatetimes(t *testing.T) {
	instant := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

	assert.True(t, equalValues(instant, instant))
	assert.True(t, equalValues(instant, instant.In(time.FixedZone("CST", 8*3600))),
		"the same instant in another zone is equal")
	assert.True(t, equalValues(instant, "2026-03-15T10:30:00Z"))
	assert.True(t, equalValues("2026-03-15 10:30:00", instant))
	assert.True(t, equalValues("2026-03-15", time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)))
	assert.False(t, equalValues(instant, instant.Add(time.Second)))
}

func TestEqualValuesNil(t *testing.T) {
	assert.True(t, equalValues(nil, nil))
	assert.False(t, equalValues(nil, 0))
	assert.False(t, equalValues("", nil))
}

func TestEqualValuesCollections(t *testing.T) {
	assert.True(t, equalValues([]any{1, "a"}, []any{float64(1), "a"}))
	assert.True(t, equalValues([]string{"a", "b"}, []any{"a", "b"}))
	assert.False(t, equalValues([]any{1, 2}, []any{1}))

	assert.True(t, equalValues(
		map[string]any{"zone": "eu", "n": int64(2)},
		map[string]any{"zone": "eu", "n": float64(2)},
	))
	assert.False(t, equalValues(
		map[string]any{"zone": "eu"},
		map[string]any{"zone": "us"},
	))
}

func TestCompareRecordMatch(t *testing.T) {
	row := schema.Row{"id": int64(1), "price": int64(100), "name": "widget"}
	doc := schema.Document{
		schema.FieldID:            "1",
		schema.FieldOrigin:        schema.OriginTag,
		schema.FieldMigrationTime: time.Now(),
		"price":                   float64(100),
		"name":                    "widget",
	}

	assert.Empty(t, CompareRecord(row, doc, "id"))
}

func TestCompareRecordDivergentField(t *testing.T) {
	row := schema.Row{"id": int64(1), "price": int64(100)}
	doc := schema.Document{schema.FieldID: "1", "price": float64(150)}

	diffs := CompareRecord(row, doc, "id")

	assert.Len(t, diffs, 1)
	assert.Equal(t, "price", diffs[0].Field)
	assert.Equal(t, int64(100), diffs[0].Source)
	assert.Equal(t, float64(150), diffs[0].Target)
}

func TestCompareRecordFieldAbsentOneSide(t *testing.T) {
	row := schema.Row{"id": 1, "note": "kept"}
	doc := schema.Document{schema.FieldID: "1"}

	diffs := CompareRecord(row, doc, "id")
	assert.Len(t, diffs, 1)
	assert.Equal(t, "note", diffs[0].Field)

	// A null source field dropped by the transform is not a divergence.
	row = schema.Row{"id": 1, "note": nil}
	assert.Empty(t, CompareRecord(row, doc, "id"))
}

func TestBoundDiffs(t *testing.T) {
	diffs := make([]FieldDiff, 8)
	bounded, truncated := boundDiffs(diffs)
	assert.Len(t, bounded, maxDiffsPerRecord)
	assert.Equal(t, 3, truncated)

	small := make([]FieldDiff, 2)
	bounded, truncated = boundDiffs(small)
	assert.Len(t, bounded, 2)
	assert.Zero(t, truncated)
}
