// Package schema defines the shared vocabulary of the migration pipeline:
// logical units, source rows and target documents.
package schema

import (
	"fmt"
	"strconv"

	"github.com/ugdata/mysql2mongo/internal/conf"
)

// Row is one record read from the row-oriented source store.
type Row = map[string]any

// Document is one record written to the document-oriented target store.
type Document = map[string]any

const (
	// FieldID is the target identity field, derived from the source
	// identity field.
	FieldID = "_id"

	// FieldOrigin and FieldMigrationTime are the provenance fields
	// injected into every migrated document.
	FieldOrigin        = "source"
	FieldMigrationTime = "migrationTime"

	// OriginTag marks documents created by this migrator.
	OriginTag = "mysql"

	// DefaultIdentityField is the source identity field used unless a
	// unit overrides it.
	DefaultIdentityField = "id"
)

// ProvenanceFields lists the injected fields excluded from content
// comparison.
func ProvenanceFields() []string {
	return []string{FieldOrigin, FieldMigrationTime}
}

// Unit is one source table mapped 1:1 to a target collection.
type Unit struct {
	Name          string
	IdentityField string
	BatchSize     int
}

// Collection returns the target collection name for the unit. Tables map
// to collections by name.
func (u Unit) Collection() string {
	return u.Name
}

// builtinIdentityFields lists the tables whose source identity is not
// the conventional "id" column, so they migrate correctly without any
// per-unit configuration.
var builtinIdentityFields = map[string]string{
	"ug_id_card_config": "appID",
}

// UnitFor builds the Unit for a table, applying per-table overrides from
// the migration settings on top of the built-in and global defaults.
func UnitFor(name string, migration *conf.MigrationSettings) Unit {
	u := Unit{
		Name:          name,
		IdentityField: DefaultIdentityField,
		BatchSize:     migration.BatchSize,
	}
	if field, ok := builtinIdentityFields[name]; ok {
		u.IdentityField = field
	}
	if override, ok := migration.Units[name]; ok {
		if override.IdentityField != "" {
			u.IdentityField = override.IdentityField
		}
		if override.BatchSize > 0 {
			u.BatchSize = override.BatchSize
		}
	}
	return u
}

// StringifyIdentity converts a source identity value to its canonical
// string form used as the target identity. The conversion is
// deterministic so re-running a transform reproduces the same identity.
func StringifyIdentity(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case int:
		return strconv.Itoa(val)
	case int8:
		return strconv.FormatInt(int64(val), 10)
	case int16:
		return strconv.FormatInt(int64(val), 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint8:
		return strconv.FormatUint(uint64(val), 10)
	case uint16:
		return strconv.FormatUint(uint64(val), 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
