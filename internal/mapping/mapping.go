// Package mapping loads the optional per-table field-mapping file
// consumed by the verifier's mapping check.
package mapping

import (
	"encoding/json"
	"fmt"
	"os"
)

// FieldMapping declares the target name and type of one source field.
type FieldMapping struct {
	Target string `json:"target"`
	Type   string `json:"type"`
}

// TableMapping holds the configured field transformations for one table.
type TableMapping struct {
	Transformations map[string]FieldMapping `json:"transformations"`
}

// Mappings maps table names to their field-mapping configuration.
type Mappings map[string]TableMapping

// knownTypes are the declared types the mapping check recognizes.
var knownTypes = map[string]struct{}{
	"string":   {},
	"int":      {},
	"long":     {},
	"float":    {},
	"double":   {},
	"decimal":  {},
	"bool":     {},
	"date":     {},
	"datetime": {},
	"binary":   {},
	"array":    {},
	"object":   {},
}

// KnownType reports whether the declared type is recognized.
func KnownType(t string) bool {
	_, ok := knownTypes[t]
	return ok
}

// Load reads the mapping file at path. A missing file yields empty
// mappings, which makes the mapping check a no-op; a malformed file is a
// configuration error.
func Load(path string) (Mappings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Mappings{}, nil
		}
		return nil, fmt.Errorf("failed to read field-mapping file %s: %w", path, err)
	}

	var m Mappings
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse field-mapping file %s: %w", path, err)
	}
	return m, nil
}
