// Package transform maps source rows into target documents. Transforms
// are pure functions of their inputs so that re-running one during repair
// reproduces the same document for the same source row.
package transform

import (
	"time"

	"github.com/ugdata/mysql2mongo/internal/schema"
)

// Rule converts a batch of source rows into target documents. migratedAt
// is the provenance timestamp to inject; passing it in keeps rules
// deterministic.
type Rule interface {
	Transform(unit schema.Unit, rows []schema.Row, migratedAt time.Time) []schema.Document
}

// Registry dispatches per-table rules with a default rule fallback.
type Registry struct {
	rules    map[string]Rule
	fallback Rule
}

// NewRegistry creates a registry with the dedicated table rules
// registered and the default rule as fallback.
func NewRegistry() *Registry {
	r := &Registry{
		rules:    make(map[string]Rule),
		fallback: DefaultRule{},
	}
	registerBuiltinRules(r)
	return r
}

// Register installs a dedicated rule for a table, replacing any previous
// one.
func (r *Registry) Register(table string, rule Rule) {
	r.rules[table] = rule
}

// HasRule reports whether a dedicated rule exists for the table.
func (r *Registry) HasRule(table string) bool {
	_, ok := r.rules[table]
	return ok
}

// Transform converts rows using the table's dedicated rule, or the
// default rule when none is registered.
func (r *Registry) Transform(unit schema.Unit, rows []schema.Row, migratedAt time.Time) []schema.Document {
	if rule, ok := r.rules[unit.Name]; ok {
		return rule.Transform(unit, rows, migratedAt)
	}
	return r.fallback.Transform(unit, rows, migratedAt)
}

// DefaultRule copies every field verbatim except the identity field,
// which becomes the stringified target identity. Values are coerced to
// document-safe representations, null fields are dropped and provenance
// fields appended.
type DefaultRule struct{}

// Transform implements Rule.
func (DefaultRule) Transform(unit schema.Unit, rows []schema.Row, migratedAt time.Time) []schema.Document {
	docs := make([]schema.Document, 0, len(rows))
	for _, row := range rows {
		doc := make(schema.Document, len(row)+2)
		for key, value := range row {
			if value == nil {
				continue
			}
			if key == unit.IdentityField {
				doc[schema.FieldID] = schema.StringifyIdentity(value)
				continue
			}
			if coerced := CoerceValue(value); coerced != nil {
				doc[key] = coerced
			}
		}
		addProvenance(doc, migratedAt)
		docs = append(docs, doc)
	}
	return docs
}

func addProvenance(doc schema.Document, migratedAt time.Time) {
	doc[schema.FieldOrigin] = schema.OriginTag
	doc[schema.FieldMigrationTime] = migratedAt
}
