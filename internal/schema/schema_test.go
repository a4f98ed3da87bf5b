package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ugdata/mysql2mongo/internal/conf"
)

func TestStringifyIdentity(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"string", "abc-123", "abc-123"},
		{"bytes", []byte("42"), "42"},
		{"int", 42, "42"},
		{"int64", int64(9007199254740993), "9007199254740993"},
		{"uint64", uint64(18446744073709551615), "18446744073709551615"},
		{"negative", int32(-7), "-7"},
		{"float", 3.5, "3.5"},
		{"float no trailing zeros", float64(100), "100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StringifyIdentity(tt.value))
		})
	}
}

func TestStringifyIdentityDeterministic(t *testing.T) {
	// The same value must always yield the same identity, otherwise a
	// re-run would duplicate documents instead of replacing them.
	for range 10 {
		assert.Equal(t, "12345", StringifyIdentity(int64(12345)))
	}
}

func TestUnitForDefaults(t *testing.T) {
	migration := &conf.MigrationSettings{BatchSize: 1000}

	unit := UnitFor("ug_order", migration)

	assert.Equal(t, "ug_order", unit.Name)
	assert.Equal(t, DefaultIdentityField, unit.IdentityField)
	assert.Equal(t, 1000, unit.BatchSize)
	assert.Equal(t, "ug_order", unit.Collection())
}

func TestUnitForBuiltinIdentity(t *testing.T) {
	// ug_id_card_config keys on appID out of the box, with no per-unit
	// configuration.
	migration := &conf.MigrationSettings{BatchSize: 1000}

	unit := UnitFor("ug_id_card_config", migration)

	assert.Equal(t, "appID", unit.IdentityField)
	assert.Equal(t, 1000, unit.BatchSize)
}

func TestUnitForOverrides(t *testing.T) {
	migration := &conf.MigrationSettings{
		BatchSize: 1000,
		Units: map[string]conf.UnitSettings{
			"ug_id_card_config": {IdentityField: "configID", BatchSize: 200},
		},
	}

	unit := UnitFor("ug_id_card_config", migration)

	assert.Equal(t, "configID", unit.IdentityField, "a configured identity beats the built-in one")
	assert.Equal(t, 200, unit.BatchSize)

	other := UnitFor("ug_user", migration)
	assert.Equal(t, DefaultIdentityField, other.IdentityField)
	assert.Equal(t, 1000, other.BatchSize)
}
