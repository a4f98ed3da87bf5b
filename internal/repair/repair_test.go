package repair

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ugdata/mysql2mongo/internal/conf"
	"github.com/ugdata/mysql2mongo/internal/logging"
	"github.com/ugdata/mysql2mongo/internal/mapping"
	"github.com/ugdata/mysql2mongo/internal/schema"
	"github.com/ugdata/mysql2mongo/internal/storetest"
	"github.com/ugdata/mysql2mongo/internal/transform"
	"github.com/ugdata/mysql2mongo/internal/verify"
)

func TestMain(m *testing.M) {
	logging.Init(slog.LevelError)
	m.Run()
}

func testSettings(tables ...string) *conf.Settings {
	return &conf.Settings{
		Migration: conf.MigrationSettings{
			Tables:    tables,
			BatchSize: 1000,
		},
		Verify: conf.VerifySettings{RecentWindowDays: 7},
		Repair: conf.RepairSettings{
			RepairMissing:      true,
			RepairInconsistent: true,
			RepairMetadata:     true,
		},
	}
}

func seedMigrated(t *testing.T, reader *storetest.FakeReader, store *storetest.FakeStore, unit schema.Unit, rows []schema.Row) {
	t.Helper()
	reader.Seed(unit.Name, unit.IdentityField, rows)
	registry := transform.NewRegistry()
	for _, doc := range registry.Transform(unit, rows, time.Now()) {
		store.SeedDoc(unit.Name, doc)
	}
}

func orderRows(n int) []schema.Row {
	rows := make([]schema.Row, 0, n)
	for i := range n {
		rows = append(rows, schema.Row{
			"id":    int64(10000 + i),
			"name":  "widget",
			"price": int64(100),
		})
	}
	return rows
}

func newRepairer(reader *storetest.FakeReader, store *storetest.FakeStore, settings *conf.Settings) *Repairer {
	return New(reader, store, transform.NewRegistry(), settings, nil)
}

func TestRepairMissingDocuments(t *testing.T) {
	reader := storetest.NewFakeReader()
	store := storetest.NewFakeStore()
	settings := testSettings("orders")
	unit := schema.UnitFor("orders", &settings.Migration)
	seedMigrated(t, reader, store, unit, orderRows(10))
	store.DeleteDoc("orders", "10002")
	store.DeleteDoc("orders", "10007")

	outcome, err := newRepairer(reader, store, settings).RepairTable(context.Background(), unit, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(2), outcome.MissingRepaired)
	assert.Zero(t, outcome.MissingFailed)
	assert.True(t, outcome.CountsAligned)

	restored := store.Docs("orders")["10002"]
	require.NotNil(t, restored)
	assert.Equal(t, "widget", restored["name"])
	assert.Equal(t, schema.OriginTag, restored[schema.FieldOrigin])
}

func TestRepairMissingSkipsWhenCountsMatch(t *testing.T) {
	reader := storetest.NewFakeReader()
	store := storetest.NewFakeStore()
	settings := testSettings("orders")
	unit := schema.UnitFor("orders", &settings.Migration)
	seedMigrated(t, reader, store, unit, orderRows(5))

	outcome, err := newRepairer(reader, store, settings).RepairTable(context.Background(), unit, nil)
	require.NoError(t, err)

	assert.Zero(t, outcome.Repaired())
	assert.True(t, outcome.CountsAligned)
}

func TestRepairInconsistentFromVerification(t *testing.T) {
	reader := storetest.NewFakeReader()
	store := storetest.NewFakeStore()
	settings := testSettings("orders")
	unit := schema.UnitFor("orders", &settings.Migration)
	seedMigrated(t, reader, store, unit, orderRows(10))

	tampered := store.Docs("orders")["10004"]
	tampered["price"] = float64(150)

	verifier := verify.New(reader, store, settings, mapping.Mappings{}, nil)
	result, err := verifier.VerifyTable(context.Background(), unit)
	require.NoError(t, err)
	require.False(t, result.Passed())

	outcome, err := newRepairer(reader, store, settings).RepairTable(context.Background(), unit, result)
	require.NoError(t, err)

	assert.Equal(t, int64(1), outcome.InconsistentRepaired)
	assert.Zero(t, outcome.InconsistentFailed)

	// The document is rebuilt from the source row.
	repaired := store.Docs("orders")["10004"]
	assert.Equal(t, int64(100), repaired["price"])

	// Re-verification passes.
	result, err = verifier.VerifyTable(context.Background(), unit)
	require.NoError(t, err)
	assert.True(t, result.Passed())
}

func TestRepairInconsistentWithoutVerification(t *testing.T) {
	reader := storetest.NewFakeReader()
	store := storetest.NewFakeStore()
	settings := testSettings("orders")
	unit := schema.UnitFor("orders", &settings.Migration)
	seedMigrated(t, reader, store, unit, orderRows(10))

	tampered := store.Docs("orders")["10008"]
	tampered["name"] = "gadget"

	outcome, err := newRepairer(reader, store, settings).RepairTable(context.Background(), unit, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1), outcome.InconsistentRepaired)
	assert.Equal(t, "widget", store.Docs("orders")["10008"]["name"])
}

func TestRepairMetadataBackfill(t *testing.T) {
	reader := storetest.NewFakeReader()
	store := storetest.NewFakeStore()
	settings := testSettings("orders")
	unit := schema.UnitFor("orders", &settings.Migration)
	seedMigrated(t, reader, store, unit, orderRows(5))

	stripped := store.Docs("orders")["10001"]
	delete(stripped, schema.FieldOrigin)
	delete(stripped, schema.FieldMigrationTime)

	outcome, err := newRepairer(reader, store, settings).RepairTable(context.Background(), unit, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1), outcome.MetadataRepaired)
	repaired := store.Docs("orders")["10001"]
	assert.Equal(t, schema.OriginTag, repaired[schema.FieldOrigin])
	assert.IsType(t, time.Time{}, repaired[schema.FieldMigrationTime])
}

func TestRepairIsIdempotent(t *testing.T) {
	reader := storetest.NewFakeReader()
	store := storetest.NewFakeStore()
	settings := testSettings("orders")
	unit := schema.UnitFor("orders", &settings.Migration)
	seedMigrated(t, reader, store, unit, orderRows(10))
	store.DeleteDoc("orders", "10002")

	repairer := newRepairer(reader, store, settings)

	first, err := repairer.RepairTable(context.Background(), unit, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), first.MissingRepaired)

	second, err := repairer.RepairTable(context.Background(), unit, nil)
	require.NoError(t, err)
	assert.Zero(t, second.Repaired(), "a second run finds nothing to fix")
	assert.True(t, second.CountsAligned)
}

func TestRepairHonorsToggles(t *testing.T) {
	reader := storetest.NewFakeReader()
	store := storetest.NewFakeStore()
	settings := testSettings("orders")
	settings.Repair.RepairMissing = false
	unit := schema.UnitFor("orders", &settings.Migration)
	seedMigrated(t, reader, store, unit, orderRows(5))
	store.DeleteDoc("orders", "10000")

	outcome, err := newRepairer(reader, store, settings).RepairTable(context.Background(), unit, nil)
	require.NoError(t, err)

	assert.Zero(t, outcome.MissingRepaired)
	assert.False(t, outcome.CountsAligned, "the missing document stays missing")
}

func TestRepairMissingFallsBackPerRecord(t *testing.T) {
	reader := storetest.NewFakeReader()
	store := storetest.NewFakeStore()
	settings := testSettings("orders")
	unit := schema.UnitFor("orders", &settings.Migration)
	seedMigrated(t, reader, store, unit, orderRows(6))
	store.DeleteDoc("orders", "10003")
	store.InsertErr = assert.AnError

	outcome, err := newRepairer(reader, store, settings).RepairTable(context.Background(), unit, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1), outcome.MissingRepaired, "the record lands via the per-record fallback")
	assert.Zero(t, outcome.MissingFailed)
	assert.Contains(t, store.Docs("orders"), "10003")
}
