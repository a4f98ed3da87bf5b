package migrate

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ugdata/mysql2mongo/internal/checkpoint"
	"github.com/ugdata/mysql2mongo/internal/conf"
	"github.com/ugdata/mysql2mongo/internal/errors"
	"github.com/ugdata/mysql2mongo/internal/logging"
	"github.com/ugdata/mysql2mongo/internal/schema"
	"github.com/ugdata/mysql2mongo/internal/storetest"
	"github.com/ugdata/mysql2mongo/internal/transform"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	logging.Init(slog.LevelError)
	goleak.VerifyTestMain(m)
}

type fixture struct {
	reader      *storetest.FakeReader
	store       *storetest.FakeStore
	checkpoints *checkpoint.Store
	settings    *conf.Settings
	orch        *Orchestrator
	slept       []time.Duration
}

func newFixture(t *testing.T, tables ...string) *fixture {
	t.Helper()
	checkpoints, err := checkpoint.NewStore(filepath.Join(t.TempDir(), "progress.json"))
	require.NoError(t, err)

	f := &fixture{
		reader:      storetest.NewFakeReader(),
		store:       storetest.NewFakeStore(),
		checkpoints: checkpoints,
		settings: &conf.Settings{
			Migration: conf.MigrationSettings{
				Tables:     tables,
				BatchSize:  1000,
				MaxRetries: 3,
			},
		},
	}
	f.orch = New(f.reader, f.store, transform.NewRegistry(), checkpoints, f.settings, nil, nil)
	f.orch.sleep = func(_ context.Context, d time.Duration) error {
		f.slept = append(f.slept, d)
		return nil
	}
	return f
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

func TestMigrateTable(t *testing.T) {
	f := newFixture(t, "orders")
	unit := schema.UnitFor("orders", &f.settings.Migration)
	f.reader.Seed("orders", "id", orderRows(2500))

	err := f.orch.MigrateTable(context.Background(), unit)
	require.NoError(t, err)

	assert.Equal(t, 3, f.store.UpsertCalls, "2500 rows at batch size 1000 take 3 batches")
	assert.Len(t, f.store.Docs("orders"), 2500)

	doc := f.store.Docs("orders")["10042"]
	require.NotNil(t, doc)
	assert.Equal(t, schema.OriginTag, doc[schema.FieldOrigin])
	assert.IsType(t, time.Time{}, doc[schema.FieldMigrationTime])

	_, found := f.checkpoints.Get("orders")
	assert.False(t, found, "checkpoint is cleared on completion")
}

func TestMigrateTableBuiltinIdentityField(t *testing.T) {
	// ug_id_card_config has no id column; with default settings the unit
	// still keys on appID and every document gets an identity.
	f := newFixture(t, "ug_id_card_config")
	unit := schema.UnitFor("ug_id_card_config", &f.settings.Migration)
	require.Equal(t, "appID", unit.IdentityField)

	f.reader.Seed("ug_id_card_config", "appID", []schema.Row{
		{"appID": int64(101), "rnAppID": "rn-a", "rnState": int64(1)},
		{"appID": int64(102), "rnAppID": "rn-b", "rnState": int64(0)},
	})

	require.NoError(t, f.orch.MigrateTable(context.Background(), unit))

	docs := f.store.Docs("ug_id_card_config")
	require.Len(t, docs, 2)
	doc := docs["101"]
	require.NotNil(t, doc, "documents are keyed by the stringified appID")
	assert.Equal(t, "101", doc[schema.FieldID])
	assert.Equal(t, "rn-a", doc["rnAppID"])
}

func TestMigrateTableEmptySource(t *testing.T) {
	f := newFixture(t, "orders")
	unit := schema.UnitFor("orders", &f.settings.Migration)
	f.reader.Seed("orders", "id", nil)
	require.NoError(t, f.checkpoints.Save("orders", 1000, 1000))

	err := f.orch.MigrateTable(context.Background(), unit)
	require.NoError(t, err)

	assert.Zero(t, f.store.UpsertCalls)
	_, found := f.checkpoints.Get("orders")
	assert.False(t, found, "a stale checkpoint is cleared for an empty table")
}

func TestMigrateTableWriteFailureRollsBack(t *testing.T) {
	f := newFixture(t, "orders")
	unit := schema.UnitFor("orders", &f.settings.Migration)
	f.reader.Seed("orders", "id", orderRows(2500))
	f.store.UpsertErrAfter = 2 // batches at offsets 0 and 1000 land, 2000 fails

	var ledger []MigratedBatch
	f.orch.onRollback = func(_ schema.Unit, l []MigratedBatch) { ledger = l }

	err := f.orch.MigrateTable(context.Background(), unit)
	require.Error(t, err)

	assert.Equal(t, []MigratedBatch{
		{Offset: 0, Count: 1000, BatchSize: 1000},
		{Offset: 1000, Count: 1000, BatchSize: 1000},
	}, ledger, "the rollback receives one ledger entry per landed batch")

	_, found := f.checkpoints.Get("orders")
	assert.False(t, found, "rollback clears the checkpoint")
	assert.Len(t, f.store.Docs("orders"), 2000,
		"non-destructive rollback leaves the written documents for the next run to re-upsert")

	// A fresh run converges.
	f.store.UpsertErrAfter = -1
	require.NoError(t, f.orch.MigrateTable(context.Background(), unit))
	assert.Len(t, f.store.Docs("orders"), 2500)
	_, found = f.checkpoints.Get("orders")
	assert.False(t, found)
}

func TestMigrateTableDestructiveRollback(t *testing.T) {
	f := newFixture(t, "orders")
	f.settings.Migration.DestructiveRollback = true
	unit := schema.UnitFor("orders", &f.settings.Migration)
	f.reader.Seed("orders", "id", orderRows(2500))
	f.store.UpsertErrAfter = 2

	err := f.orch.MigrateTable(context.Background(), unit)
	require.Error(t, err)

	assert.Empty(t, f.store.Docs("orders"), "destructive rollback deletes the migrated documents")
}

func TestMigrateTableResumesFromCheckpoint(t *testing.T) {
	f := newFixture(t, "orders")
	unit := schema.UnitFor("orders", &f.settings.Migration)
	rows := orderRows(2500)
	f.reader.Seed("orders", "id", rows)

	// A previous run landed the first batch and crashed.
	registry := transform.NewRegistry()
	ctx := context.Background()
	docs := registry.Transform(unit, rows[:1000], time.Now())
	_, err := f.store.UpsertBatch(ctx, unit, docs, 0)
	require.NoError(t, err)
	require.NoError(t, f.checkpoints.Save("orders", 1000, 1000))
	f.store.UpsertCalls = 0

	require.NoError(t, f.orch.MigrateTable(ctx, unit))

	assert.Equal(t, 2, f.store.UpsertCalls, "only the remaining batches are fetched and written")
	assert.Len(t, f.store.Docs("orders"), 2500)
}

func TestMigrateTableFetchFailureKeepsCheckpoint(t *testing.T) {
	f := newFixture(t, "orders")
	unit := schema.UnitFor("orders", &f.settings.Migration)
	f.reader.Seed("orders", "id", orderRows(2500))
	f.reader.FetchErrAtOffset = 2000

	err := f.orch.MigrateTable(context.Background(), unit)
	require.Error(t, err)

	cp, found := f.checkpoints.Get("orders")
	require.True(t, found, "a source read failure leaves the checkpoint for a resume")
	assert.Equal(t, int64(2000), cp.Offset)
	assert.Equal(t, int64(2000), cp.MigratedCount)
}

func TestMigrateTableCountVerificationRetries(t *testing.T) {
	f := newFixture(t, "orders")
	unit := schema.UnitFor("orders", &f.settings.Migration)
	f.reader.Seed("orders", "id", orderRows(100))

	// An alien document makes the target count permanently off by one.
	f.store.SeedDoc("orders", schema.Document{schema.FieldID: "alien"})

	err := f.orch.MigrateTable(context.Background(), unit)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))

	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, f.slept,
		"count verification retries with increasing delays")
	_, found := f.checkpoints.Get("orders")
	assert.False(t, found)
}

func TestMigrateTableCancelKeepsCheckpoint(t *testing.T) {
	f := newFixture(t, "orders")
	unit := schema.UnitFor("orders", &f.settings.Migration)
	f.reader.Seed("orders", "id", orderRows(2500))

	ctx, cancel := context.WithCancel(context.Background())
	upserts := 0
	f.orch.now = func() time.Time {
		// Cancel while the second batch is being transformed.
		upserts++
		if upserts == 2 {
			cancel()
		}
		return time.Now()
	}

	err := f.orch.MigrateTable(ctx, unit)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryCancellation))

	cp, found := f.checkpoints.Get("orders")
	require.True(t, found, "cancellation keeps the checkpoint of the last completed batch")
	assert.Equal(t, int64(2000), cp.Offset)
}

func TestMigrateAll(t *testing.T) {
	f := newFixture(t, "orders", "users", "empty")
	f.reader.Seed("orders", "id", orderRows(1500))
	f.reader.Seed("users", "id", []schema.Row{
		{"id": int64(1), "name": "ada"},
		{"id": int64(2), "name": "grace"},
	})
	f.reader.Seed("empty", "id", nil)

	summary := f.orch.MigrateAll(context.Background())

	assert.True(t, summary.Success())
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Len(t, f.store.Docs("orders"), 1500)
	assert.Len(t, f.store.Docs("users"), 2)
}

func TestMigrateAllContinuesPastFailedTable(t *testing.T) {
	f := newFixture(t, "orders", "users")
	f.reader.Seed("orders", "id", orderRows(100))
	f.reader.Seed("users", "id", []schema.Row{{"id": int64(1), "name": "ada"}})
	f.store.UpsertErrAfter = 0 // every write fails

	summary := f.orch.MigrateAll(context.Background())

	assert.False(t, summary.Success())
	assert.Equal(t, []string{"orders", "users"}, summary.Failed)
}
