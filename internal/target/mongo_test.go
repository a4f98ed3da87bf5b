package target

import (
	"context"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ugdata/mysql2mongo/internal/errors"
	"github.com/ugdata/mysql2mongo/internal/schema"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func testStore() *MongoStore {
	return &MongoStore{log: slog.Default(), retryBase: time.Millisecond}
}

func testUnit() schema.Unit {
	return schema.Unit{Name: "orders", IdentityField: "id", BatchSize: 1000}
}

func replaceModels(n int) []mongo.WriteModel {
	models := make([]mongo.WriteModel, 0, n)
	for i := range n {
		id := strconv.Itoa(i)
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{schema.FieldID: id}).
			SetReplacement(schema.Document{schema.FieldID: id}).
			SetUpsert(true))
	}
	return models
}

func bulkErrors(n int) []mongo.BulkWriteError {
	errs := make([]mongo.BulkWriteError, 0, n)
	for i := range n {
		errs = append(errs, mongo.BulkWriteError{
			WriteError: mongo.WriteError{Index: i, Code: 11000, Message: "duplicate key"},
		})
	}
	return errs
}

func TestWriteWithRetrySuccess(t *testing.T) {
	store := testStore()
	calls := 0
	write := func(context.Context, []mongo.WriteModel) (*mongo.BulkWriteResult, error) {
		calls++
		return &mongo.BulkWriteResult{UpsertedCount: 2, ModifiedCount: 1, MatchedCount: 1}, nil
	}

	outcome, err := store.writeWithRetry(context.Background(), testUnit(), replaceModels(3), 1, 3, write)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, BatchOutcome{Inserted: 2, Modified: 1, Matched: 1, Skipped: 1}, outcome)
}

func TestWriteWithRetryPartialFailurePasses(t *testing.T) {
	store := testStore()
	calls := 0
	write := func(context.Context, []mongo.WriteModel) (*mongo.BulkWriteResult, error) {
		calls++
		return nil, mongo.BulkWriteException{WriteErrors: bulkErrors(1)}
	}

	outcome, err := store.writeWithRetry(context.Background(), testUnit(), replaceModels(3), 0, 3, write)
	require.NoError(t, err, "a batch with at least one success passes")

	assert.Equal(t, 1, calls, "a partial failure is not retried")
	assert.Equal(t, BatchOutcome{Matched: 2, Failed: 1, Partial: true}, outcome)
}

func TestWriteWithRetryFullFailureRetriesThenSurfaces(t *testing.T) {
	store := testStore()
	var delays []time.Duration
	store.onRetry = func(d time.Duration) { delays = append(delays, d) }

	calls := 0
	write := func(context.Context, []mongo.WriteModel) (*mongo.BulkWriteResult, error) {
		calls++
		return nil, mongo.BulkWriteException{WriteErrors: bulkErrors(3)}
	}

	_, err := store.writeWithRetry(context.Background(), testUnit(), replaceModels(3), 0, 3, write)
	require.Error(t, err)

	assert.Equal(t, 4, calls, "a fully failed batch is retried maxRetries times")
	assert.Equal(t, []time.Duration{
		time.Millisecond,
		2 * time.Millisecond,
		4 * time.Millisecond,
	}, delays, "retry delays double from the base")
	assert.True(t, errors.HasCategory(err, errors.CategoryTransientWrite))
	assert.ErrorContains(t, err, "all 3 documents failed to write")
}

func TestWriteWithRetryRecoversAfterFullFailure(t *testing.T) {
	store := testStore()
	calls := 0
	write := func(context.Context, []mongo.WriteModel) (*mongo.BulkWriteResult, error) {
		calls++
		if calls == 1 {
			return nil, mongo.BulkWriteException{WriteErrors: bulkErrors(2)}
		}
		return &mongo.BulkWriteResult{UpsertedCount: 2}, nil
	}

	outcome, err := store.writeWithRetry(context.Background(), testUnit(), replaceModels(2), 0, 3, write)
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(2), outcome.Inserted)
}

func TestUpsertBatchSkipsDocumentsWithoutIdentity(t *testing.T) {
	store := testStore()

	outcome, err := store.UpsertBatch(context.Background(), testUnit(), []schema.Document{
		{"name": "widget"},
		{"name": "gadget"},
	}, 3)
	require.NoError(t, err)
	assert.Equal(t, BatchOutcome{Skipped: 2}, outcome)

	outcome, err = store.UpsertBatch(context.Background(), testUnit(), nil, 3)
	require.NoError(t, err)
	assert.Equal(t, BatchOutcome{}, outcome)
}
