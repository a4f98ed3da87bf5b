package target

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ugdata/mysql2mongo/internal/conf"
	"github.com/ugdata/mysql2mongo/internal/errors"
	"github.com/ugdata/mysql2mongo/internal/logging"
	"github.com/ugdata/mysql2mongo/internal/schema"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store for MongoDB.
type MongoStore struct {
	Settings *conf.Settings

	client   *mongo.Client
	database *mongo.Database
	log      *slog.Logger

	// injected for tests
	retryBase time.Duration
	onRetry   func(delay time.Duration)
}

// bulkWriter performs one unordered bulk write attempt.
type bulkWriter func(ctx context.Context, models []mongo.WriteModel) (*mongo.BulkWriteResult, error)

// Connect establishes the MongoDB connection and verifies it with a ping.
func (store *MongoStore) Connect(ctx context.Context) error {
	cfg := &store.Settings.Target

	store.log = logging.ForService("target")
	if store.log == nil {
		store.log = slog.Default()
	}

	uri := BuildURI(cfg)
	store.log.Info("connecting to MongoDB",
		"uri", RedactURI(uri),
		"connection_type", cfg.ConnectionType,
		"database", cfg.Database)

	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(time.Duration(cfg.ConnectTimeoutMs) * time.Millisecond).
		SetSocketTimeout(time.Duration(cfg.SocketTimeoutMs) * time.Millisecond).
		SetServerSelectionTimeout(time.Duration(cfg.ServerSelectionTimeoutMs) * time.Millisecond)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return errors.New(err).
			Component("target").
			Category(errors.CategoryConnection).
			Context("database", cfg.Database).
			Build()
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return errors.New(err).
			Component("target").
			Category(errors.CategoryConnection).
			Context("operation", "ping").
			Context("database", cfg.Database).
			Build()
	}

	store.client = client
	store.database = client.Database(cfg.Database)
	return nil
}

// Close disconnects from MongoDB.
func (store *MongoStore) Close(ctx context.Context) error {
	if store.client == nil {
		return nil
	}
	return store.client.Disconnect(ctx)
}

func (store *MongoStore) collection(unit schema.Unit) *mongo.Collection {
	return store.database.Collection(unit.Collection())
}

// UpsertBatch writes documents as per-document replace-if-match-else-insert
// keyed by the target identity. A partial failure with at least one
// success is treated as a passed batch; a full failure is retried with
// exponential backoff up to maxRetries before being surfaced.
func (store *MongoStore) UpsertBatch(ctx context.Context, unit schema.Unit, docs []schema.Document, maxRetries int) (BatchOutcome, error) {
	if len(docs) == 0 {
		return BatchOutcome{}, nil
	}

	var skipped int64
	models := make([]mongo.WriteModel, 0, len(docs))
	for _, doc := range docs {
		id, ok := doc[schema.FieldID]
		if !ok {
			store.log.Warn("document missing identity field, skipping",
				"collection", unit.Collection())
			skipped++
			continue
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{schema.FieldID: id}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	if len(models) == 0 {
		store.log.Warn("no valid documents in batch, skipping write",
			"collection", unit.Collection())
		return BatchOutcome{Skipped: skipped}, nil
	}

	coll := store.collection(unit)
	write := func(ctx context.Context, models []mongo.WriteModel) (*mongo.BulkWriteResult, error) {
		return coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	}
	return store.writeWithRetry(ctx, unit, models, skipped, maxRetries, write)
}

// writeWithRetry runs one bulk write and classifies its result: a partial
// failure with at least one success passes, a full failure is retried with
// exponential backoff up to maxRetries before being surfaced.
func (store *MongoStore) writeWithRetry(ctx context.Context, unit schema.Unit, models []mongo.WriteModel, skipped int64, maxRetries int, write bulkWriter) (BatchOutcome, error) {
	operation := func() (BatchOutcome, error) {
		res, err := write(ctx, models)
		if err != nil {
			var bwe mongo.BulkWriteException
			if errors.As(err, &bwe) {
				failed := int64(len(bwe.WriteErrors))
				succeeded := int64(len(models)) - failed
				if succeeded > 0 {
					// Partial failure with progress counts as a passed
					// batch; upserts make a later retry of the failed
					// documents safe.
					store.logWriteErrors(unit, bwe, 3)
					store.log.Warn("batch partially failed",
						"collection", unit.Collection(),
						"succeeded", succeeded,
						"failed", failed)
					return BatchOutcome{
						Matched: succeeded,
						Skipped: skipped,
						Failed:  failed,
						Partial: true,
					}, nil
				}
				store.logWriteErrors(unit, bwe, 5)
				return BatchOutcome{}, fmt.Errorf("all %d documents failed to write: %w", len(models), err)
			}
			return BatchOutcome{}, err
		}
		return BatchOutcome{
			Inserted: res.UpsertedCount,
			Modified: res.ModifiedCount,
			Matched:  res.MatchedCount,
			Skipped:  skipped,
		}, nil
	}

	// delay doubles from one second: 1s, 2s, 4s, ...
	base := store.retryBase
	if base <= 0 {
		base = time.Second
	}
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = base
	expo.Multiplier = 2
	expo.RandomizationFactor = 0

	outcome, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(maxRetries+1)),
		backoff.WithNotify(func(err error, delay time.Duration) {
			store.log.Warn("batch write failed, retrying",
				"collection", unit.Collection(),
				"delay", delay,
				"error", err)
			if store.onRetry != nil {
				store.onRetry(delay)
			}
		}))
	if err != nil {
		return BatchOutcome{}, errors.New(err).
			Component("target").
			Category(errors.CategoryTransientWrite).
			Context("collection", unit.Collection()).
			Context("batch_size", len(models)).
			Context("max_retries", maxRetries).
			Build()
	}

	store.log.Info("batch written",
		"collection", unit.Collection(),
		"inserted", outcome.Inserted,
		"modified", outcome.Modified,
		"matched", outcome.Matched)
	return outcome, nil
}

func (store *MongoStore) logWriteErrors(unit schema.Unit, bwe mongo.BulkWriteException, limit int) {
	for i, we := range bwe.WriteErrors {
		if i >= limit {
			break
		}
		store.log.Warn("write error detail",
			"collection", unit.Collection(),
			"index", we.Index,
			"code", we.Code,
			"message", we.Message)
	}
}

// CountDocuments returns the number of documents in the unit's collection.
func (store *MongoStore) CountDocuments(ctx context.Context, unit schema.Unit) (int64, error) {
	count, err := store.collection(unit).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, errors.New(err).
			Component("target").
			Category(errors.CategoryDatabase).
			Context("operation", "count").
			Context("collection", unit.Collection()).
			Build()
	}
	return count, nil
}

// VerifyCount reports whether the collection holds exactly expected
// documents.
func (store *MongoStore) VerifyCount(ctx context.Context, unit schema.Unit, expected int64) (bool, error) {
	actual, err := store.CountDocuments(ctx, unit)
	if err != nil {
		return false, err
	}
	if actual != expected {
		store.log.Warn("document count mismatch",
			"collection", unit.Collection(),
			"expected", expected,
			"actual", actual)
		return false, nil
	}
	return true, nil
}

// CountByOrigin returns how many documents carry the given origin tag.
func (store *MongoStore) CountByOrigin(ctx context.Context, unit schema.Unit, origin string) (int64, error) {
	count, err := store.collection(unit).CountDocuments(ctx, bson.M{schema.FieldOrigin: origin})
	if err != nil {
		return 0, store.countError(err, unit, "count_by_origin")
	}
	return count, nil
}

// CountTimestamped returns how many documents carry a date-typed
// migration timestamp.
func (store *MongoStore) CountTimestamped(ctx context.Context, unit schema.Unit) (int64, error) {
	filter := bson.M{schema.FieldMigrationTime: bson.M{"$type": "date"}}
	count, err := store.collection(unit).CountDocuments(ctx, filter)
	if err != nil {
		return 0, store.countError(err, unit, "count_timestamped")
	}
	return count, nil
}

// CountMigratedSince returns how many documents were migrated at or after
// the given time.
func (store *MongoStore) CountMigratedSince(ctx context.Context, unit schema.Unit, since time.Time) (int64, error) {
	filter := bson.M{schema.FieldMigrationTime: bson.M{"$gte": since}}
	count, err := store.collection(unit).CountDocuments(ctx, filter)
	if err != nil {
		return 0, store.countError(err, unit, "count_migrated_since")
	}
	return count, nil
}

func (store *MongoStore) countError(err error, unit schema.Unit, operation string) error {
	return errors.New(err).
		Component("target").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Context("collection", unit.Collection()).
		Build()
}

// FindByIdentity returns the document with the given identity, or
// errors.ErrNotFound when no document exists.
func (store *MongoStore) FindByIdentity(ctx context.Context, unit schema.Unit, id string) (schema.Document, error) {
	var raw bson.M
	err := store.collection(unit).FindOne(ctx, bson.M{schema.FieldID: id}).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.ErrNotFound
		}
		return nil, errors.New(err).
			Component("target").
			Category(errors.CategoryDatabase).
			Context("operation", "find_by_identity").
			Context("collection", unit.Collection()).
			Context("identity", id).
			Build()
	}
	return normalizeDocument(raw), nil
}

// FindByIdentities returns the documents matching ids, keyed by identity.
func (store *MongoStore) FindByIdentities(ctx context.Context, unit schema.Unit, ids []string) (map[string]schema.Document, error) {
	out := make(map[string]schema.Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	cursor, err := store.collection(unit).Find(ctx, bson.M{schema.FieldID: bson.M{"$in": ids}})
	if err != nil {
		return nil, errors.New(err).
			Component("target").
			Category(errors.CategoryDatabase).
			Context("operation", "find_by_identities").
			Context("collection", unit.Collection()).
			Context("identity_count", len(ids)).
			Build()
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		doc := normalizeDocument(raw)
		if id, ok := doc[schema.FieldID].(string); ok {
			out[id] = doc
		}
	}
	return out, cursor.Err()
}

// ListIdentities returns the set of identities present in the collection.
func (store *MongoStore) ListIdentities(ctx context.Context, unit schema.Unit) (map[string]struct{}, error) {
	projection := options.Find().SetProjection(bson.D{{Key: schema.FieldID, Value: 1}})
	cursor, err := store.collection(unit).Find(ctx, bson.D{}, projection)
	if err != nil {
		return nil, errors.New(err).
			Component("target").
			Category(errors.CategoryDatabase).
			Context("operation", "list_identities").
			Context("collection", unit.Collection()).
			Build()
	}
	defer cursor.Close(ctx)

	ids := make(map[string]struct{})
	for cursor.Next(ctx) {
		var raw struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to decode identity: %w", err)
		}
		ids[raw.ID] = struct{}{}
	}
	return ids, cursor.Err()
}

// InsertBatch inserts documents unordered, returning how many landed.
// Callers fall back to per-document writes when a batch insert fails.
func (store *MongoStore) InsertBatch(ctx context.Context, unit schema.Unit, docs []schema.Document) (int64, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	payload := make([]any, len(docs))
	for i, doc := range docs {
		payload[i] = doc
	}

	res, err := store.collection(unit).InsertMany(ctx, payload, options.InsertMany().SetOrdered(false))
	var inserted int64
	if res != nil {
		inserted = int64(len(res.InsertedIDs))
	}
	if err != nil {
		return inserted, errors.New(err).
			Component("target").
			Category(errors.CategoryPartialBatch).
			Context("operation", "insert_batch").
			Context("collection", unit.Collection()).
			Context("attempted", len(docs)).
			Context("inserted", inserted).
			Build()
	}
	return inserted, nil
}

// ReplaceByIdentity fully replaces (or inserts) the document with the
// given identity.
func (store *MongoStore) ReplaceByIdentity(ctx context.Context, unit schema.Unit, id string, doc schema.Document) error {
	opts := options.Replace().SetUpsert(true)
	_, err := store.collection(unit).ReplaceOne(ctx, bson.M{schema.FieldID: id}, doc, opts)
	if err != nil {
		return errors.New(err).
			Component("target").
			Category(errors.CategoryDatabase).
			Context("operation", "replace_by_identity").
			Context("collection", unit.Collection()).
			Context("identity", id).
			Build()
	}
	return nil
}

// BackfillProvenance sets the origin tag and migration timestamp on any
// document missing either field, without touching other fields.
func (store *MongoStore) BackfillProvenance(ctx context.Context, unit schema.Unit, origin string, migratedAt time.Time) (int64, error) {
	coll := store.collection(unit)

	resOrigin, err := coll.UpdateMany(ctx,
		bson.M{schema.FieldOrigin: bson.M{"$exists": false}},
		bson.M{"$set": bson.M{schema.FieldOrigin: origin}})
	if err != nil {
		return 0, store.countError(err, unit, "backfill_origin")
	}

	resTime, err := coll.UpdateMany(ctx,
		bson.M{schema.FieldMigrationTime: bson.M{"$exists": false}},
		bson.M{"$set": bson.M{schema.FieldMigrationTime: migratedAt}})
	if err != nil {
		return resOrigin.ModifiedCount, store.countError(err, unit, "backfill_migration_time")
	}

	return resOrigin.ModifiedCount + resTime.ModifiedCount, nil
}

// DeleteByOrigin removes every document carrying the given origin tag.
func (store *MongoStore) DeleteByOrigin(ctx context.Context, unit schema.Unit, origin string) (int64, error) {
	res, err := store.collection(unit).DeleteMany(ctx, bson.M{schema.FieldOrigin: origin})
	if err != nil {
		return 0, errors.New(err).
			Component("target").
			Category(errors.CategoryDatabase).
			Context("operation", "delete_by_origin").
			Context("collection", unit.Collection()).
			Build()
	}
	return res.DeletedCount, nil
}
