// interfaces.go: this code defines the interface for target store operations
package target

import (
	"context"
	"time"

	"github.com/ugdata/mysql2mongo/internal/conf"
	"github.com/ugdata/mysql2mongo/internal/schema"
)

// BatchOutcome reports per-batch upsert results.
type BatchOutcome struct {
	Inserted int64 // new documents upserted
	Modified int64 // existing documents replaced
	Matched  int64 // existing documents matched (replaced or identical)
	Skipped  int64 // documents dropped for missing identity
	Failed   int64 // documents that failed to write
	Partial  bool  // some documents failed but at least one succeeded
}

// Store abstracts the document-oriented target store. All writes are
// idempotent: repeated delivery of the same batch is safe.
type Store interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error

	// UpsertBatch writes documents as replace-if-match-else-insert keyed
	// by the target identity, retrying full-batch failures with
	// exponential backoff up to maxRetries.
	UpsertBatch(ctx context.Context, unit schema.Unit, docs []schema.Document, maxRetries int) (BatchOutcome, error)

	// CountDocuments returns the number of documents in the unit's
	// collection.
	CountDocuments(ctx context.Context, unit schema.Unit) (int64, error)

	// VerifyCount reports whether the collection holds exactly expected
	// documents.
	VerifyCount(ctx context.Context, unit schema.Unit, expected int64) (bool, error)

	// CountByOrigin returns how many documents carry the given origin tag.
	CountByOrigin(ctx context.Context, unit schema.Unit, origin string) (int64, error)

	// CountTimestamped returns how many documents carry a date-typed
	// migration timestamp.
	CountTimestamped(ctx context.Context, unit schema.Unit) (int64, error)

	// CountMigratedSince returns how many documents were migrated at or
	// after the given time.
	CountMigratedSince(ctx context.Context, unit schema.Unit, since time.Time) (int64, error)

	// FindByIdentity returns the document with the given identity, or
	// errors.ErrNotFound when no such document exists.
	FindByIdentity(ctx context.Context, unit schema.Unit, id string) (schema.Document, error)

	// FindByIdentities returns the documents matching ids, keyed by
	// identity. Absent identities are simply missing from the result.
	FindByIdentities(ctx context.Context, unit schema.Unit, ids []string) (map[string]schema.Document, error)

	// ListIdentities returns the set of identities present in the unit's
	// collection.
	ListIdentities(ctx context.Context, unit schema.Unit) (map[string]struct{}, error)

	// InsertBatch inserts documents without replace semantics, unordered,
	// returning how many landed. Used by missing-data repair where the
	// documents are known to be absent.
	InsertBatch(ctx context.Context, unit schema.Unit, docs []schema.Document) (inserted int64, err error)

	// ReplaceByIdentity fully replaces (or inserts) the document with the
	// given identity.
	ReplaceByIdentity(ctx context.Context, unit schema.Unit, id string, doc schema.Document) error

	// BackfillProvenance sets the origin tag and migration timestamp on
	// documents missing either field, without touching other fields. It
	// returns the number of documents modified.
	BackfillProvenance(ctx context.Context, unit schema.Unit, origin string, migratedAt time.Time) (int64, error)

	// DeleteByOrigin removes every document carrying the given origin
	// tag. Only used by the opt-in destructive rollback mode.
	DeleteByOrigin(ctx context.Context, unit schema.Unit, origin string) (int64, error)
}

// New creates a Store for the configured target settings.
func New(settings *conf.Settings) Store {
	return &MongoStore{Settings: settings}
}
