// interfaces.go: this code defines the interface for source store operations
package source

import (
	"context"

	"github.com/ugdata/mysql2mongo/internal/conf"
	"github.com/ugdata/mysql2mongo/internal/schema"
	"gorm.io/gorm"
)

// maxIdentitiesPerQuery bounds IN-list lookups so a single query stays
// under the source's query-size limits.
const maxIdentitiesPerQuery = 1000

// Reader abstracts the row-oriented source store. Fetch results are
// ordered by the unit's identity field; re-invocation re-reads from the
// source, no cursor state is retained.
type Reader interface {
	Open() error
	Close() error
	// Count returns the number of rows in the unit's table.
	Count(ctx context.Context, unit schema.Unit) (int64, error)
	// Fetch returns up to limit rows starting at offset. An empty result
	// for a valid offset range is not an error.
	Fetch(ctx context.Context, unit schema.Unit, limit, offset int64) ([]schema.Row, error)
	// FetchByIdentities returns the rows whose identity field matches one
	// of ids, chunking the lookup as needed.
	FetchByIdentities(ctx context.Context, unit schema.Unit, ids []string) ([]schema.Row, error)
}

// DataStore implements the shared Reader operations on a GORM database.
type DataStore struct {
	DB *gorm.DB
}

// New creates a Reader for the configured source backend.
func New(settings *conf.Settings) Reader {
	switch settings.Source.Driver {
	case "sqlite":
		return &SQLiteStore{Settings: settings}
	default:
		return &MySQLStore{Settings: settings}
	}
}
