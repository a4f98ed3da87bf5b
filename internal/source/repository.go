package source

import (
	"context"

	"github.com/ugdata/mysql2mongo/internal/errors"
	"github.com/ugdata/mysql2mongo/internal/schema"
)

// Count returns the total number of rows in the unit's table.
func (store *DataStore) Count(ctx context.Context, unit schema.Unit) (int64, error) {
	var count int64
	err := store.DB.WithContext(ctx).Table(unit.Name).Count(&count).Error
	if err != nil {
		return 0, errors.New(err).
			Component("source").
			Category(errors.CategoryDatabase).
			Context("operation", "count").
			Context("table", unit.Name).
			Build()
	}
	return count, nil
}

// Fetch returns up to limit rows starting at offset, ordered by the
// unit's identity field so offset paging is stable across calls.
func (store *DataStore) Fetch(ctx context.Context, unit schema.Unit, limit, offset int64) ([]schema.Row, error) {
	var rows []map[string]any
	err := store.DB.WithContext(ctx).
		Table(unit.Name).
		Order(unit.IdentityField).
		Limit(int(limit)).
		Offset(int(offset)).
		Find(&rows).Error
	if err != nil {
		return nil, errors.New(err).
			Component("source").
			Category(errors.CategoryDatabase).
			Context("operation", "fetch").
			Context("table", unit.Name).
			Context("offset", offset).
			Context("limit", limit).
			Build()
	}
	out := make([]schema.Row, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out, nil
}

// FetchByIdentities returns the rows whose identity field matches one of
// ids. The lookup is chunked to stay under source query-size limits.
func (store *DataStore) FetchByIdentities(ctx context.Context, unit schema.Unit, ids []string) ([]schema.Row, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var all []schema.Row
	for start := 0; start < len(ids); start += maxIdentitiesPerQuery {
		end := min(start+maxIdentitiesPerQuery, len(ids))
		chunk := ids[start:end]

		var rows []map[string]any
		err := store.DB.WithContext(ctx).
			Table(unit.Name).
			Where(unit.IdentityField+" IN ?", chunk).
			Order(unit.IdentityField).
			Find(&rows).Error
		if err != nil {
			return nil, errors.New(err).
				Component("source").
				Category(errors.CategoryDatabase).
				Context("operation", "fetch_by_identities").
				Context("table", unit.Name).
				Context("identity_count", len(chunk)).
				Build()
		}
		for _, r := range rows {
			all = append(all, r)
		}
	}
	return all, nil
}
