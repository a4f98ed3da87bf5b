// Package storetest provides in-memory source and target fakes for
// pipeline tests.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ugdata/mysql2mongo/internal/errors"
	"github.com/ugdata/mysql2mongo/internal/schema"
	"github.com/ugdata/mysql2mongo/internal/target"
)

// FakeReader is an in-memory source store. Rows are kept sorted by the
// stringified identity so Fetch paging is deterministic, the same
// guarantee the real reader gets from its ORDER BY.
type FakeReader struct {
	mu            sync.Mutex
	rows          map[string][]schema.Row
	identityField map[string]string

	CountErr error
	FetchErr error
	// FetchErrAtOffset fails the Fetch call at exactly this offset when
	// non-negative.
	FetchErrAtOffset int64
}

func NewFakeReader() *FakeReader {
	return &FakeReader{
		rows:             make(map[string][]schema.Row),
		identityField:    make(map[string]string),
		FetchErrAtOffset: -1,
	}
}

// Seed replaces the rows of a table, sorting them by identity.
func (f *FakeReader) Seed(table, identityField string, rows []schema.Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sorted := make([]schema.Row, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		return schema.StringifyIdentity(sorted[i][identityField]) < schema.StringifyIdentity(sorted[j][identityField])
	})
	f.rows[table] = sorted
	f.identityField[table] = identityField
}

func (f *FakeReader) Open() error  { return nil }
func (f *FakeReader) Close() error { return nil }

func (f *FakeReader) Count(_ context.Context, unit schema.Unit) (int64, error) {
	if f.CountErr != nil {
		return 0, f.CountErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.rows[unit.Name])), nil
}

func (f *FakeReader) Fetch(_ context.Context, unit schema.Unit, limit, offset int64) ([]schema.Row, error) {
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	if f.FetchErrAtOffset >= 0 && offset == f.FetchErrAtOffset {
		return nil, errors.NewStd("fetch failed")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.rows[unit.Name]
	if offset >= int64(len(rows)) {
		return nil, nil
	}
	end := offset + limit
	if end > int64(len(rows)) {
		end = int64(len(rows))
	}
	out := make([]schema.Row, 0, end-offset)
	for _, row := range rows[offset:end] {
		out = append(out, copyRow(row))
	}
	return out, nil
}

func (f *FakeReader) FetchByIdentities(_ context.Context, unit schema.Unit, ids []string) ([]schema.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var out []schema.Row
	for _, row := range f.rows[unit.Name] {
		id := schema.StringifyIdentity(row[f.identityField[unit.Name]])
		if _, ok := wanted[id]; ok {
			out = append(out, copyRow(row))
		}
	}
	return out, nil
}

func copyRow(row schema.Row) schema.Row {
	out := make(schema.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// FakeStore is an in-memory target store keyed table then identity.
type FakeStore struct {
	mu   sync.Mutex
	docs map[string]map[string]schema.Document

	// UpsertErrAfter fails every UpsertBatch call once this many calls
	// have succeeded, when non-negative.
	UpsertErrAfter int
	UpsertCalls    int
	InsertErr      error
	ReplaceErr     error
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		docs:           make(map[string]map[string]schema.Document),
		UpsertErrAfter: -1,
	}
}

func (f *FakeStore) Connect(context.Context) error { return nil }
func (f *FakeStore) Close(context.Context) error   { return nil }

// Docs returns the stored documents of a table keyed by identity.
func (f *FakeStore) Docs(table string) map[string]schema.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]schema.Document, len(f.docs[table]))
	for id, doc := range f.docs[table] {
		out[id] = doc
	}
	return out
}

// SeedDoc stores one document directly, bypassing upsert accounting.
func (f *FakeStore) SeedDoc(table string, doc schema.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collection(table)[doc[schema.FieldID].(string)] = doc
}

// DeleteDoc removes one document directly.
func (f *FakeStore) DeleteDoc(table, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.collection(table), id)
}

func (f *FakeStore) collection(table string) map[string]schema.Document {
	if f.docs[table] == nil {
		f.docs[table] = make(map[string]schema.Document)
	}
	return f.docs[table]
}

func (f *FakeStore) UpsertBatch(_ context.Context, unit schema.Unit, docs []schema.Document, _ int) (target.BatchOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UpsertErrAfter >= 0 && f.UpsertCalls >= f.UpsertErrAfter {
		return target.BatchOutcome{}, errors.NewStd("bulk write failed")
	}
	f.UpsertCalls++

	var outcome target.BatchOutcome
	coll := f.collection(unit.Name)
	for _, doc := range docs {
		id, ok := doc[schema.FieldID].(string)
		if !ok {
			outcome.Skipped++
			continue
		}
		if _, exists := coll[id]; exists {
			outcome.Matched++
			outcome.Modified++
		} else {
			outcome.Inserted++
		}
		coll[id] = doc
	}
	return outcome, nil
}

func (f *FakeStore) CountDocuments(_ context.Context, unit schema.Unit) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.docs[unit.Name])), nil
}

func (f *FakeStore) VerifyCount(ctx context.Context, unit schema.Unit, expected int64) (bool, error) {
	count, err := f.CountDocuments(ctx, unit)
	if err != nil {
		return false, err
	}
	return count == expected, nil
}

func (f *FakeStore) CountByOrigin(_ context.Context, unit schema.Unit, origin string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, doc := range f.docs[unit.Name] {
		if doc[schema.FieldOrigin] == origin {
			count++
		}
	}
	return count, nil
}

func (f *FakeStore) CountTimestamped(_ context.Context, unit schema.Unit) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, doc := range f.docs[unit.Name] {
		if _, ok := doc[schema.FieldMigrationTime].(time.Time); ok {
			count++
		}
	}
	return count, nil
}

func (f *FakeStore) CountMigratedSince(_ context.Context, unit schema.Unit, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, doc := range f.docs[unit.Name] {
		if ts, ok := doc[schema.FieldMigrationTime].(time.Time); ok && !ts.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *FakeStore) FindByIdentity(_ context.Context, unit schema.Unit, id string) (schema.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[unit.Name][id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return doc, nil
}

func (f *FakeStore) FindByIdentities(_ context.Context, unit schema.Unit, ids []string) (map[string]schema.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]schema.Document)
	for _, id := range ids {
		if doc, ok := f.docs[unit.Name][id]; ok {
			out[id] = doc
		}
	}
	return out, nil
}

func (f *FakeStore) ListIdentities(_ context.Context, unit schema.Unit) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]struct{}, len(f.docs[unit.Name]))
	for id := range f.docs[unit.Name] {
		out[id] = struct{}{}
	}
	return out, nil
}

func (f *FakeStore) InsertBatch(_ context.Context, unit schema.Unit, docs []schema.Document) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InsertErr != nil {
		return 0, f.InsertErr
	}
	coll := f.collection(unit.Name)
	var inserted int64
	for _, doc := range docs {
		id, ok := doc[schema.FieldID].(string)
		if !ok {
			continue
		}
		if _, exists := coll[id]; exists {
			continue
		}
		coll[id] = doc
		inserted++
	}
	return inserted, nil
}

func (f *FakeStore) ReplaceByIdentity(_ context.Context, unit schema.Unit, id string, doc schema.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReplaceErr != nil {
		return f.ReplaceErr
	}
	f.collection(unit.Name)[id] = doc
	return nil
}

func (f *FakeStore) BackfillProvenance(_ context.Context, unit schema.Unit, origin string, migratedAt time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var modified int64
	for id, doc := range f.docs[unit.Name] {
		_, hasOrigin := doc[schema.FieldOrigin]
		_, hasTime := doc[schema.FieldMigrationTime]
		if hasOrigin && hasTime {
			continue
		}
		if !hasOrigin {
			doc[schema.FieldOrigin] = origin
		}
		if !hasTime {
			doc[schema.FieldMigrationTime] = migratedAt
		}
		f.docs[unit.Name][id] = doc
		modified++
	}
	return modified, nil
}

func (f *FakeStore) DeleteByOrigin(_ context.Context, unit schema.Unit, origin string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for id, doc := range f.docs[unit.Name] {
		if doc[schema.FieldOrigin] == origin {
			delete(f.docs[unit.Name], id)
			deleted++
		}
	}
	return deleted, nil
}
