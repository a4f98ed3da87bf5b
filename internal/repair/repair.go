// Package repair fixes the divergences found by verification: missing
// documents are re-inserted, inconsistent documents are rebuilt from the
// source row, and absent provenance fields are backfilled. Every repair
// is idempotent; re-running against an already repaired table changes
// nothing.
package repair

import (
	"context"
	"log/slog"
	"time"

	"github.com/ugdata/mysql2mongo/internal/conf"
	"github.com/ugdata/mysql2mongo/internal/errors"
	"github.com/ugdata/mysql2mongo/internal/logging"
	"github.com/ugdata/mysql2mongo/internal/observability"
	"github.com/ugdata/mysql2mongo/internal/progress"
	"github.com/ugdata/mysql2mongo/internal/schema"
	"github.com/ugdata/mysql2mongo/internal/source"
	"github.com/ugdata/mysql2mongo/internal/target"
	"github.com/ugdata/mysql2mongo/internal/transform"
	"github.com/ugdata/mysql2mongo/internal/verify"
)

// Outcome reports what a repair run changed for one table.
type Outcome struct {
	MissingRepaired      int64
	MissingFailed        int64
	InconsistentRepaired int64
	InconsistentFailed   int64
	MetadataRepaired     int64
	CountsAligned        bool
}

// Repaired returns the total number of records fixed.
func (o Outcome) Repaired() int64 {
	return o.MissingRepaired + o.InconsistentRepaired + o.MetadataRepaired
}

// Failed returns the total number of records that could not be fixed.
func (o Outcome) Failed() int64 {
	return o.MissingFailed + o.InconsistentFailed
}

// Repairer rebuilds divergent target documents from their source rows.
type Repairer struct {
	source   source.Reader
	target   target.Store
	registry *transform.Registry
	settings *conf.Settings
	metrics  *observability.Metrics
	log      *slog.Logger
	now      func() time.Time
}

// New creates a Repairer over the given source reader and target store.
func New(src source.Reader, tgt target.Store, registry *transform.Registry, settings *conf.Settings, metrics *observability.Metrics) *Repairer {
	return &Repairer{
		source:   src,
		target:   tgt,
		registry: registry,
		settings: settings,
		metrics:  metrics,
		log:      logging.ForService("repair"),
		now:      time.Now,
	}
}

// RepairTable runs the enabled repair kinds for one table. When a
// verification result is supplied its divergences drive the
// inconsistent-data repair directly; without one the repairer re-scans
// the table to find them.
func (r *Repairer) RepairTable(ctx context.Context, unit schema.Unit, result *verify.Result) (Outcome, error) {
	var outcome Outcome

	if r.settings.Repair.RepairMissing {
		repaired, failed, err := r.repairMissing(ctx, unit)
		outcome.MissingRepaired = repaired
		outcome.MissingFailed = failed
		if err != nil {
			return outcome, err
		}
		if r.metrics != nil {
			r.metrics.RecordRepairs(unit.Name, "missing", repaired, failed)
		}
	}

	if r.settings.Repair.RepairInconsistent {
		repaired, failed, err := r.repairInconsistent(ctx, unit, result)
		outcome.InconsistentRepaired = repaired
		outcome.InconsistentFailed = failed
		if err != nil {
			return outcome, err
		}
		if r.metrics != nil {
			r.metrics.RecordRepairs(unit.Name, "inconsistent", repaired, failed)
		}
	}

	if r.settings.Repair.RepairMetadata {
		repaired, err := r.repairMetadata(ctx, unit)
		outcome.MetadataRepaired = repaired
		if err != nil {
			return outcome, err
		}
		if r.metrics != nil {
			r.metrics.RecordRepairs(unit.Name, "metadata", repaired, 0)
		}
	}

	aligned, err := r.countsAligned(ctx, unit)
	if err != nil {
		return outcome, err
	}
	outcome.CountsAligned = aligned

	r.log.Info("repair finished", "table", unit.Name,
		"missing_repaired", outcome.MissingRepaired,
		"inconsistent_repaired", outcome.InconsistentRepaired,
		"metadata_repaired", outcome.MetadataRepaired,
		"failed", outcome.Failed(),
		"counts_aligned", aligned)
	return outcome, nil
}

// repairMissing re-inserts every source row whose identity is absent
// from the target collection. Matching counts short-circuit the scan:
// the count check already proved no document is missing.
func (r *Repairer) repairMissing(ctx context.Context, unit schema.Unit) (repaired, failed int64, err error) {
	sourceCount, err := r.source.Count(ctx, unit)
	if err != nil {
		return 0, 0, r.wrapErr(err, unit, "missing")
	}
	if sourceCount == 0 {
		return 0, 0, nil
	}
	targetCount, err := r.target.CountDocuments(ctx, unit)
	if err != nil {
		return 0, 0, r.wrapErr(err, unit, "missing")
	}
	if sourceCount == targetCount {
		r.log.Debug("counts match, no missing documents", "table", unit.Name, "records", sourceCount)
		return 0, 0, nil
	}

	existing, err := r.target.ListIdentities(ctx, unit)
	if err != nil {
		return 0, 0, r.wrapErr(err, unit, "missing")
	}

	tracker := progress.NewTracker(sourceCount)
	batchSize := int64(unit.BatchSize)
	var scanned int64

	for offset := int64(0); offset < sourceCount; offset += batchSize {
		if err := ctx.Err(); err != nil {
			return repaired, failed, errors.New(err).
				Component("repair").
				Category(errors.CategoryCancellation).
				Context("table", unit.Name).
				Build()
		}

		rows, err := r.source.Fetch(ctx, unit, batchSize, offset)
		if err != nil {
			return repaired, failed, r.wrapErr(err, unit, "missing")
		}
		if len(rows) == 0 {
			break
		}
		scanned += int64(len(rows))

		var absent []schema.Row
		for _, row := range rows {
			id := schema.StringifyIdentity(row[unit.IdentityField])
			if _, found := existing[id]; !found {
				absent = append(absent, row)
			}
		}
		if len(absent) == 0 {
			r.log.Debug("batch scanned, nothing missing", "table", unit.Name,
				"offset", offset, "percent", tracker.Percent(scanned))
			continue
		}

		docs := r.registry.Transform(unit, absent, r.now())
		inserted, insErr := r.target.InsertBatch(ctx, unit, docs)
		repaired += inserted
		if insErr != nil {
			// Unordered insert may have landed a subset. Retry the
			// remainder one document at a time so a single bad record
			// cannot sink the batch.
			recovered, lost := r.insertIndividually(ctx, unit, docs)
			repaired += recovered
			failed += lost
		}

		r.log.Info("missing documents repaired", "table", unit.Name,
			"offset", offset, "batch_missing", len(absent),
			"repaired", repaired, "failed", failed,
			"percent", tracker.Percent(scanned), "elapsed", tracker.Elapsed())
	}
	return repaired, failed, nil
}

// insertIndividually retries documents from a failed batch insert one at
// a time with replace semantics, so documents that did land in the
// partial batch are simply replaced with themselves.
func (r *Repairer) insertIndividually(ctx context.Context, unit schema.Unit, docs []schema.Document) (recovered, lost int64) {
	for _, doc := range docs {
		id, ok := doc[schema.FieldID].(string)
		if !ok {
			lost++
			continue
		}
		if _, err := r.target.FindByIdentity(ctx, unit, id); err == nil {
			continue // landed in the partial batch
		} else if !errors.Is(err, errors.ErrNotFound) {
			lost++
			r.log.Error("failed to probe missing document", "table", unit.Name, "id", id, "error", err)
			continue
		}
		if err := r.target.ReplaceByIdentity(ctx, unit, id, doc); err != nil {
			lost++
			r.log.Error("failed to repair missing document", "table", unit.Name, "id", id, "error", err)
			continue
		}
		recovered++
	}
	return recovered, lost
}

// repairInconsistent rebuilds documents whose content diverges from the
// source row. With a verification result the divergent identities are
// already known; otherwise the table is re-scanned.
func (r *Repairer) repairInconsistent(ctx context.Context, unit schema.Unit, result *verify.Result) (repaired, failed int64, err error) {
	var ids []string
	if result != nil && !result.Content.Skipped {
		ids = result.DivergentIDs(verify.DivergenceInconsistent)
	} else {
		ids, err = r.findInconsistent(ctx, unit)
		if err != nil {
			return 0, 0, err
		}
	}
	if len(ids) == 0 {
		return 0, 0, nil
	}

	rows, err := r.source.FetchByIdentities(ctx, unit, ids)
	if err != nil {
		return 0, 0, r.wrapErr(err, unit, "inconsistent")
	}

	docs := r.registry.Transform(unit, rows, r.now())
	for _, doc := range docs {
		id, ok := doc[schema.FieldID].(string)
		if !ok {
			failed++
			continue
		}
		if err := r.target.ReplaceByIdentity(ctx, unit, id, doc); err != nil {
			failed++
			r.log.Error("failed to repair inconsistent document", "table", unit.Name, "id", id, "error", err)
			continue
		}
		repaired++
	}
	return repaired, failed, nil
}

// findInconsistent scans the table batch by batch and returns the
// identities of documents whose content diverges from the source row.
// Missing documents are left to the missing-data repair.
func (r *Repairer) findInconsistent(ctx context.Context, unit schema.Unit) ([]string, error) {
	sourceCount, err := r.source.Count(ctx, unit)
	if err != nil {
		return nil, r.wrapErr(err, unit, "inconsistent")
	}

	batchSize := int64(unit.BatchSize)
	var divergent []string

	for offset := int64(0); offset < sourceCount; offset += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, errors.New(err).
				Component("repair").
				Category(errors.CategoryCancellation).
				Context("table", unit.Name).
				Build()
		}

		rows, err := r.source.Fetch(ctx, unit, batchSize, offset)
		if err != nil {
			return nil, r.wrapErr(err, unit, "inconsistent")
		}
		if len(rows) == 0 {
			break
		}

		ids := make([]string, 0, len(rows))
		byID := make(map[string]schema.Row, len(rows))
		for _, row := range rows {
			id := schema.StringifyIdentity(row[unit.IdentityField])
			ids = append(ids, id)
			byID[id] = row
		}

		docs, err := r.target.FindByIdentities(ctx, unit, ids)
		if err != nil {
			return nil, r.wrapErr(err, unit, "inconsistent")
		}
		for _, id := range ids {
			doc, found := docs[id]
			if !found {
				continue
			}
			if diffs := verify.CompareRecord(byID[id], doc, unit.IdentityField); len(diffs) > 0 {
				divergent = append(divergent, id)
			}
		}
	}
	return divergent, nil
}

// repairMetadata backfills the origin tag and migration timestamp on
// documents missing either provenance field.
func (r *Repairer) repairMetadata(ctx context.Context, unit schema.Unit) (int64, error) {
	modified, err := r.target.BackfillProvenance(ctx, unit, schema.OriginTag, r.now())
	if err != nil {
		return 0, r.wrapErr(err, unit, "metadata")
	}
	if modified > 0 {
		r.log.Info("provenance fields backfilled", "table", unit.Name, "documents", modified)
	}
	return modified, nil
}

// countsAligned re-checks the record counts after repair.
func (r *Repairer) countsAligned(ctx context.Context, unit schema.Unit) (bool, error) {
	sourceCount, err := r.source.Count(ctx, unit)
	if err != nil {
		return false, r.wrapErr(err, unit, "recheck")
	}
	ok, err := r.target.VerifyCount(ctx, unit, sourceCount)
	if err != nil {
		return false, r.wrapErr(err, unit, "recheck")
	}
	return ok, nil
}

func (r *Repairer) wrapErr(err error, unit schema.Unit, kind string) error {
	return errors.New(err).
		Component("repair").
		Category(errors.CategoryDatabase).
		Context("table", unit.Name).
		Context("repair", kind).
		Build()
}
