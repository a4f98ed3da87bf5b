// Package verify runs the post-migration consistency checks: record
// counts, provenance fields, full content comparison and field-mapping
// configuration.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ugdata/mysql2mongo/internal/conf"
	"github.com/ugdata/mysql2mongo/internal/errors"
	"github.com/ugdata/mysql2mongo/internal/logging"
	"github.com/ugdata/mysql2mongo/internal/mapping"
	"github.com/ugdata/mysql2mongo/internal/observability"
	"github.com/ugdata/mysql2mongo/internal/schema"
	"github.com/ugdata/mysql2mongo/internal/source"
	"github.com/ugdata/mysql2mongo/internal/target"
)

// Verifier runs the four consistency checks for each configured table.
// Checks run in order; a count mismatch skips the remaining checks since
// their results would be meaningless against a divergent population.
type Verifier struct {
	source   source.Reader
	target   target.Store
	settings *conf.Settings
	mappings mapping.Mappings
	metrics  *observability.Metrics
	log      *slog.Logger
	now      func() time.Time
}

// New creates a Verifier over the given source reader and target store.
func New(src source.Reader, tgt target.Store, settings *conf.Settings, mappings mapping.Mappings, metrics *observability.Metrics) *Verifier {
	return &Verifier{
		source:   src,
		target:   tgt,
		settings: settings,
		mappings: mappings,
		metrics:  metrics,
		log:      logging.ForService("verify"),
		now:      time.Now,
	}
}

// VerifyAll verifies every configured table and returns one result per
// table. A table whose checks cannot run at all still yields an error,
// but verification continues with the remaining tables.
func (v *Verifier) VerifyAll(ctx context.Context) ([]*Result, error) {
	tables := v.settings.Verify.Tables
	if len(tables) == 0 {
		tables = v.settings.Migration.Tables
	}

	var results []*Result
	var firstErr error
	for _, table := range tables {
		unit := schema.UnitFor(table, &v.settings.Migration)
		result, err := v.VerifyTable(ctx, unit)
		if err != nil {
			v.log.Error("verification aborted for table", "table", table, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, result)
	}
	return results, firstErr
}

// VerifyTable runs the four checks for one table.
func (v *Verifier) VerifyTable(ctx context.Context, unit schema.Unit) (*Result, error) {
	v.log.Info("verifying table", "table", unit.Name)

	result := &Result{Table: unit.Name}

	sourceCount, err := v.source.Count(ctx, unit)
	if err != nil {
		return nil, errors.New(err).
			Component("verify").
			Category(errors.CategoryDatabase).
			Context("table", unit.Name).
			Build()
	}
	targetCount, err := v.target.CountDocuments(ctx, unit)
	if err != nil {
		return nil, errors.New(err).
			Component("verify").
			Category(errors.CategoryDatabase).
			Context("table", unit.Name).
			Build()
	}
	result.SourceCount = sourceCount
	result.TargetCount = targetCount

	result.Count = v.checkCount(unit, sourceCount, targetCount)
	if !result.Count.Passed {
		skipped := CheckResult{Skipped: true, Detail: "skipped: record counts diverge"}
		result.Provenance = skipped
		result.Content = skipped
		result.Mapping = skipped
		result.Provenance.Kind = CheckProvenance
		result.Content.Kind = CheckContent
		result.Mapping.Kind = CheckMapping
		v.log.Error("count check failed, remaining checks skipped",
			"table", unit.Name, "source_count", sourceCount, "target_count", targetCount)
		return result, nil
	}

	result.Provenance, err = v.checkProvenance(ctx, unit, targetCount)
	if err != nil {
		return nil, err
	}
	result.Content, err = v.checkContent(ctx, unit, sourceCount)
	if err != nil {
		return nil, err
	}
	result.Mapping = v.checkMapping(unit)

	if result.Passed() {
		v.log.Info("table verified", "table", unit.Name, "records", sourceCount)
	} else {
		v.log.Error("table verification failed", "table", unit.Name,
			"provenance", result.Provenance.Passed,
			"content", result.Content.Passed,
			"mapping", result.Mapping.Passed)
	}
	return result, nil
}

// checkCount compares the source row count against the target document
// count.
func (v *Verifier) checkCount(unit schema.Unit, sourceCount, targetCount int64) CheckResult {
	check := CheckResult{Kind: CheckCount}
	if sourceCount == targetCount {
		check.Passed = true
		check.Detail = fmt.Sprintf("source and target both hold %d records", sourceCount)
		return check
	}
	check.Detail = fmt.Sprintf("source holds %d records, target holds %d", sourceCount, targetCount)
	if v.metrics != nil {
		v.metrics.RecordDivergence(unit.Name, "count", 1)
	}
	return check
}

// checkProvenance verifies every target document carries the origin tag
// and a date-typed migration timestamp. Documents migrated inside the
// recent window are reported as a warning only; an older migration is
// not a defect.
func (v *Verifier) checkProvenance(ctx context.Context, unit schema.Unit, targetCount int64) (CheckResult, error) {
	check := CheckResult{Kind: CheckProvenance}
	if targetCount == 0 {
		check.Passed = true
		check.Detail = "collection is empty"
		return check, nil
	}

	tagged, err := v.target.CountByOrigin(ctx, unit, schema.OriginTag)
	if err != nil {
		return check, v.wrapCheckErr(err, unit, CheckProvenance)
	}
	timestamped, err := v.target.CountTimestamped(ctx, unit)
	if err != nil {
		return check, v.wrapCheckErr(err, unit, CheckProvenance)
	}

	if tagged != targetCount || timestamped != targetCount {
		check.Detail = fmt.Sprintf("%d of %d documents carry the origin tag, %d carry a date-typed migration timestamp",
			tagged, targetCount, timestamped)
		if v.metrics != nil {
			v.metrics.RecordDivergence(unit.Name, "provenance", 1)
		}
		return check, nil
	}

	check.Passed = true
	check.Detail = fmt.Sprintf("all %d documents carry origin tag and migration timestamp", targetCount)

	windowDays := v.settings.Verify.RecentWindowDays
	if windowDays > 0 {
		since := v.now().AddDate(0, 0, -windowDays)
		recent, err := v.target.CountMigratedSince(ctx, unit, since)
		if err != nil {
			return check, v.wrapCheckErr(err, unit, CheckProvenance)
		}
		if recent < targetCount {
			check.Warning = fmt.Sprintf("%d of %d documents were migrated more than %d days ago",
				targetCount-recent, targetCount, windowDays)
			v.log.Warn("some documents predate the recent window",
				"table", unit.Name, "recent", recent, "total", targetCount, "window_days", windowDays)
		}
	}
	return check, nil
}

// checkContent compares every source row against its target document,
// batch by batch. Each divergent record is classified as missing or
// inconsistent; for inconsistent records a bounded number of field diffs
// is retained for diagnostics.
func (v *Verifier) checkContent(ctx context.Context, unit schema.Unit, sourceCount int64) (CheckResult, error) {
	check := CheckResult{Kind: CheckContent}
	if sourceCount == 0 {
		check.Passed = true
		check.Detail = "source table is empty"
		return check, nil
	}

	batchSize := int64(unit.BatchSize)
	var compared, missing, inconsistent int64

	for offset := int64(0); offset < sourceCount; offset += batchSize {
		if err := ctx.Err(); err != nil {
			return check, errors.New(err).
				Component("verify").
				Category(errors.CategoryCancellation).
				Context("table", unit.Name).
				Build()
		}

		rows, err := v.source.Fetch(ctx, unit, batchSize, offset)
		if err != nil {
			return check, v.wrapCheckErr(err, unit, CheckContent)
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

		docs, err := v.target.FindByIdentities(ctx, unit, ids)
		if err != nil {
			return check, v.wrapCheckErr(err, unit, CheckContent)
		}

		for _, id := range ids {
			compared++
			doc, found := docs[id]
			if !found {
				missing++
				check.Divergences = append(check.Divergences, Divergence{ID: id, Kind: DivergenceMissing})
				continue
			}
			diffs := CompareRecord(byID[id], doc, unit.IdentityField)
			if len(diffs) == 0 {
				continue
			}
			inconsistent++
			bounded, truncated := boundDiffs(diffs)
			check.Divergences = append(check.Divergences, Divergence{
				ID:             id,
				Kind:           DivergenceInconsistent,
				Diffs:          bounded,
				TruncatedDiffs: truncated,
			})
		}

		v.log.Debug("content batch compared", "table", unit.Name,
			"offset", offset, "compared", compared, "divergent", missing+inconsistent)
	}

	if missing == 0 && inconsistent == 0 {
		check.Passed = true
		check.Detail = fmt.Sprintf("all %d records match", compared)
		return check, nil
	}

	check.Detail = fmt.Sprintf("%d of %d records diverge (%d missing, %d inconsistent)",
		missing+inconsistent, compared, missing, inconsistent)
	if v.metrics != nil {
		if missing > 0 {
			v.metrics.RecordDivergence(unit.Name, string(DivergenceMissing), int(missing))
		}
		if inconsistent > 0 {
			v.metrics.RecordDivergence(unit.Name, string(DivergenceInconsistent), int(inconsistent))
		}
	}
	for _, d := range check.Divergences {
		if d.Kind != DivergenceInconsistent {
			continue
		}
		for _, diff := range d.Diffs {
			v.log.Warn("field diverges", "table", unit.Name, "id", d.ID,
				"field", diff.Field, "source", diff.Source, "target", diff.Target)
		}
		if d.TruncatedDiffs > 0 {
			v.log.Warn("additional fields diverge", "table", unit.Name,
				"id", d.ID, "count", d.TruncatedDiffs)
		}
	}
	return check, nil
}

// checkMapping validates the optional field-mapping configuration for
// the unit. A table without configured mappings passes vacuously.
func (v *Verifier) checkMapping(unit schema.Unit) CheckResult {
	check := CheckResult{Kind: CheckMapping}

	tm, ok := v.mappings[unit.Name]
	if !ok || len(tm.Transformations) == 0 {
		check.Passed = true
		check.Detail = "no field mappings configured"
		return check
	}

	var invalid []string
	for field, fm := range tm.Transformations {
		if fm.Target == "" {
			invalid = append(invalid, fmt.Sprintf("%s: empty target field", field))
			continue
		}
		if !mapping.KnownType(fm.Type) {
			invalid = append(invalid, fmt.Sprintf("%s: unknown type %q", field, fm.Type))
		}
	}

	if len(invalid) > 0 {
		check.Detail = fmt.Sprintf("%d of %d field mappings invalid: %v",
			len(invalid), len(tm.Transformations), invalid)
		if v.metrics != nil {
			v.metrics.RecordDivergence(unit.Name, "mapping", 1)
		}
		return check
	}

	check.Passed = true
	check.Detail = fmt.Sprintf("%d field mappings configured correctly", len(tm.Transformations))
	return check
}

func (v *Verifier) wrapCheckErr(err error, unit schema.Unit, kind CheckKind) error {
	return errors.New(err).
		Component("verify").
		Category(errors.CategoryDatabase).
		Context("table", unit.Name).
		Context("check", string(kind)).
		Build()
}
