// Package migrate drives the batch extract-transform-load pipeline: it
// reads ranged batches from the source, transforms them and upserts them
// into the target, checkpointing after every batch so an interrupted run
// resumes where it stopped.
package migrate

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ugdata/mysql2mongo/internal/checkpoint"
	"github.com/ugdata/mysql2mongo/internal/conf"
	"github.com/ugdata/mysql2mongo/internal/errors"
	"github.com/ugdata/mysql2mongo/internal/observability"
	"github.com/ugdata/mysql2mongo/internal/progress"
	"github.com/ugdata/mysql2mongo/internal/schema"
	"github.com/ugdata/mysql2mongo/internal/source"
	"github.com/ugdata/mysql2mongo/internal/target"
	"github.com/ugdata/mysql2mongo/internal/transform"
)

const (
	countVerifyAttempts  = 3
	countVerifyBaseDelay = 5 * time.Second
)

// Orchestrator migrates logical units from the source to the target.
type Orchestrator struct {
	source      source.Reader
	target      target.Store
	registry    *transform.Registry
	checkpoints *checkpoint.Store
	settings    *conf.Settings
	metrics     *observability.Metrics
	log         *slog.Logger

	// injected for tests
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	onRollback func(unit schema.Unit, ledger []MigratedBatch)
}

// New creates an Orchestrator.
func New(src source.Reader, tgt target.Store, registry *transform.Registry, checkpoints *checkpoint.Store, settings *conf.Settings, metrics *observability.Metrics, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		source:      src,
		target:      tgt,
		registry:    registry,
		checkpoints: checkpoints,
		settings:    settings,
		metrics:     metrics,
		log:         log.With("run_id", uuid.NewString()),
		now:         time.Now,
		sleep:       sleepContext,
	}
}

// MigrateAll migrates every configured table sequentially, continuing
// past per-table failures so sibling tables still converge.
func (o *Orchestrator) MigrateAll(ctx context.Context) Summary {
	tables := o.settings.Migration.Tables
	summary := Summary{Total: len(tables)}

	o.log.Info("starting migration", "tables", len(tables))
	for _, table := range tables {
		unit := schema.UnitFor(table, &o.settings.Migration)
		if err := o.MigrateTable(ctx, unit); err != nil {
			o.log.Error("table migration failed", "table", table, "error", err)
			summary.Failed = append(summary.Failed, table)
			continue
		}
		summary.Succeeded++
	}

	o.log.Info("migration finished",
		"succeeded", summary.Succeeded,
		"total", summary.Total)
	return summary
}

// MigrateTable migrates one logical unit, resuming from its checkpoint
// when one exists. A write failure rolls the unit back and aborts it.
func (o *Orchestrator) MigrateTable(ctx context.Context, unit schema.Unit) error {
	log := o.log.With("table", unit.Name)
	state := StateIdle
	log.Info("starting table migration", "state", state)

	total, err := o.source.Count(ctx, unit)
	if err != nil {
		return err
	}
	if total == 0 {
		log.Warn("table is empty, skipping migration")
		return o.checkpoints.Clear(unit.Name)
	}
	log.Info("table counted", "rows", total)

	batchSize := int64(unit.BatchSize)
	var startOffset, migrated int64
	if cp, ok := o.checkpoints.Get(unit.Name); ok {
		state = StateResuming
		startOffset = cp.Offset
		migrated = cp.MigratedCount
		log.Info("resuming from checkpoint",
			"state", state,
			"offset", startOffset,
			"migrated", migrated)
	}

	state = StateBatching
	tracker := progress.NewTracker(total)
	var ledger []MigratedBatch

	for offset := startOffset; offset < total; offset += batchSize {
		if err := ctx.Err(); err != nil {
			// Checkpoint stays put: the last batch fully landed, the
			// next run resumes from it.
			return errors.New(err).
				Component("migrate").
				Category(errors.CategoryCancellation).
				Context("table", unit.Name).
				Context("offset", offset).
				Build()
		}

		rows, err := o.source.Fetch(ctx, unit, batchSize, offset)
		if err != nil {
			// Source read failure leaves the target untouched, so the
			// checkpoint survives for a later resume.
			return err
		}
		if len(rows) == 0 {
			log.Warn("empty batch from source", "offset", offset)
			continue
		}

		docs := o.registry.Transform(unit, rows, o.now())
		outcome, err := o.target.UpsertBatch(ctx, unit, docs, o.settings.Migration.MaxRetries)
		if err != nil {
			state = StateRolledBack
			o.metrics.RecordBatchFailure(unit.Name)
			log.Error("batch write failed, rolling back table",
				"state", state,
				"offset", offset,
				"error", err)
			o.rollback(ctx, unit, ledger)
			if clearErr := o.checkpoints.Clear(unit.Name); clearErr != nil {
				log.Error("failed to clear checkpoint after rollback", "error", clearErr)
			}
			return err
		}

		migrated += int64(len(docs))
		ledger = append(ledger, MigratedBatch{
			Offset:    offset,
			Count:     int64(len(docs)),
			BatchSize: batchSize,
		})
		if err := o.checkpoints.Save(unit.Name, offset+batchSize, migrated); err != nil {
			return errors.New(err).
				Component("migrate").
				Category(errors.CategoryCheckpoint).
				Context("table", unit.Name).
				Context("offset", offset).
				Build()
		}
		o.metrics.RecordBatch(unit.Name, len(docs))

		log.Info("batch migrated",
			"migrated", migrated,
			"total", total,
			"percent", tracker.Percent(migrated),
			"elapsed", tracker.Elapsed().Round(time.Second),
			"eta", tracker.Remaining(migrated).Round(time.Second),
			"partial", outcome.Partial)
	}

	state = StateVerifying
	log.Info("verifying record count", "state", state, "expected", total)
	ok, err := o.verifyCountWithRetry(ctx, unit, total)
	if err != nil {
		return err
	}
	if !ok {
		state = StateRolledBack
		log.Error("count verification failed after retries, rolling back table", "state", state)
		o.rollback(ctx, unit, ledger)
		if clearErr := o.checkpoints.Clear(unit.Name); clearErr != nil {
			log.Error("failed to clear checkpoint after rollback", "error", clearErr)
		}
		return errors.Newf("count verification failed for table %s", unit.Name).
			Component("migrate").
			Category(errors.CategoryValidation).
			Context("table", unit.Name).
			Context("expected", total).
			Build()
	}

	state = StateCompleted
	if err := o.checkpoints.Clear(unit.Name); err != nil {
		return err
	}
	log.Info("table migration completed",
		"state", state,
		"migrated", migrated,
		"elapsed", tracker.Elapsed().Round(time.Second))
	return nil
}

// verifyCountWithRetry re-checks the target count with increasing delays
// to tolerate eventual-consistency lag after bulk writes.
func (o *Orchestrator) verifyCountWithRetry(ctx context.Context, unit schema.Unit, expected int64) (bool, error) {
	for attempt := 0; attempt < countVerifyAttempts; attempt++ {
		ok, err := o.target.VerifyCount(ctx, unit, expected)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if attempt < countVerifyAttempts-1 {
			delay := countVerifyBaseDelay * time.Duration(attempt+1)
			o.log.Warn("count verification failed, retrying",
				"table", unit.Name,
				"attempt", attempt+1,
				"delay", delay)
			if err := o.sleep(ctx, delay); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
