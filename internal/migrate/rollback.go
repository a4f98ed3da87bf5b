package migrate

import (
	"context"

	"github.com/ugdata/mysql2mongo/internal/schema"
)

// rollback handles a failed table migration. Because every write is an
// idempotent upsert, the default rollback only logs the intent and
// leaves the written documents in place: clearing the checkpoint makes
// the next run re-upsert the table from the start and converge. The
// destructive mode, enabled explicitly in configuration, additionally
// deletes every provenance-tagged document for the table.
func (o *Orchestrator) rollback(ctx context.Context, unit schema.Unit, ledger []MigratedBatch) {
	log := o.log.With("table", unit.Name)
	if o.onRollback != nil {
		o.onRollback(unit, ledger)
	}

	var records int64
	for _, b := range ledger {
		records += b.Count
	}
	log.Info("rollback requested",
		"batches", len(ledger),
		"records", records,
		"destructive", o.settings.Migration.DestructiveRollback)

	if !o.settings.Migration.DestructiveRollback {
		log.Info("rollback is non-destructive, written documents remain; next run re-upserts them")
		return
	}

	deleted, err := o.target.DeleteByOrigin(ctx, unit, schema.OriginTag)
	if err != nil {
		log.Error("destructive rollback failed", "error", err)
		return
	}
	log.Warn("destructive rollback deleted migrated documents", "deleted", deleted)
}
