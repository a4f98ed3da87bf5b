package migrate

// State tracks one table's migration through its lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateResuming   State = "resuming"
	StateBatching   State = "batching"
	StateVerifying  State = "verifying"
	StateCompleted  State = "completed"
	StateRolledBack State = "rolled_back"
)

// MigratedBatch records one successfully written batch for rollback
// bookkeeping. The ledger is held in memory for the duration of one
// table's migration and discarded on success.
type MigratedBatch struct {
	Offset    int64
	Count     int64
	BatchSize int64
}

// Summary aggregates a multi-table migration run.
type Summary struct {
	Total     int
	Succeeded int
	Failed    []string
}

// Success reports whether every table migrated.
func (s Summary) Success() bool {
	return s.Succeeded == s.Total
}
