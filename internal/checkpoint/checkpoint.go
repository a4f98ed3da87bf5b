// Package checkpoint persists per-table migration progress so an
// interrupted run can resume from the last completed batch.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Checkpoint records the last completed offset and running count for one
// table. A persisted checkpoint implies the table's migration is
// incomplete or failed.
type Checkpoint struct {
	Offset        int64     `json:"offset"`
	MigratedCount int64     `json:"migrated_count"`
	LastUpdate    time.Time `json:"last_update"`
}

// Store is a durable checkpoint file keyed by table name. Each table's
// entry has a single writer, the orchestrator migrating that table; the
// store serializes concurrent access from parallel table migrations.
type Store struct {
	path    string
	mu      sync.Mutex
	entries map[string]Checkpoint
}

// NewStore opens the checkpoint file at path, loading any outstanding
// entries. A missing file is not an error: it means no migration is in
// progress.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:    path,
		entries: make(map[string]Checkpoint),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint file %s: %w", path, err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint file %s: %w", path, err)
	}
	return s, nil
}

// Get returns the checkpoint for a table, if one exists.
func (s *Store) Get(table string) (Checkpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.entries[table]
	return cp, ok
}

// Save records progress for a table and rewrites the file. The checkpoint
// is only saved after a batch has fully landed in the target.
func (s *Store) Save(table string, offset, migratedCount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[table] = Checkpoint{
		Offset:        offset,
		MigratedCount: migratedCount,
		LastUpdate:    time.Now(),
	}
	return s.flushLocked()
}

// Clear removes the checkpoint for a table, marking its migration as
// terminally completed or rolled back.
func (s *Store) Clear(table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, table)
	return s.flushLocked()
}

// ClearAll removes every checkpoint.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Checkpoint)
	return s.flushLocked()
}

// All returns a copy of all outstanding checkpoints.
func (s *Store) All() map[string]Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Checkpoint, len(s.entries))
	for table, cp := range s.entries {
		out[table] = cp
	}
	return out
}

// flushLocked rewrites the checkpoint file atomically via a temp file and
// rename, so a crash mid-write never corrupts recorded progress.
func (s *Store) flushLocked() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoints: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write checkpoint temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}
	return nil
}
