package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreMissingFile(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "progress.json"))
	require.NoError(t, err)

	_, found := store.Get("ug_order")
	assert.False(t, found)
	assert.Empty(t, store.All())
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")

	store, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save("ug_order", 2000, 2000))
	require.NoError(t, store.Save("ug_user", 500, 500))

	// A fresh store on the same path must see the persisted entries,
	// this is what resume-after-crash relies on.
	reloaded, err := NewStore(path)
	require.NoError(t, err)

	cp, found := reloaded.Get("ug_order")
	require.True(t, found)
	assert.Equal(t, int64(2000), cp.Offset)
	assert.Equal(t, int64(2000), cp.MigratedCount)
	assert.WithinDuration(t, time.Now(), cp.LastUpdate, 5*time.Second)

	assert.Len(t, reloaded.All(), 2)
}

func TestSaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	store, err := NewStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Save("ug_order", 1000, 1000))
	require.NoError(t, store.Save("ug_order", 2000, 2000))

	cp, found := store.Get("ug_order")
	require.True(t, found)
	assert.Equal(t, int64(2000), cp.Offset)
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	store, err := NewStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Save("ug_order", 1000, 1000))
	require.NoError(t, store.Save("ug_user", 500, 500))
	require.NoError(t, store.Clear("ug_order"))

	_, found := store.Get("ug_order")
	assert.False(t, found)
	_, found = store.Get("ug_user")
	assert.True(t, found)

	reloaded, err := NewStore(path)
	require.NoError(t, err)
	_, found = reloaded.Get("ug_order")
	assert.False(t, found)
}

func TestClearAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	store, err := NewStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Save("ug_order", 1000, 1000))
	require.NoError(t, store.ClearAll())

	assert.Empty(t, store.All())
}

func TestFileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	store, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save("ug_order", 2000, 1998))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entries map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Contains(t, entries, "ug_order")
	assert.Equal(t, float64(2000), entries["ug_order"]["offset"])
	assert.Equal(t, float64(1998), entries["ug_order"]["migrated_count"])
	assert.Contains(t, entries["ug_order"], "last_update")
}

func TestMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewStore(path)
	assert.Error(t, err)
}
