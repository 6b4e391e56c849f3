package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type state struct {
	Counts map[string]int `json:"counts"`
}

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	in := state{Counts: map[string]int{"tmdb": 3}}
	require.NoError(t, Write(path, "quota", in))

	var out state
	require.NoError(t, Read(path, "quota", &out))
	assert.Equal(t, in, out)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}

func TestReadLegacyFlatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".provider_cache.json")
	legacy := `{"tmdb_movie": {"550": {"poster_url": "https://image.tmdb.org/t/p/original/p.jpg", "background_url": null, "source": "tmdb"}}}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	var out map[string]map[string]map[string]any
	require.NoError(t, Read(path, "cache", &out))
	assert.Equal(t, "tmdb", out["tmdb_movie"]["550"]["source"])
}

func TestReadRejectsNewerVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99, "kind": "quota", "data": {}}`), 0o644))

	var out state
	err := Read(path, "quota", &out)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestReadKindMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, Write(path, "quota", state{}))

	var out state
	assert.ErrorIs(t, Read(path, "cache", &out), ErrKindMismatch)
}

func TestReadMissingAndEmpty(t *testing.T) {
	dir := t.TempDir()

	var out state
	assert.ErrorIs(t, Read(filepath.Join(dir, "missing.json"), "quota", &out), os.ErrNotExist)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	assert.NoError(t, Read(empty, "quota", &out))
}

func TestReadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 1,`), 0o644))

	var out state
	assert.Error(t, Read(path, "quota", &out))
}
