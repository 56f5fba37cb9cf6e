package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shelfdb.yaml")
	content := []byte("dataDir: /var/lib/shelfdb\nquota:\n  defaultBytes: 1024\nsearch:\n  maxResults: 50\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/shelfdb", cfg.DataDir)
	assert.Equal(t, int64(1024), cfg.Quota.DefaultBytes)
	assert.Equal(t, 50, cfg.Search.MaxResults)
	// Unspecified fields keep their defaults.
	assert.Equal(t, Default().Search.WorkerPool, cfg.Search.WorkerPool)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/path/shelfdb.yaml")
	assert.Error(t, err)
}

func TestEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shelfdb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dataDir: /from/yaml\nsearch:\n  maxResults: 5\n"), 0o644))
	t.Setenv("SHELFDB_DATA_DIR", "/env/override")
	t.Setenv("SHELFDB_SEARCH_MAX_RESULTS", "77")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/env/override", cfg.DataDir)
	assert.Equal(t, 77, cfg.Search.MaxResults)
}

func TestEnvInvalidValuesIgnored(t *testing.T) {
	t.Setenv("SHELFDB_SEARCH_MAX_RESULTS", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Search.MaxResults, cfg.Search.MaxResults)
}
