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

	assert.Equal(t, "./data/gleif.db", cfg.Storage.DBPath)
	assert.Equal(t, "companies", cfg.Vector.Collection)
	assert.Equal(t, "nomic-embed-text", cfg.Vector.EmbeddingModel)
	assert.Equal(t, "https://query.wikidata.org/sparql", cfg.Wikidata.Endpoint)
	assert.Equal(t, 30, cfg.Wikidata.BatchSize)
	assert.Equal(t, 5, cfg.Matching.TopK)
}

func TestLoadMissingFileIsFine(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "./data/gleif.db", cfg.Storage.DBPath)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peermatch.yaml")
	content := `
storage:
  db_path: /var/lib/peermatch/gleif.db
vector:
  collection: staging
wikidata:
  batch_size: 10
matching:
  top_k: 12
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/peermatch/gleif.db", cfg.Storage.DBPath)
	assert.Equal(t, "staging", cfg.Vector.Collection)
	assert.Equal(t, 10, cfg.Wikidata.BatchSize)
	assert.Equal(t, 12, cfg.Matching.TopK)

	// Untouched fields keep their defaults.
	assert.Equal(t, "nomic-embed-text", cfg.Vector.EmbeddingModel)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peermatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peermatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  db_path: from-file.db\n"), 0o644))

	t.Setenv("PEERMATCH_DB_PATH", "from-env.db")
	t.Setenv("PEERMATCH_VECTOR_DSN", "postgres://db.internal:5432/pm")
	t.Setenv("PEERMATCH_TOP_K", "25")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env.db", cfg.Storage.DBPath)
	assert.Equal(t, "postgres://db.internal:5432/pm", cfg.Vector.DSN)
	assert.Equal(t, 25, cfg.Matching.TopK)
}

func TestEnvBadIntFallsBack(t *testing.T) {
	t.Setenv("PEERMATCH_WIKIDATA_BATCH_SIZE", "lots")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Wikidata.BatchSize)
}
