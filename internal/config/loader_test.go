package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qsarlab/molgraph/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "molgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalYAML = `
serving:
  base_url: http://localhost:9000
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000", cfg.Serving.BaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10, cfg.Run.Folds)
	assert.Equal(t, "smiles", cfg.Dataset.SMILESColumn)
	assert.Equal(t, 300, cfg.Model.HiddenDim)
	assert.Equal(t, cfg.Model.HiddenDim, cfg.Milvus.Dim)
	assert.Equal(t, "file://migrations", cfg.Postgres.MigrationsPath)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
serving:
  base_url: http://gpu-box:9000
  retries: 5
run:
  folds: 5
  seed: 42
  fold_workers: 2
model:
  depth: 4
  hidden_dim: 256
  attention_heads: 8
  dropout: 0.2
  epochs: 50
  batch_size: 32
  learning_rate: 0.0005
postgres:
  enabled: true
  host: db.internal
  user: molgraph
  password: secret
  database: molgraph
`))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Run.Folds)
	assert.Equal(t, int64(42), cfg.Run.Seed)
	assert.Equal(t, 4, cfg.Model.Depth)
	assert.Equal(t, 256, cfg.Model.HiddenDim)
	assert.True(t, cfg.Postgres.Enabled)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Contains(t, cfg.Postgres.URL(), "db.internal:5432")
}

func TestLoadValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing serving url", "log:\n  level: debug\n"},
		{"too few folds", minimalYAML + "run:\n  folds: 2\n"},
		{"bad source", minimalYAML + "dataset:\n  source: pubchem\n"},
		{"ingest without dir", minimalYAML + "ingest:\n  enabled: true\n"},
		{"postgres without host", minimalYAML + "postgres:\n  enabled: true\n"},
		{"kafka without brokers", minimalYAML + "kafka:\n  enabled: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MOLGRAPH_SERVING_BASE_URL", "http://env-box:9000")
	t.Setenv("MOLGRAPH_RUN_FOLDS", "5")
	t.Setenv("MOLGRAPH_LOG_LEVEL", "debug")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://env-box:9000", cfg.Serving.BaseURL)
	assert.Equal(t, 5, cfg.Run.Folds)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestWatchDeliversValidConfig(t *testing.T) {
	path := writeConfig(t, minimalYAML)

	changed := make(chan *Config, 1)
	Watch(path, func(cfg *Config) {
		select {
		case changed <- cfg:
		default:
		}
	})

	require.NoError(t, os.WriteFile(path, []byte(`
serving:
  base_url: http://edited-box:9000
`), 0o644))

	select {
	case cfg := <-changed:
		assert.Equal(t, "http://edited-box:9000", cfg.Serving.BaseURL)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not observed")
	}
}

func TestWatchDropsInvalidConfig(t *testing.T) {
	path := writeConfig(t, minimalYAML)

	changed := make(chan *Config, 1)
	Watch(path, func(cfg *Config) {
		select {
		case changed <- cfg:
		default:
		}
	})

	// Folds below the minimum fails validation, so the edit must be dropped.
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML+"run:\n  folds: 2\n"), 0o644))

	select {
	case cfg := <-changed:
		t.Fatalf("invalid config was delivered: folds=%d", cfg.Run.Folds)
	case <-time.After(2 * time.Second):
	}
}

func TestLoaderOptionsConversion(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML+`
dataset:
  smiles_column: canonical_smiles
  label_column: standard_value
  source: ochem
  property: solubility
`))
	require.NoError(t, err)

	opts := cfg.Dataset.LoaderOptions()
	assert.Equal(t, "canonical_smiles", opts.SMILESColumn)
	assert.Equal(t, "standard_value", opts.LabelColumn)
}
