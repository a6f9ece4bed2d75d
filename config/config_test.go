package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/dgpbench/pkg/errors"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "ffnn", cfg.ModelTag)
	assert.Equal(t, -1, cfg.NJobs)
	assert.Equal(t, 10, cfg.NSplits)
	assert.Equal(t, 50, cfg.NIter)
	assert.Equal(t, uint64(2294), cfg.Seed)
	assert.Equal(t, 0.7, cfg.TrainSize)
	assert.True(t, cfg.OutputOverride)
	assert.Equal(t, OnErrorAbort, cfg.OnError)
	assert.Equal(t, filepath.Join("data", "outputs", "dgpbench-ledger.db"), cfg.LedgerFile())
	assert.Nil(t, cfg.Overrides())
}

func TestLoadLayers(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
inputs_path: /data/in
model_tag: random_forest
dataset_names: [a, b]
n_iter: 20
standardize: false
model_params:
  n_jobs: 2
`), 0o644))

	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("DGP_N_SPLITS=4\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("DGP_N_SPLITS") })

	t.Setenv("DGP_N_ITER", "30")
	t.Setenv("DGP_DATASETS", "x, y ,z")
	t.Setenv("DGP_ON_ERROR", "continue")

	cfg, err := Load(yamlPath, envPath)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/data/in", cfg.InputsPath, "from yaml")
	assert.Equal(t, filepath.Join("data", "outputs"), cfg.OutputsPath, "default kept")
	assert.Equal(t, "random_forest", cfg.ModelTag)
	assert.False(t, cfg.Standardize)
	assert.Equal(t, 30, cfg.NIter, "env beats yaml")
	assert.Equal(t, 4, cfg.NSplits, "from .env")
	assert.Equal(t, []string{"x", "y", "z"}, cfg.DatasetNames)
	assert.Equal(t, OnErrorContinue, cfg.OnError)
	assert.Equal(t, 2, cfg.Overrides()["n_jobs"])
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("n_iter: [1"), 0o644))
	_, err = Load(bad, "")
	assert.Error(t, err)

	// a missing .env file is not an error
	_, err = Load("", filepath.Join(t.TempDir(), ".env"))
	assert.NoError(t, err)

	t.Setenv("DGP_N_JOBS", "many")
	_, err = Load("", "")
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"train size zero", func(c *Config) { c.TrainSize = 0 }, "train_size"},
		{"train size one", func(c *Config) { c.TrainSize = 1 }, "train_size"},
		{"one split", func(c *Config) { c.NSplits = 1 }, "n_splits"},
		{"no iterations", func(c *Config) { c.NIter = 0 }, "n_iter"},
		{"zero jobs", func(c *Config) { c.NJobs = 0 }, "n_jobs"},
		{"unknown model", func(c *Config) { c.ModelTag = "svm" }, "model_tag"},
		{"no datasets", func(c *Config) { c.DatasetNames = nil }, "dataset_names"},
		{"dataset with path", func(c *Config) { c.DatasetNames = []string{"../x"} }, "dataset_names"},
		{"no target", func(c *Config) { c.TargetName = "" }, "target_name"},
		{"bad policy", func(c *Config) { c.OnError = "retry" }, "on_error"},
		{"bad scoring", func(c *Config) { c.Scoring = "accuracy" }, "scoring"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			var ve *errors.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.field, ve.ParamName)
		})
	}
}
