// Package config loads the training run configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// DGP_* environment variables (a .env file may pre-populate them), then
// command line flags applied by the caller. Validate runs last.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/dgpbench/core/model"
	"github.com/YuminosukeSato/dgpbench/metrics"
	"github.com/YuminosukeSato/dgpbench/pkg/errors"
	"github.com/YuminosukeSato/dgpbench/wrappers"
)

// Error policies for a failing unit.
const (
	OnErrorAbort    = "abort"
	OnErrorContinue = "continue"
)

// Config drives one training run.
type Config struct {
	InputsPath   string   `yaml:"inputs_path"`
	OutputsPath  string   `yaml:"outputs_path"`
	DatasetNames []string `yaml:"dataset_names"`
	TargetName   string   `yaml:"target_name"`
	ModelTag     string   `yaml:"model_tag"`
	// ModelParams overrides the wrapper's estimator parameters.
	ModelParams map[string]interface{} `yaml:"model_params"`

	Standardize bool    `yaml:"standardize"`
	TrainSize   float64 `yaml:"train_size"`

	NJobs   int    `yaml:"n_jobs"`
	NSplits int    `yaml:"n_splits"`
	NIter   int    `yaml:"n_iter"`
	Seed    uint64 `yaml:"seed"`
	Scoring string `yaml:"scoring"`
	Verbose bool   `yaml:"verbose"`

	// OutputOverride skips units whose artifacts already exist.
	OutputOverride bool   `yaml:"output_ovrd"`
	OnError        string `yaml:"on_error"`

	SaveEstimator bool   `yaml:"save_estimator"`
	Plot          bool   `yaml:"plot"`
	Ledger        bool   `yaml:"ledger"`
	LedgerPath    string `yaml:"ledger_path"`
	MetricsFile   string `yaml:"metrics_file"`

	LogLevel   string `yaml:"log_level"`
	LogConsole bool   `yaml:"log_console"`
}

// Default returns the settings of the original FFNN driver.
func Default() Config {
	return Config{
		InputsPath:     filepath.Join("data", "inputs"),
		OutputsPath:    filepath.Join("data", "outputs"),
		DatasetNames:   []string{"betadgp_covdgp_data", "betadgp_beta2x2_data", "betadgp_data"},
		TargetName:     "betas_dgp",
		ModelTag:       wrappers.FFNNTag,
		Standardize:    true,
		TrainSize:      0.7,
		NJobs:          -1,
		NSplits:        10,
		NIter:          50,
		Seed:           2294,
		Scoring:        metrics.NegMeanSquaredError,
		Verbose:        true,
		OutputOverride: true,
		OnError:        OnErrorAbort,
		Ledger:         true,
		LogLevel:       "info",
	}
}

// Load builds a Config from defaults, the YAML file at yamlPath (optional),
// the dotenv file at envPath (ignored when missing) and the environment.
// The result is not validated; call Validate after applying flags.
func Load(yamlPath, envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return Config{}, errors.Wrapf(err, "loading env file %s", envPath)
		}
	}

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return Config{}, errors.Wrapf(err, "failed to read config file %s", yamlPath)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "failed to parse config file %s", yamlPath)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"DGP_INPUTS_PATH":  &c.InputsPath,
		"DGP_OUTPUTS_PATH": &c.OutputsPath,
		"DGP_TARGET":       &c.TargetName,
		"DGP_MODEL_TAG":    &c.ModelTag,
		"DGP_SCORING":      &c.Scoring,
		"DGP_ON_ERROR":     &c.OnError,
		"DGP_LEDGER_PATH":  &c.LedgerPath,
		"DGP_METRICS_FILE": &c.MetricsFile,
		"DGP_LOG_LEVEL":    &c.LogLevel,
	}
	for k, p := range strs {
		if v := os.Getenv(k); v != "" {
			*p = v
		}
	}
	if v := os.Getenv("DGP_DATASETS"); v != "" {
		c.DatasetNames = splitList(v)
	}

	ints := map[string]*int{
		"DGP_N_JOBS":   &c.NJobs,
		"DGP_N_SPLITS": &c.NSplits,
		"DGP_N_ITER":   &c.NIter,
	}
	for k, p := range ints {
		if v := os.Getenv(k); v != "" {
			i, err := strconv.Atoi(v)
			if err != nil {
				return errors.NewValidationError(k, "must be an integer", v)
			}
			*p = i
		}
	}

	bools := map[string]*bool{
		"DGP_STANDARDIZE":    &c.Standardize,
		"DGP_VERBOSE":        &c.Verbose,
		"DGP_OUTPUT_OVRD":    &c.OutputOverride,
		"DGP_SAVE_ESTIMATOR": &c.SaveEstimator,
		"DGP_PLOT":           &c.Plot,
		"DGP_LEDGER":         &c.Ledger,
		"DGP_LOG_CONSOLE":    &c.LogConsole,
	}
	for k, p := range bools {
		if v := os.Getenv(k); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return errors.NewValidationError(k, "must be a boolean", v)
			}
			*p = b
		}
	}

	if v := os.Getenv("DGP_TRAIN_SIZE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.NewValidationError("DGP_TRAIN_SIZE", "must be a number", v)
		}
		c.TrainSize = f
	}
	if v := os.Getenv("DGP_SEED"); v != "" {
		s, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return errors.NewValidationError("DGP_SEED", "must be a non-negative integer", v)
		}
		c.Seed = s
	}
	return nil
}

// Validate checks the configuration before a run.
func (c *Config) Validate() error {
	if c.InputsPath == "" {
		return errors.NewValidationError("inputs_path", "must not be empty", c.InputsPath)
	}
	if c.OutputsPath == "" {
		return errors.NewValidationError("outputs_path", "must not be empty", c.OutputsPath)
	}
	if len(c.DatasetNames) == 0 {
		return errors.NewValidationError("dataset_names", "at least one dataset is required", nil)
	}
	for _, d := range c.DatasetNames {
		if d == "" || strings.ContainsAny(d, `/\`) {
			return errors.NewValidationError("dataset_names", "must be plain file base names", d)
		}
	}
	if c.TargetName == "" {
		return errors.NewValidationError("target_name", "must not be empty", c.TargetName)
	}
	if _, err := wrappers.Lookup(c.ModelTag); err != nil {
		return err
	}
	if c.TrainSize <= 0 || c.TrainSize >= 1 {
		return errors.NewValidationError("train_size", "must be in (0, 1)", c.TrainSize)
	}
	if c.NSplits < 2 {
		return errors.NewValidationError("n_splits", "must be at least 2", c.NSplits)
	}
	if c.NIter < 1 {
		return errors.NewValidationError("n_iter", "must be at least 1", c.NIter)
	}
	if c.NJobs == 0 || c.NJobs < -1 {
		return errors.NewValidationError("n_jobs", "must be -1 or positive", c.NJobs)
	}
	if _, err := metrics.GetScorer(c.Scoring); err != nil {
		return err
	}
	if c.OnError != OnErrorAbort && c.OnError != OnErrorContinue {
		return errors.NewValidationError("on_error", "must be abort or continue", c.OnError)
	}
	return nil
}

// LedgerFile returns the ledger location, defaulting to a file under the
// outputs root.
func (c *Config) LedgerFile() string {
	if c.LedgerPath != "" {
		return c.LedgerPath
	}
	return filepath.Join(c.OutputsPath, "dgpbench-ledger.db")
}

// Overrides returns ModelParams as model.Params, or nil when empty so the
// wrapper keeps its own defaults.
func (c *Config) Overrides() model.Params {
	if len(c.ModelParams) == 0 {
		return nil
	}
	return model.Params(c.ModelParams).Clone()
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
