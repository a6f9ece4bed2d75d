// Command dgptrain trains one model variant over every DGP directory and
// dataset under the inputs root and writes predictions and tuned
// hyperparameters under the outputs root.
//
//	dgptrain -config run.yaml -model random_forest -on-error continue
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/YuminosukeSato/dgpbench/config"
	"github.com/YuminosukeSato/dgpbench/ledger"
	"github.com/YuminosukeSato/dgpbench/pkg/log"
	"github.com/YuminosukeSato/dgpbench/telemetry"
	"github.com/YuminosukeSato/dgpbench/training"
	"github.com/YuminosukeSato/dgpbench/wrappers"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath    = flag.String("config", "", "Path to a YAML config file")
		envPath       = flag.String("env", ".env", "Path to a dotenv file (ignored when missing)")
		modelTag      = flag.String("model", "", "Model tag: "+strings.Join(wrappers.Tags(), ", "))
		inputs        = flag.String("inputs", "", "Inputs root containing DGP directories")
		outputs       = flag.String("outputs", "", "Outputs root")
		datasets      = flag.String("datasets", "", "Comma-separated dataset names")
		onError       = flag.String("on-error", "", "Unit failure policy: abort or continue")
		nIter         = flag.Int("n-iter", 0, "Random search candidates per unit")
		nSplits       = flag.Int("n-splits", 0, "Cross-validation folds")
		nJobs         = flag.Int("n-jobs", 0, "Parallel workers, -1 for all CPUs")
		seed          = flag.Uint64("seed", 0, "Random seed")
		logLevel      = flag.String("log-level", "", "Log level: debug, info, warn, error")
		console       = flag.Bool("console", false, "Human readable console logs")
		plot          = flag.Bool("plot", false, "Write a y vs prediction scatter plot per unit")
		saveEstimator = flag.Bool("save-estimator", false, "Persist the fitted estimator per unit")
		noOverride    = flag.Bool("retrain", false, "Retrain units whose artifacts already exist")
		metricsFile   = flag.String("metrics-file", "", "Write Prometheus textfile metrics to this path")
		noLedger      = flag.Bool("no-ledger", false, "Do not record the run in the ledger")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dgptrain: %v\n", err)
		return 2
	}

	// flags given on the command line win over file and environment values
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "model":
			cfg.ModelTag = *modelTag
		case "inputs":
			cfg.InputsPath = *inputs
		case "outputs":
			cfg.OutputsPath = *outputs
		case "datasets":
			cfg.DatasetNames = nil
			for _, d := range strings.Split(*datasets, ",") {
				if d = strings.TrimSpace(d); d != "" {
					cfg.DatasetNames = append(cfg.DatasetNames, d)
				}
			}
		case "on-error":
			cfg.OnError = *onError
		case "n-iter":
			cfg.NIter = *nIter
		case "n-splits":
			cfg.NSplits = *nSplits
		case "n-jobs":
			cfg.NJobs = *nJobs
		case "seed":
			cfg.Seed = *seed
		case "log-level":
			cfg.LogLevel = *logLevel
		case "console":
			cfg.LogConsole = *console
		case "plot":
			cfg.Plot = *plot
		case "save-estimator":
			cfg.SaveEstimator = *saveEstimator
		case "retrain":
			cfg.OutputOverride = !*noOverride
		case "metrics-file":
			cfg.MetricsFile = *metricsFile
		case "no-ledger":
			cfg.Ledger = !*noLedger
		}
	})

	if err := log.SetupLogger(cfg.LogLevel, cfg.LogConsole); err != nil {
		fmt.Fprintf(os.Stderr, "dgptrain: %v\n", err)
		return 2
	}
	logger := log.GetLoggerWithName("dgptrain")

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", err)
		return 2
	}

	opts := []training.Option{
		training.WithLogger(logger),
		training.WithMetrics(telemetry.New()),
	}
	if cfg.Ledger {
		lg, err := ledger.Open(cfg.LedgerFile())
		if err != nil {
			logger.Error("Failed to open ledger", err, log.PathKey, cfg.LedgerFile())
			return 1
		}
		defer lg.Close()
		opts = append(opts, training.WithLedger(lg))
	}

	runner, err := training.NewRunner(cfg, opts...)
	if err != nil {
		logger.Error("Failed to create runner", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := runner.Run(ctx)
	if sum != nil {
		fmt.Printf("run %s: %d completed, %d skipped, %d failed\n",
			sum.RunID, sum.Completed, sum.Skipped, sum.Failed)
		for _, u := range sum.Units {
			if u.Err != nil {
				fmt.Printf("  %s/%s: %v\n", u.DGP, u.Dataset, u.Err)
			}
		}
	}
	if err != nil {
		logger.Error("Training run failed", err)
		return 1
	}
	return 0
}
