// Package training drives model training over every DGP directory and
// dataset of a run.
//
// A unit of work is one (DGP directory, dataset name) pair. Units run one
// after another; parallelism lives inside the search and the estimators.
// Each unit loads its CSV pair, splits and standardizes it, fits or searches
// a fresh model wrapper, predicts the test set and writes its artifacts.
package training

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/dgpbench/artifact"
	"github.com/YuminosukeSato/dgpbench/config"
	"github.com/YuminosukeSato/dgpbench/core/model"
	"github.com/YuminosukeSato/dgpbench/dataset"
	"github.com/YuminosukeSato/dgpbench/ledger"
	"github.com/YuminosukeSato/dgpbench/metrics"
	"github.com/YuminosukeSato/dgpbench/pkg/errors"
	"github.com/YuminosukeSato/dgpbench/pkg/log"
	"github.com/YuminosukeSato/dgpbench/preprocessing"
	"github.com/YuminosukeSato/dgpbench/search"
	"github.com/YuminosukeSato/dgpbench/telemetry"
	"github.com/YuminosukeSato/dgpbench/wrappers"
)

// Recorder persists run and unit outcomes. *ledger.Ledger implements it.
type Recorder interface {
	PutRun(r ledger.RunRecord) error
	RecordUnit(r ledger.UnitRecord) error
}

// UnitResult is the outcome of one unit.
type UnitResult struct {
	DGP        string
	Dataset    string
	Status     ledger.Status
	Paths      artifact.Paths
	BestParams model.Params
	// BestScore is NaN unless a search ran.
	BestScore float64
	TestMSE   float64
	TestR2    float64
	Duration  time.Duration
	Err       error
}

// Summary counts unit outcomes of a run.
type Summary struct {
	RunID     string
	Completed int
	Skipped   int
	Failed    int
	Units     []UnitResult
}

func (s *Summary) add(u UnitResult) {
	switch u.Status {
	case ledger.StatusCompleted:
		s.Completed++
	case ledger.StatusSkipped:
		s.Skipped++
	case ledger.StatusFailed:
		s.Failed++
	}
	s.Units = append(s.Units, u)
}

// Runner is the training orchestrator.
type Runner struct {
	cfg     config.Config
	factory wrappers.Factory
	logger  log.Logger
	ledger  Recorder
	metrics *telemetry.Metrics
	now     func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithLedger records every unit in rec.
func WithLedger(rec Recorder) Option {
	return func(r *Runner) { r.ledger = rec }
}

// WithMetrics updates m while running.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithFactory replaces the wrapper factory looked up from the model tag.
func WithFactory(f wrappers.Factory) Option {
	return func(r *Runner) { r.factory = f }
}

// NewRunner validates cfg and resolves its model wrapper.
func NewRunner(cfg config.Config, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	r := &Runner{
		cfg:    cfg,
		logger: log.GetLoggerWithName("training.runner"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.factory == nil {
		f, err := wrappers.Lookup(cfg.ModelTag)
		if err != nil {
			return nil, err
		}
		r.factory = f
	}
	return r, nil
}

// Run processes every unit. With OnError "abort" the first failing unit
// stops the run and its error is returned. With "continue" failures are
// logged and recorded, and the joined errors are returned after all units.
// The context is checked between units only.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	sum := &Summary{RunID: uuid.NewString()}
	run := ledger.RunRecord{ID: sum.RunID, ModelTag: r.cfg.ModelTag, StartedAt: r.now()}
	logger := r.logger.With(log.EstimatorIDKey, sum.RunID, log.ModelNameKey, r.cfg.ModelTag)
	defer r.finish(logger, &run, sum)

	dirs, err := dataset.Discover(r.cfg.InputsPath)
	if err != nil {
		return sum, err
	}
	logger.Info("Starting training run",
		"run.dgp_dirs", len(dirs),
		"run.datasets", len(r.cfg.DatasetNames),
		log.PathKey, r.cfg.InputsPath)

	var failures []error
	for _, dgp := range dirs {
		for _, name := range r.cfg.DatasetNames {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			u := r.runUnit(logger.With(log.DGPKey, dgp, log.DatasetKey, name), dgp, name)
			sum.add(u)
			r.record(logger, sum.RunID, u)

			if u.Err == nil {
				continue
			}
			if r.cfg.OnError == config.OnErrorAbort {
				return sum, u.Err
			}
			failures = append(failures, u.Err)
		}
	}
	return sum, errors.Join(failures...)
}

func (r *Runner) runUnit(logger log.Logger, dgp, name string) UnitResult {
	start := r.now()
	u := UnitResult{
		DGP:       dgp,
		Dataset:   name,
		Paths:     artifact.NewPaths(r.cfg.OutputsPath, r.cfg.ModelTag, dgp, name),
		BestScore: math.NaN(),
	}

	if r.cfg.OutputOverride {
		done, err := u.Paths.IsComplete()
		if err != nil {
			return r.fail(logger, u, start, err)
		}
		if done {
			u.Status = ledger.StatusSkipped
			logger.Debug("Unit already complete", log.StatusKey, u.Status)
			return u
		}
	}

	if err := r.train(logger, &u); err != nil {
		return r.fail(logger, u, start, err)
	}
	u.Status = ledger.StatusCompleted
	u.Duration = r.now().Sub(start)
	logger.Info("Unit completed",
		log.StatusKey, u.Status,
		log.MSEKey, u.TestMSE,
		log.R2ScoreKey, u.TestR2,
		log.ScoreKey, u.BestScore,
		log.HyperParamsKey, u.BestParams.String(),
		log.DurationMsKey, u.Duration.Milliseconds())
	return u
}

func (r *Runner) fail(logger log.Logger, u UnitResult, start time.Time, err error) UnitResult {
	u.Status = ledger.StatusFailed
	u.Duration = r.now().Sub(start)
	u.Err = errors.Wrapf(err, "unit %s/%s", u.DGP, u.Dataset)
	logger.Error("Unit failed", u.Err, log.StatusKey, u.Status)
	return u
}

// train runs steps 2 to 9 of a unit. Nothing is written unless fitting and
// prediction succeed.
func (r *Runner) train(logger log.Logger, u *UnitResult) error {
	ds, err := dataset.Load(r.cfg.InputsPath, u.DGP, u.Dataset, r.cfg.TargetName)
	if err != nil {
		return err
	}
	_, nFeatures := ds.Train.X.Dims()
	logger.Debug("Dataset loaded",
		log.SamplesKey, ds.Train.Rows(),
		log.FeaturesKey, nFeatures,
		"data.test_samples", ds.Test.Rows())

	pre := preprocessing.NewPreprocessor(r.cfg.TrainSize, r.cfg.Standardize, r.cfg.Seed)
	pre.Logger = logger
	split, err := pre.Process(ds.Train.X, ds.Train.Y, ds.Test.X, ds.Test.Y)
	if err != nil {
		return err
	}

	w, err := r.factory(r.cfg.Overrides())
	if err != nil {
		return err
	}
	if shaper, ok := w.(wrappers.InputShaper); ok {
		w = shaper.WithInputShape(nFeatures)
	}

	strategy, err := search.NewStrategy(w.SearchType(), search.Config{
		NJobs:   r.cfg.NJobs,
		NSplits: r.cfg.NSplits,
		NIter:   r.cfg.NIter,
		Seed:    r.cfg.Seed,
		Scoring: r.cfg.Scoring,
		Verbose: r.cfg.Verbose,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	logger.Info("Fitting model", log.SearchTypeKey, string(strategy.Type()), log.SamplesKey, split.XTrain.RawMatrix().Rows,
		"data.validation_samples", split.YValidation.RawMatrix().Rows)

	res, err := strategy.Run(search.Spec{
		Estimator:  w.Estimator(),
		Grid:       w.ParamGrid(),
		FitOptions: w.FitOptions(),
	}, search.Data{
		XTrain: split.XTrain,
		YTrain: split.YTrain,
		XVal:   split.XValidation,
		YVal:   split.YValidation,
	})
	if err != nil {
		return err
	}

	pred, err := res.BestEstimator.Predict(split.XTest)
	if err != nil {
		return errors.Wrap(err, "predicting test set")
	}
	rows, err := artifact.BuildRows(ds.Test.Index, split.YTest, pred)
	if err != nil {
		return err
	}
	if u.TestMSE, err = metrics.MSEMatrix(split.YTest, pred); err != nil {
		return err
	}
	if u.TestR2, err = metrics.R2Matrix(split.YTest, pred); err != nil {
		return err
	}
	u.BestParams = res.BestParams
	u.BestScore = res.BestScore

	return r.write(logger, u, rows, res)
}

func (r *Runner) write(logger log.Logger, u *UnitResult, rows []artifact.Row, res *search.Result) error {
	p := u.Paths
	if err := p.EnsureDir(); err != nil {
		return err
	}
	if err := artifact.WriteResultCSV(p.Result, rows); err != nil {
		return err
	}
	if err := artifact.WriteParamsPickle(p.Params, res.BestParams); err != nil {
		return err
	}
	logger.Debug("Artifacts written", log.PathKey, p.Dir)

	if r.cfg.SaveEstimator {
		if err := artifact.SaveEstimator(p.Estimator, res.BestEstimator); err != nil {
			return err
		}
	}
	if r.cfg.Plot {
		if err := artifact.PlotPredictions(p.Plot, r.cfg.ModelTag+" "+u.DGP+" "+u.Dataset, rows); err != nil {
			return err
		}
	}
	return nil
}

// record pushes a unit outcome to the ledger and metrics. Ledger failures
// are logged and do not fail the unit.
func (r *Runner) record(logger log.Logger, runID string, u UnitResult) {
	if r.metrics != nil {
		r.metrics.ObserveUnit(r.cfg.ModelTag, string(u.Status), u.Duration)
		if u.Status == ledger.StatusCompleted {
			r.metrics.SetScores(r.cfg.ModelTag, u.DGP, u.Dataset, u.TestMSE, u.TestR2)
			if !math.IsNaN(u.BestScore) {
				r.metrics.SetBestCVScore(r.cfg.ModelTag, u.DGP, u.Dataset, u.BestScore)
			}
		}
	}
	if r.ledger == nil {
		return
	}

	rec := ledger.UnitRecord{
		RunID:      runID,
		ModelTag:   r.cfg.ModelTag,
		DGP:        u.DGP,
		Dataset:    u.Dataset,
		Status:     u.Status,
		BestParams: map[string]interface{}(u.BestParams),
		TestMSE:    u.TestMSE,
		TestR2:     u.TestR2,
		Duration:   u.Duration,
		Time:       r.now(),
	}
	if !math.IsNaN(u.BestScore) {
		score := u.BestScore
		rec.BestScore = &score
	}
	if u.Err != nil {
		rec.Error = u.Err.Error()
	}
	if err := r.ledger.RecordUnit(rec); err != nil {
		logger.Warn("Failed to record unit in ledger", log.ErrAttrKey, err.Error())
	}
}

func (r *Runner) finish(logger log.Logger, run *ledger.RunRecord, sum *Summary) {
	run.FinishedAt = r.now()
	run.Completed, run.Skipped, run.Failed = sum.Completed, sum.Skipped, sum.Failed

	if r.ledger != nil {
		if err := r.ledger.PutRun(*run); err != nil {
			logger.Warn("Failed to record run in ledger", log.ErrAttrKey, err.Error())
		}
	}
	if r.metrics != nil {
		r.metrics.MarkRunFinished(run.FinishedAt)
		if r.cfg.MetricsFile != "" {
			if err := r.metrics.WriteTextfile(r.cfg.MetricsFile); err != nil {
				logger.Warn("Failed to write metrics", log.ErrAttrKey, err.Error())
			}
		}
	}
	logger.Info("Training run finished",
		"run.completed", sum.Completed,
		"run.skipped", sum.Skipped,
		"run.failed", sum.Failed,
		log.DurationMsKey, run.FinishedAt.Sub(run.StartedAt).Milliseconds())
}
