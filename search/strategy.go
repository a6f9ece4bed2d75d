package search

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/dgpbench/core/model"
	"github.com/YuminosukeSato/dgpbench/pkg/errors"
	"github.com/YuminosukeSato/dgpbench/pkg/log"
)

// Type selects how hyperparameters are chosen.
type Type string

const (
	// DirectFitType fits the estimator once with its own parameters.
	DirectFitType Type = "direct_fit"
	// RandomType runs RandomizedSearchCV.
	RandomType Type = "random"
)

// Result is the outcome of a strategy run.
type Result struct {
	BestEstimator model.Estimator
	BestParams    model.Params
	// BestScore is the mean cross-validated score; NaN for direct fit.
	BestScore float64
	CVResults *CVResults
	// Searched is false when no cross-validation ran.
	Searched bool
}

// Data is the training input of a strategy. XVal and yVal may be nil.
type Data struct {
	XTrain, YTrain mat.Matrix
	XVal, YVal     mat.Matrix
}

// Spec describes what to search: a prototype estimator, its grid and the
// options forwarded to validation-aware estimators.
type Spec struct {
	Estimator  model.Estimator
	Grid       ParamGrid
	FitOptions model.FitOptions
}

// Strategy produces a fitted estimator from training data.
type Strategy interface {
	Run(spec Spec, data Data) (*Result, error)
	Type() Type
}

// Config holds the search settings shared by every unit of a run.
type Config struct {
	NJobs   int
	NSplits int
	NIter   int
	Seed    uint64
	Scoring string
	Verbose bool
	Logger  log.Logger
}

// NewStrategy returns the strategy for t.
func NewStrategy(t Type, cfg Config) (Strategy, error) {
	switch t {
	case DirectFitType:
		return DirectFit{}, nil
	case RandomType:
		return &RandomSearch{Config: cfg}, nil
	default:
		return nil, errors.NewValidationError("search_type", "must be direct_fit or random", string(t))
	}
}

// DirectFit fits a clone of the estimator on the training data once. The
// grid and any validation data are ignored.
type DirectFit struct{}

func (DirectFit) Type() Type { return DirectFitType }

func (DirectFit) Run(spec Spec, data Data) (*Result, error) {
	if spec.Estimator == nil {
		return nil, errors.NewValidationError("estimator", "must not be nil", nil)
	}
	est := spec.Estimator.Clone()
	if err := est.Fit(data.XTrain, data.YTrain); err != nil {
		return nil, errors.Wrap(err, "direct fit failed")
	}
	return &Result{
		BestEstimator: est,
		BestParams:    model.Params(est.GetParams()).Clone(),
		BestScore:     math.NaN(),
	}, nil
}

// RandomSearch runs RandomizedSearchCV with Config.
type RandomSearch struct {
	Config Config
}

func (*RandomSearch) Type() Type { return RandomType }

func (r *RandomSearch) Run(spec Spec, data Data) (*Result, error) {
	cv := NewRandomizedSearchCV(spec.Estimator, spec.Grid)
	cv.NIter = r.Config.NIter
	cv.NSplits = r.Config.NSplits
	cv.NJobs = r.Config.NJobs
	cv.RandomState = r.Config.Seed
	cv.Verbose = r.Config.Verbose
	cv.Logger = r.Config.Logger
	cv.FitOptions = spec.FitOptions
	if r.Config.Scoring != "" {
		cv.Scoring = r.Config.Scoring
	}

	if err := cv.FitWithValidation(data.XTrain, data.YTrain, data.XVal, data.YVal); err != nil {
		return nil, errors.Wrap(err, "randomized search failed")
	}
	return &Result{
		BestEstimator: cv.BestEstimator,
		BestParams:    cv.BestParams,
		BestScore:     cv.BestScore,
		CVResults:     cv.CVResults,
		Searched:      true,
	}, nil
}
