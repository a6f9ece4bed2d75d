package ensemble

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/dgpbench/core/model"
	"github.com/YuminosukeSato/dgpbench/core/parallel"
	"github.com/YuminosukeSato/dgpbench/metrics"
	"github.com/YuminosukeSato/dgpbench/pkg/errors"
	"github.com/YuminosukeSato/dgpbench/pkg/log"
	"github.com/YuminosukeSato/dgpbench/tree"
)

// RandomForestRegressor averages CART trees fitted on bootstrap samples.
type RandomForestRegressor struct {
	model.BaseEstimator

	NEstimators     int
	MaxDepth        int // <= 0 means unlimited
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     interface{} // "auto", "sqrt", "log2", int or float fraction
	Bootstrap       bool
	RandomState     int
	NJobs           int

	estimators []*tree.DecisionTreeRegressor
	nFeatures  int
}

// NewRandomForestRegressor creates a forest with scikit-learn defaults.
func NewRandomForestRegressor() *RandomForestRegressor {
	return &RandomForestRegressor{
		NEstimators:     100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     "auto",
		Bootstrap:       true,
		NJobs:           1,
	}
}

// WithNEstimators sets n_estimators.
func (rf *RandomForestRegressor) WithNEstimators(n int) *RandomForestRegressor {
	rf.NEstimators = n
	return rf
}

// WithMaxDepth sets max_depth.
func (rf *RandomForestRegressor) WithMaxDepth(d int) *RandomForestRegressor {
	rf.MaxDepth = d
	return rf
}

// WithMaxFeatures sets max_features.
func (rf *RandomForestRegressor) WithMaxFeatures(spec interface{}) *RandomForestRegressor {
	rf.MaxFeatures = spec
	return rf
}

// WithRandomState sets the seed.
func (rf *RandomForestRegressor) WithRandomState(seed int) *RandomForestRegressor {
	rf.RandomState = seed
	return rf
}

// WithNJobs sets the number of workers used to grow trees.
func (rf *RandomForestRegressor) WithNJobs(n int) *RandomForestRegressor {
	rf.NJobs = n
	return rf
}

// Fit grows NEstimators trees. Per-tree seeds are drawn up front from
// RandomState so the forest does not depend on NJobs.
func (rf *RandomForestRegressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "RandomForestRegressor.Fit")

	rows, cols := X.Dims()
	yRows, _ := y.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("RandomForestRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	if rows != yRows {
		return errors.NewDimensionError("RandomForestRegressor.Fit", rows, yRows, 0)
	}
	if rf.NEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be positive", rf.NEstimators)
	}
	if _, err := tree.ResolveMaxFeatures(rf.MaxFeatures, cols); err != nil {
		return err
	}

	log.GetLoggerWithName("ensemble.forest").Debug("Training RandomForestRegressor",
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		log.WorkersKey, parallel.ResolveJobs(rf.NJobs),
		log.HyperParamsKey, model.Params(rf.GetParams()).String())

	Xd := mat.DenseCopyOf(X)
	yd := mat.DenseCopyOf(y)

	master := rand.New(rand.NewPCG(uint64(rf.RandomState), uint64(rf.RandomState)))
	seeds := make([]uint64, rf.NEstimators)
	for i := range seeds {
		seeds[i] = master.Uint64()
	}

	estimators := make([]*tree.DecisionTreeRegressor, rf.NEstimators)
	err = parallel.ForEach(rf.NEstimators, rf.NJobs, func(i int) error {
		rng := rand.New(rand.NewPCG(seeds[i], seeds[i]))
		indices := make([]int, rows)
		for j := range indices {
			if rf.Bootstrap {
				indices[j] = rng.IntN(rows)
			} else {
				indices[j] = j
			}
		}
		dt := tree.NewDecisionTreeRegressor(
			tree.WithMaxDepth(rf.MaxDepth),
			tree.WithMinSamplesSplit(rf.MinSamplesSplit),
			tree.WithMinSamplesLeaf(rf.MinSamplesLeaf),
			tree.WithMaxFeatures(rf.MaxFeatures),
			tree.WithRandomState(seeds[i]),
		)
		if err := dt.FitIndices(Xd, yd, indices, rng); err != nil {
			return errors.Wrapf(err, "tree %d", i)
		}
		estimators[i] = dt
		return nil
	})
	if err != nil {
		return err
	}

	rf.estimators = estimators
	rf.nFeatures = cols
	rf.SetFitted()
	return nil
}

// Predict averages the tree predictions.
func (rf *RandomForestRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !rf.IsFitted() {
		return nil, errors.NewNotFittedError("RandomForestRegressor", "Predict")
	}
	rows, cols := X.Dims()
	if cols != rf.nFeatures {
		return nil, errors.NewDimensionError("RandomForestRegressor.Predict", rf.nFeatures, cols, 1)
	}

	out := mat.NewVecDense(rows, nil)
	parallel.Parallelize(rows, rf.NJobs, func(start, end int) {
		row := make([]float64, cols)
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			sum := 0.0
			for _, est := range rf.estimators {
				sum += est.Tree().PredictRow(row)
			}
			out.SetVec(i, sum/float64(len(rf.estimators)))
		}
	})
	return out, nil
}

// Score returns R² on (X, y).
func (rf *RandomForestRegressor) Score(X, y mat.Matrix) (float64, error) {
	pred, err := rf.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2Matrix(y, pred)
}

// Estimators returns the fitted trees.
func (rf *RandomForestRegressor) Estimators() []*tree.DecisionTreeRegressor {
	return rf.estimators
}

// GetParams returns the hyperparameters.
func (rf *RandomForestRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      rf.NEstimators,
		"max_depth":         rf.MaxDepth,
		"min_samples_split": rf.MinSamplesSplit,
		"min_samples_leaf":  rf.MinSamplesLeaf,
		"max_features":      rf.MaxFeatures,
		"bootstrap":         rf.Bootstrap,
		"random_state":      rf.RandomState,
		"n_jobs":            rf.NJobs,
	}
}

// SetParams sets hyperparameters by name. Unknown names are rejected and a
// rejected value leaves every parameter unchanged.
func (rf *RandomForestRegressor) SetParams(params map[string]interface{}) error {
	if err := NewRandomForestRegressor().applyParams(params); err != nil {
		return err
	}
	return rf.applyParams(params)
}

func (rf *RandomForestRegressor) applyParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "n_estimators":
			rf.NEstimators, err = model.ToInt(key, value)
		case "max_depth":
			rf.MaxDepth, err = model.ToInt(key, value)
		case "min_samples_split":
			rf.MinSamplesSplit, err = model.ToInt(key, value)
		case "min_samples_leaf":
			rf.MinSamplesLeaf, err = model.ToInt(key, value)
		case "max_features":
			if _, err = tree.ResolveMaxFeatures(value, 1); err == nil {
				rf.MaxFeatures = value
			}
		case "bootstrap":
			rf.Bootstrap, err = model.ToBool(key, value)
		case "random_state":
			rf.RandomState, err = model.ToInt(key, value)
		case "n_jobs":
			rf.NJobs, err = model.ToInt(key, value)
		default:
			err = model.UnknownParam("RandomForestRegressor", key, value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Clone returns an unfitted copy with the same hyperparameters.
func (rf *RandomForestRegressor) Clone() model.Estimator {
	c := NewRandomForestRegressor()
	_ = c.SetParams(rf.GetParams())
	return c
}

func (rf *RandomForestRegressor) String() string {
	return fmt.Sprintf("RandomForestRegressor(n_estimators=%d, max_depth=%d, max_features=%v)",
		rf.NEstimators, rf.MaxDepth, rf.MaxFeatures)
}

type forestSnapshot struct {
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     string
	Bootstrap       bool
	RandomState     int
	NJobs           int
	Estimators      []*tree.DecisionTreeRegressor
	NFeatures       int
}

// GobEncode encodes hyperparameters and fitted trees.
func (rf *RandomForestRegressor) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(forestSnapshot{
		NEstimators:     rf.NEstimators,
		MaxDepth:        rf.MaxDepth,
		MinSamplesSplit: rf.MinSamplesSplit,
		MinSamplesLeaf:  rf.MinSamplesLeaf,
		MaxFeatures:     fmt.Sprint(rf.MaxFeatures),
		Bootstrap:       rf.Bootstrap,
		RandomState:     rf.RandomState,
		NJobs:           rf.NJobs,
		Estimators:      rf.estimators,
		NFeatures:       rf.nFeatures,
	})
	return buf.Bytes(), err
}

// GobDecode restores a forest written by GobEncode.
func (rf *RandomForestRegressor) GobDecode(data []byte) error {
	var s forestSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return errors.Wrap(err, "failed to decode RandomForestRegressor")
	}
	*rf = RandomForestRegressor{
		NEstimators:     s.NEstimators,
		MaxDepth:        s.MaxDepth,
		MinSamplesSplit: s.MinSamplesSplit,
		MinSamplesLeaf:  s.MinSamplesLeaf,
		MaxFeatures:     s.MaxFeatures,
		Bootstrap:       s.Bootstrap,
		RandomState:     s.RandomState,
		NJobs:           s.NJobs,
		estimators:      s.Estimators,
		nFeatures:       s.NFeatures,
	}
	if len(rf.estimators) > 0 {
		rf.SetFitted()
	}
	return nil
}
