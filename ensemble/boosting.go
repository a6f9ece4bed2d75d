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

// GradientBoostingRegressor is a LightGBM-style gradient boosted tree regressor.
// Parameter names follow the LightGBM scikit-learn API.
type GradientBoostingRegressor struct {
	model.BaseEstimator

	NumLeaves       int     // Maximum leaves per tree
	MaxDepth        int     // Maximum tree depth (<= 0 means no limit)
	LearningRate    float64 // Shrinkage applied to each tree
	NumIterations   int     // Number of boosting rounds (n_estimators)
	MinChildSamples int     // Minimum samples per leaf
	MinChildWeight  float64 // Minimum hessian sum per leaf
	Subsample       float64 // Row fraction drawn without replacement
	SubsampleFreq   int     // Redraw the row bag every k rounds; 0 disables bagging
	ColsampleBytree float64 // Column fraction drawn per tree
	RegAlpha        float64 // L1 regularization
	RegLambda       float64 // L2 regularization
	Objective       string  // "regression" or "huber"
	HuberDelta      float64 // Delta for the huber objective (LightGBM "alpha")
	RandomState     int
	NumThreads      int // Workers for prediction (-1 = all cores)

	trees     []*tree.Tree
	initScore float64
	nFeatures int
	trainLoss []float64
}

// NewGradientBoostingRegressor creates a booster with LightGBM defaults.
func NewGradientBoostingRegressor() *GradientBoostingRegressor {
	return &GradientBoostingRegressor{
		NumLeaves:       31,
		MaxDepth:        -1,
		LearningRate:    0.1,
		NumIterations:   100,
		MinChildSamples: 20,
		MinChildWeight:  1e-3,
		Subsample:       1.0,
		ColsampleBytree: 1.0,
		Objective:       "regression",
		HuberDelta:      0.9,
		NumThreads:      1,
	}
}

// WithNumLeaves sets num_leaves.
func (gb *GradientBoostingRegressor) WithNumLeaves(n int) *GradientBoostingRegressor {
	gb.NumLeaves = n
	return gb
}

// WithMaxDepth sets max_depth.
func (gb *GradientBoostingRegressor) WithMaxDepth(d int) *GradientBoostingRegressor {
	gb.MaxDepth = d
	return gb
}

// WithLearningRate sets learning_rate.
func (gb *GradientBoostingRegressor) WithLearningRate(lr float64) *GradientBoostingRegressor {
	gb.LearningRate = lr
	return gb
}

// WithNumIterations sets n_estimators.
func (gb *GradientBoostingRegressor) WithNumIterations(n int) *GradientBoostingRegressor {
	gb.NumIterations = n
	return gb
}

// WithMinChildSamples sets min_child_samples.
func (gb *GradientBoostingRegressor) WithMinChildSamples(n int) *GradientBoostingRegressor {
	gb.MinChildSamples = n
	return gb
}

// WithObjective sets the objective name.
func (gb *GradientBoostingRegressor) WithObjective(obj string) *GradientBoostingRegressor {
	gb.Objective = obj
	return gb
}

// WithRandomState sets the seed used for bagging and column sampling.
func (gb *GradientBoostingRegressor) WithRandomState(seed int) *GradientBoostingRegressor {
	gb.RandomState = seed
	return gb
}

func (gb *GradientBoostingRegressor) validate() error {
	switch {
	case gb.NumLeaves < 2:
		return errors.NewValidationError("num_leaves", "must be at least 2", gb.NumLeaves)
	case gb.NumIterations < 1:
		return errors.NewValidationError("n_estimators", "must be positive", gb.NumIterations)
	case gb.LearningRate <= 0:
		return errors.NewValidationError("learning_rate", "must be positive", gb.LearningRate)
	case gb.Subsample <= 0 || gb.Subsample > 1:
		return errors.NewValidationError("subsample", "must be in (0, 1]", gb.Subsample)
	case gb.SubsampleFreq < 0:
		return errors.NewValidationError("subsample_freq", "must be non-negative", gb.SubsampleFreq)
	case gb.ColsampleBytree <= 0 || gb.ColsampleBytree > 1:
		return errors.NewValidationError("colsample_bytree", "must be in (0, 1]", gb.ColsampleBytree)
	case gb.RegAlpha < 0 || gb.RegLambda < 0:
		return errors.NewValidationError("reg_alpha/reg_lambda", "must be non-negative", []float64{gb.RegAlpha, gb.RegLambda})
	}
	return nil
}

// Fit trains the booster.
func (gb *GradientBoostingRegressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "GradientBoostingRegressor.Fit")

	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("GradientBoostingRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	if rows != yRows {
		return errors.NewDimensionError("GradientBoostingRegressor.Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("GradientBoostingRegressor.Fit", 1, yCols, 1)
	}
	if err := gb.validate(); err != nil {
		return err
	}
	obj, err := NewObjective(gb.Objective, gb.HuberDelta)
	if err != nil {
		return err
	}

	logger := log.GetLoggerWithName("ensemble.boosting")
	logger.Debug("Training GradientBoostingRegressor",
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		"objective", obj.Name(),
		log.HyperParamsKey, model.Params(gb.GetParams()).String())

	Xd := mat.DenseCopyOf(X)
	targets := mat.Col(nil, 0, y)

	gb.Reset()
	gb.nFeatures = cols
	gb.initScore = obj.InitScore(targets)
	gb.trees = make([]*tree.Tree, 0, gb.NumIterations)
	gb.trainLoss = gb.trainLoss[:0]

	pred := make([]float64, rows)
	for i := range pred {
		pred[i] = gb.initScore
	}
	grad := make([]float64, rows)
	hess := make([]float64, rows)
	rng := rand.New(rand.NewPCG(uint64(gb.RandomState), uint64(gb.RandomState)))

	maxDepth := gb.MaxDepth
	if maxDepth < 0 {
		maxDepth = 0
	}
	// As in LightGBM, subsample has no effect unless subsample_freq > 0.
	bagging := gb.SubsampleFreq > 0 && gb.Subsample < 1
	bagSize := int(gb.Subsample * float64(rows))
	if bagSize < 1 {
		bagSize = 1
	}
	bag := make([]int, rows)
	for i := range bag {
		bag[i] = i
	}
	nCols := int(gb.ColsampleBytree * float64(cols))
	if nCols < 1 {
		nCols = 1
	}

	for iter := 0; iter < gb.NumIterations; iter++ {
		for i := 0; i < rows; i++ {
			grad[i] = obj.Gradient(pred[i], targets[i])
			hess[i] = obj.Hessian(pred[i], targets[i])
		}

		if bagging && iter%gb.SubsampleFreq == 0 {
			bag = rng.Perm(rows)[:bagSize]
		}
		indices := append([]int(nil), bag...)
		var features []int
		if nCols < cols {
			features = rng.Perm(cols)[:nCols]
		}

		t := tree.Grow(Xd, grad, hess, indices, tree.GrowConfig{
			MaxDepth:       maxDepth,
			MaxLeaves:      gb.NumLeaves,
			MinSamplesLeaf: gb.MinChildSamples,
			MinChildWeight: gb.MinChildWeight,
			Lambda:         gb.RegLambda,
			Alpha:          gb.RegAlpha,
			Features:       features,
		})
		for k := range t.Nodes {
			t.Nodes[k].Value *= gb.LearningRate
		}
		gb.trees = append(gb.trees, t)

		loss := 0.0
		for i := 0; i < rows; i++ {
			pred[i] += t.PredictRow(Xd.RawRowView(i))
			loss += obj.Loss(pred[i], targets[i])
		}
		loss /= float64(rows)
		if err := errors.CheckScalar("GradientBoostingRegressor.Fit", loss, iter); err != nil {
			return err
		}
		gb.trainLoss = append(gb.trainLoss, loss)
	}

	gb.SetFitted()
	logger.Debug("Training completed",
		log.IterationKey, len(gb.trees),
		log.LossKey, gb.trainLoss[len(gb.trainLoss)-1])
	return nil
}

// Predict returns initScore plus the sum of all tree outputs for each row.
func (gb *GradientBoostingRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !gb.IsFitted() {
		return nil, errors.NewNotFittedError("GradientBoostingRegressor", "Predict")
	}
	rows, cols := X.Dims()
	if cols != gb.nFeatures {
		return nil, errors.NewDimensionError("GradientBoostingRegressor.Predict", gb.nFeatures, cols, 1)
	}

	out := mat.NewVecDense(rows, nil)
	parallel.Parallelize(rows, gb.NumThreads, func(start, end int) {
		row := make([]float64, cols)
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			v := gb.initScore
			for _, t := range gb.trees {
				v += t.PredictRow(row)
			}
			out.SetVec(i, v)
		}
	})
	return out, nil
}

// Score returns R² on (X, y).
func (gb *GradientBoostingRegressor) Score(X, y mat.Matrix) (float64, error) {
	pred, err := gb.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2Matrix(y, pred)
}

// NumTrees returns the number of fitted trees.
func (gb *GradientBoostingRegressor) NumTrees() int {
	return len(gb.trees)
}

// TrainLoss returns the mean training loss after each boosting round.
func (gb *GradientBoostingRegressor) TrainLoss() []float64 {
	return append([]float64(nil), gb.trainLoss...)
}

// GetParams returns the hyperparameters.
func (gb *GradientBoostingRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"num_leaves":        gb.NumLeaves,
		"max_depth":         gb.MaxDepth,
		"learning_rate":     gb.LearningRate,
		"n_estimators":      gb.NumIterations,
		"min_child_samples": gb.MinChildSamples,
		"min_child_weight":  gb.MinChildWeight,
		"subsample":         gb.Subsample,
		"subsample_freq":    gb.SubsampleFreq,
		"colsample_bytree":  gb.ColsampleBytree,
		"reg_alpha":         gb.RegAlpha,
		"reg_lambda":        gb.RegLambda,
		"objective":         gb.Objective,
		"huber_delta":       gb.HuberDelta,
		"random_state":      gb.RandomState,
		"n_jobs":            gb.NumThreads,
	}
}

// SetParams sets hyperparameters by name. Unknown names are rejected and a
// rejected value leaves every parameter unchanged.
func (gb *GradientBoostingRegressor) SetParams(params map[string]interface{}) error {
	if err := NewGradientBoostingRegressor().applyParams(params); err != nil {
		return err
	}
	return gb.applyParams(params)
}

func (gb *GradientBoostingRegressor) applyParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "num_leaves", "n_leaves":
			gb.NumLeaves, err = model.ToInt(key, value)
		case "max_depth":
			gb.MaxDepth, err = model.ToInt(key, value)
		case "learning_rate":
			gb.LearningRate, err = model.ToFloat(key, value)
		case "n_estimators", "num_iterations":
			gb.NumIterations, err = model.ToInt(key, value)
		case "min_child_samples":
			gb.MinChildSamples, err = model.ToInt(key, value)
		case "min_child_weight":
			gb.MinChildWeight, err = model.ToFloat(key, value)
		case "subsample", "bagging_fraction":
			gb.Subsample, err = model.ToFloat(key, value)
		case "subsample_freq", "bagging_freq":
			gb.SubsampleFreq, err = model.ToInt(key, value)
		case "colsample_bytree":
			gb.ColsampleBytree, err = model.ToFloat(key, value)
		case "reg_alpha":
			gb.RegAlpha, err = model.ToFloat(key, value)
		case "reg_lambda":
			gb.RegLambda, err = model.ToFloat(key, value)
		case "objective":
			gb.Objective, err = model.ToString(key, value)
		case "huber_delta", "alpha":
			gb.HuberDelta, err = model.ToFloat(key, value)
		case "random_state":
			gb.RandomState, err = model.ToInt(key, value)
		case "n_jobs":
			gb.NumThreads, err = model.ToInt(key, value)
		default:
			err = model.UnknownParam("GradientBoostingRegressor", key, value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Clone returns an unfitted copy with the same hyperparameters.
func (gb *GradientBoostingRegressor) Clone() model.Estimator {
	c := NewGradientBoostingRegressor()
	_ = c.SetParams(gb.GetParams())
	return c
}

func (gb *GradientBoostingRegressor) String() string {
	return fmt.Sprintf("GradientBoostingRegressor(objective=%s, n_estimators=%d, num_leaves=%d, learning_rate=%g)",
		gb.Objective, gb.NumIterations, gb.NumLeaves, gb.LearningRate)
}

type boostingSnapshot struct {
	Params    model.Params
	Trees     []*tree.Tree
	InitScore float64
	NFeatures int
}

// GobEncode encodes hyperparameters and fitted trees.
func (gb *GradientBoostingRegressor) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(boostingSnapshot{
		Params:    gb.GetParams(),
		Trees:     gb.trees,
		InitScore: gb.initScore,
		NFeatures: gb.nFeatures,
	})
	return buf.Bytes(), err
}

// GobDecode restores a booster written by GobEncode.
func (gb *GradientBoostingRegressor) GobDecode(data []byte) error {
	var s boostingSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return errors.Wrap(err, "failed to decode GradientBoostingRegressor")
	}
	*gb = *NewGradientBoostingRegressor()
	if err := gb.SetParams(s.Params); err != nil {
		return err
	}
	gb.trees = s.Trees
	gb.initScore = s.InitScore
	gb.nFeatures = s.NFeatures
	if len(gb.trees) > 0 {
		gb.SetFitted()
	}
	return nil
}
