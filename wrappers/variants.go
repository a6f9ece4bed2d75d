package wrappers

import (
	"github.com/YuminosukeSato/dgpbench/core/model"
	"github.com/YuminosukeSato/dgpbench/ensemble"
	"github.com/YuminosukeSato/dgpbench/linear"
	"github.com/YuminosukeSato/dgpbench/neural"
	"github.com/YuminosukeSato/dgpbench/pkg/errors"
	"github.com/YuminosukeSato/dgpbench/search"
)

// Model tags.
const (
	LinearRegTag     = "linear_reg"
	RandomForestTag  = "random_forest"
	LGBRegressionTag = "lgb_regression"
	FFNNTag          = "ffnn"
)

// FFNN training budget.
const (
	FFNNEpochs   = 50
	FFNNPatience = 10
)

// NewLinearReg fits ordinary least squares directly. Without an override the
// intercept is fitted.
func NewLinearReg(override model.Params) (Wrapper, error) {
	if override == nil {
		override = model.Params{"fit_intercept": true}
	}
	est, err := newEstimator(linear.NewLinearRegression(), override)
	if err != nil {
		return nil, errors.Wrapf(err, "%s wrapper", LinearRegTag)
	}
	return spec{
		name:       LinearRegTag,
		searchType: search.DirectFitType,
		grid:       search.ParamGrid{},
		proto:      est,
	}, nil
}

// NewRandomForest searches a random forest over split and size parameters.
func NewRandomForest(override model.Params) (Wrapper, error) {
	est, err := newEstimator(ensemble.NewRandomForestRegressor(), override)
	if err != nil {
		return nil, errors.Wrapf(err, "%s wrapper", RandomForestTag)
	}
	return spec{
		name:       RandomForestTag,
		searchType: search.RandomType,
		grid: search.ParamGrid{
			"max_features":      search.Strings("auto", "sqrt", "log2"),
			"min_samples_split": search.RandInt(2, 31),
			"n_estimators":      search.RandInt(2, 301),
			"max_depth":         search.RandInt(2, 20),
		},
		proto: est,
	}, nil
}

// NewLGBRegression searches the gradient boosted trees with the huber
// objective.
func NewLGBRegression(override model.Params) (Wrapper, error) {
	est, err := newEstimator(ensemble.NewGradientBoostingRegressor(), override)
	if err != nil {
		return nil, errors.Wrapf(err, "%s wrapper", LGBRegressionTag)
	}
	return spec{
		name:       LGBRegressionTag,
		searchType: search.RandomType,
		grid: search.ParamGrid{
			"num_leaves":        search.RandInt(6, 50),
			"min_child_samples": search.RandInt(100, 500),
			"min_child_weight":  search.Floats(1e-5, 1e-3, 1e-2, 1e-1, 1, 1e1, 1e2, 1e3, 1e4),
			"subsample":         search.Uniform{Loc: 0.2, Scale: 0.8},
			"n_estimators":      search.RandInt(500, 1000),
			"max_depth":         search.RandInt(3, 100),
			"learning_rate":     search.Linspace(0.001, 0.99, 100),
			"colsample_bytree":  search.Uniform{Loc: 0.4, Scale: 0.6},
			"reg_alpha":         search.Floats(0, 1e-1, 1, 2, 5, 7, 10, 50, 100),
			"reg_lambda":        search.Floats(0, 1e-1, 1, 5, 10, 20, 50, 100),
			"objective":         search.Strings("huber"),
		},
		proto: est,
	}, nil
}

// FFNNWrapper searches network size and learning rate. Override params are
// not applied to the estimator; they join the grid as fixed values so every
// sampled candidate carries them.
type FFNNWrapper struct {
	spec
}

// NewFFNN returns the feed-forward network wrapper.
func NewFFNN(override model.Params) (Wrapper, error) {
	grid := search.ParamGrid{
		"n_hidden":      search.Arange(1, 11),
		"n_neurons":     search.Arange(1, 101),
		"learning_rate": search.Reciprocal{A: 3e-4, B: 3e-2},
		"activation":    search.Strings("relu"),
		"loss":          search.Strings("mse"),
	}
	proto := neural.NewFFNNRegressor()
	for _, k := range override.Keys() {
		// reject keys the network would refuse at fit time
		if err := proto.Clone().SetParams(model.Params{k: override[k]}); err != nil {
			return nil, errors.Wrapf(err, "%s wrapper", FFNNTag)
		}
		grid[k] = search.Fixed(override[k])
	}

	return &FFNNWrapper{
		spec: spec{
			name:       FFNNTag,
			searchType: search.RandomType,
			grid:       grid,
			proto:      proto,
			fitOptions: model.FitOptions{
				Epochs: FFNNEpochs,
				Callbacks: []model.CallbackFactory{
					neural.EarlyStopping(neural.EarlyStoppingConfig{Monitor: "val_loss", Patience: FFNNPatience}),
				},
			},
		},
	}, nil
}

// WithInputShape returns a copy of w whose candidates expect nFeatures inputs.
func (w *FFNNWrapper) WithInputShape(nFeatures int) Wrapper {
	out := &FFNNWrapper{spec: w.spec}
	out.grid = w.ParamGrid()
	out.grid["input_shape"] = search.Fixed(nFeatures)
	return out
}
