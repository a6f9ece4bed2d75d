package ensemble

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/dgpbench/core/model"
	"github.com/YuminosukeSato/dgpbench/pkg/errors"
)

// y = 3*x0 - x1 on a grid
func linearData(n int) (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x0 := float64(i) / float64(n)
		x1 := float64((i*37)%n) / float64(n)
		X.Set(i, 0, x0)
		X.Set(i, 1, x1)
		y.Set(i, 0, 3*x0-x1)
	}
	return X, y
}

func TestObjectives(t *testing.T) {
	h := NewHuberObjective(1)
	tests := []struct {
		name     string
		pred     float64
		wantGrad float64
		wantLoss float64
	}{
		{"quadratic region", 0.5, 0.5, 0.125},
		{"linear region above", 3, 1, 2.5},
		{"linear region below", -3, -1, 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantGrad, h.Gradient(tt.pred, 0))
			assert.Equal(t, 1.0, h.Hessian(tt.pred, 0))
			assert.InDelta(t, tt.wantLoss, h.Loss(tt.pred, 0), 1e-12)
		})
	}

	assert.Equal(t, 1.0, NewHuberObjective(0).Delta)
	assert.Equal(t, 2.0, h.InitScore([]float64{1, 2, 3}))

	l2 := L2Objective{}
	assert.Equal(t, 2.0, l2.Gradient(3, 1))
	assert.Equal(t, 1.0, l2.Hessian(3, 1))
	assert.Equal(t, 2.0, l2.Loss(3, 1))

	obj, err := NewObjective("huber", 2)
	require.NoError(t, err)
	assert.Equal(t, "huber", obj.Name())
	_, err = NewObjective("quantile", 0)
	assert.Error(t, err)
}

func TestRandomForestRegressorFit(t *testing.T) {
	X, y := linearData(80)

	rf := NewRandomForestRegressor().WithNEstimators(20).WithRandomState(7)
	require.NoError(t, rf.Fit(X, y))
	assert.Len(t, rf.Estimators(), 20)

	score, err := rf.Score(X, y)
	require.NoError(t, err)
	assert.Greater(t, score, 0.9)
}

func TestRandomForestRegressorDeterministicAcrossJobs(t *testing.T) {
	X, y := linearData(50)

	serial := NewRandomForestRegressor().WithNEstimators(8).WithMaxFeatures("sqrt").WithRandomState(3)
	require.NoError(t, serial.Fit(X, y))
	concurrent := NewRandomForestRegressor().WithNEstimators(8).WithMaxFeatures("sqrt").WithRandomState(3).WithNJobs(4)
	require.NoError(t, concurrent.Fit(X, y))

	a, err := serial.Predict(X)
	require.NoError(t, err)
	b, err := concurrent.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(a, b))
}

func TestRandomForestWithoutBootstrapMatchesSingleTree(t *testing.T) {
	X, y := linearData(30)

	rf := NewRandomForestRegressor().WithNEstimators(3).WithMaxDepth(3)
	require.NoError(t, rf.SetParams(map[string]interface{}{"bootstrap": false}))
	require.NoError(t, rf.Fit(X, y))

	forest, err := rf.Predict(X)
	require.NoError(t, err)
	single, err := rf.Estimators()[0].Predict(X)
	require.NoError(t, err)
	for i := 0; i < 30; i++ {
		assert.InDelta(t, single.At(i, 0), forest.At(i, 0), 1e-12)
	}
}

func TestRandomForestRegressorParams(t *testing.T) {
	rf := NewRandomForestRegressor()
	require.NoError(t, rf.SetParams(map[string]interface{}{
		"n_estimators":      150,
		"max_depth":         12,
		"min_samples_split": 5,
		"max_features":      "log2",
	}))
	assert.Equal(t, 150, rf.NEstimators)
	assert.Equal(t, "log2", rf.MaxFeatures)

	assert.Error(t, rf.SetParams(map[string]interface{}{"max_features": "cube"}))
	assert.Equal(t, "log2", rf.MaxFeatures)
	assert.Error(t, rf.SetParams(map[string]interface{}{"criterion": "mse"}))
	assert.Error(t, rf.SetParams(map[string]interface{}{"n_estimators": 10, "max_depth": "deep"}))
	assert.Equal(t, 150, rf.NEstimators, "rejected call changes nothing")
	assert.Equal(t, 12, rf.MaxDepth)

	clone := rf.Clone()
	assert.False(t, clone.IsFitted())
	assert.Equal(t, rf.GetParams(), clone.GetParams())

	_, err := rf.Predict(mat.NewDense(1, 2, nil))
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))
}

func TestGradientBoostingRegressorFit(t *testing.T) {
	X, y := linearData(100)

	tests := []struct {
		name      string
		objective string
		minScore  float64
	}{
		{"l2", "regression", 0.9},
		{"huber", "huber", 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gb := NewGradientBoostingRegressor().
				WithObjective(tt.objective).
				WithNumIterations(60).
				WithNumLeaves(8).
				WithMinChildSamples(3)
			require.NoError(t, gb.Fit(X, y))
			assert.Equal(t, 60, gb.NumTrees())

			loss := gb.TrainLoss()
			assert.Less(t, loss[len(loss)-1], loss[0])

			score, err := gb.Score(X, y)
			require.NoError(t, err)
			assert.Greater(t, score, tt.minScore)
		})
	}
}

func TestGradientBoostingRegressorLeafLimits(t *testing.T) {
	X, y := linearData(40)

	// min_child_samples larger than the data: every tree is a single leaf
	gb := NewGradientBoostingRegressor().WithNumIterations(5).WithMinChildSamples(100)
	require.NoError(t, gb.Fit(X, y))
	for _, tr := range gb.trees {
		assert.Len(t, tr.Nodes, 1)
	}

	pred, err := gb.Predict(X)
	require.NoError(t, err)
	mean := mat.Sum(y) / 40
	for i := 0; i < 40; i++ {
		assert.InDelta(t, mean, pred.At(i, 0), 1e-9)
	}

	gb = NewGradientBoostingRegressor().WithNumIterations(3).WithNumLeaves(4).WithMinChildSamples(1)
	require.NoError(t, gb.Fit(X, y))
	for _, tr := range gb.trees {
		assert.LessOrEqual(t, tr.NumLeaves(), 4)
	}
}

func TestGradientBoostingRegressorSampling(t *testing.T) {
	X, y := linearData(60)

	fit := func() mat.Matrix {
		gb := NewGradientBoostingRegressor().WithNumIterations(10).WithMinChildSamples(2).WithRandomState(11)
		require.NoError(t, gb.SetParams(map[string]interface{}{
			"subsample":        0.5,
			"colsample_bytree": 0.5,
			"reg_alpha":        0.1,
			"reg_lambda":       1.0,
		}))
		require.NoError(t, gb.Fit(X, y))
		pred, err := gb.Predict(X)
		require.NoError(t, err)
		return pred
	}
	assert.True(t, mat.Equal(fit(), fit()), "same seed gives the same model")
}

func TestGradientBoostingRegressorBaggingNeedsFrequency(t *testing.T) {
	X, y := linearData(60)

	fit := func(params map[string]interface{}) mat.Matrix {
		gb := NewGradientBoostingRegressor().WithNumIterations(10).WithMinChildSamples(2).WithRandomState(3)
		require.NoError(t, gb.SetParams(params))
		require.NoError(t, gb.Fit(X, y))
		pred, err := gb.Predict(X)
		require.NoError(t, err)
		return pred
	}
	full := fit(map[string]interface{}{"subsample": 1.0})
	assert.True(t, mat.Equal(full, fit(map[string]interface{}{"subsample": 0.5})),
		"subsample alone does not bag rows")
	assert.False(t, mat.Equal(full, fit(map[string]interface{}{"subsample": 0.5, "subsample_freq": 1})))

	gb := NewGradientBoostingRegressor()
	require.NoError(t, gb.SetParams(map[string]interface{}{"subsample_freq": -1}))
	assert.Error(t, gb.Fit(X, y))
}

func TestGradientBoostingRegressorValidation(t *testing.T) {
	X, y := linearData(10)

	tests := []struct {
		name   string
		params map[string]interface{}
	}{
		{"num_leaves", map[string]interface{}{"num_leaves": 1}},
		{"learning_rate", map[string]interface{}{"learning_rate": 0.0}},
		{"subsample", map[string]interface{}{"subsample": 1.5}},
		{"colsample", map[string]interface{}{"colsample_bytree": 0.0}},
		{"objective", map[string]interface{}{"objective": "poisson"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gb := NewGradientBoostingRegressor()
			require.NoError(t, gb.SetParams(tt.params))
			assert.Error(t, gb.Fit(X, y))
			assert.False(t, gb.IsFitted())
		})
	}

	gb := NewGradientBoostingRegressor()
	assert.Error(t, gb.SetParams(map[string]interface{}{"boosting_type": "dart"}))
	assert.Error(t, gb.SetParams(map[string]interface{}{"num_leaves": 6.5}))
	assert.Error(t, gb.SetParams(map[string]interface{}{"learning_rate": 0.5, "reg_alpha": "high"}))
	assert.Equal(t, NewGradientBoostingRegressor().GetParams(), gb.GetParams(), "rejected calls change nothing")
	assert.Error(t, gb.Fit(X, mat.NewDense(9, 1, nil)))
}

func TestEnsembleGobRoundTrip(t *testing.T) {
	X, y := linearData(30)

	tests := []struct {
		name     string
		fitted   model.Estimator
		restored model.Estimator
	}{
		{"forest", NewRandomForestRegressor().WithNEstimators(4).WithMaxFeatures(0.5), &RandomForestRegressor{}},
		{"boosting", NewGradientBoostingRegressor().WithNumIterations(5).WithMinChildSamples(2).WithObjective("huber"), &GradientBoostingRegressor{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.fitted.Fit(X, y))

			var buf bytes.Buffer
			require.NoError(t, model.SaveModelToWriter(tt.fitted, &buf))
			require.NoError(t, model.LoadModelFromReader(tt.restored, &buf))
			assert.True(t, tt.restored.IsFitted())

			want, err := tt.fitted.Predict(X)
			require.NoError(t, err)
			got, err := tt.restored.Predict(X)
			require.NoError(t, err)
			for i := 0; i < 30; i++ {
				assert.False(t, math.IsNaN(got.At(i, 0)))
				assert.InDelta(t, want.At(i, 0), got.At(i, 0), 1e-12)
			}
		})
	}
}
