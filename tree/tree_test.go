package tree

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/dgpbench/core/model"
	"github.com/YuminosukeSato/dgpbench/pkg/errors"
)

func stepData() (*mat.Dense, *mat.Dense) {
	// y = 1 when x0 <= 4.5 else 5; x1 is noise
	X := mat.NewDense(10, 2, nil)
	y := mat.NewDense(10, 1, nil)
	for i := 0; i < 10; i++ {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, float64((i*7)%3))
		if i <= 4 {
			y.Set(i, 0, 1)
		} else {
			y.Set(i, 0, 5)
		}
	}
	return X, y
}

func TestDecisionTreeRegressorStep(t *testing.T) {
	X, y := stepData()

	dt := NewDecisionTreeRegressor()
	require.NoError(t, dt.Fit(X, y))

	root := dt.Tree().Nodes[0]
	assert.Equal(t, 0, root.Feature)
	assert.Equal(t, 4.5, root.Threshold)
	assert.Equal(t, 2, dt.Tree().NumLeaves(), "pure children must not be split further")
	assert.Equal(t, 1, dt.Tree().Depth())

	pred, err := dt.Predict(mat.NewDense(2, 2, []float64{0.5, 0, 8, 2}))
	require.NoError(t, err)
	assert.Equal(t, 1.0, pred.At(0, 0))
	assert.Equal(t, 5.0, pred.At(1, 0))

	score, err := dt.Score(X, y)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-12)
}

func TestDecisionTreeRegressorMaxDepth(t *testing.T) {
	X := mat.NewDense(8, 1, []float64{0, 1, 2, 3, 4, 5, 6, 7})
	y := mat.NewDense(8, 1, []float64{0, 1, 2, 3, 4, 5, 6, 7})

	dt := NewDecisionTreeRegressor(WithMaxDepth(2))
	require.NoError(t, dt.Fit(X, y))
	assert.Equal(t, 2, dt.Tree().Depth())
	assert.Equal(t, 4, dt.Tree().NumLeaves())

	unlimited := NewDecisionTreeRegressor()
	require.NoError(t, unlimited.Fit(X, y))
	assert.Equal(t, 8, unlimited.Tree().NumLeaves())
}

func TestDecisionTreeRegressorMinSamples(t *testing.T) {
	X := mat.NewDense(8, 1, []float64{0, 1, 2, 3, 4, 5, 6, 7})
	y := mat.NewDense(8, 1, []float64{0, 1, 2, 3, 4, 5, 6, 7})

	dt := NewDecisionTreeRegressor(WithMinSamplesLeaf(3))
	require.NoError(t, dt.Fit(X, y))
	for _, n := range dt.Tree().Nodes {
		if n.IsLeaf() {
			assert.GreaterOrEqual(t, n.Samples, 3)
		}
	}

	dt = NewDecisionTreeRegressor(WithMinSamplesSplit(9))
	require.NoError(t, dt.Fit(X, y))
	assert.Equal(t, 1, dt.Tree().NumLeaves())
	assert.Equal(t, 3.5, dt.Tree().Nodes[0].Value, "a single leaf predicts the mean")
}

func TestResolveMaxFeatures(t *testing.T) {
	tests := []struct {
		spec    interface{}
		n       int
		want    int
		wantErr bool
	}{
		{"auto", 9, 9, false},
		{"sqrt", 9, 3, false},
		{"log2", 9, 3, false},
		{"log2", 1, 1, false},
		{nil, 4, 4, false},
		{2, 4, 2, false},
		{10, 4, 4, false},
		{0.5, 4, 2, false},
		{"0.5", 4, 2, false},
		{"3", 4, 3, false},
		{1.5, 4, 0, true},
		{"cube", 4, 0, true},
		{true, 4, 0, true},
	}
	for _, tt := range tests {
		got, err := ResolveMaxFeatures(tt.spec, tt.n)
		if tt.wantErr {
			assert.Error(t, err, "%v", tt.spec)
			continue
		}
		require.NoError(t, err, "%v", tt.spec)
		assert.Equal(t, tt.want, got, "%v", tt.spec)
	}
}

func TestDecisionTreeRegressorParams(t *testing.T) {
	dt := NewDecisionTreeRegressor()
	params := dt.GetParams()
	assert.Equal(t, 2, params["min_samples_split"])
	assert.Equal(t, "auto", params["max_features"])

	require.NoError(t, dt.SetParams(map[string]interface{}{
		"max_depth":         5,
		"min_samples_split": 4.0,
		"max_features":      "sqrt",
	}))
	assert.Equal(t, 5, dt.maxDepth)
	assert.Equal(t, 4, dt.minSamplesSplit)
	assert.Equal(t, "sqrt", dt.maxFeatures)

	assert.Error(t, dt.SetParams(map[string]interface{}{"criterion": "gini"}))
	assert.Error(t, dt.SetParams(map[string]interface{}{"max_features": "cube"}))
	assert.Equal(t, "sqrt", dt.maxFeatures, "rejected value is not stored")
	assert.Error(t, dt.SetParams(map[string]interface{}{"max_depth": 9, "criterion": "gini"}))
	assert.Equal(t, 5, dt.maxDepth)

	clone := dt.Clone()
	assert.False(t, clone.IsFitted())
	assert.Equal(t, dt.GetParams(), clone.GetParams())
}

func TestDecisionTreeRegressorErrors(t *testing.T) {
	dt := NewDecisionTreeRegressor()
	_, err := dt.Predict(mat.NewDense(1, 1, []float64{1}))
	var notFitted *errors.NotFittedError
	assert.True(t, errors.As(err, &notFitted))

	assert.Error(t, dt.Fit(mat.NewDense(2, 1, []float64{1, 2}), mat.NewDense(3, 1, []float64{1, 2, 3})))

	bad := NewDecisionTreeRegressor(WithMinSamplesSplit(1))
	assert.Error(t, bad.Fit(mat.NewDense(2, 1, []float64{1, 2}), mat.NewDense(2, 1, []float64{1, 2})))
}

func TestFitIndicesBootstrap(t *testing.T) {
	X, y := stepData()
	dt := NewDecisionTreeRegressor()
	// 左側の行を重複させてもルートの分割は変わらない
	rows := []int{0, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 9}
	require.NoError(t, dt.FitIndices(X, y, rows, rand.New(rand.NewPCG(1, 1))))
	assert.Equal(t, 12, dt.Tree().Nodes[0].Samples)
	assert.Equal(t, 4.5, dt.Tree().Nodes[0].Threshold)
}

func TestGrowRegularisedLeaves(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	grad := []float64{-1, -1, -1, -1}
	hess := []float64{1, 1, 1, 1}

	tr := Grow(X, grad, hess, []int{0, 1, 2, 3}, GrowConfig{Lambda: 4, MinSamplesSplit: 5})
	require.Len(t, tr.Nodes, 1)
	// -G/(H+lambda) = 4/8
	assert.InDelta(t, 0.5, tr.Nodes[0].Value, 1e-12)

	tr = Grow(X, grad, hess, []int{0, 1, 2, 3}, GrowConfig{Alpha: 1, MinSamplesSplit: 5})
	// L1 soft threshold: |G|-alpha = 3
	assert.InDelta(t, 0.75, tr.Nodes[0].Value, 1e-12)

	tr = Grow(X, grad, hess, []int{0, 1, 2, 3}, GrowConfig{})
	assert.Len(t, tr.Nodes, 1, "constant gradient without regularisation has zero gain")
}

func TestGrowMaxLeavesIsLeafWise(t *testing.T) {
	X := mat.NewDense(8, 1, []float64{0, 1, 2, 3, 4, 5, 6, 7})
	// 大きな差は右端にしかない
	y := []float64{0, 0, 0, 0, 0, 0, 10, 20}
	grad := make([]float64, 8)
	hess := make([]float64, 8)
	for i, v := range y {
		grad[i] = -v
		hess[i] = 1
	}
	idx := []int{0, 1, 2, 3, 4, 5, 6, 7}

	tr := Grow(X, grad, hess, idx, GrowConfig{MaxLeaves: 3})
	assert.Equal(t, 3, tr.NumLeaves())
	assert.Equal(t, 20.0, tr.PredictRow([]float64{7}))
	assert.Equal(t, 10.0, tr.PredictRow([]float64{6}))
	assert.Equal(t, 0.0, tr.PredictRow([]float64{2}))
}

func TestDecisionTreeRegressorGob(t *testing.T) {
	X, y := stepData()
	dt := NewDecisionTreeRegressor(WithMaxFeatures(0.5))
	require.NoError(t, dt.Fit(X, y))

	var buf bytes.Buffer
	require.NoError(t, model.SaveModelToWriter(dt, &buf))
	var restored DecisionTreeRegressor
	require.NoError(t, model.LoadModelFromReader(&restored, &buf))

	want, _ := dt.Predict(X)
	got, err := restored.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))

	k, err := ResolveMaxFeatures(restored.maxFeatures, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, k)
}
