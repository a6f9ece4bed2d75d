package linear

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/dgpbench/core/model"
	"github.com/YuminosukeSato/dgpbench/pkg/errors"
)

func TestLinearRegressionFit(t *testing.T) {
	// y = 1 + 2*x1 - 3*x2
	X := mat.NewDense(5, 2, []float64{
		1, 0,
		2, 1,
		3, 1,
		4, 3,
		0, 2,
	})
	y := mat.NewDense(5, 1, nil)
	for i := 0; i < 5; i++ {
		y.Set(i, 0, 1+2*X.At(i, 0)-3*X.At(i, 1))
	}

	tests := []struct {
		name          string
		opts          []Option
		wantIntercept float64
	}{
		{"with intercept", nil, 1},
		{"explicit intercept", []Option{WithFitIntercept(true)}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lr := NewLinearRegression(tt.opts...)
			require.NoError(t, lr.Fit(X, y))
			assert.True(t, lr.IsFitted())
			assert.InDeltaSlice(t, []float64{2, -3}, lr.GetWeights(), 1e-9)
			assert.InDelta(t, tt.wantIntercept, lr.GetIntercept(), 1e-9)
			assert.Equal(t, 2, lr.Rank)

			score, err := lr.Score(X, y)
			require.NoError(t, err)
			assert.InDelta(t, 1.0, score, 1e-9)
		})
	}
}

func TestLinearRegressionNoIntercept(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := mat.NewDense(4, 1, []float64{2, 4, 6, 8})

	lr := NewLinearRegression(WithFitIntercept(false))
	require.NoError(t, lr.Fit(X, y))
	assert.InDelta(t, 2.0, lr.GetWeights()[0], 1e-9)
	assert.Equal(t, 0.0, lr.GetIntercept())

	pred, err := lr.Predict(mat.NewDense(2, 1, []float64{5, 6}))
	require.NoError(t, err)
	assert.InDelta(t, 10.0, pred.At(0, 0), 1e-9)
	assert.InDelta(t, 12.0, pred.At(1, 0), 1e-9)
}

func TestLinearRegressionRankDeficient(t *testing.T) {
	// 2列目は1列目の2倍
	X := mat.NewDense(4, 2, []float64{1, 2, 2, 4, 3, 6, 4, 8})
	y := mat.NewDense(4, 1, []float64{3, 5, 7, 9})

	lr := NewLinearRegression()
	require.NoError(t, lr.Fit(X, y))
	assert.Equal(t, 1, lr.Rank)

	pred, err := lr.Predict(X)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		assert.InDelta(t, y.At(i, 0), pred.At(i, 0), 1e-9)
	}
}

func TestLinearRegressionErrors(t *testing.T) {
	lr := NewLinearRegression()

	_, err := lr.Predict(mat.NewDense(1, 1, []float64{1}))
	var notFitted *errors.NotFittedError
	assert.True(t, errors.As(err, &notFitted))

	err = lr.Fit(mat.NewDense(3, 1, []float64{1, 2, 3}), mat.NewDense(2, 1, []float64{1, 2}))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))

	err = lr.Fit(mat.NewDense(2, 1, []float64{1, 2}), mat.NewDense(2, 2, []float64{1, 2, 3, 4}))
	var valueErr *errors.ValueError
	assert.True(t, errors.As(err, &valueErr))

	require.NoError(t, lr.Fit(mat.NewDense(3, 1, []float64{1, 2, 3}), mat.NewDense(3, 1, []float64{1, 2, 3})))
	_, err = lr.Predict(mat.NewDense(1, 2, []float64{1, 2}))
	assert.True(t, errors.As(err, &dimErr))
}

func TestLinearRegressionParams(t *testing.T) {
	lr := NewLinearRegression()
	assert.Equal(t, map[string]interface{}{"fit_intercept": true}, lr.GetParams())

	require.NoError(t, lr.SetParams(map[string]interface{}{"fit_intercept": false}))
	assert.False(t, lr.FitIntercept)

	assert.Error(t, lr.SetParams(map[string]interface{}{"alpha": 1.0}))
	assert.Error(t, lr.SetParams(map[string]interface{}{"fit_intercept": 3}))
	assert.Error(t, lr.SetParams(map[string]interface{}{"fit_intercept": true, "alpha": 1.0}))
	assert.False(t, lr.FitIntercept, "rejected call changes nothing")

	require.NoError(t, lr.Fit(mat.NewDense(2, 1, []float64{1, 2}), mat.NewDense(2, 1, []float64{1, 2})))
	clone := lr.Clone()
	assert.False(t, clone.IsFitted())
	assert.Equal(t, lr.GetParams(), clone.GetParams())
}

func TestLinearRegressionGobRoundTrip(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{1, 2, 3})
	y := mat.NewDense(3, 1, []float64{3, 5, 7})
	lr := NewLinearRegression()
	require.NoError(t, lr.Fit(X, y))

	var buf bytes.Buffer
	require.NoError(t, model.SaveModelToWriter(lr, &buf))

	var restored LinearRegression
	require.NoError(t, model.LoadModelFromReader(&restored, &buf))
	assert.True(t, restored.IsFitted())

	want, err := lr.Predict(X)
	require.NoError(t, err)
	got, err := restored.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 1e-12))
}

func BenchmarkLinearRegressionFit(b *testing.B) {
	const n, p = 2000, 8
	X := mat.NewDense(n, p, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		var target float64
		for j := 0; j < p; j++ {
			v := float64((i*7+j*13)%97) / 97
			X.Set(i, j, v)
			target += float64(j+1) * v
		}
		y.Set(i, 0, target)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = NewLinearRegression().Fit(X, y)
	}
}
