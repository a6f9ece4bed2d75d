package artifact

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	pickle "github.com/kisielk/og-rek"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/dgpbench/core/model"
	"github.com/YuminosukeSato/dgpbench/dataset"
	"github.com/YuminosukeSato/dgpbench/linear"
	"github.com/YuminosukeSato/dgpbench/pkg/errors"
)

func TestPathsAndCompletion(t *testing.T) {
	out := t.TempDir()
	p := NewPaths(out, "ffnn", "dgp_01", "betadgp_data")

	assert.Equal(t, filepath.Join(out, "ffnn", "dgp_01"), p.Dir)
	assert.Equal(t, filepath.Join(p.Dir, "betadgp_data_result.csv"), p.Result)
	assert.Equal(t, filepath.Join(p.Dir, "betadgp_data_model.pickle"), p.Params)

	done, err := p.IsComplete()
	require.NoError(t, err)
	assert.False(t, done, "missing directory is not an error")

	require.NoError(t, p.EnsureDir())
	require.NoError(t, p.EnsureDir(), "idempotent")
	require.NoError(t, os.WriteFile(p.Result, []byte("x"), 0o644))
	done, err = p.IsComplete()
	require.NoError(t, err)
	assert.False(t, done, "the pickle is still missing")

	require.NoError(t, os.WriteFile(p.Params, []byte("x"), 0o644))
	done, err = p.IsComplete()
	require.NoError(t, err)
	assert.True(t, done)
}

func TestBuildRowsAndWriteResultCSV(t *testing.T) {
	index := []dataset.Key{
		{Var1: "1", Var2: "a"},
		{Var1: "2", Var2: "b"},
		{Var1: "3", Var2: "c"},
	}
	y := mat.NewDense(3, 1, []float64{1, 2.5, -3})
	pred := mat.NewVecDense(3, []float64{1.1, 2, 0.1})

	rows, err := BuildRows(index, y, pred)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Row{Var1: "2", Var2: "b", Y: 2.5, Pred: 2}, rows[1])

	path := filepath.Join(t.TempDir(), "d_result.csv")
	require.NoError(t, WriteResultCSV(path, rows))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Var1", "Var2", "y", "pred"},
		{"1", "a", "1", "1.1"},
		{"2", "b", "2.5", "2"},
		{"3", "c", "-3", "0.1"},
	}, records)

	_, err = BuildRows(index[:2], y, pred)
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
}

func TestWriteParamsPickle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d_model.pickle")
	params := model.Params{
		"fit_intercept": true,
		"n_hidden":      3,
		"learning_rate": 0.01,
		"activation":    "relu",
		"input_shape":   []int{2},
	}
	require.NoError(t, WriteParamsPickle(path, params))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80, 0x02}, raw[:2], "protocol 2 header")

	v, err := pickle.NewDecoder(bytes.NewReader(raw)).Decode()
	require.NoError(t, err)
	dict, ok := v.(map[interface{}]interface{})
	require.True(t, ok, "decoded %T", v)

	assert.Len(t, dict, 5)
	assert.Equal(t, true, dict["fit_intercept"])
	assert.EqualValues(t, 3, dict["n_hidden"])
	assert.Equal(t, 0.01, dict["learning_rate"])
	assert.Equal(t, "relu", dict["activation"])
	assert.Len(t, dict["input_shape"], 1)
}

func TestSaveEstimator(t *testing.T) {
	dir := t.TempDir()
	lr := linear.NewLinearRegression()
	path := filepath.Join(dir, "d_estimator.gob")

	var nf *errors.NotFittedError
	assert.True(t, errors.As(SaveEstimator(path, lr), &nf))

	X := mat.NewDense(3, 1, []float64{0, 1, 2})
	y := mat.NewDense(3, 1, []float64{1, 3, 5})
	require.NoError(t, lr.Fit(X, y))
	require.NoError(t, SaveEstimator(path, lr))

	var restored linear.LinearRegression
	require.NoError(t, model.LoadModel(&restored, path))
	assert.InDelta(t, 2.0, restored.GetWeights()[0], 1e-9)
	assert.InDelta(t, 1.0, restored.GetIntercept(), 1e-9)
}

func TestPlotPredictions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d_pred.png")
	rows := []Row{{Y: 1, Pred: 1.2}, {Y: 2, Pred: 1.8}, {Y: 3, Pred: 3.1}}
	require.NoError(t, PlotPredictions(path, "linear_reg dgp_01", rows))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), raw[:4])

	assert.Error(t, PlotPredictions(path, "empty", nil))
}
