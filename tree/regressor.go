package tree

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/dgpbench/core/model"
	"github.com/YuminosukeSato/dgpbench/metrics"
	"github.com/YuminosukeSato/dgpbench/pkg/errors"
)

// DecisionTreeRegressor is a CART regression tree minimising squared error.
type DecisionTreeRegressor struct {
	model.BaseEstimator

	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     interface{}
	randomState     uint64

	tree      *Tree
	nFeatures int
}

// NewDecisionTreeRegressor creates a tree with scikit-learn defaults
// (unlimited depth, min_samples_split=2, min_samples_leaf=1, all features).
func NewDecisionTreeRegressor(opts ...Option) *DecisionTreeRegressor {
	dt := &DecisionTreeRegressor{
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     "auto",
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// ResolveMaxFeatures converts a max_features specification into a feature
// count in [1, nFeatures].
func ResolveMaxFeatures(spec interface{}, nFeatures int) (int, error) {
	var k int
	switch v := spec.(type) {
	case nil:
		k = nFeatures
	case string:
		switch v {
		case "auto", "", "none":
			k = nFeatures
		case "sqrt":
			k = int(math.Sqrt(float64(nFeatures)))
		case "log2":
			k = int(math.Log2(float64(nFeatures)))
		default:
			// numeric values round-tripped through a snapshot
			if n, err := strconv.Atoi(v); err == nil {
				return ResolveMaxFeatures(n, nFeatures)
			}
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return ResolveMaxFeatures(f, nFeatures)
			}
			return 0, errors.NewValidationError("max_features", "must be auto, sqrt, log2, an int or a float", spec)
		}
	case int:
		k = v
	case float64:
		if v <= 0 || v > 1 {
			return 0, errors.NewValidationError("max_features", "fraction must be in (0, 1]", spec)
		}
		k = int(v * float64(nFeatures))
	default:
		return 0, errors.NewValidationError("max_features", "must be auto, sqrt, log2, an int or a float", spec)
	}
	if k < 1 {
		k = 1
	}
	if k > nFeatures {
		k = nFeatures
	}
	return k, nil
}

// Fit grows the tree on all rows of X.
func (dt *DecisionTreeRegressor) Fit(X, y mat.Matrix) error {
	r, _ := X.Dims()
	indices := make([]int, r)
	for i := range indices {
		indices[i] = i
	}
	return dt.FitIndices(X, y, indices, rand.New(rand.NewPCG(dt.randomState, dt.randomState)))
}

// FitIndices grows the tree on the given rows (repeats allowed, as in a
// bootstrap sample) drawing feature subsets from rng.
func (dt *DecisionTreeRegressor) FitIndices(X, y mat.Matrix, indices []int, rng *rand.Rand) error {
	r, c := X.Dims()
	ry, cy := y.Dims()
	if r == 0 || c == 0 || len(indices) == 0 {
		return errors.NewModelError("DecisionTreeRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	if ry != r {
		return errors.NewDimensionError("DecisionTreeRegressor.Fit", r, ry, 0)
	}
	if cy != 1 {
		return errors.NewValueError("DecisionTreeRegressor.Fit", "y must be a column vector")
	}
	if dt.minSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be at least 2", dt.minSamplesSplit)
	}
	k, err := ResolveMaxFeatures(dt.maxFeatures, c)
	if err != nil {
		return err
	}

	dense := mat.DenseCopyOf(X)

	// Bootstrap rows appear several times; expand them so each copy carries
	// its own gradient, which gives the usual sample-weight semantics.
	expanded := dense
	rows := indices
	if hasRepeats(indices) {
		expanded = mat.NewDense(len(indices), c, nil)
		rows = make([]int, len(indices))
		for i, idx := range indices {
			expanded.SetRow(i, dense.RawRowView(idx))
			rows[i] = i
		}
	}

	grad := make([]float64, len(rows))
	hess := make([]float64, len(rows))
	for i, idx := range indices {
		grad[rows[i]] = -y.At(idx, 0)
		hess[rows[i]] = 1
	}

	dt.Reset()
	dt.tree = Grow(expanded, grad, hess, rows, GrowConfig{
		MaxDepth:        dt.maxDepth,
		MinSamplesSplit: dt.minSamplesSplit,
		MinSamplesLeaf:  dt.minSamplesLeaf,
		MaxFeatures:     k,
		Rand:            rng,
	})
	dt.nFeatures = c
	dt.SetFitted()
	return nil
}

func hasRepeats(indices []int) bool {
	seen := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		if _, ok := seen[i]; ok {
			return true
		}
		seen[i] = struct{}{}
	}
	return false
}

// Predict returns one prediction per row of X as an (n, 1) matrix.
func (dt *DecisionTreeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !dt.IsFitted() {
		return nil, errors.NewNotFittedError("DecisionTreeRegressor", "Predict")
	}
	r, c := X.Dims()
	if c != dt.nFeatures {
		return nil, errors.NewDimensionError("DecisionTreeRegressor.Predict", dt.nFeatures, c, 1)
	}

	out := mat.NewVecDense(r, nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		out.SetVec(i, dt.tree.PredictRow(row))
	}
	return out, nil
}

// Score returns R² on (X, y).
func (dt *DecisionTreeRegressor) Score(X, y mat.Matrix) (float64, error) {
	pred, err := dt.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2Matrix(y, pred)
}

// Tree exposes the fitted tree (nil before Fit).
func (dt *DecisionTreeRegressor) Tree() *Tree {
	return dt.tree
}

// GetParams returns the hyperparameters.
func (dt *DecisionTreeRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"max_depth":         dt.maxDepth,
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
		"max_features":      dt.maxFeatures,
		"random_state":      int(dt.randomState),
	}
}

// SetParams sets hyperparameters by name, all or nothing.
func (dt *DecisionTreeRegressor) SetParams(params map[string]interface{}) error {
	if err := NewDecisionTreeRegressor().applyParams(params); err != nil {
		return err
	}
	return dt.applyParams(params)
}

func (dt *DecisionTreeRegressor) applyParams(params map[string]interface{}) error {
	for k, v := range params {
		var err error
		switch k {
		case "max_depth":
			dt.maxDepth, err = model.ToInt(k, v)
		case "min_samples_split":
			dt.minSamplesSplit, err = model.ToInt(k, v)
		case "min_samples_leaf":
			dt.minSamplesLeaf, err = model.ToInt(k, v)
		case "max_features":
			_, err = ResolveMaxFeatures(v, 1)
			dt.maxFeatures = v
		case "random_state":
			var seed int
			seed, err = model.ToInt(k, v)
			dt.randomState = uint64(seed)
		default:
			err = model.UnknownParam("DecisionTreeRegressor", k, v)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Clone returns an unfitted copy with the same hyperparameters.
func (dt *DecisionTreeRegressor) Clone() model.Estimator {
	return &DecisionTreeRegressor{
		maxDepth:        dt.maxDepth,
		minSamplesSplit: dt.minSamplesSplit,
		minSamplesLeaf:  dt.minSamplesLeaf,
		maxFeatures:     dt.maxFeatures,
		randomState:     dt.randomState,
	}
}

func (dt *DecisionTreeRegressor) String() string {
	return fmt.Sprintf("DecisionTreeRegressor(max_depth=%d, min_samples_split=%d, max_features=%v)",
		dt.maxDepth, dt.minSamplesSplit, dt.maxFeatures)
}

type regressorSnapshot struct {
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     string
	RandomState     uint64
	Nodes           []Node
	NFeatures       int
}

// GobEncode encodes hyperparameters and the fitted tree.
func (dt *DecisionTreeRegressor) GobEncode() ([]byte, error) {
	s := regressorSnapshot{
		MaxDepth:        dt.maxDepth,
		MinSamplesSplit: dt.minSamplesSplit,
		MinSamplesLeaf:  dt.minSamplesLeaf,
		MaxFeatures:     fmt.Sprint(dt.maxFeatures),
		RandomState:     dt.randomState,
		NFeatures:       dt.nFeatures,
	}
	if dt.tree != nil {
		s.Nodes = dt.tree.Nodes
	}
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes(), err
}

// GobDecode restores a tree written by GobEncode. Numeric max_features
// values come back as strings, which ResolveMaxFeatures accepts.
func (dt *DecisionTreeRegressor) GobDecode(data []byte) error {
	var s regressorSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return errors.Wrap(err, "failed to decode DecisionTreeRegressor")
	}
	*dt = DecisionTreeRegressor{
		maxDepth:        s.MaxDepth,
		minSamplesSplit: s.MinSamplesSplit,
		minSamplesLeaf:  s.MinSamplesLeaf,
		maxFeatures:     s.MaxFeatures,
		randomState:     s.RandomState,
		nFeatures:       s.NFeatures,
	}
	if len(s.Nodes) > 0 {
		dt.tree = &Tree{Nodes: s.Nodes}
		dt.SetFitted()
	}
	return nil
}
