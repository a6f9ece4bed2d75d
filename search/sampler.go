package search

import (
	"fmt"
	"math/rand/v2"

	"github.com/YuminosukeSato/dgpbench/core/model"
	"github.com/YuminosukeSato/dgpbench/pkg/errors"
)

// ParameterSampler draws NIter hyperparameter combinations from a grid.
//
// When every entry of the grid is Finite, combinations are drawn without
// replacement and NIter is capped at the grid size, as scikit-learn does.
// Otherwise each combination draws every parameter independently.
type ParameterSampler struct {
	Grid  ParamGrid
	NIter int
	Seed  uint64
}

// Sample returns the combinations in draw order.
func (s ParameterSampler) Sample() ([]model.Params, error) {
	if s.NIter < 1 {
		return nil, errors.NewValidationError("n_iter", "must be positive", s.NIter)
	}
	if err := s.Grid.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(s.Seed, s.Seed))
	keys := s.Grid.Keys()

	if lists, ok := s.finiteLists(keys); ok {
		return s.sampleWithoutReplacement(rng, keys, lists), nil
	}

	out := make([]model.Params, s.NIter)
	for i := range out {
		p := make(model.Params, len(keys))
		for _, k := range keys {
			p[k] = s.Grid[k].Sample(rng)
		}
		out[i] = p
	}
	return out, nil
}

func (s ParameterSampler) finiteLists(keys []string) ([][]interface{}, bool) {
	lists := make([][]interface{}, len(keys))
	for i, k := range keys {
		f, ok := s.Grid[k].(Finite)
		if !ok {
			return nil, false
		}
		lists[i] = f.Values()
	}
	return lists, true
}

// GridSize returns the number of distinct combinations of an all-Finite grid
// and false when the grid contains a continuous or unbounded distribution.
func (s ParameterSampler) GridSize() (int, bool) {
	lists, ok := s.finiteLists(s.Grid.Keys())
	if !ok {
		return 0, false
	}
	size := 1
	for _, l := range lists {
		size *= len(l)
	}
	return size, true
}

func (s ParameterSampler) sampleWithoutReplacement(rng *rand.Rand, keys []string, lists [][]interface{}) []model.Params {
	size := 1
	for _, l := range lists {
		size *= len(l)
	}
	n := s.NIter
	if n > size {
		errors.Warn(errors.Newf("the total space of parameters %d is smaller than n_iter=%d; running %d iterations", size, s.NIter, size))
		n = size
	}

	out := make([]model.Params, 0, n)
	for _, flat := range rng.Perm(size)[:n] {
		p := make(model.Params, len(keys))
		// mixed-radix decode, last key varies fastest
		for i := len(keys) - 1; i >= 0; i-- {
			l := lists[i]
			p[keys[i]] = l[flat%len(l)]
			flat /= len(l)
		}
		out = append(out, p)
	}
	return out
}

func (s ParameterSampler) String() string {
	return fmt.Sprintf("ParameterSampler(n_iter=%d, params=%v)", s.NIter, s.Grid.Keys())
}
