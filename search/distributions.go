// Package search selects hyperparameters for an estimator, either by fitting
// a fixed configuration once or by randomized search with k-fold
// cross-validation.
package search

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/dgpbench/pkg/errors"
)

// Distribution is a source of values for one hyperparameter.
type Distribution interface {
	Sample(rng *rand.Rand) interface{}
	String() string
}

// Finite is implemented by distributions over an enumerable set of values.
// A grid made only of Finite distributions is sampled without replacement.
type Finite interface {
	Distribution
	Values() []interface{}
}

// IntRange draws integers uniformly from [Low, High), like scipy.stats.randint.
type IntRange struct {
	Low, High int
}

// RandInt returns IntRange{low, high}.
func RandInt(low, high int) IntRange {
	return IntRange{Low: low, High: high}
}

func (d IntRange) Sample(rng *rand.Rand) interface{} {
	return d.Low + rng.IntN(d.High-d.Low)
}

func (d IntRange) String() string {
	return fmt.Sprintf("randint(%d, %d)", d.Low, d.High)
}

// Uniform draws floats uniformly from [Loc, Loc+Scale], like scipy.stats.uniform.
type Uniform struct {
	Loc, Scale float64
}

func (d Uniform) Sample(rng *rand.Rand) interface{} {
	return distuv.Uniform{Min: d.Loc, Max: d.Loc + d.Scale, Src: rng}.Rand()
}

func (d Uniform) String() string {
	return fmt.Sprintf("uniform(loc=%g, scale=%g)", d.Loc, d.Scale)
}

// Reciprocal draws floats whose logarithm is uniform on [log A, log B]
// (scipy.stats.reciprocal, a.k.a. loguniform).
type Reciprocal struct {
	A, B float64
}

func (d Reciprocal) Sample(rng *rand.Rand) interface{} {
	u := distuv.Uniform{Min: math.Log(d.A), Max: math.Log(d.B), Src: rng}
	return math.Exp(u.Rand())
}

func (d Reciprocal) String() string {
	return fmt.Sprintf("reciprocal(%g, %g)", d.A, d.B)
}

// Choice picks one of a fixed list of values uniformly.
type Choice []interface{}

func (c Choice) Sample(rng *rand.Rand) interface{} {
	return c[rng.IntN(len(c))]
}

func (c Choice) Values() []interface{} { return c }

func (c Choice) String() string {
	return fmt.Sprintf("%v", []interface{}(c))
}

// Fixed is a single-value Choice.
func Fixed(v interface{}) Choice {
	return Choice{v}
}

// Strings builds a Choice of strings.
func Strings(values ...string) Choice {
	c := make(Choice, len(values))
	for i, v := range values {
		c[i] = v
	}
	return c
}

// Floats builds a Choice of floats.
func Floats(values ...float64) Choice {
	c := make(Choice, len(values))
	for i, v := range values {
		c[i] = v
	}
	return c
}

// Arange builds the Choice {start, start+1, ..., stop-1} (numpy.arange).
func Arange(start, stop int) Choice {
	c := make(Choice, 0, stop-start)
	for v := start; v < stop; v++ {
		c = append(c, v)
	}
	return c
}

// Linspace builds n evenly spaced floats from start to stop inclusive
// (numpy.linspace).
func Linspace(start, stop float64, n int) Choice {
	c := make(Choice, n)
	if n == 1 {
		c[0] = start
		return c
	}
	step := (stop - start) / float64(n-1)
	for i := 0; i < n; i++ {
		c[i] = start + float64(i)*step
	}
	c[n-1] = stop
	return c
}

// ParamGrid maps hyperparameter names to distributions.
type ParamGrid map[string]Distribution

// Keys returns the parameter names in sorted order. Sampling walks keys in
// this order so results are reproducible.
func (g ParamGrid) Keys() []string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks that every distribution can produce a value.
func (g ParamGrid) Validate() error {
	for _, k := range g.Keys() {
		switch d := g[k].(type) {
		case nil:
			return errors.NewValidationError(k, "distribution is nil", nil)
		case IntRange:
			if d.High <= d.Low {
				return errors.NewValidationError(k, "randint requires high > low", d.String())
			}
		case Uniform:
			if d.Scale < 0 {
				return errors.NewValidationError(k, "uniform scale must be non-negative", d.String())
			}
		case Reciprocal:
			if d.A <= 0 || d.B <= d.A {
				return errors.NewValidationError(k, "reciprocal requires 0 < a < b", d.String())
			}
		case Finite:
			if len(d.Values()) == 0 {
				return errors.NewValidationError(k, "choice list is empty", nil)
			}
		}
	}
	return nil
}

// Merge returns a copy of g with the entries of override replacing or adding
// to it.
func (g ParamGrid) Merge(override ParamGrid) ParamGrid {
	out := make(ParamGrid, len(g)+len(override))
	for k, v := range g {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
