// Package wrappers binds each model family to its estimator, search type and
// hyperparameter search space.
//
// A wrapper is an immutable value. The runner builds a fresh one for every
// unit of work and never shares it across datasets.
package wrappers

import (
	"github.com/YuminosukeSato/dgpbench/core/model"
	"github.com/YuminosukeSato/dgpbench/search"
)

// Wrapper describes how one model family is trained.
type Wrapper interface {
	// Name is the model tag used for output directories ("ffnn", ...).
	Name() string
	SearchType() search.Type
	// ParamGrid returns a copy of the search space; empty for direct fit.
	ParamGrid() search.ParamGrid
	// Estimator returns an unfitted estimator carrying the override params.
	Estimator() model.Estimator
	// FitOptions is forwarded to estimators that accept validation data.
	FitOptions() model.FitOptions
}

// InputShaper is implemented by wrappers whose estimator must know the
// feature count before training.
type InputShaper interface {
	WithInputShape(nFeatures int) Wrapper
}

// Factory builds a wrapper. A nil override keeps the estimator defaults.
type Factory func(override model.Params) (Wrapper, error)

// spec is the shared implementation of Wrapper.
type spec struct {
	name       string
	searchType search.Type
	grid       search.ParamGrid
	proto      model.Estimator
	fitOptions model.FitOptions
}

func (s spec) Name() string { return s.name }

func (s spec) SearchType() search.Type { return s.searchType }

func (s spec) ParamGrid() search.ParamGrid {
	return search.ParamGrid{}.Merge(s.grid)
}

func (s spec) Estimator() model.Estimator { return s.proto.Clone() }

func (s spec) FitOptions() model.FitOptions {
	opts := s.fitOptions
	opts.Callbacks = append([]model.CallbackFactory(nil), s.fitOptions.Callbacks...)
	return opts
}

// newEstimator applies override to est and returns it.
func newEstimator(est model.Estimator, override model.Params) (model.Estimator, error) {
	if len(override) == 0 {
		return est, nil
	}
	if err := est.SetParams(override); err != nil {
		return nil, err
	}
	return est, nil
}
