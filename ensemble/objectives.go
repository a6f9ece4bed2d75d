package ensemble

import (
	"math"

	"github.com/YuminosukeSato/dgpbench/pkg/errors"
)

// Objective defines the loss a booster minimises.
type Objective interface {
	// Gradient is the first derivative of the loss w.r.t. the prediction.
	Gradient(prediction, target float64) float64
	// Hessian is the second derivative of the loss w.r.t. the prediction.
	Hessian(prediction, target float64) float64
	Loss(prediction, target float64) float64
	// InitScore is the constant prediction boosting starts from.
	InitScore(targets []float64) float64
	Name() string
}

// L2Objective is squared error.
type L2Objective struct{}

func (L2Objective) Gradient(prediction, target float64) float64 { return prediction - target }
func (L2Objective) Hessian(_, _ float64) float64                { return 1.0 }

func (L2Objective) Loss(prediction, target float64) float64 {
	d := prediction - target
	return 0.5 * d * d
}

func (L2Objective) InitScore(targets []float64) float64 { return mean(targets) }
func (L2Objective) Name() string                        { return "regression" }

// HuberObjective is quadratic within Delta of the target and linear outside.
type HuberObjective struct {
	Delta float64
}

// NewHuberObjective returns a Huber objective; non-positive delta defaults to 1.
func NewHuberObjective(delta float64) *HuberObjective {
	if delta <= 0 {
		delta = 1.0
	}
	return &HuberObjective{Delta: delta}
}

func (o *HuberObjective) Gradient(prediction, target float64) float64 {
	diff := prediction - target
	if math.Abs(diff) <= o.Delta {
		return diff
	}
	if diff > 0 {
		return o.Delta
	}
	return -o.Delta
}

// Hessian is 1 in both regions, as LightGBM does. The true second
// derivative vanishes in the linear region and would let a leaf of outliers
// take an unbounded Newton step.
func (o *HuberObjective) Hessian(_, _ float64) float64 {
	return 1.0
}

func (o *HuberObjective) Loss(prediction, target float64) float64 {
	diff := math.Abs(prediction - target)
	if diff <= o.Delta {
		return 0.5 * diff * diff
	}
	return o.Delta * (diff - 0.5*o.Delta)
}

func (o *HuberObjective) InitScore(targets []float64) float64 { return mean(targets) }
func (o *HuberObjective) Name() string                        { return "huber" }

// NewObjective resolves an objective by its LightGBM name.
func NewObjective(name string, huberDelta float64) (Objective, error) {
	switch name {
	case "regression", "l2", "mse", "regression_l2":
		return L2Objective{}, nil
	case "huber":
		return NewHuberObjective(huberDelta), nil
	default:
		return nil, errors.NewValidationError("objective", "unsupported objective (want regression or huber)", name)
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}
