package neural

import (
	"math"

	"github.com/YuminosukeSato/dgpbench/pkg/errors"
)

// Activation is an element-wise layer nonlinearity.
type Activation interface {
	Apply(z float64) float64
	// Derivative returns d(Apply)/dz at z.
	Derivative(z float64) float64
	Name() string
}

type relu struct{}

func (relu) Apply(z float64) float64 { return math.Max(0, z) }
func (relu) Derivative(z float64) float64 {
	if z > 0 {
		return 1
	}
	return 0
}
func (relu) Name() string { return "relu" }

type linear struct{}

func (linear) Apply(z float64) float64      { return z }
func (linear) Derivative(_ float64) float64 { return 1 }
func (linear) Name() string                 { return "linear" }

type tanh struct{}

func (tanh) Apply(z float64) float64 { return math.Tanh(z) }
func (tanh) Derivative(z float64) float64 {
	t := math.Tanh(z)
	return 1 - t*t
}
func (tanh) Name() string { return "tanh" }

type sigmoid struct{}

func (sigmoid) Apply(z float64) float64 { return 1 / (1 + math.Exp(-z)) }
func (sigmoid) Derivative(z float64) float64 {
	s := 1 / (1 + math.Exp(-z))
	return s * (1 - s)
}
func (sigmoid) Name() string { return "sigmoid" }

// ActivationByName resolves a Keras activation name.
func ActivationByName(name string) (Activation, error) {
	switch name {
	case "relu":
		return relu{}, nil
	case "linear", "identity":
		return linear{}, nil
	case "tanh":
		return tanh{}, nil
	case "sigmoid", "logistic":
		return sigmoid{}, nil
	}
	return nil, errors.NewValidationError("activation", "unsupported activation", name)
}

// Loss is a per-batch regression loss.
type Loss interface {
	// Value returns the mean loss over the batch.
	Value(pred, target []float64) float64
	// Gradient writes dLoss/dpred into grad.
	Gradient(grad, pred, target []float64)
	Name() string
}

type mse struct{}

func (mse) Value(pred, target []float64) float64 {
	s := 0.0
	for i := range pred {
		d := pred[i] - target[i]
		s += d * d
	}
	return s / float64(len(pred))
}

func (mse) Gradient(grad, pred, target []float64) {
	n := float64(len(pred))
	for i := range pred {
		grad[i] = 2 * (pred[i] - target[i]) / n
	}
}

func (mse) Name() string { return "mse" }

type mae struct{}

func (mae) Value(pred, target []float64) float64 {
	s := 0.0
	for i := range pred {
		s += math.Abs(pred[i] - target[i])
	}
	return s / float64(len(pred))
}

func (mae) Gradient(grad, pred, target []float64) {
	n := float64(len(pred))
	for i := range pred {
		switch d := pred[i] - target[i]; {
		case d > 0:
			grad[i] = 1 / n
		case d < 0:
			grad[i] = -1 / n
		default:
			grad[i] = 0
		}
	}
}

func (mae) Name() string { return "mae" }

// LossByName resolves a Keras loss name.
func LossByName(name string) (Loss, error) {
	switch name {
	case "mse", "mean_squared_error":
		return mse{}, nil
	case "mae", "mean_absolute_error":
		return mae{}, nil
	}
	return nil, errors.NewValidationError("loss", "unsupported loss", name)
}
