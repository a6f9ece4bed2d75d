// Package neural implements a feed-forward neural network regressor trained
// with mini-batch stochastic gradient descent.
//
// The network mirrors a Keras Sequential model: NHidden dense layers of
// NNeurons units with the same activation, followed by a single linear output
// unit. Weights use Glorot-uniform initialisation and biases start at zero.
package neural

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/dgpbench/core/model"
	"github.com/YuminosukeSato/dgpbench/metrics"
	"github.com/YuminosukeSato/dgpbench/pkg/errors"
	"github.com/YuminosukeSato/dgpbench/pkg/log"
)

// EpochLog is one entry of the training history.
type EpochLog struct {
	Epoch   int
	Loss    float64
	ValLoss float64 // NaN when fitted without validation data
}

// FFNNRegressor is a multilayer perceptron for scalar regression.
type FFNNRegressor struct {
	model.BaseEstimator

	NHidden      int
	NNeurons     int
	LearningRate float64
	Activation   string
	Loss         string
	// InputShape is the expected feature count; 0 accepts any width.
	InputShape  int
	Epochs      int
	BatchSize   int
	Shuffle     bool
	RandomState int

	weights   []*mat.Dense // layer l: (in, out)
	biases    [][]float64
	history   []EpochLog
	nFeatures int
}

// NewFFNNRegressor returns a network with Keras-like defaults
// (one hidden layer, SGD learning rate 0.01, batch size 32, one epoch).
func NewFFNNRegressor() *FFNNRegressor {
	return &FFNNRegressor{
		NHidden:      1,
		NNeurons:     30,
		LearningRate: 0.01,
		Activation:   "relu",
		Loss:         "mse",
		Epochs:       1,
		BatchSize:    32,
		Shuffle:      true,
	}
}

func (r *FFNNRegressor) validate(nFeatures int) (Activation, Loss, error) {
	switch {
	case r.NHidden < 0:
		return nil, nil, errors.NewValidationError("n_hidden", "must be non-negative", r.NHidden)
	case r.NHidden > 0 && r.NNeurons < 1:
		return nil, nil, errors.NewValidationError("n_neurons", "must be positive", r.NNeurons)
	case r.LearningRate < 0:
		return nil, nil, errors.NewValidationError("learning_rate", "must be non-negative", r.LearningRate)
	case r.BatchSize < 1:
		return nil, nil, errors.NewValidationError("batch_size", "must be positive", r.BatchSize)
	}
	if r.InputShape > 0 && r.InputShape != nFeatures {
		return nil, nil, errors.NewDimensionError("FFNNRegressor.Fit", r.InputShape, nFeatures, 1)
	}
	act, err := ActivationByName(r.Activation)
	if err != nil {
		return nil, nil, err
	}
	loss, err := LossByName(r.Loss)
	if err != nil {
		return nil, nil, err
	}
	return act, loss, nil
}

// Fit trains for Epochs epochs without validation data or callbacks.
func (r *FFNNRegressor) Fit(X, y mat.Matrix) error {
	return r.FitWithValidation(X, y, nil, nil, model.FitOptions{})
}

// FitWithValidation trains the network. When XVal is non-nil the validation
// loss is computed after every epoch and passed to the callbacks. opts.Epochs
// overrides the Epochs field when positive.
func (r *FFNNRegressor) FitWithValidation(X, y, XVal, yVal mat.Matrix, opts model.FitOptions) (err error) {
	defer errors.Recover(&err, "FFNNRegressor.Fit")

	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("FFNNRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	if rows != yRows {
		return errors.NewDimensionError("FFNNRegressor.Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("FFNNRegressor.Fit", 1, yCols, 1)
	}
	act, loss, err := r.validate(cols)
	if err != nil {
		return err
	}

	hasVal := XVal != nil && yVal != nil
	var xv *mat.Dense
	var yv []float64
	if hasVal {
		vr, vc := XVal.Dims()
		if vc != cols {
			return errors.NewDimensionError("FFNNRegressor.FitWithValidation", cols, vc, 1)
		}
		if vyr, _ := yVal.Dims(); vyr != vr {
			return errors.NewDimensionError("FFNNRegressor.FitWithValidation", vr, vyr, 0)
		}
		xv = mat.DenseCopyOf(XVal)
		yv = mat.Col(nil, 0, yVal)
	}

	epochs := r.Epochs
	if opts.Epochs > 0 {
		epochs = opts.Epochs
	}
	callbacks := opts.Instantiate()

	logger := log.GetLoggerWithName("neural.ffnn")
	logger.Debug("Training FFNNRegressor",
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		log.BatchSizeKey, r.BatchSize,
		log.HyperParamsKey, model.Params(r.GetParams()).String())

	rng := rand.New(rand.NewPCG(uint64(r.RandomState), uint64(r.RandomState)))
	r.Reset()
	r.nFeatures = cols
	r.initWeights(cols, rng)
	r.history = r.history[:0]

	Xd := mat.DenseCopyOf(X)
	targets := mat.Col(nil, 0, y)
	order := make([]int, rows)
	for i := range order {
		order[i] = i
	}

	var best *snapshot
	stopped := false
	for epoch := 0; epoch < epochs; epoch++ {
		if r.Shuffle {
			rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		// Keras reports the sample-weighted mean of the batch losses.
		epochLoss := 0.0
		for start := 0; start < rows; start += r.BatchSize {
			end := start + r.BatchSize
			if end > rows {
				end = rows
			}
			batch := order[start:end]
			bl := r.step(Xd, targets, batch, act, loss)
			epochLoss += bl * float64(len(batch))
		}
		epochLoss /= float64(rows)
		if err := errors.CheckScalar("FFNNRegressor.Fit", epochLoss, epoch); err != nil {
			return err
		}
		for _, W := range r.weights {
			wr, wc := W.Dims()
			if err := errors.CheckMatrix("FFNNRegressor.Fit", W, wr, wc, epoch); err != nil {
				return err
			}
		}

		entry := EpochLog{Epoch: epoch, Loss: epochLoss, ValLoss: math.NaN()}
		if hasVal {
			entry.ValLoss = loss.Value(r.forwardOutput(xv, act), yv)
			if err := errors.CheckScalar("FFNNRegressor.Fit", entry.ValLoss, epoch); err != nil {
				return err
			}
		}
		r.history = append(r.history, entry)
		logger.Debug("epoch finished",
			log.EpochKey, epoch,
			log.LossKey, entry.Loss,
			log.ValLossKey, entry.ValLoss)

		env := &model.CallbackEnv{
			Model:         "FFNNRegressor",
			Epoch:         epoch,
			Loss:          entry.Loss,
			ValLoss:       entry.ValLoss,
			HasValidation: hasVal,
			BestEpoch:     -1,
		}
		if err := model.RunCallbacks(callbacks, env); err != nil {
			return errors.Wrapf(err, "callback failed at epoch %d", epoch)
		}
		if env.BestEpoch == epoch {
			best = r.snapshot()
		}
		if env.StopTraining {
			stopped = true
			if env.RestoreBest && best != nil {
				r.restore(best)
			}
			logger.Debug("training stopped by callback", log.EpochKey, epoch)
			break
		}
	}

	if hasVal && len(callbacks) > 0 && !stopped {
		errors.Warn(errors.NewConvergenceWarning("FFNNRegressor", epochs,
			"early stopping did not trigger before the epoch limit"))
	}
	r.SetFitted()
	return nil
}

func glorotLimit(fanIn, fanOut int) float64 {
	return math.Sqrt(6 / float64(fanIn+fanOut))
}

// initWeights draws Glorot-uniform weights.
func (r *FFNNRegressor) initWeights(nFeatures int, rng *rand.Rand) {
	sizes := []int{nFeatures}
	for i := 0; i < r.NHidden; i++ {
		sizes = append(sizes, r.NNeurons)
	}
	sizes = append(sizes, 1)

	r.weights = make([]*mat.Dense, len(sizes)-1)
	r.biases = make([][]float64, len(sizes)-1)
	for l := 0; l < len(sizes)-1; l++ {
		in, out := sizes[l], sizes[l+1]
		limit := glorotLimit(in, out)
		u := distuv.Uniform{Min: -limit, Max: limit, Src: rng}
		data := make([]float64, in*out)
		for i := range data {
			data[i] = u.Rand()
		}
		r.weights[l] = mat.NewDense(in, out, data)
		r.biases[l] = make([]float64, out)
	}
}

// forward returns pre-activations and activations for every layer.
// as[0] is the input; the last activation is the linear output.
func (r *FFNNRegressor) forward(X *mat.Dense, act Activation) (zs, as []*mat.Dense) {
	n, _ := X.Dims()
	as = []*mat.Dense{X}
	last := len(r.weights) - 1
	for l, W := range r.weights {
		_, out := W.Dims()
		z := mat.NewDense(n, out, nil)
		z.Mul(as[l], W)
		for i := 0; i < n; i++ {
			floats.Add(z.RawRowView(i), r.biases[l])
		}
		zs = append(zs, z)

		if l == last {
			as = append(as, z)
			continue
		}
		a := mat.NewDense(n, out, nil)
		a.Apply(func(_, _ int, v float64) float64 { return act.Apply(v) }, z)
		as = append(as, a)
	}
	return zs, as
}

func (r *FFNNRegressor) forwardOutput(X *mat.Dense, act Activation) []float64 {
	_, as := r.forward(X, act)
	return mat.Col(nil, 0, as[len(as)-1])
}

// step runs one SGD update on the given rows and returns the batch loss
// computed before the update.
func (r *FFNNRegressor) step(X *mat.Dense, targets []float64, batch []int, act Activation, loss Loss) float64 {
	_, cols := X.Dims()
	xb := mat.NewDense(len(batch), cols, nil)
	yb := make([]float64, len(batch))
	for i, idx := range batch {
		xb.SetRow(i, X.RawRowView(idx))
		yb[i] = targets[idx]
	}

	zs, as := r.forward(xb, act)
	pred := mat.Col(nil, 0, as[len(as)-1])
	value := loss.Value(pred, yb)

	grad := make([]float64, len(batch))
	loss.Gradient(grad, pred, yb)
	delta := mat.NewDense(len(batch), 1, grad)

	for l := len(r.weights) - 1; l >= 0; l-- {
		W := r.weights[l]
		in, out := W.Dims()

		dW := mat.NewDense(in, out, nil)
		dW.Mul(as[l].T(), delta)
		db := make([]float64, out)
		for i := 0; i < len(batch); i++ {
			floats.Add(db, delta.RawRowView(i))
		}

		if l > 0 {
			prev := mat.NewDense(len(batch), in, nil)
			prev.Mul(delta, W.T())
			z := zs[l-1]
			prev.Apply(func(i, j int, v float64) float64 { return v * act.Derivative(z.At(i, j)) }, prev)
			delta = prev
		}

		dW.Scale(r.LearningRate, dW)
		W.Sub(W, dW)
		floats.AddScaled(r.biases[l], -r.LearningRate, db)
	}
	return value
}

// Predict returns the network output for each row of X.
func (r *FFNNRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !r.IsFitted() {
		return nil, errors.NewNotFittedError("FFNNRegressor", "Predict")
	}
	_, cols := X.Dims()
	if cols != r.nFeatures {
		return nil, errors.NewDimensionError("FFNNRegressor.Predict", r.nFeatures, cols, 1)
	}
	act, err := ActivationByName(r.Activation)
	if err != nil {
		return nil, err
	}
	out := r.forwardOutput(mat.DenseCopyOf(X), act)
	return mat.NewVecDense(len(out), out), nil
}

// Score returns R² on (X, y).
func (r *FFNNRegressor) Score(X, y mat.Matrix) (float64, error) {
	pred, err := r.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2Matrix(y, pred)
}

// History returns the per-epoch losses of the last fit.
func (r *FFNNRegressor) History() []EpochLog {
	return append([]EpochLog(nil), r.history...)
}

// GetParams returns the hyperparameters.
func (r *FFNNRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_hidden":      r.NHidden,
		"n_neurons":     r.NNeurons,
		"learning_rate": r.LearningRate,
		"activation":    r.Activation,
		"loss":          r.Loss,
		"input_shape":   r.InputShape,
		"epochs":        r.Epochs,
		"batch_size":    r.BatchSize,
		"shuffle":       r.Shuffle,
		"random_state":  r.RandomState,
	}
}

// SetParams sets hyperparameters by name. input_shape accepts an int or a
// one-element []int, as Keras takes a shape tuple. Nothing changes when any
// value is rejected.
func (r *FFNNRegressor) SetParams(params map[string]interface{}) error {
	if err := NewFFNNRegressor().applyParams(params); err != nil {
		return err
	}
	return r.applyParams(params)
}

func (r *FFNNRegressor) applyParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "n_hidden":
			r.NHidden, err = model.ToInt(key, value)
		case "n_neurons":
			r.NNeurons, err = model.ToInt(key, value)
		case "learning_rate", "lr":
			r.LearningRate, err = model.ToFloat(key, value)
		case "activation":
			r.Activation, err = model.ToString(key, value)
		case "loss":
			r.Loss, err = model.ToString(key, value)
		case "input_shape":
			r.InputShape, err = toShape(value)
		case "epochs":
			r.Epochs, err = model.ToInt(key, value)
		case "batch_size":
			r.BatchSize, err = model.ToInt(key, value)
		case "shuffle":
			r.Shuffle, err = model.ToBool(key, value)
		case "random_state":
			r.RandomState, err = model.ToInt(key, value)
		default:
			err = model.UnknownParam("FFNNRegressor", key, value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func toShape(v interface{}) (int, error) {
	switch s := v.(type) {
	case []int:
		if len(s) != 1 {
			return 0, errors.NewValidationError("input_shape", "must have exactly one dimension", v)
		}
		return s[0], nil
	case []interface{}:
		if len(s) != 1 {
			return 0, errors.NewValidationError("input_shape", "must have exactly one dimension", v)
		}
		return model.ToInt("input_shape", s[0])
	default:
		return model.ToInt("input_shape", v)
	}
}

// Clone returns an unfitted copy with the same hyperparameters.
func (r *FFNNRegressor) Clone() model.Estimator {
	c := NewFFNNRegressor()
	_ = c.SetParams(r.GetParams())
	return c
}

func (r *FFNNRegressor) String() string {
	return fmt.Sprintf("FFNNRegressor(n_hidden=%d, n_neurons=%d, activation=%s, learning_rate=%g)",
		r.NHidden, r.NNeurons, r.Activation, r.LearningRate)
}

type snapshot struct {
	Weights []*mat.Dense
	Biases  [][]float64
}

func (r *FFNNRegressor) snapshot() *snapshot {
	s := &snapshot{
		Weights: make([]*mat.Dense, len(r.weights)),
		Biases:  make([][]float64, len(r.biases)),
	}
	for l := range r.weights {
		s.Weights[l] = mat.DenseCopyOf(r.weights[l])
		s.Biases[l] = append([]float64(nil), r.biases[l]...)
	}
	return s
}

func (r *FFNNRegressor) restore(s *snapshot) {
	r.weights = s.Weights
	r.biases = s.Biases
}

type ffnnSnapshot struct {
	Params    model.Params
	Weights   []*mat.Dense
	Biases    [][]float64
	History   []EpochLog
	NFeatures int
	Fitted    bool
}

// GobEncode encodes hyperparameters and weights.
func (r *FFNNRegressor) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(ffnnSnapshot{
		Params:    r.GetParams(),
		Weights:   r.weights,
		Biases:    r.biases,
		History:   r.history,
		NFeatures: r.nFeatures,
		Fitted:    r.IsFitted(),
	})
	return buf.Bytes(), err
}

// GobDecode restores a network written by GobEncode.
func (r *FFNNRegressor) GobDecode(data []byte) error {
	var s ffnnSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return errors.Wrap(err, "failed to decode FFNNRegressor")
	}
	*r = *NewFFNNRegressor()
	if err := r.SetParams(s.Params); err != nil {
		return err
	}
	r.weights = s.Weights
	r.biases = s.Biases
	r.history = s.History
	r.nFeatures = s.NFeatures
	if s.Fitted {
		r.SetFitted()
	}
	return nil
}
