// Package artifact writes the per-unit outputs of a training run and decides
// whether a unit is already complete.
//
// Layout under the outputs root:
//
//	<outputs>/<model_tag>/<dgp>/<dataset>_result.csv     Var1,Var2,y,pred
//	<outputs>/<model_tag>/<dgp>/<dataset>_model.pickle   best hyperparameters
//	<outputs>/<model_tag>/<dgp>/<dataset>_estimator.gob  optional fitted estimator
//	<outputs>/<model_tag>/<dgp>/<dataset>_pred.png       optional diagnostic plot
//
// The result CSV and the pickle together mark a unit complete.
package artifact

import (
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/dgpbench/pkg/errors"
)

// File name suffixes.
const (
	ResultSuffix    = "_result.csv"
	ParamsSuffix    = "_model.pickle"
	EstimatorSuffix = "_estimator.gob"
	PlotSuffix      = "_pred.png"
)

// Paths are the output files of one (model tag, DGP, dataset) unit.
type Paths struct {
	Dir       string
	Result    string
	Params    string
	Estimator string
	Plot      string
}

// NewPaths builds the output paths of a unit.
func NewPaths(outputs, modelTag, dgp, dataset string) Paths {
	dir := filepath.Join(outputs, modelTag, dgp)
	return Paths{
		Dir:       dir,
		Result:    filepath.Join(dir, dataset+ResultSuffix),
		Params:    filepath.Join(dir, dataset+ParamsSuffix),
		Estimator: filepath.Join(dir, dataset+EstimatorSuffix),
		Plot:      filepath.Join(dir, dataset+PlotSuffix),
	}
}

// IsComplete reports whether both the result CSV and the params pickle exist.
func (p Paths) IsComplete() (bool, error) {
	for _, f := range []string{p.Result, p.Params} {
		ok, err := exists(f)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// EnsureDir creates the model tag and DGP directories when missing.
func (p Paths) EnsureDir() error {
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating output directory %s", p.Dir)
	}
	return nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrapf(err, "stat %s", path)
}
