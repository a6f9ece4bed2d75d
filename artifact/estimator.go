package artifact

import (
	"github.com/YuminosukeSato/dgpbench/core/model"
	"github.com/YuminosukeSato/dgpbench/pkg/errors"
)

// SaveEstimator gob-encodes a fitted estimator to path.
func SaveEstimator(path string, est model.Estimator) error {
	if !est.IsFitted() {
		return errors.NewNotFittedError("artifact", "SaveEstimator")
	}
	return model.SaveModel(est, path)
}
