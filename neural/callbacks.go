package neural

import (
	"math"

	"github.com/YuminosukeSato/dgpbench/core/model"
	"github.com/YuminosukeSato/dgpbench/pkg/errors"
)

// EarlyStoppingConfig configures EarlyStopping. Field names follow Keras.
type EarlyStoppingConfig struct {
	// Monitor is "val_loss" or "loss".
	Monitor string
	// Patience is the number of epochs without improvement before stopping.
	Patience int
	// MinDelta is the minimum decrease that counts as an improvement.
	MinDelta float64
	// RestoreBestWeights rolls the model back to the best epoch on stop.
	RestoreBestWeights bool
}

// EarlyStopping returns a factory for a callback that stops training once
// the monitored loss has not improved for Patience epochs.
//
// When Monitor is val_loss and the fit has no validation data, a warning is
// raised once and training runs to completion.
func EarlyStopping(cfg EarlyStoppingConfig) model.CallbackFactory {
	if cfg.Monitor == "" {
		cfg.Monitor = "val_loss"
	}
	return func() model.Callback {
		best := math.Inf(1)
		bestEpoch := -1
		wait := 0
		warned := false

		return func(env *model.CallbackEnv) error {
			var current float64
			switch cfg.Monitor {
			case "val_loss":
				if !env.HasValidation {
					if !warned {
						errors.Warn(errors.Newf("early stopping conditioned on %s which is not available", cfg.Monitor))
						warned = true
					}
					return nil
				}
				current = env.ValLoss
			case "loss":
				current = env.Loss
			default:
				return errors.NewValidationError("monitor", "must be val_loss or loss", cfg.Monitor)
			}

			if current+cfg.MinDelta < best {
				best = current
				bestEpoch = env.Epoch
				wait = 0
				env.BestEpoch = bestEpoch
				return nil
			}

			wait++
			env.BestEpoch = bestEpoch
			if wait >= cfg.Patience && env.Epoch > 0 {
				env.StopTraining = true
				env.RestoreBest = cfg.RestoreBestWeights
			}
			return nil
		}
	}
}
