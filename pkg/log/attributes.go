// Standard attribute keys. Keys follow a dotted hierarchy ("model.name",
// "data.samples") so that logs from every package can be filtered the same way.

package log

// Model and operation context.
const (
	// ModelNameKey identifies the model family or wrapper tag.
	// Examples: "LinearRegression", "random_forest", "ffnn"
	ModelNameKey = "model.name"

	// EstimatorIDKey identifies one estimator instance (a run ID for the runner).
	EstimatorIDKey = "estimator.id"

	// OperationKey: "fit", "predict", "transform", "search", ...
	OperationKey = "ml.operation"

	// ComponentKey names the package emitting the log.
	ComponentKey = "ml.component"

	// PhaseKey: "training", "validation", "testing", ...
	PhaseKey = "ml.phase"

	// SearchTypeKey: "direct_fit" or "random".
	SearchTypeKey = "search.type"
)

// Work unit context.
const (
	// DGPKey is the data-generating-process directory name.
	DGPKey = "dgp.dir"

	// DatasetKey is the dataset base name inside a DGP directory.
	DatasetKey = "dataset.name"

	// PathKey is a filesystem path being read or written.
	PathKey = "io.path"

	// StatusKey is the unit outcome: "completed", "skipped", "failed".
	StatusKey = "unit.status"
)

// Data shape.
const (
	SamplesKey   = "data.samples"
	FeaturesKey  = "data.features"
	BatchSizeKey = "data.batch_size"
)

// Performance and training progress.
const (
	DurationMsKey = "perf.duration_ms"
	LossKey       = "metrics.loss"
	ValLossKey    = "metrics.val_loss"
	MSEKey        = "metrics.mse"
	R2ScoreKey    = "metrics.r2_score"
	ScoreKey      = "metrics.score"
	IterationKey  = "training.iteration"
	EpochKey      = "training.epoch"
	CandidateKey  = "search.candidate"
	FoldKey       = "search.fold"
	WorkersKey    = "parallel.workers"
)

// Hyperparameters and configuration.
const (
	HyperParamsKey  = "model.hyperparams"
	LearningRateKey = "hyperparams.learning_rate"
	RandomSeedKey   = "config.random_seed"
)

// Error context.
const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
	ErrorTypeKey      = "error.type"
)

// Standard attribute values.
const (
	OperationFit          = "fit"
	OperationPredict      = "predict"
	OperationTransform    = "transform"
	OperationFitTransform = "fit_transform"
	OperationScore        = "score"
	OperationSearch       = "search"

	PhaseTraining      = "training"
	PhaseValidation    = "validation"
	PhaseTesting       = "testing"
	PhasePreprocessing = "preprocessing"
)
