// Package log defines standard attribute keys for cross-validation runs.
//
// The keys follow a hierarchical naming convention ("model.name",
// "cv.fold", "metrics.auc") so that log lines can be filtered and
// aggregated by downstream tooling.

package log

// Model and operation context.
const (
	// ModelNameKey identifies the classifier configuration, e.g. "svm" or "rf".
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "predict_proba", "evaluate", "cross_validate"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is logging.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the model lifecycle.
	PhaseKey = "ml.phase"
)

// Data shape.
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	ClassesKey  = "data.classes"

	// UnknownLabelsKey counts samples carrying the unknown-label sentinel.
	UnknownLabelsKey = "data.unknown_labels"
)

// Cross-validation context.
const (
	// FoldKey is the 1-based fold number.
	FoldKey = "cv.fold"

	// FoldsKey is the configured number of folds.
	FoldsKey = "cv.folds"

	TrainSizeKey = "cv.train_size"
	TestSizeKey  = "cv.test_size"

	// ShuffleKey records whether folds were shuffled.
	ShuffleKey = "cv.shuffle"

	// BinaryKey records whether binary metrics are computed.
	BinaryKey = "cv.binary"
)

// Metrics.
const (
	AccuracyKey  = "metrics.accuracy"
	PrecisionKey = "metrics.precision"
	RecallKey    = "metrics.recall"
	F1Key        = "metrics.f1"
	AUCKey       = "metrics.auc"

	// AUCFoldsKey counts the folds that contributed an AUC value.
	AUCFoldsKey = "metrics.auc_folds"
)

// Performance.
const (
	DurationMsKey = "perf.duration_ms"
	IterationKey  = "training.iteration"
)

// Error context.
const (
	ErrorTypeKey  = "error.type"
	SuggestionKey = "error.suggestion"
)

// Hyperparameters and configuration.
const (
	HyperParamsKey = "model.hyperparams"
	RandomSeedKey  = "config.random_seed"
)

// Standard attribute values.
const (
	OperationFit           = "fit"
	OperationPredict       = "predict"
	OperationPredictProba  = "predict_proba"
	OperationEvaluate      = "evaluate"
	OperationCrossValidate = "cross_validate"
	OperationTrain         = "train"

	PhaseTraining   = "training"
	PhaseValidation = "validation"
)
