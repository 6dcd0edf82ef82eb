// Package evaluation runs stratified k-fold cross-validation of a registered
// classifier configuration and aggregates classification metrics per fold.
//
// Example:
//
//	ev, err := evaluation.NewEvaluator(X, y, registry.SVM,
//	    evaluation.WithFolds(10),
//	    evaluation.WithRandomState(42),
//	)
//	if err != nil {
//	    return err
//	}
//	summary, err := ev.Evaluate()
package evaluation

import (
	"iter"
	"time"

	"github.com/YuminosukeSato/cvscore/core/model"
	"github.com/YuminosukeSato/cvscore/metrics"
	"github.com/YuminosukeSato/cvscore/model_selection"
	"github.com/YuminosukeSato/cvscore/pkg/errors"
	"github.com/YuminosukeSato/cvscore/pkg/log"
	"github.com/YuminosukeSato/cvscore/preprocessing"
	"github.com/YuminosukeSato/cvscore/registry"
	"gonum.org/v1/gonum/mat"
)

// UnknownLabel marks an unlabeled sample. CrossValidate drops samples with a
// negative label from every training set.
const UnknownLabel = -1

// DefaultFolds is the fold count used when WithFolds is not given.
const DefaultFolds = 10

// crossValidateConfig is the fixed configuration trained by CrossValidate.
const crossValidateConfig = registry.SVM

// ROCRenderer draws the per-fold ROC curves of a run.
type ROCRenderer interface {
	Render(curves []FoldCurve, showLegend bool) error
}

// FoldModel is one element of CrossValidate: a predictor fitted on the
// labeled part of the fold's training set, and the fold's test indices.
type FoldModel struct {
	Fold         int // 1-based
	Model        model.Classifier
	TrainIndices []int // training rows actually used, unknown labels removed
	TestIndices  []int
}

// Evaluator cross-validates one classifier configuration on a dataset. It is
// not safe for concurrent use.
type Evaluator struct {
	X, y       mat.Matrix
	classifier registry.Name

	nFolds       int
	shuffle      bool
	randomState  int64
	binary       bool
	standardize  bool
	items        []string
	featureNames []string

	splitter     model_selection.Splitter
	logger       log.Logger
	renderer     ROCRenderer
	newPredictor func(registry.Name) (model.Classifier, error)
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithFolds sets the number of folds k.
func WithFolds(k int) Option {
	return func(e *Evaluator) { e.nFolds = k }
}

// WithShuffle toggles shuffling class members before they are dealt into folds.
func WithShuffle(shuffle bool) Option {
	return func(e *Evaluator) { e.shuffle = shuffle }
}

// WithRandomState seeds the fold shuffle. A negative seed re-splits
// differently on every run.
func WithRandomState(seed int64) Option {
	return func(e *Evaluator) { e.randomState = seed }
}

// WithBinaryClass selects binary metrics (positive label 1, ROC/AUC) or macro
// averaged multiclass metrics.
func WithBinaryClass(binary bool) Option {
	return func(e *Evaluator) { e.binary = binary }
}

// WithStandardize standardizes features with statistics of each training
// set before fitting and applies the same scaling to prediction inputs.
func WithStandardize(standardize bool) Option {
	return func(e *Evaluator) { e.standardize = standardize }
}

// WithLogger sets the logger. The default is log.GetLogger().
func WithLogger(logger log.Logger) Option {
	return func(e *Evaluator) { e.logger = logger }
}

// WithRenderer sets the ROC renderer called after a binary run with a
// positive AUC sum.
func WithRenderer(r ROCRenderer) Option {
	return func(e *Evaluator) { e.renderer = r }
}

// WithItems attaches one identifier per sample, used for reporting only.
func WithItems(items []string) Option {
	return func(e *Evaluator) { e.items = items }
}

// WithFeatureNames attaches one name per feature, used for reporting only.
func WithFeatureNames(names []string) Option {
	return func(e *Evaluator) { e.featureNames = names }
}

// WithSplitter replaces the stratified k-fold planner. The fold count then
// comes from the splitter.
func WithSplitter(s model_selection.Splitter) Option {
	return func(e *Evaluator) { e.splitter = s }
}

// NewEvaluator creates an Evaluator for the classifier configuration named
// classifier. Unregistered names fail with UnknownConfigError; the reserved
// dnn configuration is accepted and fails once a predictor is needed.
func NewEvaluator(X, y mat.Matrix, classifier registry.Name, opts ...Option) (*Evaluator, error) {
	if X == nil || y == nil {
		return nil, errors.NewValueError("NewEvaluator", "X and y are required")
	}
	nSamples, nFeatures := X.Dims()
	if rows, _ := y.Dims(); rows != nSamples {
		return nil, errors.NewDimensionError("NewEvaluator", nSamples, rows, 0)
	}
	if _, err := registry.Get(classifier); err != nil {
		return nil, err
	}

	e := &Evaluator{
		X:           X,
		y:           y,
		classifier:  classifier,
		nFolds:      DefaultFolds,
		shuffle:     true,
		randomState: -1,
		binary:      true,

		newPredictor: registry.New,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.items != nil && len(e.items) != nSamples {
		return nil, errors.NewDimensionError("NewEvaluator.items", nSamples, len(e.items), 0)
	}
	if e.featureNames != nil && len(e.featureNames) != nFeatures {
		return nil, errors.NewDimensionError("NewEvaluator.feature_names", nFeatures, len(e.featureNames), 1)
	}
	if e.splitter == nil {
		if e.nFolds < 2 {
			return nil, errors.NewValidationError("folds", "must be at least 2", e.nFolds)
		}
		e.splitter = model_selection.NewStratifiedKFold(e.nFolds, e.shuffle, e.randomState)
	}
	e.nFolds = e.splitter.GetNSplits()
	if e.logger == nil {
		e.logger = log.GetLogger()
	}
	e.logger = e.logger.With(
		log.ModelNameKey, string(classifier),
		log.ComponentKey, "evaluation",
	)
	return e, nil
}

// Classifier returns the active configuration name.
func (e *Evaluator) Classifier() registry.Name { return e.classifier }

// Folds returns the fold count k.
func (e *Evaluator) Folds() int { return e.nFolds }

// Items returns the sample identifiers, if any.
func (e *Evaluator) Items() []string { return e.items }

// FeatureNames returns the feature names, if any.
func (e *Evaluator) FeatureNames() []string { return e.featureNames }

// Evaluate trains and scores the active configuration on every fold and
// returns the averaged metrics. Any fit or predict failure aborts the run
// and no summary is returned.
func (e *Evaluator) Evaluate() (Summary, error) {
	start := time.Now()
	nSamples, nFeatures := e.X.Dims()
	e.logger.Info("Evaluating classifier",
		log.OperationKey, log.OperationEvaluate,
		log.FoldsKey, e.nFolds,
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.BinaryKey, e.binary,
		"cv.standardize", e.standardize,
	)

	folds, err := e.splitter.Split(e.X, e.y)
	if err != nil {
		e.logger.Error("Fold planning failed", err)
		return Summary{}, err
	}

	labels := model.Labels(e.y)
	agg := NewAggregator(e.nFolds, e.binary)
	for i, fold := range folds {
		sample, err := e.evaluateFold(i+1, fold, labels)
		if err != nil {
			e.logger.Error("Fold failed", err, log.FoldKey, i+1)
			return Summary{}, err
		}
		agg.Add(sample)
		e.logSample(sample)
	}

	summary := agg.Summary()
	e.logSummary(summary, time.Since(start))

	if summary.ROCAvailable && e.renderer != nil {
		if err := e.renderer.Render(summary.Curves, false); err != nil {
			return summary, errors.Wrap(err, "render ROC curves")
		}
	}
	return summary, nil
}

func (e *Evaluator) evaluateFold(fold int, f model_selection.Fold, labels []int) (Sample, error) {
	sample := Sample{Fold: fold, TrainSize: len(f.TrainIndices), TestSize: len(f.TestIndices)}

	clf, err := e.fit(e.classifier, e.X, e.y, f.TrainIndices)
	if err != nil {
		return sample, errors.Wrapf(err, "fold %d", fold)
	}

	XTest := model.SelectRows(e.X, f.TestIndices)
	var pred mat.Matrix
	err = errors.SafeExecute("Predict", func() error {
		var perr error
		pred, perr = clf.Predict(XTest)
		return perr
	})
	if err != nil {
		return sample, errors.Wrapf(err, "fold %d: predict", fold)
	}

	yTest := mat.NewVecDense(len(f.TestIndices), nil)
	for i, idx := range f.TestIndices {
		yTest.SetVec(i, float64(labels[idx]))
	}
	yPred := mat.NewVecDense(len(f.TestIndices), nil)
	for i := range f.TestIndices {
		yPred.SetVec(i, pred.At(i, 0))
	}

	if !e.binary {
		sample.Precision, sample.Recall, sample.F1, err = metrics.PrecisionRecallF1(yTest, yPred, metrics.AverageMacro)
		if err != nil {
			return sample, errors.Wrapf(err, "fold %d: metrics", fold)
		}
		return sample, nil
	}

	if sample.Accuracy, err = metrics.AccuracyScore(yTest, yPred); err != nil {
		return sample, errors.Wrapf(err, "fold %d: metrics", fold)
	}
	sample.Precision, sample.Recall, sample.F1, err = metrics.PrecisionRecallF1(yTest, yPred, metrics.AverageBinary)
	if err != nil {
		return sample, errors.Wrapf(err, "fold %d: metrics", fold)
	}

	var probas mat.Matrix
	err = errors.SafeExecute("PredictProba", func() error {
		var perr error
		probas, perr = clf.PredictProba(XTest)
		return perr
	})
	if err != nil {
		return sample, errors.Wrapf(err, "fold %d: predict_proba", fold)
	}

	scores := positiveScores(probas, clf.Classes())
	if scores.Len() != yTest.Len() {
		e.logger.Warn("Skipping AUC: score count does not match test labels",
			log.FoldKey, fold,
			log.TestSizeKey, yTest.Len(),
		)
		return sample, nil
	}

	roc, err := metrics.ROCCurve(yTest, scores)
	if err != nil {
		var valueErr *errors.ValueError
		if errors.As(err, &valueErr) {
			errors.Warn(errors.NewUndefinedMetricWarning("roc_auc", err.Error(), 0))
			return sample, nil
		}
		return sample, errors.Wrapf(err, "fold %d: roc", fold)
	}
	auc, err := metrics.AUC(roc.FPR, roc.TPR)
	if err != nil {
		return sample, errors.Wrapf(err, "fold %d: auc", fold)
	}
	sample.HasAUC = true
	sample.AUC = auc
	sample.ROC = roc
	return sample, nil
}

// fit builds a fresh predictor for name and trains it on the given rows, or
// on every row when indices is nil.
func (e *Evaluator) fit(name registry.Name, X, y mat.Matrix, indices []int) (model.Classifier, error) {
	clf, err := e.newPredictor(name)
	if err != nil {
		return nil, err
	}
	if e.standardize {
		clf = preprocessing.Standardize(clf)
	}
	if indices != nil {
		if len(indices) == 0 {
			return nil, errors.NewValueError("fit", "training set is empty")
		}
		X = model.SelectRows(X, indices)
		y = model.SelectRows(y, indices)
	}
	err = errors.SafeExecute("Fit", func() error {
		return clf.Fit(X, y)
	})
	if err != nil {
		return nil, err
	}
	return clf, nil
}

// positiveScores returns the probability column of the positive label, or
// zeros when the predictor never saw that label.
func positiveScores(probas mat.Matrix, classes []int) *mat.VecDense {
	rows, _ := probas.Dims()
	scores := mat.NewVecDense(rows, nil)
	for j, c := range classes {
		if c == metrics.PositiveLabel {
			for i := 0; i < rows; i++ {
				scores.SetVec(i, probas.At(i, j))
			}
			break
		}
	}
	return scores
}

func (e *Evaluator) logSample(s Sample) {
	fields := []any{
		log.FoldKey, s.Fold,
		log.TrainSizeKey, s.TrainSize,
		log.TestSizeKey, s.TestSize,
		log.PrecisionKey, s.Precision,
		log.RecallKey, s.Recall,
		log.F1Key, s.F1,
	}
	if e.binary {
		fields = append(fields, log.AccuracyKey, s.Accuracy)
	}
	if s.HasAUC {
		fields = append(fields, log.AUCKey, s.AUC)
	}
	e.logger.Info("Fold evaluated", fields...)
}

func (e *Evaluator) logSummary(s Summary, elapsed time.Duration) {
	fields := []any{
		log.OperationKey, log.OperationEvaluate,
		log.FoldsKey, s.Folds,
		log.PrecisionKey, s.Precision,
		log.RecallKey, s.Recall,
		log.F1Key, s.F1,
		log.DurationMsKey, elapsed.Milliseconds(),
	}
	if s.Binary {
		fields = append(fields, log.AccuracyKey, s.Accuracy)
		if s.ROCAvailable {
			fields = append(fields, log.AUCKey, s.AUC, log.AUCFoldsKey, s.AUCFolds)
		}
	}
	e.logger.Info("Averages", fields...)
}

// CrossValidate returns a lazy sequence with one fitted model per fold.
// Ranging over it re-splits the data. Every fold trains a fresh instance of
// the fixed svm configuration, whatever the Evaluator's classifier, on its
// training rows minus the unknown-labeled ones; test indices are returned
// unchanged. A split or fit error is yielded once and ends the sequence.
func (e *Evaluator) CrossValidate() iter.Seq2[FoldModel, error] {
	return func(yield func(FoldModel, error) bool) {
		folds, err := e.splitter.Split(e.X, e.y)
		if err != nil {
			yield(FoldModel{}, err)
			return
		}
		labels := model.Labels(e.y)

		for i, fold := range folds {
			train := make([]int, 0, len(fold.TrainIndices))
			for _, idx := range fold.TrainIndices {
				if labels[idx] >= 0 {
					train = append(train, idx)
				}
			}
			e.logger.Debug("Training fold model",
				log.OperationKey, log.OperationCrossValidate,
				log.FoldKey, i+1,
				log.TrainSizeKey, len(train),
				log.UnknownLabelsKey, len(fold.TrainIndices)-len(train),
			)

			clf, err := e.fit(crossValidateConfig, e.X, e.y, train)
			if err != nil {
				yield(FoldModel{}, errors.Wrapf(err, "fold %d", i+1))
				return
			}
			fm := FoldModel{
				Fold:         i + 1,
				Model:        clf,
				TrainIndices: train,
				TestIndices:  fold.TestIndices,
			}
			if !yield(fm, nil) {
				return
			}
		}
	}
}

// Train fits a fresh predictor of the active configuration. With both X and
// y nil it trains on the full dataset held by the Evaluator; passing only one
// of them is a ValueError.
func (e *Evaluator) Train(X, y mat.Matrix) (model.Classifier, error) {
	switch {
	case X == nil && y == nil:
		X, y = e.X, e.y
	case X == nil || y == nil:
		return nil, errors.NewValueError("Evaluator.Train", "X and y must both be given or both be nil")
	}
	n, _ := X.Dims()
	e.logger.Info("Training classifier",
		log.OperationKey, log.OperationTrain,
		log.SamplesKey, n,
	)
	return e.fit(e.classifier, X, y, nil)
}
