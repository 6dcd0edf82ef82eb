package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/cvscore/core/model"
	"github.com/YuminosukeSato/cvscore/model_selection"
	"github.com/YuminosukeSato/cvscore/pkg/errors"
	"github.com/YuminosukeSato/cvscore/pkg/log"
	"github.com/YuminosukeSato/cvscore/registry"
)

// thresholdClassifier predicts label 1 when the first feature is at least 0.5
// and scores with the first feature clipped to [0, 1].
type thresholdClassifier struct {
	fitErr   error
	dropLast bool // PredictProba returns one row fewer than asked
}

func (c *thresholdClassifier) Fit(X, y mat.Matrix) error { return c.fitErr }

func (c *thresholdClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	n, _ := X.Dims()
	pred := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		if X.At(i, 0) >= 0.5 {
			pred.Set(i, 0, 1)
		}
	}
	return pred, nil
}

func (c *thresholdClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	n, _ := X.Dims()
	if c.dropLast {
		n--
	}
	probas := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		p := min(max(X.At(i, 0), 0), 1)
		probas.Set(i, 0, 1-p)
		probas.Set(i, 1, p)
	}
	return probas, nil
}

func (c *thresholdClassifier) Classes() []int { return []int{0, 1} }

// countingFactory hands out build(call) for the 1-based call number.
func countingFactory(build func(call int) *thresholdClassifier) func(registry.Name) (model.Classifier, error) {
	call := 0
	return func(registry.Name) (model.Classifier, error) {
		call++
		return build(call), nil
	}
}

// separable returns n rows alternating between labels 0 and 1 whose first
// feature equals the label plus a small row-dependent offset.
func separable(n int) (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(n, 1, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		label := float64(i % 2)
		X.Set(i, 0, label+float64(i)*0.001)
		y.Set(i, 0, label)
	}
	return X, y
}

type fixedSplitter []model_selection.Fold

func (s fixedSplitter) Split(X, y mat.Matrix) ([]model_selection.Fold, error) { return s, nil }
func (s fixedSplitter) GetNSplits() int                                         { return len(s) }

func TestEvaluate_ScoreCountMismatchSkipsAUC(t *testing.T) {
	X, y := separable(40)
	logger, _ := log.NewTestLogger(log.LevelInfo)
	renderer := &recordingRenderer{}

	ev, err := NewEvaluator(X, y, registry.SVM,
		WithFolds(4), WithRandomState(2), WithLogger(logger), WithRenderer(renderer))
	require.NoError(t, err)
	ev.newPredictor = countingFactory(func(call int) *thresholdClassifier {
		return &thresholdClassifier{dropLast: call == 2}
	})

	summary, err := ev.Evaluate()
	require.NoError(t, err)

	assert.InDelta(t, 1.0, summary.Accuracy, 1e-12)
	assert.Equal(t, 3, summary.AUCFolds)
	// three perfect folds over k=4
	assert.InDelta(t, 0.75, summary.AUC, 1e-12)
	assert.True(t, summary.ROCAvailable)
	require.Len(t, summary.Curves, 3)
	for _, c := range summary.Curves {
		assert.NotEqual(t, 2, c.Fold)
	}
	assert.Equal(t, 1, renderer.calls)

	skipped := logger.EntriesWithMessage("Skipping AUC: score count does not match test labels")
	require.Len(t, skipped, 1)
	assert.Equal(t, 2.0, skipped[0][log.FoldKey])
}

func TestEvaluate_FitFailureAbortsRun(t *testing.T) {
	X, y := separable(40)
	logger, _ := log.NewTestLogger(log.LevelInfo)
	renderer := &recordingRenderer{}
	diverged := errors.New("solver diverged")

	ev, err := NewEvaluator(X, y, registry.SVM,
		WithFolds(4), WithRandomState(2), WithLogger(logger), WithRenderer(renderer))
	require.NoError(t, err)
	ev.newPredictor = countingFactory(func(call int) *thresholdClassifier {
		if call == 3 {
			return &thresholdClassifier{fitErr: diverged}
		}
		return &thresholdClassifier{}
	})

	summary, err := ev.Evaluate()
	require.Error(t, err)
	assert.Equal(t, Summary{}, summary)
	assert.Contains(t, err.Error(), "fold 3")
	assert.True(t, errors.Is(err, diverged), "got %v", err)
	assert.Zero(t, renderer.calls)

	assert.Len(t, logger.EntriesWithMessage("Fold evaluated"), 2)
	assert.Empty(t, logger.EntriesWithMessage("Averages"))
}

func TestEvaluate_SingleClassTestFold(t *testing.T) {
	var rocWarnings []error
	errors.SetWarningHandler(func(w error) {
		var undefined *errors.UndefinedMetricWarning
		if errors.As(w, &undefined) && undefined.Metric == "roc_auc" {
			rocWarnings = append(rocWarnings, w)
		}
	})
	defer errors.SetWarningHandler(func(error) {})

	// rows 0-3 are label 0, rows 4-7 label 1
	X := mat.NewDense(8, 1, []float64{0, 0.1, 0.2, 0.3, 0.7, 0.8, 0.9, 1})
	y := mat.NewDense(8, 1, []float64{0, 0, 0, 0, 1, 1, 1, 1})
	splitter := fixedSplitter{
		{TrainIndices: []int{2, 3, 4, 5, 6, 7}, TestIndices: []int{0, 1}},
		{TrainIndices: []int{0, 1, 6, 7}, TestIndices: []int{2, 3, 4, 5}},
	}
	logger, _ := log.NewTestLogger(log.LevelInfo)

	ev, err := NewEvaluator(X, y, registry.SVM, WithSplitter(splitter), WithLogger(logger))
	require.NoError(t, err)
	require.Equal(t, 2, ev.Folds())
	ev.newPredictor = countingFactory(func(int) *thresholdClassifier { return &thresholdClassifier{} })

	summary, err := ev.Evaluate()
	require.NoError(t, err)

	assert.Len(t, rocWarnings, 1)
	assert.Equal(t, 1, summary.AUCFolds)
	require.Len(t, summary.Curves, 1)
	assert.Equal(t, 2, summary.Curves[0].Fold)
	assert.InDelta(t, 0.5, summary.AUC, 1e-12)
	assert.InDelta(t, 1.0, summary.Accuracy, 1e-12)
}
