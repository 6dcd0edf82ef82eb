package evaluation

import (
	"math/rand/v2"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/cvscore/core/model"
	"github.com/YuminosukeSato/cvscore/model_selection"
	"github.com/YuminosukeSato/cvscore/pkg/errors"
	"github.com/YuminosukeSato/cvscore/pkg/log"
	"github.com/YuminosukeSato/cvscore/preprocessing"
	"github.com/YuminosukeSato/cvscore/registry"
)

func TestMain(m *testing.M) {
	errors.SetWarningHandler(func(error) {})
	os.Exit(m.Run())
}

// blobs returns perClass points per label around well separated centers.
func blobs(seed uint64, labels []int, perClass []int) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(seed, seed))
	n := 0
	for _, c := range perClass {
		n += c
	}
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	i := 0
	for k, label := range labels {
		cx, cy := 4*float64(k), 4*float64(k%2)
		for j := 0; j < perClass[k]; j++ {
			X.Set(i, 0, cx+rng.NormFloat64()*0.5)
			X.Set(i, 1, cy+rng.NormFloat64()*0.5)
			y.Set(i, 0, float64(label))
			i++
		}
	}
	return X, y
}

type recordingRenderer struct {
	calls      int
	curves     []FoldCurve
	showLegend bool
	err        error
}

func (r *recordingRenderer) Render(curves []FoldCurve, showLegend bool) error {
	r.calls++
	r.curves = curves
	r.showLegend = showLegend
	return r.err
}

func TestEvaluate_BinaryHundredPoints(t *testing.T) {
	X, y := blobs(1, []int{0, 1}, []int{50, 50})
	logger, _ := log.NewTestLogger(log.LevelInfo)
	renderer := &recordingRenderer{}

	ev, err := NewEvaluator(X, y, registry.LogisticRegression,
		WithFolds(10),
		WithRandomState(42),
		WithLogger(logger),
		WithRenderer(renderer),
	)
	require.NoError(t, err)

	summary, err := ev.Evaluate()
	require.NoError(t, err)

	assert.Equal(t, 10, summary.Folds)
	assert.True(t, summary.Binary)
	for name, v := range map[string]float64{
		"accuracy":  summary.Accuracy,
		"precision": summary.Precision,
		"recall":    summary.Recall,
		"f1":        summary.F1,
		"auc":       summary.AUC,
	} {
		assert.GreaterOrEqual(t, v, 0.0, name)
		assert.LessOrEqual(t, v, 1.0, name)
	}
	assert.GreaterOrEqual(t, summary.Accuracy, 0.9)

	assert.Equal(t, 10, summary.AUCFolds)
	assert.True(t, summary.ROCAvailable)
	require.Equal(t, 1, renderer.calls)
	assert.False(t, renderer.showLegend)
	require.Len(t, renderer.curves, 10)
	for i, c := range renderer.curves {
		assert.Equal(t, i+1, c.Fold)
		assert.True(t, strings.HasPrefix(c.Label, "ROC fold "), c.Label)
		assert.Equal(t, c.FPR[0], 0.0)
		assert.Equal(t, c.TPR[len(c.TPR)-1], 1.0)
	}

	folds := logger.EntriesWithMessage("Fold evaluated")
	require.Len(t, folds, 10)
	for _, entry := range folds {
		assert.Equal(t, 10.0, entry[log.TestSizeKey])
		assert.Equal(t, 90.0, entry[log.TrainSizeKey])
	}
	assert.True(t, logger.ContainsMessage("Averages"))
}

func TestEvaluate_FoldsHoldFivePerClass(t *testing.T) {
	X, y := blobs(2, []int{0, 1}, []int{50, 50})
	skf := model_selection.NewStratifiedKFold(10, true, 7)
	folds, err := skf.Split(X, y)
	require.NoError(t, err)

	ev, err := NewEvaluator(X, y, registry.LogisticRegression, WithSplitter(skf))
	require.NoError(t, err)
	assert.Equal(t, 10, ev.Folds())

	labels := model.Labels(y)
	for _, f := range folds {
		positives := 0
		for _, idx := range f.TestIndices {
			positives += labels[idx]
		}
		assert.Equal(t, 5, positives)
		assert.Len(t, f.TestIndices, 10)
	}
}

func TestEvaluate_Multiclass(t *testing.T) {
	X, y := blobs(3, []int{0, 1, 2}, []int{30, 30, 30})
	renderer := &recordingRenderer{}
	logger, _ := log.NewTestLogger(log.LevelInfo)

	ev, err := NewEvaluator(X, y, registry.LogisticRegression,
		WithFolds(5),
		WithRandomState(1),
		WithBinaryClass(false),
		WithLogger(logger),
		WithRenderer(renderer),
	)
	require.NoError(t, err)

	summary, err := ev.Evaluate()
	require.NoError(t, err)

	assert.False(t, summary.Binary)
	assert.Zero(t, summary.Accuracy)
	assert.Zero(t, summary.AUCFolds)
	assert.False(t, summary.ROCAvailable)
	assert.Zero(t, renderer.calls)
	assert.GreaterOrEqual(t, summary.F1, 0.8)
	assert.LessOrEqual(t, summary.F1, 1.0)

	for _, entry := range logger.EntriesWithMessage("Fold evaluated") {
		_, hasAccuracy := entry[log.AccuracyKey]
		assert.False(t, hasAccuracy)
	}
}

func TestEvaluate_InsufficientSamples(t *testing.T) {
	X, y := blobs(4, []int{0, 1}, []int{40, 3})
	logger, _ := log.NewTestLogger(log.LevelInfo)

	ev, err := NewEvaluator(X, y, registry.LogisticRegression, WithFolds(10), WithLogger(logger))
	require.NoError(t, err)

	_, err = ev.Evaluate()
	var insufficient *errors.InsufficientSamplesError
	require.True(t, errors.As(err, &insufficient), "got %v", err)
	assert.Equal(t, 1, insufficient.Class)
	assert.Equal(t, 3, insufficient.Count)
	assert.Equal(t, 10, insufficient.NSplits)
}

func TestEvaluate_RendererError(t *testing.T) {
	X, y := blobs(5, []int{0, 1}, []int{20, 20})
	renderer := &recordingRenderer{err: errors.New("disk full")}
	logger, _ := log.NewTestLogger(log.LevelInfo)

	ev, err := NewEvaluator(X, y, registry.LogisticRegression,
		WithFolds(4), WithRandomState(3), WithRenderer(renderer), WithLogger(logger))
	require.NoError(t, err)

	summary, err := ev.Evaluate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 4, summary.Folds)
}

func TestCrossValidate_ExcludesUnknownLabelsFromTraining(t *testing.T) {
	X, y := blobs(6, []int{0, 1}, []int{50, 50})
	// relabel every tenth sample as unknown
	unknown := map[int]bool{}
	for i := 0; i < 100; i += 10 {
		y.Set(i, 0, UnknownLabel)
		unknown[i] = true
	}
	logger, _ := log.NewTestLogger(log.LevelInfo)

	// the active classifier is ignored by CrossValidate
	ev, err := NewEvaluator(X, y, registry.LogisticRegression,
		WithFolds(10), WithRandomState(11), WithLogger(logger))
	require.NoError(t, err)

	seenUnknownInTest := 0
	count := 0
	for fm, err := range ev.CrossValidate() {
		require.NoError(t, err)
		count++
		assert.Equal(t, count, fm.Fold)
		assert.IsType(t, mustNew(t, registry.SVM), fm.Model)
		assert.Equal(t, []int{0, 1}, fm.Model.Classes())

		for _, idx := range fm.TrainIndices {
			assert.False(t, unknown[idx], "unknown sample %d used for training", idx)
		}
		for _, idx := range fm.TestIndices {
			if unknown[idx] {
				seenUnknownInTest++
			}
		}
	}
	assert.Equal(t, 10, count)
	assert.Equal(t, len(unknown), seenUnknownInTest)
}

func TestCrossValidate_StopsEarly(t *testing.T) {
	X, y := blobs(7, []int{0, 1}, []int{15, 15})
	logger, _ := log.NewTestLogger(log.LevelInfo)
	ev, err := NewEvaluator(X, y, registry.SVM, WithFolds(3), WithLogger(logger))
	require.NoError(t, err)

	count := 0
	for _, err := range ev.CrossValidate() {
		require.NoError(t, err)
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestCrossValidate_SplitError(t *testing.T) {
	X, y := blobs(8, []int{0, 1}, []int{20, 2})
	logger, _ := log.NewTestLogger(log.LevelInfo)
	ev, err := NewEvaluator(X, y, registry.SVM, WithFolds(5), WithLogger(logger))
	require.NoError(t, err)

	count := 0
	for fm, err := range ev.CrossValidate() {
		count++
		var insufficient *errors.InsufficientSamplesError
		assert.True(t, errors.As(err, &insufficient), "got %v", err)
		assert.Nil(t, fm.Model)
	}
	assert.Equal(t, 1, count)
}

func TestTrain_Idempotent(t *testing.T) {
	X, y := blobs(9, []int{0, 1}, []int{30, 30})
	holdout := mat.NewDense(4, 2, []float64{-1, 0, 0.5, 0.5, 2, 2, 5, 0})
	logger, _ := log.NewTestLogger(log.LevelInfo)

	ev, err := NewEvaluator(X, y, registry.LogisticRegression, WithLogger(logger))
	require.NoError(t, err)

	first, err := ev.Train(nil, nil)
	require.NoError(t, err)
	second, err := ev.Train(nil, nil)
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	p1, err := first.Predict(holdout)
	require.NoError(t, err)
	p2, err := second.Predict(holdout)
	require.NoError(t, err)
	assert.True(t, mat.Equal(p1, p2))

	pp1, _ := first.PredictProba(holdout)
	pp2, _ := second.PredictProba(holdout)
	assert.True(t, mat.Equal(pp1, pp2))
}

func TestTrain_Arguments(t *testing.T) {
	X, y := blobs(10, []int{0, 1}, []int{10, 10})
	logger, _ := log.NewTestLogger(log.LevelInfo)
	ev, err := NewEvaluator(X, y, registry.LogisticRegression, WithLogger(logger))
	require.NoError(t, err)

	var valueErr *errors.ValueError
	_, err = ev.Train(X, nil)
	assert.True(t, errors.As(err, &valueErr), "got %v", err)
	_, err = ev.Train(nil, y)
	assert.True(t, errors.As(err, &valueErr), "got %v", err)

	sub := model.SelectRows(X, []int{0, 1, 2, 10, 11, 12})
	subY := model.SelectRows(y, []int{0, 1, 2, 10, 11, 12})
	clf, err := ev.Train(sub, subY)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, clf.Classes())
}

func TestDNNUnavailable(t *testing.T) {
	X, y := blobs(11, []int{0, 1}, []int{20, 20})
	logger, _ := log.NewTestLogger(log.LevelInfo)
	ev, err := NewEvaluator(X, y, registry.DNN, WithLogger(logger))
	require.NoError(t, err)

	var unavailable *errors.ConfigUnavailableError
	clf, err := ev.Train(nil, nil)
	assert.Nil(t, clf)
	assert.True(t, errors.As(err, &unavailable), "got %v", err)

	_, err = ev.Evaluate()
	assert.True(t, errors.As(err, &unavailable), "got %v", err)
}

func TestNewEvaluator_Errors(t *testing.T) {
	X, y := blobs(12, []int{0, 1}, []int{10, 10})

	var unknown *errors.UnknownConfigError
	_, err := NewEvaluator(X, y, "xgboost")
	assert.True(t, errors.As(err, &unknown), "got %v", err)

	var dimErr *errors.DimensionError
	_, err = NewEvaluator(X, mat.NewDense(5, 1, nil), registry.SVM)
	assert.True(t, errors.As(err, &dimErr), "got %v", err)
	_, err = NewEvaluator(X, y, registry.SVM, WithItems([]string{"a"}))
	assert.True(t, errors.As(err, &dimErr), "got %v", err)
	_, err = NewEvaluator(X, y, registry.SVM, WithFeatureNames([]string{"a", "b", "c"}))
	assert.True(t, errors.As(err, &dimErr), "got %v", err)

	var valErr *errors.ValidationError
	_, err = NewEvaluator(X, y, registry.SVM, WithFolds(1))
	assert.True(t, errors.As(err, &valErr), "got %v", err)

	var valueErr *errors.ValueError
	_, err = NewEvaluator(nil, y, registry.SVM)
	assert.True(t, errors.As(err, &valueErr), "got %v", err)
}

func TestEvaluatorAccessors(t *testing.T) {
	X, y := blobs(13, []int{0, 1}, []int{3, 3})
	items := []string{"a", "b", "c", "d", "e", "f"}
	ev, err := NewEvaluator(X, y, registry.RandomForest,
		WithFolds(3),
		WithItems(items),
		WithFeatureNames([]string{"x", "y"}),
	)
	require.NoError(t, err)
	assert.Equal(t, registry.RandomForest, ev.Classifier())
	assert.Equal(t, 3, ev.Folds())
	assert.Equal(t, items, ev.Items())
	assert.Equal(t, []string{"x", "y"}, ev.FeatureNames())
}

func mustNew(t *testing.T, name registry.Name) model.Classifier {
	t.Helper()
	clf, err := registry.New(name)
	require.NoError(t, err)
	return clf
}

func TestEvaluate_Standardize(t *testing.T) {
	X, y := blobs(14, []int{0, 1}, []int{20, 20})
	// blow up one feature so unscaled distances are dominated by it
	for i := 0; i < 40; i++ {
		X.Set(i, 1, X.At(i, 1)*1000)
	}
	logger, _ := log.NewTestLogger(log.LevelInfo)

	ev, err := NewEvaluator(X, y, registry.SVM,
		WithFolds(4), WithRandomState(5), WithStandardize(true), WithLogger(logger))
	require.NoError(t, err)

	summary, err := ev.Evaluate()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, summary.Accuracy, 0.9)

	clf, err := ev.Train(nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &preprocessing.StandardizedClassifier{}, clf)
	assert.Equal(t, []int{0, 1}, clf.Classes())
}
