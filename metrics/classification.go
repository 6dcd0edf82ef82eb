package metrics

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/cvscore/core/model"
	"github.com/YuminosukeSato/cvscore/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Average selects how precision, recall and F1 are combined across classes.
type Average int

const (
	// AverageBinary reports the score of the positive class (label 1) only.
	// Labels must be 0 or 1.
	AverageBinary Average = iota
	// AverageMacro computes the score per class and takes the unweighted mean.
	AverageMacro
)

// PositiveLabel is the label treated as positive by AverageBinary and ROC metrics.
const PositiveLabel = 1

func (a Average) String() string {
	switch a {
	case AverageBinary:
		return "binary"
	case AverageMacro:
		return "macro"
	default:
		return "unknown"
	}
}

// AccuracyScore returns the fraction of samples whose predicted label equals the true label.
func AccuracyScore(yTrue, yPred *mat.VecDense) (float64, error) {
	t, p, err := labelPair("AccuracyScore", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := range t {
		if t[i] == p[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(t)), nil
}

// PrecisionScore returns tp / (tp + fp).
func PrecisionScore(yTrue, yPred *mat.VecDense, average Average) (float64, error) {
	p, _, _, err := PrecisionRecallF1(yTrue, yPred, average)
	return p, err
}

// RecallScore returns tp / (tp + fn).
func RecallScore(yTrue, yPred *mat.VecDense, average Average) (float64, error) {
	_, r, _, err := PrecisionRecallF1(yTrue, yPred, average)
	return r, err
}

// F1Score returns the harmonic mean of precision and recall, 2tp / (2tp + fp + fn).
// With AverageMacro it is the mean of the per-class F1 scores.
func F1Score(yTrue, yPred *mat.VecDense, average Average) (float64, error) {
	_, _, f, err := PrecisionRecallF1(yTrue, yPred, average)
	return f, err
}

// PrecisionRecallF1 computes precision, recall and F1 in a single pass.
//
// Scores whose denominator is zero are set to 0 and an UndefinedMetricWarning is
// raised through errors.Warn.
func PrecisionRecallF1(yTrue, yPred *mat.VecDense, average Average) (precision, recall, f1 float64, err error) {
	t, p, err := labelPair("PrecisionRecallF1", yTrue, yPred)
	if err != nil {
		return 0, 0, 0, err
	}

	switch average {
	case AverageBinary:
		for _, l := range append(model.UniqueLabels(t), model.UniqueLabels(p)...) {
			if l != 0 && l != PositiveLabel {
				return 0, 0, 0, errors.NewValueError("PrecisionRecallF1",
					"target is multiclass but average is binary; labels must be 0 or 1")
			}
		}
		c := countClass(t, p, PositiveLabel)
		return c.precision(), c.recall(), c.f1(), nil

	case AverageMacro:
		labels := model.UniqueLabels(append(append([]int{}, t...), p...))
		ps := make([]float64, len(labels))
		rs := make([]float64, len(labels))
		fs := make([]float64, len(labels))
		for i, l := range labels {
			c := countClass(t, p, l)
			ps[i], rs[i], fs[i] = c.precision(), c.recall(), c.f1()
		}
		n := float64(len(labels))
		return floats.Sum(ps) / n, floats.Sum(rs) / n, floats.Sum(fs) / n, nil

	default:
		return 0, 0, 0, errors.NewValidationError("average", "must be binary or macro", int(average))
	}
}

type classCounts struct {
	tp, fp, fn int
}

func countClass(t, p []int, label int) classCounts {
	var c classCounts
	for i := range t {
		switch {
		case t[i] == label && p[i] == label:
			c.tp++
		case t[i] != label && p[i] == label:
			c.fp++
		case t[i] == label && p[i] != label:
			c.fn++
		}
	}
	return c
}

func (c classCounts) precision() float64 {
	if c.tp+c.fp == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("precision", "no predicted samples", 0))
		return 0
	}
	return float64(c.tp) / float64(c.tp+c.fp)
}

func (c classCounts) recall() float64 {
	if c.tp+c.fn == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("recall", "no true samples", 0))
		return 0
	}
	return float64(c.tp) / float64(c.tp+c.fn)
}

func (c classCounts) f1() float64 {
	den := 2*c.tp + c.fp + c.fn
	if den == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("f1", "no true nor predicted samples", 0))
		return 0
	}
	return 2 * float64(c.tp) / float64(den)
}

// ROC is a receiver operating characteristic curve. Points are ordered by
// decreasing threshold, starting at (0, 0) with an infinite threshold and
// ending at (1, 1).
type ROC struct {
	FPR        []float64
	TPR        []float64
	Thresholds []float64
}

// ROCCurve computes the ROC curve of yScore, the probability of PositiveLabel,
// against the binary labels yTrue. Every distinct score is used as a threshold.
//
// Both classes must be present in yTrue, otherwise one of the rates is undefined
// and a ValueError is returned.
func ROCCurve(yTrue, yScore *mat.VecDense) (ROC, error) {
	if yTrue == nil || yScore == nil || yTrue.Len() == 0 {
		return ROC{}, errors.NewValueError("ROCCurve", "empty vector")
	}
	n := yTrue.Len()
	if yScore.Len() != n {
		return ROC{}, errors.NewDimensionError("ROCCurve", n, yScore.Len(), 0)
	}

	scores := make([]float64, n)
	classes := make([]bool, n)
	var nPos int
	for i := 0; i < n; i++ {
		label := int(math.Round(yTrue.AtVec(i)))
		if label != 0 && label != PositiveLabel {
			return ROC{}, errors.NewValueError("ROCCurve", "labels must be 0 or 1")
		}
		classes[i] = label == PositiveLabel
		if classes[i] {
			nPos++
		}
		scores[i] = yScore.AtVec(i)
	}
	if nPos == 0 || nPos == n {
		return ROC{}, errors.NewValueError("ROCCurve", "only one class present in y_true; ROC curve is undefined")
	}

	stat.SortWeightedLabeled(scores, classes, nil)
	tpr, fpr, thresh := stat.ROC(nil, scores, classes, nil)
	if fpr[0] > fpr[len(fpr)-1] {
		floats.Reverse(fpr)
		floats.Reverse(tpr)
		floats.Reverse(thresh)
	}

	return ROC{FPR: fpr, TPR: tpr, Thresholds: thresh}, nil
}

// AUC computes the area under a curve with the trapezoidal rule. x must be
// monotonic, either increasing or decreasing.
func AUC(x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return 0, errors.NewDimensionError("AUC", len(x), len(y), 0)
	}
	if len(x) < 2 {
		return 0, errors.NewValueError("AUC", "at least 2 points are needed to compute area under curve")
	}

	if sort.Float64sAreSorted(x) {
		return integrate.Trapezoidal(x, y), nil
	}

	xr := append([]float64(nil), x...)
	yr := append([]float64(nil), y...)
	floats.Reverse(xr)
	floats.Reverse(yr)
	if !sort.Float64sAreSorted(xr) {
		return 0, errors.NewValueError("AUC", "x is neither increasing nor decreasing")
	}
	return integrate.Trapezoidal(xr, yr), nil
}

// ROCAUCScore returns the area under the ROC curve of yScore against yTrue.
func ROCAUCScore(yTrue, yScore *mat.VecDense) (float64, error) {
	roc, err := ROCCurve(yTrue, yScore)
	if err != nil {
		return 0, err
	}
	return AUC(roc.FPR, roc.TPR)
}

// labelPair validates a pair of label vectors and converts them to ints.
func labelPair(op string, yTrue, yPred *mat.VecDense) ([]int, []int, error) {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 {
		return nil, nil, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != yTrue.Len() {
		return nil, nil, errors.NewDimensionError(op, yTrue.Len(), yPred.Len(), 0)
	}
	t := make([]int, yTrue.Len())
	p := make([]int, yPred.Len())
	for i := range t {
		t[i] = int(math.Round(yTrue.AtVec(i)))
		p[i] = int(math.Round(yPred.AtVec(i)))
	}
	return t, p, nil
}
