package evaluation

import (
	"fmt"

	"github.com/YuminosukeSato/cvscore/metrics"
)

// FoldCurve is the ROC curve of one fold, ready for rendering.
type FoldCurve struct {
	Fold  int // 1-based
	FPR   []float64
	TPR   []float64
	AUC   float64
	Label string
}

func newFoldCurve(fold int, roc metrics.ROC, auc float64) FoldCurve {
	return FoldCurve{
		Fold:  fold,
		FPR:   roc.FPR,
		TPR:   roc.TPR,
		AUC:   auc,
		Label: fmt.Sprintf("ROC fold %d (area = %.2f)", fold, auc),
	}
}

// Sample holds the metrics of one fold. Accuracy is only set in binary mode;
// AUC and ROC only when the fold produced one score per test sample.
type Sample struct {
	Fold      int
	TrainSize int
	TestSize  int

	Accuracy  float64
	Precision float64
	Recall    float64
	F1        float64

	HasAUC bool
	AUC    float64
	ROC    metrics.ROC
}

// Summary is the result of a cross-validation run. Every average is the sum
// over folds divided by the configured fold count.
type Summary struct {
	Folds  int
	Binary bool

	Accuracy  float64
	Precision float64
	Recall    float64
	F1        float64
	AUC       float64

	// AUCFolds counts the folds that contributed an AUC value.
	AUCFolds int
	// ROCAvailable is set when the AUC sum is positive.
	ROCAvailable bool
	Curves       []FoldCurve
}

// Aggregator keeps running sums of fold metrics. Only the ROC curves of the
// individual folds are retained.
type Aggregator struct {
	nFolds int
	binary bool

	accuracySum  float64
	precisionSum float64
	recallSum    float64
	f1Sum        float64
	aucSum       float64
	aucFolds     int
	added        int

	curves []FoldCurve
}

// NewAggregator creates an Aggregator that divides by nFolds.
func NewAggregator(nFolds int, binary bool) *Aggregator {
	return &Aggregator{nFolds: nFolds, binary: binary}
}

// Add accumulates one fold.
func (a *Aggregator) Add(s Sample) {
	a.added++
	if a.binary {
		a.accuracySum += s.Accuracy
	}
	a.precisionSum += s.Precision
	a.recallSum += s.Recall
	a.f1Sum += s.F1
	if s.HasAUC {
		a.aucSum += s.AUC
		a.aucFolds++
		a.curves = append(a.curves, newFoldCurve(s.Fold, s.ROC, s.AUC))
	}
}

// Added returns the number of folds accumulated so far.
func (a *Aggregator) Added() int {
	return a.added
}

// Summary returns the averages.
func (a *Aggregator) Summary() Summary {
	k := float64(a.nFolds)
	s := Summary{
		Folds:     a.nFolds,
		Binary:    a.binary,
		Precision: a.precisionSum / k,
		Recall:    a.recallSum / k,
		F1:        a.f1Sum / k,
		AUCFolds:  a.aucFolds,
		Curves:    append([]FoldCurve(nil), a.curves...),
	}
	if a.binary {
		s.Accuracy = a.accuracySum / k
		s.AUC = a.aucSum / k
		s.ROCAvailable = a.aucSum > 0
	}
	return s
}
