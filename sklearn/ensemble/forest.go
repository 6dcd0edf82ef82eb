// Package ensemble implements a random forest classifier.
package ensemble

import (
	"math"
	"math/rand/v2"

	"github.com/YuminosukeSato/cvscore/core/model"
	"github.com/YuminosukeSato/cvscore/core/parallel"
	"github.com/YuminosukeSato/cvscore/pkg/errors"
	"github.com/YuminosukeSato/cvscore/sklearn/tree"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// RandomForestClassifier averages the class probabilities of decision trees
// grown on bootstrap samples with a random subset of features per split.
// Trees are built concurrently; Fit returns once every tree is done.
type RandomForestClassifier struct {
	state *model.StateManager

	nEstimators     int
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     string // "sqrt", "log2" or "all"
	bootstrap       bool
	classWeight     string
	nJobs           int
	randomState     int64

	estimators_ []*tree.DecisionTreeClassifier
	classes_    []int
	nFeatures_  int
}

// Option configures a RandomForestClassifier.
type Option func(*RandomForestClassifier)

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nEstimators = n }
}

// WithMaxDepth limits the depth of every tree. Zero or negative means unlimited.
func WithMaxDepth(depth int) Option {
	return func(rf *RandomForestClassifier) { rf.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum number of samples required to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum number of samples in each leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesLeaf = n }
}

// WithMaxFeatures sets how many features each split considers: "sqrt", "log2" or "all".
func WithMaxFeatures(maxFeatures string) Option {
	return func(rf *RandomForestClassifier) { rf.maxFeatures = maxFeatures }
}

// WithBootstrap toggles bootstrap sampling. Without it every tree sees all samples.
func WithBootstrap(bootstrap bool) Option {
	return func(rf *RandomForestClassifier) { rf.bootstrap = bootstrap }
}

// WithClassWeight sets the class weighting, "balanced" or "".
func WithClassWeight(classWeight string) Option {
	return func(rf *RandomForestClassifier) { rf.classWeight = classWeight }
}

// WithNJobs sets the number of trees built concurrently; -1 uses all CPUs.
func WithNJobs(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nJobs = n }
}

// WithRandomState seeds bootstrap sampling and feature selection.
func WithRandomState(seed int64) Option {
	return func(rf *RandomForestClassifier) { rf.randomState = seed }
}

// NewRandomForestClassifier creates a RandomForestClassifier.
func NewRandomForestClassifier(opts ...Option) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		state:           model.NewStateManager("RandomForestClassifier"),
		nEstimators:     100,
		maxDepth:        -1,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     "sqrt",
		bootstrap:       true,
		nJobs:           1,
		randomState:     -1,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// Fit grows the forest.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	rf.state.Reset()
	nSamples, nFeatures, err := model.ValidateFitInput("RandomForestClassifier.Fit", X, y)
	if err != nil {
		return err
	}
	if rf.nEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be at least 1", rf.nEstimators)
	}
	if rf.classWeight != "" && rf.classWeight != "balanced" {
		return errors.NewValidationError("class_weight", "must be 'balanced' or empty", rf.classWeight)
	}
	maxFeatures, err := resolveMaxFeatures(rf.maxFeatures, nFeatures)
	if err != nil {
		return err
	}

	labels := model.Labels(y)
	rf.classes_ = model.UniqueLabels(labels)
	rf.nFeatures_ = nFeatures

	classWeight := make([]float64, nSamples)
	for i := range classWeight {
		classWeight[i] = 1
	}
	if rf.classWeight == "balanced" {
		cw := model.BalancedClassWeights(labels, rf.classes_)
		for i, l := range labels {
			classWeight[i] = cw[l]
		}
	}

	// seeds are drawn up front so the result does not depend on scheduling
	seed := uint64(rf.randomState)
	if rf.randomState < 0 {
		seed = rand.Uint64()
	}
	master := rand.New(rand.NewPCG(seed, seed))
	seeds := make([]uint64, rf.nEstimators)
	for i := range seeds {
		seeds[i] = master.Uint64()
	}

	Xd := mat.DenseCopyOf(X)
	estimators := make([]*tree.DecisionTreeClassifier, rf.nEstimators)
	errs := make([]error, rf.nEstimators)

	parallel.ParallelizeN(rf.nEstimators, rf.nJobs, func(start, end int) {
		for t := start; t < end; t++ {
			r := rand.New(rand.NewPCG(seeds[t], seeds[t]))
			weights := make([]float64, nSamples)
			if rf.bootstrap {
				for i := 0; i < nSamples; i++ {
					weights[r.IntN(nSamples)]++
				}
			} else {
				for i := range weights {
					weights[i] = 1
				}
			}
			for i := range weights {
				weights[i] *= classWeight[i]
			}

			est := tree.NewDecisionTreeClassifier(
				tree.WithMaxDepth(rf.maxDepth),
				tree.WithMinSamplesSplit(rf.minSamplesSplit),
				tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
				tree.WithMaxFeatures(maxFeatures),
				tree.WithRandomState(int64(r.Uint64()>>1)),
			)
			errs[t] = est.FitWeighted(Xd, y, weights)
			estimators[t] = est
		}
	})

	for t, err := range errs {
		if err != nil {
			return errors.Wrapf(err, "fit tree %d", t)
		}
	}

	rf.estimators_ = estimators
	rf.state.SetFitted(nFeatures, nSamples)
	return nil
}

func resolveMaxFeatures(maxFeatures string, nFeatures int) (int, error) {
	var n int
	switch maxFeatures {
	case "sqrt":
		n = int(math.Sqrt(float64(nFeatures)))
	case "log2":
		n = int(math.Log2(float64(nFeatures)))
	case "all", "":
		n = nFeatures
	default:
		return 0, errors.NewValidationError("max_features", "must be 'sqrt', 'log2' or 'all'", maxFeatures)
	}
	return max(1, n), nil
}

// PredictProba returns the mean class probabilities of the trees.
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.state.RequireFitted("PredictProba", X); err != nil {
		return nil, err
	}
	nSamples, _ := X.Dims()
	sum := mat.NewDense(nSamples, len(rf.classes_), nil)
	for _, est := range rf.estimators_ {
		p, err := est.PredictProba(X)
		if err != nil {
			return nil, err
		}
		sum.Add(sum, p)
	}
	sum.Scale(1/float64(len(rf.estimators_)), sum)
	return sum, nil
}

// Predict returns the class with the highest mean probability.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	probas, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	p := probas.(*mat.Dense)
	nSamples, _ := p.Dims()
	predictions := mat.NewDense(nSamples, 1, nil)
	for i := 0; i < nSamples; i++ {
		predictions.Set(i, 0, float64(rf.classes_[floats.MaxIdx(p.RawRowView(i))]))
	}
	return predictions, nil
}

// Classes returns the class labels seen during Fit.
func (rf *RandomForestClassifier) Classes() []int {
	return append([]int(nil), rf.classes_...)
}

// FeatureImportances returns the mean impurity-based importance over all trees.
func (rf *RandomForestClassifier) FeatureImportances() []float64 {
	out := make([]float64, rf.nFeatures_)
	if len(rf.estimators_) == 0 {
		return out
	}
	for _, est := range rf.estimators_ {
		floats.Add(out, est.GetFeatureImportances())
	}
	floats.Scale(1/float64(len(rf.estimators_)), out)
	return out
}

// GetParams returns the hyperparameters.
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      rf.nEstimators,
		"max_depth":         rf.maxDepth,
		"min_samples_split": rf.minSamplesSplit,
		"min_samples_leaf":  rf.minSamplesLeaf,
		"max_features":      rf.maxFeatures,
		"bootstrap":         rf.bootstrap,
		"class_weight":      rf.classWeight,
		"n_jobs":            rf.nJobs,
		"random_state":      rf.randomState,
	}
}
