// Package tree implements a CART decision tree classifier.
package tree

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/cvscore/core/model"
	"github.com/YuminosukeSato/cvscore/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const leafNode = -1

// node is one entry of the flattened tree. Internal nodes send samples with
// x[feature] <= threshold to left.
type node struct {
	feature   int
	threshold float64
	left      int
	right     int

	value     []float64 // class distribution, sums to 1
	impurity  float64
	nSamples  int
	weightedN float64
}

// DecisionTreeClassifier is a binary-split classification tree grown greedily
// by impurity decrease. Splits are evaluated on sample weights, so class
// weights and bootstrap counts are honored.
type DecisionTreeClassifier struct {
	state *model.StateManager

	// Hyperparameters
	criterion       string // "gini" or "entropy"
	maxDepth        int    // <= 0 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int    // features drawn per split, <= 0 means all
	classWeight     string // "balanced" or ""
	randomState     int64  // < 0 draws a fresh seed per Fit

	// Fitted tree
	nodes               []node
	classes_            []int
	nClasses_           int
	nFeatures_          int
	featureImportances_ []float64
	depth_              int

	rng *rand.Rand
}

// Option configures a DecisionTreeClassifier.
type Option func(*DecisionTreeClassifier)

// WithCriterion sets the impurity measure, "gini" or "entropy".
func WithCriterion(criterion string) Option {
	return func(dt *DecisionTreeClassifier) { dt.criterion = criterion }
}

// WithMaxDepth limits the depth of the tree. Zero or negative means unlimited.
func WithMaxDepth(depth int) Option {
	return func(dt *DecisionTreeClassifier) { dt.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum number of samples required to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum number of samples in each leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesLeaf = n }
}

// WithMaxFeatures sets the number of features considered at each split.
func WithMaxFeatures(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.maxFeatures = n }
}

// WithClassWeight sets the class weighting, "balanced" or "".
func WithClassWeight(classWeight string) Option {
	return func(dt *DecisionTreeClassifier) { dt.classWeight = classWeight }
}

// WithRandomState seeds the feature sampling.
func WithRandomState(seed int64) Option {
	return func(dt *DecisionTreeClassifier) { dt.randomState = seed }
}

// NewDecisionTreeClassifier creates a DecisionTreeClassifier.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		state:           model.NewStateManager("DecisionTreeClassifier"),
		criterion:       "gini",
		maxDepth:        -1,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		randomState:     -1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// Fit grows the tree on X and y.
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	return dt.FitWeighted(X, y, nil)
}

// FitWeighted grows the tree with per-sample weights. Samples with zero weight
// are left out of the tree but their labels still count towards Classes, so
// trees fit on different bootstrap draws of one dataset share class columns.
// A nil sampleWeight means uniform weights.
func (dt *DecisionTreeClassifier) FitWeighted(X, y mat.Matrix, sampleWeight []float64) error {
	dt.state.Reset()
	nSamples, nFeatures, err := model.ValidateFitInput("DecisionTreeClassifier.Fit", X, y)
	if err != nil {
		return err
	}
	if err := dt.validateParams(); err != nil {
		return err
	}
	if sampleWeight != nil && len(sampleWeight) != nSamples {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", nSamples, len(sampleWeight), 0)
	}

	labels := model.Labels(y)
	dt.classes_ = model.UniqueLabels(labels)
	dt.nClasses_ = len(dt.classes_)
	dt.nFeatures_ = nFeatures

	weights := make([]float64, nSamples)
	for i := range weights {
		weights[i] = 1
		if sampleWeight != nil {
			weights[i] = sampleWeight[i]
		}
	}
	if dt.classWeight == "balanced" {
		cw := model.BalancedClassWeights(labels, dt.classes_)
		for i, l := range labels {
			weights[i] *= cw[l]
		}
	}

	seed := uint64(dt.randomState)
	if dt.randomState < 0 {
		seed = rand.Uint64()
	}
	dt.rng = rand.New(rand.NewPCG(seed, seed))

	b := &builder{
		dt:          dt,
		columns:     columns(X),
		classIdx:    make([]int, nSamples),
		weights:     weights,
		importances: make([]float64, nFeatures),
	}
	index := model.ClassIndex(dt.classes_)
	samples := make([]int, 0, nSamples)
	for i, l := range labels {
		b.classIdx[i] = index[l]
		if weights[i] > 0 {
			samples = append(samples, i)
		}
	}
	if len(samples) == 0 {
		return errors.NewValueError("DecisionTreeClassifier.Fit", "all sample weights are zero")
	}

	dt.nodes = dt.nodes[:0]
	dt.depth_ = 0
	b.build(samples, 0)

	if total := floats.Sum(b.importances); total > 0 {
		floats.Scale(1/total, b.importances)
	}
	dt.featureImportances_ = b.importances

	dt.state.SetFitted(nFeatures, nSamples)
	return nil
}

func (dt *DecisionTreeClassifier) validateParams() error {
	switch {
	case dt.criterion != "gini" && dt.criterion != "entropy":
		return errors.NewValidationError("criterion", "must be 'gini' or 'entropy'", dt.criterion)
	case dt.minSamplesSplit < 2:
		return errors.NewValidationError("min_samples_split", "must be at least 2", dt.minSamplesSplit)
	case dt.minSamplesLeaf < 1:
		return errors.NewValidationError("min_samples_leaf", "must be at least 1", dt.minSamplesLeaf)
	case dt.classWeight != "" && dt.classWeight != "balanced":
		return errors.NewValidationError("class_weight", "must be 'balanced' or empty", dt.classWeight)
	}
	return nil
}

// columns copies X into feature-major order for split scanning.
func columns(X mat.Matrix) [][]float64 {
	rows, cols := X.Dims()
	out := make([][]float64, cols)
	for j := range out {
		out[j] = make([]float64, rows)
		mat.Col(out[j], j, X)
	}
	return out
}

type builder struct {
	dt          *DecisionTreeClassifier
	columns     [][]float64
	classIdx    []int
	weights     []float64
	importances []float64
}

type split struct {
	feature   int
	threshold float64
	pos       int // samples[:pos] go left after sorting by feature
	score     float64
}

// build grows the subtree for samples and returns its node index.
func (b *builder) build(samples []int, depth int) int {
	dt := b.dt
	counts := make([]float64, dt.nClasses_)
	for _, s := range samples {
		counts[b.classIdx[s]] += b.weights[s]
	}
	weightedN := floats.Sum(counts)

	id := len(dt.nodes)
	dt.nodes = append(dt.nodes, node{
		feature:   leafNode,
		left:      leafNode,
		right:     leafNode,
		impurity:  impurity(dt.criterion, counts, weightedN),
		nSamples:  len(samples),
		weightedN: weightedN,
	})
	if depth > dt.depth_ {
		dt.depth_ = depth
	}

	value := append([]float64(nil), counts...)
	floats.Scale(1/weightedN, value)
	dt.nodes[id].value = value

	n := len(samples)
	if (dt.maxDepth > 0 && depth >= dt.maxDepth) ||
		n < dt.minSamplesSplit || n < 2*dt.minSamplesLeaf ||
		dt.nodes[id].impurity <= 1e-12 {
		return id
	}

	best, ok := b.bestSplit(samples, counts, weightedN)
	if !ok {
		return id
	}

	col := b.columns[best.feature]
	sort.Slice(samples, func(i, j int) bool { return col[samples[i]] < col[samples[j]] })
	left := append([]int(nil), samples[:best.pos]...)
	right := append([]int(nil), samples[best.pos:]...)

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)

	nd := &dt.nodes[id]
	nd.feature = best.feature
	nd.threshold = best.threshold
	nd.left = l
	nd.right = r

	ln, rn := dt.nodes[l], dt.nodes[r]
	b.importances[best.feature] += nd.weightedN*nd.impurity -
		ln.weightedN*ln.impurity - rn.weightedN*rn.impurity
	return id
}

// bestSplit scans the candidate features and returns the split with the lowest
// weighted child impurity.
func (b *builder) bestSplit(samples []int, counts []float64, weightedN float64) (split, bool) {
	dt := b.dt
	features := dt.rng.Perm(dt.nFeatures_)
	if dt.maxFeatures > 0 && dt.maxFeatures < len(features) {
		features = features[:dt.maxFeatures]
	}

	best := split{score: math.Inf(1)}
	found := false
	order := append([]int(nil), samples...)
	leftCounts := make([]float64, dt.nClasses_)
	rightCounts := make([]float64, dt.nClasses_)
	n := len(order)

	for _, f := range features {
		col := b.columns[f]
		sort.Slice(order, func(i, j int) bool { return col[order[i]] < col[order[j]] })
		if col[order[0]] == col[order[n-1]] {
			continue
		}

		for k := range leftCounts {
			leftCounts[k] = 0
		}
		leftN := 0.0
		for pos := 1; pos < n; pos++ {
			s := order[pos-1]
			leftCounts[b.classIdx[s]] += b.weights[s]
			leftN += b.weights[s]

			if col[order[pos-1]] == col[order[pos]] {
				continue
			}
			if pos < dt.minSamplesLeaf || n-pos < dt.minSamplesLeaf {
				continue
			}

			for k := range rightCounts {
				rightCounts[k] = counts[k] - leftCounts[k]
			}
			rightN := weightedN - leftN
			score := leftN*impurity(dt.criterion, leftCounts, leftN) +
				rightN*impurity(dt.criterion, rightCounts, rightN)
			if score < best.score {
				best = split{
					feature:   f,
					threshold: (col[order[pos-1]] + col[order[pos]]) / 2,
					pos:       pos,
					score:     score,
				}
				found = true
			}
		}
	}
	return best, found
}

func impurity(criterion string, counts []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	switch criterion {
	case "entropy":
		h := 0.0
		for _, c := range counts {
			if c > 0 {
				p := c / total
				h -= p * math.Log2(p)
			}
		}
		return h
	default:
		g := 1.0
		for _, c := range counts {
			p := c / total
			g -= p * p
		}
		return g
	}
}

// leaf returns the leaf node reached by row.
func (dt *DecisionTreeClassifier) leaf(row []float64) *node {
	nd := &dt.nodes[0]
	for nd.feature != leafNode {
		if row[nd.feature] <= nd.threshold {
			nd = &dt.nodes[nd.left]
		} else {
			nd = &dt.nodes[nd.right]
		}
	}
	return nd
}

// PredictProba returns the class distribution of the leaf each sample falls in.
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.state.RequireFitted("PredictProba", X); err != nil {
		return nil, err
	}
	nSamples, _ := X.Dims()
	probas := mat.NewDense(nSamples, dt.nClasses_, nil)
	row := make([]float64, dt.nFeatures_)
	for i := 0; i < nSamples; i++ {
		mat.Row(row, i, X)
		probas.SetRow(i, dt.leaf(row).value)
	}
	return probas, nil
}

// Predict returns the most probable class of each sample.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.state.RequireFitted("Predict", X); err != nil {
		return nil, err
	}
	nSamples, _ := X.Dims()
	predictions := mat.NewDense(nSamples, 1, nil)
	row := make([]float64, dt.nFeatures_)
	for i := 0; i < nSamples; i++ {
		mat.Row(row, i, X)
		predictions.Set(i, 0, float64(dt.classes_[floats.MaxIdx(dt.leaf(row).value)]))
	}
	return predictions, nil
}

// Classes returns the class labels seen during Fit.
func (dt *DecisionTreeClassifier) Classes() []int {
	return append([]int(nil), dt.classes_...)
}

// Score returns the mean accuracy on the given data.
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	predictions, err := dt.Predict(X)
	if err != nil {
		return 0
	}
	nSamples, _ := X.Dims()
	correct := 0
	for i := 0; i < nSamples; i++ {
		if predictions.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(nSamples)
}

// GetFeatureImportances returns the normalized impurity decrease per feature.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	return append([]float64(nil), dt.featureImportances_...)
}

// GetDepth returns the depth of the fitted tree; a lone root has depth 0.
func (dt *DecisionTreeClassifier) GetDepth() int {
	return dt.depth_
}

// GetNLeaves returns the number of leaves.
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	n := 0
	for _, nd := range dt.nodes {
		if nd.feature == leafNode {
			n++
		}
	}
	return n
}

// GetParams returns the hyperparameters.
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         dt.criterion,
		"max_depth":         dt.maxDepth,
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
		"max_features":      dt.maxFeatures,
		"class_weight":      dt.classWeight,
		"random_state":      dt.randomState,
	}
}

// SetParams sets hyperparameters by name.
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var ok bool
		switch key {
		case "criterion":
			dt.criterion, ok = value.(string)
		case "max_depth":
			dt.maxDepth, ok = value.(int)
		case "min_samples_split":
			dt.minSamplesSplit, ok = value.(int)
		case "min_samples_leaf":
			dt.minSamplesLeaf, ok = value.(int)
		case "max_features":
			dt.maxFeatures, ok = value.(int)
		case "class_weight":
			dt.classWeight, ok = value.(string)
		case "random_state":
			dt.randomState, ok = value.(int64)
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, "wrong type", value)
		}
	}
	return nil
}
