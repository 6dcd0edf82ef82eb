// Package neural_network implements a multi-layer perceptron classifier.
package neural_network

import (
	"math"
	"math/rand/v2"

	"github.com/YuminosukeSato/cvscore/core/model"
	"github.com/YuminosukeSato/cvscore/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// MLPClassifier is a feed-forward network with one hidden layer trained with
// Adam on mini-batches to minimize log-loss plus an L2 penalty. Two-class
// problems use a single logistic output unit, otherwise a softmax layer.
type MLPClassifier struct {
	state *model.StateManager

	hiddenLayerSize  int
	activation       string // "relu", "tanh" or "logistic"
	alpha            float64
	batchSize        int // <= 0 means min(200, n_samples)
	learningRateInit float64
	maxIter          int
	tol              float64
	nIterNoChange    int
	shuffle          bool
	randomState      int64

	// Fitted parameters
	w1, w2     *mat.Dense // input->hidden, hidden->output
	b1, b2     []float64
	classes_   []int
	nFeatures_ int
	nIter_     int
	lossCurve_ []float64
}

// Option configures an MLPClassifier.
type Option func(*MLPClassifier)

// WithHiddenLayerSize sets the number of hidden units.
func WithHiddenLayerSize(n int) Option {
	return func(m *MLPClassifier) { m.hiddenLayerSize = n }
}

// WithActivation sets the hidden activation: "relu", "tanh" or "logistic".
func WithActivation(activation string) Option {
	return func(m *MLPClassifier) { m.activation = activation }
}

// WithAlpha sets the L2 penalty.
func WithAlpha(alpha float64) Option {
	return func(m *MLPClassifier) { m.alpha = alpha }
}

// WithBatchSize sets the mini-batch size.
func WithBatchSize(n int) Option {
	return func(m *MLPClassifier) { m.batchSize = n }
}

// WithLearningRateInit sets the Adam step size.
func WithLearningRateInit(lr float64) Option {
	return func(m *MLPClassifier) { m.learningRateInit = lr }
}

// WithMaxIter sets the maximum number of epochs.
func WithMaxIter(n int) Option {
	return func(m *MLPClassifier) { m.maxIter = n }
}

// WithTol sets the minimum loss improvement that resets the no-change counter.
func WithTol(tol float64) Option {
	return func(m *MLPClassifier) { m.tol = tol }
}

// WithNIterNoChange sets how many epochs without improvement stop training.
func WithNIterNoChange(n int) Option {
	return func(m *MLPClassifier) { m.nIterNoChange = n }
}

// WithShuffle toggles shuffling the samples every epoch.
func WithShuffle(shuffle bool) Option {
	return func(m *MLPClassifier) { m.shuffle = shuffle }
}

// WithRandomState seeds weight initialization and shuffling.
func WithRandomState(seed int64) Option {
	return func(m *MLPClassifier) { m.randomState = seed }
}

// NewMLPClassifier creates an MLPClassifier with 100 relu hidden units.
func NewMLPClassifier(opts ...Option) *MLPClassifier {
	m := &MLPClassifier{
		state:            model.NewStateManager("MLPClassifier"),
		hiddenLayerSize:  100,
		activation:       "relu",
		alpha:            1e-4,
		learningRateInit: 1e-3,
		maxIter:          200,
		tol:              1e-4,
		nIterNoChange:    10,
		shuffle:          true,
		randomState:      -1,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MLPClassifier) validateParams() error {
	switch {
	case m.hiddenLayerSize < 1:
		return errors.NewValidationError("hidden_layer_sizes", "must be at least 1", m.hiddenLayerSize)
	case m.activation != "relu" && m.activation != "tanh" && m.activation != "logistic":
		return errors.NewValidationError("activation", "must be 'relu', 'tanh' or 'logistic'", m.activation)
	case m.alpha < 0:
		return errors.NewValidationError("alpha", "must be non-negative", m.alpha)
	case m.learningRateInit <= 0:
		return errors.NewValidationError("learning_rate_init", "must be positive", m.learningRateInit)
	case m.maxIter < 1:
		return errors.NewValidationError("max_iter", "must be at least 1", m.maxIter)
	}
	return nil
}

// Fit trains the network.
func (m *MLPClassifier) Fit(X, y mat.Matrix) error {
	m.state.Reset()
	nSamples, nFeatures, err := model.ValidateFitInput("MLPClassifier.Fit", X, y)
	if err != nil {
		return err
	}
	if err := m.validateParams(); err != nil {
		return err
	}

	labels := model.Labels(y)
	m.classes_ = model.UniqueLabels(labels)
	m.nFeatures_ = nFeatures
	if len(m.classes_) < 2 {
		return errors.NewValueError("MLPClassifier.Fit", "needs samples of at least 2 classes in the data")
	}

	nOutputs := len(m.classes_)
	if nOutputs == 2 {
		nOutputs = 1
	}
	target := mat.NewDense(nSamples, nOutputs, nil)
	index := model.ClassIndex(m.classes_)
	for i, l := range labels {
		if nOutputs == 1 {
			target.Set(i, 0, float64(index[l]))
		} else {
			target.Set(i, index[l], 1)
		}
	}

	seed := uint64(m.randomState)
	if m.randomState < 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed))
	m.initialize(rng, nFeatures, nOutputs)

	batchSize := m.batchSize
	if batchSize <= 0 {
		batchSize = min(200, nSamples)
	}
	batchSize = min(batchSize, nSamples)

	Xd := mat.DenseCopyOf(X)
	opt := newAdam(m.learningRateInit, m.w1.RawMatrix().Data, m.b1, m.w2.RawMatrix().Data, m.b2)
	order := make([]int, nSamples)
	for i := range order {
		order[i] = i
	}

	bestLoss := math.Inf(1)
	noImprovement := 0
	m.lossCurve_ = m.lossCurve_[:0]
	converged := false

	for m.nIter_ = 0; m.nIter_ < m.maxIter; {
		if m.shuffle {
			rng.Shuffle(nSamples, func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		epochLoss := 0.0
		for start := 0; start < nSamples; start += batchSize {
			end := min(start+batchSize, nSamples)
			xb := model.SelectRows(Xd, order[start:end])
			yb := model.SelectRows(target, order[start:end])
			loss := m.step(opt, xb, yb)
			epochLoss += loss * float64(end-start)
		}
		epochLoss /= float64(nSamples)
		m.lossCurve_ = append(m.lossCurve_, epochLoss)
		m.nIter_++

		if err := errors.CheckScalar("MLPClassifier.Fit", epochLoss, m.nIter_); err != nil {
			return err
		}

		if epochLoss > bestLoss-m.tol {
			noImprovement++
		} else {
			noImprovement = 0
		}
		if epochLoss < bestLoss {
			bestLoss = epochLoss
		}
		if noImprovement >= m.nIterNoChange {
			converged = true
			break
		}
	}

	if !converged {
		errors.Warn(errors.NewConvergenceWarning("MLPClassifier", m.maxIter,
			"stochastic optimizer reached max_iter and the optimization hasn't converged yet"))
	}

	m.state.SetFitted(nFeatures, nSamples)
	return nil
}

// initialize draws Glorot-uniform weights and biases.
func (m *MLPClassifier) initialize(rng *rand.Rand, nFeatures, nOutputs int) {
	glorot := func(fanIn, fanOut int, factor float64) *mat.Dense {
		bound := math.Sqrt(factor / float64(fanIn+fanOut))
		w := mat.NewDense(fanIn, fanOut, nil)
		raw := w.RawMatrix().Data
		for i := range raw {
			raw[i] = (2*rng.Float64() - 1) * bound
		}
		return w
	}
	bias := func(n, fanIn, fanOut int, factor float64) []float64 {
		bound := math.Sqrt(factor / float64(fanIn+fanOut))
		b := make([]float64, n)
		for i := range b {
			b[i] = (2*rng.Float64() - 1) * bound
		}
		return b
	}

	hiddenFactor := 6.0
	if m.activation == "logistic" {
		hiddenFactor = 2.0
	}
	m.w1 = glorot(nFeatures, m.hiddenLayerSize, hiddenFactor)
	m.b1 = bias(m.hiddenLayerSize, nFeatures, m.hiddenLayerSize, hiddenFactor)
	// logistic and softmax outputs both use the smaller bound
	m.w2 = glorot(m.hiddenLayerSize, nOutputs, 2.0)
	m.b2 = bias(nOutputs, m.hiddenLayerSize, nOutputs, 2.0)
}

// forward returns the hidden activations and the output probabilities.
func (m *MLPClassifier) forward(X mat.Matrix) (hidden, out *mat.Dense) {
	n, _ := X.Dims()
	hidden = mat.NewDense(n, m.hiddenLayerSize, nil)
	hidden.Mul(X, m.w1)
	for i := 0; i < n; i++ {
		row := hidden.RawRowView(i)
		floats.Add(row, m.b1)
		m.activate(row)
	}

	_, nOutputs := m.w2.Dims()
	out = mat.NewDense(n, nOutputs, nil)
	out.Mul(hidden, m.w2)
	for i := 0; i < n; i++ {
		row := out.RawRowView(i)
		floats.Add(row, m.b2)
		if nOutputs == 1 {
			row[0] = logistic(row[0])
		} else {
			softmax(row)
		}
	}
	return hidden, out
}

// step runs one Adam update on a mini-batch and returns the batch loss.
func (m *MLPClassifier) step(opt *adam, X, Y *mat.Dense) float64 {
	n, _ := X.Dims()
	hidden, out := m.forward(X)

	loss := logLoss(Y, out)
	loss += 0.5 * m.alpha * (squaredNorm(m.w1) + squaredNorm(m.w2)) / float64(n)

	// output delta: P - Y for both logistic and softmax with log-loss
	delta := mat.NewDense(n, out.RawMatrix().Cols, nil)
	delta.Sub(out, Y)

	gw2 := mat.NewDense(m.hiddenLayerSize, out.RawMatrix().Cols, nil)
	gw2.Mul(hidden.T(), delta)
	gw2.Scale(1/float64(n), gw2)
	gw2.Add(gw2, scaled(m.alpha/float64(n), m.w2))
	gb2 := colMeans(delta)

	dHidden := mat.NewDense(n, m.hiddenLayerSize, nil)
	dHidden.Mul(delta, m.w2.T())
	for i := 0; i < n; i++ {
		m.activationDerivative(dHidden.RawRowView(i), hidden.RawRowView(i))
	}

	gw1 := mat.NewDense(m.nFeatures_, m.hiddenLayerSize, nil)
	gw1.Mul(X.T(), dHidden)
	gw1.Scale(1/float64(n), gw1)
	gw1.Add(gw1, scaled(m.alpha/float64(n), m.w1))
	gb1 := colMeans(dHidden)

	opt.update(
		[][]float64{m.w1.RawMatrix().Data, m.b1, m.w2.RawMatrix().Data, m.b2},
		[][]float64{gw1.RawMatrix().Data, gb1, gw2.RawMatrix().Data, gb2},
	)
	return loss
}

func (m *MLPClassifier) activate(row []float64) {
	for j, v := range row {
		switch m.activation {
		case "tanh":
			row[j] = math.Tanh(v)
		case "logistic":
			row[j] = logistic(v)
		default:
			row[j] = math.Max(0, v)
		}
	}
}

// activationDerivative multiplies grad in place by the derivative of the
// activation, expressed through the activated values.
func (m *MLPClassifier) activationDerivative(grad, activated []float64) {
	for j, a := range activated {
		switch m.activation {
		case "tanh":
			grad[j] *= 1 - a*a
		case "logistic":
			grad[j] *= a * (1 - a)
		default:
			if a <= 0 {
				grad[j] = 0
			}
		}
	}
}

// PredictProba returns the class probabilities.
func (m *MLPClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := m.state.RequireFitted("PredictProba", X); err != nil {
		return nil, err
	}
	_, out := m.forward(X)
	if len(m.classes_) > 2 {
		return out, nil
	}
	n, _ := out.Dims()
	probas := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		p := out.At(i, 0)
		probas.Set(i, 0, 1-p)
		probas.Set(i, 1, p)
	}
	return probas, nil
}

// Predict returns the most probable class of each sample.
func (m *MLPClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	probas, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	p := probas.(*mat.Dense)
	n, _ := p.Dims()
	predictions := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		predictions.Set(i, 0, float64(m.classes_[floats.MaxIdx(p.RawRowView(i))]))
	}
	return predictions, nil
}

// Classes returns the class labels seen during Fit.
func (m *MLPClassifier) Classes() []int {
	return append([]int(nil), m.classes_...)
}

// NIter returns the number of epochs run by the last Fit.
func (m *MLPClassifier) NIter() int {
	return m.nIter_
}

// LossCurve returns the mean training loss of each epoch.
func (m *MLPClassifier) LossCurve() []float64 {
	return append([]float64(nil), m.lossCurve_...)
}

// GetParams returns the hyperparameters.
func (m *MLPClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"hidden_layer_sizes": []int{m.hiddenLayerSize},
		"activation":         m.activation,
		"solver":             "adam",
		"alpha":              m.alpha,
		"batch_size":         m.batchSize,
		"learning_rate_init": m.learningRateInit,
		"max_iter":           m.maxIter,
		"tol":                m.tol,
		"n_iter_no_change":   m.nIterNoChange,
		"shuffle":            m.shuffle,
		"random_state":       m.randomState,
	}
}
