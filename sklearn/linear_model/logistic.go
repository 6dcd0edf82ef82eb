package linear_model

import (
	"math"

	"github.com/YuminosukeSato/cvscore/core/model"
	"github.com/YuminosukeSato/cvscore/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LogisticRegression implements logistic regression for classification.
// Binary problems fit a single weight vector; multiclass problems are fit
// one-vs-rest. Training is full-batch gradient descent from zero weights, so
// repeated fits on the same data give identical models.
type LogisticRegression struct {
	state *model.StateManager

	// Hyperparameters
	penalty      string  // "l2" or "none"
	C            float64 // inverse regularization strength
	fitIntercept bool
	classWeight  string // "balanced" or "" (uniform)
	maxIter      int
	tol          float64

	// Model parameters
	coef_      [][]float64 // 1 x n_features for binary, n_classes x n_features otherwise
	intercept_ []float64
	classes_   []int
	nClasses_  int
	nFeatures_ int
	nIter_     []int
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager("LogisticRegression"),
		penalty:      "l2",
		C:            1.0,
		fitIntercept: true,
		maxIter:      100,
		tol:          1e-4,
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// WithLRPenalty sets the regularization type
func WithLRPenalty(penalty string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.penalty = penalty
	}
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.C = c
	}
}

// WithLogisticFitIntercept sets whether to fit intercept
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.fitIntercept = fit
	}
}

// WithLRClassWeight sets the class weighting; "balanced" weights each class
// inversely to its frequency.
func WithLRClassWeight(classWeight string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.classWeight = classWeight
	}
}

// WithLRMaxIter sets the maximum number of iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.maxIter = maxIter
	}
}

// WithLRTol sets the tolerance for stopping criteria
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.tol = tol
	}
}

// Fit trains the logistic regression model
func (lr *LogisticRegression) Fit(X, y mat.Matrix) error {
	lr.state.Reset()
	nSamples, nFeatures, err := model.ValidateFitInput("LogisticRegression.Fit", X, y)
	if err != nil {
		return err
	}
	if err := lr.validateParams(); err != nil {
		return err
	}

	labels := model.Labels(y)
	lr.classes_ = model.UniqueLabels(labels)
	lr.nClasses_ = len(lr.classes_)
	lr.nFeatures_ = nFeatures
	if lr.nClasses_ < 2 {
		return errors.NewValueError("LogisticRegression.Fit",
			"needs samples of at least 2 classes in the data")
	}

	weights := make([]float64, nSamples)
	if lr.classWeight == "balanced" {
		cw := model.BalancedClassWeights(labels, lr.classes_)
		for i, l := range labels {
			weights[i] = cw[l]
		}
	} else {
		for i := range weights {
			weights[i] = 1
		}
	}

	Xd := mat.DenseCopyOf(X)
	nModels := lr.nClasses_
	if nModels == 2 {
		nModels = 1
	}
	lr.coef_ = make([][]float64, nModels)
	lr.intercept_ = make([]float64, nModels)
	lr.nIter_ = make([]int, nModels)

	target := make([]float64, nSamples)
	for k := 0; k < nModels; k++ {
		positive := lr.classes_[k]
		if nModels == 1 {
			positive = lr.classes_[1]
		}
		for i, l := range labels {
			target[i] = 0
			if l == positive {
				target[i] = 1
			}
		}
		var converged bool
		lr.coef_[k], lr.intercept_[k], lr.nIter_[k], converged = lr.gradientDescent(Xd, target, weights)
		if err := errors.CheckNumericalStability("LogisticRegression.Fit", lr.coef_[k], lr.nIter_[k]); err != nil {
			return err
		}
		if err := errors.CheckScalar("LogisticRegression.Fit", lr.intercept_[k], lr.nIter_[k]); err != nil {
			return err
		}
		if !converged {
			errors.Warn(errors.NewConvergenceWarning("LogisticRegression", lr.maxIter,
				"gradient descent reached max_iter; increase max_iter or scale the data"))
		}
	}

	lr.state.SetFitted(nFeatures, nSamples)
	return nil
}

func (lr *LogisticRegression) validateParams() error {
	switch {
	case lr.penalty != "l2" && lr.penalty != "none":
		return errors.NewValidationError("penalty", "must be 'l2' or 'none'", lr.penalty)
	case lr.C <= 0:
		return errors.NewValidationError("C", "must be positive", lr.C)
	case lr.maxIter <= 0:
		return errors.NewValidationError("max_iter", "must be positive", lr.maxIter)
	case lr.classWeight != "" && lr.classWeight != "balanced":
		return errors.NewValidationError("class_weight", "must be 'balanced' or empty", lr.classWeight)
	}
	return nil
}

// gradientDescent fits one binary problem with a decaying learning rate and
// returns the weights, the intercept and the number of iterations run. It stops
// early, reporting convergence, once the largest gradient component falls below tol.
func (lr *LogisticRegression) gradientDescent(X *mat.Dense, target, sampleWeight []float64) (coef []float64, intercept float64, nIter int, converged bool) {
	nSamples, nFeatures := X.Dims()
	coef = make([]float64, nFeatures)
	grad := make([]float64, nFeatures)

	lambda := 0.0
	if lr.penalty == "l2" {
		lambda = 1.0 / lr.C
	}
	// keeps the L2 shrinkage step below 1 for small C
	baseRate := 1.0 / (1.0 + lambda)

	for nIter < lr.maxIter {
		for j := range grad {
			grad[j] = 0
		}
		gradIntercept := 0.0

		for i := 0; i < nSamples; i++ {
			row := X.RawRowView(i)
			residual := sampleWeight[i] * (sigmoid(floats.Dot(row, coef)+intercept) - target[i])
			gradIntercept += residual
			floats.AddScaled(grad, residual, row)
		}
		floats.Scale(1/float64(nSamples), grad)
		gradIntercept /= float64(nSamples)
		if lambda > 0 {
			floats.AddScaled(grad, lambda, coef)
		}

		learningRate := baseRate / (1.0 + 0.1*float64(nIter))
		floats.AddScaled(coef, -learningRate, grad)
		if lr.fitIntercept {
			intercept -= learningRate * gradIntercept
		}
		nIter++

		maxGrad := math.Abs(gradIntercept)
		if len(grad) > 0 {
			maxGrad = math.Max(maxGrad, math.Max(floats.Max(grad), -floats.Min(grad)))
		}
		if maxGrad < lr.tol {
			return coef, intercept, nIter, true
		}
	}
	return coef, intercept, nIter, false
}

// decisionFunction returns the linear scores, one column per fitted model.
func (lr *LogisticRegression) decisionFunction(X mat.Matrix) *mat.Dense {
	nSamples, _ := X.Dims()
	nModels := len(lr.coef_)
	scores := mat.NewDense(nSamples, nModels, nil)
	row := make([]float64, lr.nFeatures_)
	for i := 0; i < nSamples; i++ {
		mat.Row(row, i, X)
		for k := 0; k < nModels; k++ {
			scores.Set(i, k, floats.Dot(row, lr.coef_[k])+lr.intercept_[k])
		}
	}
	return scores
}

// Predict makes predictions for input data
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.state.RequireFitted("Predict", X); err != nil {
		return nil, err
	}

	scores := lr.decisionFunction(X)
	nSamples, _ := X.Dims()
	predictions := mat.NewDense(nSamples, 1, nil)
	for i := 0; i < nSamples; i++ {
		if lr.nClasses_ == 2 {
			label := lr.classes_[0]
			if sigmoid(scores.At(i, 0)) >= 0.5 {
				label = lr.classes_[1]
			}
			predictions.Set(i, 0, float64(label))
			continue
		}
		predictions.Set(i, 0, float64(lr.classes_[floats.MaxIdx(scores.RawRowView(i))]))
	}
	return predictions, nil
}

// PredictProba returns probability estimates for each class. Multiclass
// probabilities are the softmax of the one-vs-rest scores.
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.state.RequireFitted("PredictProba", X); err != nil {
		return nil, err
	}

	scores := lr.decisionFunction(X)
	nSamples, _ := X.Dims()
	probas := mat.NewDense(nSamples, lr.nClasses_, nil)
	for i := 0; i < nSamples; i++ {
		if lr.nClasses_ == 2 {
			p := sigmoid(scores.At(i, 0))
			probas.Set(i, 0, 1-p)
			probas.Set(i, 1, p)
			continue
		}
		row := probas.RawRowView(i)
		copy(row, scores.RawRowView(i))
		softmax(row)
	}
	return probas, nil
}

// Classes returns the class labels seen during Fit.
func (lr *LogisticRegression) Classes() []int {
	return append([]int(nil), lr.classes_...)
}

// Score returns the mean accuracy on the given test data and labels
func (lr *LogisticRegression) Score(X, y mat.Matrix) float64 {
	predictions, err := lr.Predict(X)
	if err != nil {
		return 0.0
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

// GetParams returns the model hyperparameters
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.penalty,
		"C":             lr.C,
		"fit_intercept": lr.fitIntercept,
		"class_weight":  lr.classWeight,
		"max_iter":      lr.maxIter,
		"tol":           lr.tol,
	}
}

// SetParams sets the model hyperparameters
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var ok bool
		switch key {
		case "penalty":
			lr.penalty, ok = value.(string)
		case "C":
			lr.C, ok = value.(float64)
		case "fit_intercept":
			lr.fitIntercept, ok = value.(bool)
		case "class_weight":
			lr.classWeight, ok = value.(string)
		case "max_iter":
			lr.maxIter, ok = value.(int)
		case "tol":
			lr.tol, ok = value.(float64)
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, "wrong type", value)
		}
	}
	return nil
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

// softmax replaces x with its softmax in place.
func softmax(x []float64) {
	m := floats.Max(x)
	for i := range x {
		x[i] = math.Exp(x[i] - m)
	}
	floats.Scale(1/floats.Sum(x), x)
}
