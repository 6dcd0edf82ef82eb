// Package svm implements a kernel support vector classifier trained by
// sequential minimal optimization.
package svm

import (
	"github.com/YuminosukeSato/cvscore/core/model"
	"github.com/YuminosukeSato/cvscore/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// binaryModel is one fitted two-class machine.
type binaryModel struct {
	sv   [][]float64
	coef []float64 // alpha_i * y_i of each support vector
	rho  float64

	probA, probB float64
}

func (m *binaryModel) decision(k kernelFunc, x []float64) float64 {
	f := -m.rho
	for s, sv := range m.sv {
		f += m.coef[s] * k(sv, x)
	}
	return f
}

// SVC is a C-support vector classifier. Two-class problems train a single
// machine; with more classes one machine per class is trained against the rest.
// With probability enabled, decision values are mapped to probabilities by a
// Platt sigmoid fit on the training decision values.
type SVC struct {
	state *model.StateManager

	kernel      string // "rbf" or "linear"
	C           float64
	gamma       string // "scale", "auto" or "value"
	gammaValue  float64
	classWeight string // "balanced" or ""
	probability bool
	tol         float64
	maxIter     int // <= 0 means no practical limit

	classes_   []int
	nFeatures_ int
	gamma_     float64
	models     []binaryModel
	kernelFn   kernelFunc
}

// Option configures an SVC.
type Option func(*SVC)

// WithKernel selects the kernel, "rbf" or "linear".
func WithKernel(kernel string) Option {
	return func(s *SVC) { s.kernel = kernel }
}

// WithC sets the penalty parameter of the error term.
func WithC(c float64) Option {
	return func(s *SVC) { s.C = c }
}

// WithGamma sets the rbf coefficient mode, "scale" or "auto".
func WithGamma(gamma string) Option {
	return func(s *SVC) { s.gamma = gamma }
}

// WithGammaValue fixes the rbf coefficient.
func WithGammaValue(gamma float64) Option {
	return func(s *SVC) {
		s.gamma = "value"
		s.gammaValue = gamma
	}
}

// WithClassWeight sets the class weighting; "balanced" scales C per class
// inversely to the class frequency.
func WithClassWeight(classWeight string) Option {
	return func(s *SVC) { s.classWeight = classWeight }
}

// WithProbability enables PredictProba.
func WithProbability(probability bool) Option {
	return func(s *SVC) { s.probability = probability }
}

// WithTol sets the stopping tolerance on the KKT violation.
func WithTol(tol float64) Option {
	return func(s *SVC) { s.tol = tol }
}

// WithMaxIter limits the number of SMO iterations per machine.
func WithMaxIter(maxIter int) Option {
	return func(s *SVC) { s.maxIter = maxIter }
}

// NewSVC creates an SVC with an rbf kernel, gamma="scale" and C=1.
func NewSVC(opts ...Option) *SVC {
	s := &SVC{
		state:   model.NewStateManager("SVC"),
		kernel:  "rbf",
		C:       1.0,
		gamma:   "scale",
		tol:     1e-3,
		maxIter: -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fit trains the classifier.
func (s *SVC) Fit(X, y mat.Matrix) error {
	s.state.Reset()
	nSamples, nFeatures, err := model.ValidateFitInput("SVC.Fit", X, y)
	if err != nil {
		return err
	}
	if err := s.validateParams(); err != nil {
		return err
	}

	labels := model.Labels(y)
	s.classes_ = model.UniqueLabels(labels)
	s.nFeatures_ = nFeatures
	if len(s.classes_) < 2 {
		return errors.NewValueError("SVC.Fit", "the number of classes has to be greater than one")
	}

	Xd := mat.DenseCopyOf(X)
	switch s.kernel {
	case "linear":
		s.kernelFn = linearKernel
	default:
		if s.gamma_, err = resolveGamma(s.gamma, s.gammaValue, Xd); err != nil {
			return err
		}
		s.kernelFn = rbfKernel(s.gamma_)
	}
	g := newGram(s.kernelFn, Xd)

	upper := make([]float64, nSamples)
	cw := map[int]float64{}
	if s.classWeight == "balanced" {
		cw = model.BalancedClassWeights(labels, s.classes_)
	}
	for i, l := range labels {
		upper[i] = s.C
		if w, ok := cw[l]; ok {
			upper[i] *= w
		}
	}

	maxIter := s.maxIter
	if maxIter <= 0 {
		maxIter = max(10_000_000, 100*nSamples)
	}

	positives := s.classes_
	if len(s.classes_) == 2 {
		positives = s.classes_[1:]
	}
	s.models = make([]binaryModel, len(positives))

	for m, positive := range positives {
		ySigned := make([]float64, nSamples)
		isPositive := make([]bool, nSamples)
		for i, l := range labels {
			ySigned[i] = -1
			if l == positive {
				ySigned[i] = 1
				isPositive[i] = true
			}
		}

		problem := &binaryProblem{g: g, y: ySigned, c: upper, tol: s.tol}
		res := problem.solve(maxIter)
		if err := errors.CheckNumericalStability("SVC.Fit", res.alpha, res.nIter); err != nil {
			return err
		}
		if err := errors.CheckScalar("SVC.Fit", res.rho, res.nIter); err != nil {
			return err
		}
		if !res.converged {
			errors.Warn(errors.NewConvergenceWarning("SVC", res.nIter,
				"solver terminated early; consider scaling the data or raising max_iter"))
		}

		bm := binaryModel{rho: res.rho}
		for i, a := range res.alpha {
			if a > 0 {
				bm.sv = append(bm.sv, append([]float64(nil), Xd.RawRowView(i)...))
				bm.coef = append(bm.coef, a*ySigned[i])
			}
		}

		if s.probability {
			dec := make([]float64, nSamples)
			for i := range dec {
				row := g.row(i)
				f := -res.rho
				for j, a := range res.alpha {
					if a > 0 {
						f += a * ySigned[j] * row[j]
					}
				}
				dec[i] = f
			}
			bm.probA, bm.probB = plattScaling(dec, isPositive)
		}
		s.models[m] = bm
	}

	s.state.SetFitted(nFeatures, nSamples)
	return nil
}

func (s *SVC) validateParams() error {
	switch {
	case s.kernel != "rbf" && s.kernel != "linear":
		return errors.NewValidationError("kernel", "must be 'rbf' or 'linear'", s.kernel)
	case s.C <= 0:
		return errors.NewValidationError("C", "must be positive", s.C)
	case s.tol <= 0:
		return errors.NewValidationError("tol", "must be positive", s.tol)
	case s.classWeight != "" && s.classWeight != "balanced":
		return errors.NewValidationError("class_weight", "must be 'balanced' or empty", s.classWeight)
	}
	return nil
}

// DecisionFunction returns the signed distance to the separating surface: one
// column for two classes (positive means Classes()[1]), otherwise one column
// per class.
func (s *SVC) DecisionFunction(X mat.Matrix) (mat.Matrix, error) {
	if err := s.state.RequireFitted("DecisionFunction", X); err != nil {
		return nil, err
	}
	return s.decisionFunction(X), nil
}

func (s *SVC) decisionFunction(X mat.Matrix) *mat.Dense {
	nSamples, _ := X.Dims()
	out := mat.NewDense(nSamples, len(s.models), nil)
	row := make([]float64, s.nFeatures_)
	for i := 0; i < nSamples; i++ {
		mat.Row(row, i, X)
		for m := range s.models {
			out.Set(i, m, s.models[m].decision(s.kernelFn, row))
		}
	}
	return out
}

// Predict returns the predicted class of each sample.
func (s *SVC) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := s.state.RequireFitted("Predict", X); err != nil {
		return nil, err
	}
	dec := s.decisionFunction(X)
	nSamples, _ := X.Dims()
	predictions := mat.NewDense(nSamples, 1, nil)
	for i := 0; i < nSamples; i++ {
		if len(s.models) == 1 {
			label := s.classes_[0]
			if dec.At(i, 0) > 0 {
				label = s.classes_[1]
			}
			predictions.Set(i, 0, float64(label))
			continue
		}
		predictions.Set(i, 0, float64(s.classes_[floats.MaxIdx(dec.RawRowView(i))]))
	}
	return predictions, nil
}

// PredictProba returns Platt-scaled class probabilities. It requires the
// classifier to be built with WithProbability(true).
func (s *SVC) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !s.probability {
		return nil, errors.NewValueError("SVC.PredictProba",
			"probability estimates must be enabled to use this method")
	}
	if err := s.state.RequireFitted("PredictProba", X); err != nil {
		return nil, err
	}

	dec := s.decisionFunction(X)
	nSamples, _ := X.Dims()
	probas := mat.NewDense(nSamples, len(s.classes_), nil)
	for i := 0; i < nSamples; i++ {
		if len(s.models) == 1 {
			m := s.models[0]
			p := sigmoidProba(dec.At(i, 0), m.probA, m.probB)
			probas.Set(i, 0, 1-p)
			probas.Set(i, 1, p)
			continue
		}
		row := probas.RawRowView(i)
		for c, m := range s.models {
			row[c] = sigmoidProba(dec.At(i, c), m.probA, m.probB)
		}
		if sum := floats.Sum(row); sum > 0 {
			floats.Scale(1/sum, row)
		} else {
			for c := range row {
				row[c] = 1 / float64(len(row))
			}
		}
	}
	return probas, nil
}

// Classes returns the class labels seen during Fit.
func (s *SVC) Classes() []int {
	return append([]int(nil), s.classes_...)
}

// NSupport returns the number of support vectors of each fitted machine.
func (s *SVC) NSupport() []int {
	out := make([]int, len(s.models))
	for i, m := range s.models {
		out[i] = len(m.sv)
	}
	return out
}

// GetParams returns the hyperparameters.
func (s *SVC) GetParams() map[string]interface{} {
	gamma := interface{}(s.gamma)
	if s.gamma == "value" {
		gamma = s.gammaValue
	}
	return map[string]interface{}{
		"kernel":       s.kernel,
		"C":            s.C,
		"gamma":        gamma,
		"class_weight": s.classWeight,
		"probability":  s.probability,
		"tol":          s.tol,
		"max_iter":     s.maxIter,
	}
}
