// Package preprocessing provides feature scaling applied inside each
// cross-validation fold.
package preprocessing

import (
	"fmt"

	"github.com/YuminosukeSato/cvscore/core/model"
	"github.com/YuminosukeSato/cvscore/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// minScale replaces the standard deviation of constant features.
const minScale = 1e-8

// StandardScaler standardizes features to zero mean and unit variance using
// the population standard deviation of the fitted data.
type StandardScaler struct {
	state *model.StateManager

	WithMean bool
	WithStd  bool

	// Mean and Scale hold the per-feature statistics after Fit.
	Mean  []float64
	Scale []float64
}

// NewStandardScaler creates a StandardScaler.
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{
		state:    model.NewStateManager("StandardScaler"),
		WithMean: withMean,
		WithStd:  withStd,
	}
}

// Fit computes the mean and standard deviation of every column of X.
func (s *StandardScaler) Fit(X mat.Matrix) error {
	s.state.Reset()
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}

	s.Mean = make([]float64, c)
	s.Scale = make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		mean, std := stat.PopMeanStdDev(col, nil)
		if s.WithMean {
			s.Mean[j] = mean
		}
		s.Scale[j] = 1
		if s.WithStd && std >= minScale {
			s.Scale[j] = std
		}
	}

	s.state.SetFitted(c, r)
	return nil
}

// Transform standardizes X with the fitted statistics.
func (s *StandardScaler) Transform(X mat.Matrix) (*mat.Dense, error) {
	if err := s.state.RequireFitted("Transform", X); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, X)
	return out, nil
}

// FitTransform fits on X and returns X standardized.
func (s *StandardScaler) FitTransform(X mat.Matrix) (*mat.Dense, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// GetParams returns the scaler settings.
func (s *StandardScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"with_mean": s.WithMean,
		"with_std":  s.WithStd,
	}
}

func (s *StandardScaler) String() string {
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.WithMean, s.WithStd)
}

// StandardizedClassifier fits a StandardScaler on the training data and
// standardizes every input before passing it to the wrapped classifier.
type StandardizedClassifier struct {
	Scaler     *StandardScaler
	Classifier model.Classifier
}

// Standardize wraps clf with a fresh StandardScaler.
func Standardize(clf model.Classifier) *StandardizedClassifier {
	return &StandardizedClassifier{
		Scaler:     NewStandardScaler(true, true),
		Classifier: clf,
	}
}

// Fit fits the scaler on X, then the classifier on the standardized X.
func (s *StandardizedClassifier) Fit(X, y mat.Matrix) error {
	Xs, err := s.Scaler.FitTransform(X)
	if err != nil {
		return err
	}
	return s.Classifier.Fit(Xs, y)
}

// Predict standardizes X and predicts labels.
func (s *StandardizedClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	Xs, err := s.Scaler.Transform(X)
	if err != nil {
		return nil, err
	}
	return s.Classifier.Predict(Xs)
}

// PredictProba standardizes X and predicts class probabilities.
func (s *StandardizedClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	Xs, err := s.Scaler.Transform(X)
	if err != nil {
		return nil, err
	}
	return s.Classifier.PredictProba(Xs)
}

// Classes returns the classes of the wrapped classifier.
func (s *StandardizedClassifier) Classes() []int {
	return s.Classifier.Classes()
}

// GetParams returns the wrapped classifier's hyperparameters with the
// scaler settings under "scaler".
func (s *StandardizedClassifier) GetParams() map[string]interface{} {
	params := map[string]interface{}{"scaler": s.Scaler.String()}
	if pg, ok := s.Classifier.(model.ParameterGetter); ok {
		for k, v := range pg.GetParams() {
			params[k] = v
		}
	}
	return params
}
