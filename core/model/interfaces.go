// Package model defines the estimator interfaces shared by every predictor and
// the helpers they use to validate input and track fitted state.
package model

import (
	"gonum.org/v1/gonum/mat"
)

// Fitter is a model that can be trained.
type Fitter interface {
	// Fit trains the model on X (n_samples x n_features) and y (n_samples x 1).
	Fit(X, y mat.Matrix) error
}

// Predictor is a model that can produce predictions.
type Predictor interface {
	// Predict returns an n_samples x 1 matrix of predicted labels.
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Classifier is a trainable classifier with probability estimates.
type Classifier interface {
	Fitter
	Predictor

	// PredictProba returns an n_samples x n_classes matrix. Column j holds the
	// probability of Classes()[j].
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes returns the class labels seen during Fit in ascending order.
	Classes() []int
}

// ParameterGetter is implemented by models that expose their hyperparameters.
type ParameterGetter interface {
	GetParams() map[string]interface{}
}

// ParameterSetter is implemented by models whose hyperparameters can be changed.
type ParameterSetter interface {
	SetParams(params map[string]interface{}) error
}
