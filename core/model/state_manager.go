package model

import (
	"sync"

	"github.com/YuminosukeSato/cvscore/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// StateManager tracks whether a model has been fitted and with which shape.
// Estimators hold one by composition.
type StateManager struct {
	mu sync.RWMutex

	modelName string
	fitted    bool
	nFeatures int
	nSamples  int
}

// NewStateManager creates a StateManager for the named model.
func NewStateManager(modelName string) *StateManager {
	return &StateManager{modelName: modelName}
}

// IsFitted returns whether the model has been fitted.
func (s *StateManager) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fitted
}

// SetFitted marks the model as fitted on nSamples x nFeatures data.
func (s *StateManager) SetFitted(nFeatures, nSamples int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitted = true
	s.nFeatures = nFeatures
	s.nSamples = nSamples
}

// Reset returns the model to the unfitted state.
func (s *StateManager) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitted = false
	s.nFeatures = 0
	s.nSamples = 0
}

// RequireFitted returns a NotFittedError if the model has not been fitted, and a
// DimensionError if X has a different number of features than the training data.
func (s *StateManager) RequireFitted(method string, X mat.Matrix) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.fitted {
		return errors.NewNotFittedError(s.modelName, method)
	}
	if X != nil {
		if _, c := X.Dims(); c != s.nFeatures {
			return errors.NewDimensionError(s.modelName+"."+method, s.nFeatures, c, 1)
		}
	}
	return nil
}
