package model

import (
	"math"
	"testing"

	"github.com/YuminosukeSato/cvscore/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

func TestValidateFitInput(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})

	n, d, err := ValidateFitInput("Fit", X, mat.NewDense(3, 1, []float64{0, 1, 0}))
	if err != nil || n != 3 || d != 2 {
		t.Fatalf("ValidateFitInput() = %d, %d, %v", n, d, err)
	}

	_, _, err = ValidateFitInput("Fit", X, mat.NewDense(2, 1, []float64{0, 1}))
	var dimErr *errors.DimensionError
	if !errors.As(err, &dimErr) {
		t.Errorf("Expected DimensionError, got %v", err)
	}

	_, _, err = ValidateFitInput("Fit", X, mat.NewDense(3, 2, nil))
	var valErr *errors.ValueError
	if !errors.As(err, &valErr) {
		t.Errorf("Expected ValueError for a non-column y, got %v", err)
	}

	if _, _, err = ValidateFitInput("Fit", nil, nil); !errors.Is(err, errors.ErrEmptyData) {
		t.Errorf("Expected ErrEmptyData, got %v", err)
	}
}

func TestLabelsRoundTrip(t *testing.T) {
	y := mat.NewDense(4, 1, []float64{1, 0, -1, 2})
	labels := Labels(y)
	want := []int{1, 0, -1, 2}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("Labels() = %v, want %v", labels, want)
		}
	}
	if !mat.Equal(LabelMatrix(labels), y) {
		t.Error("LabelMatrix(Labels(y)) should equal y")
	}

	unique := UniqueLabels(labels)
	if len(unique) != 4 || unique[0] != -1 || unique[3] != 2 {
		t.Errorf("UniqueLabels() = %v", unique)
	}
}

func TestBalancedClassWeights(t *testing.T) {
	labels := []int{0, 0, 0, 1}
	w := BalancedClassWeights(labels, []int{0, 1})

	if math.Abs(w[0]-4.0/6.0) > 1e-12 {
		t.Errorf("weight[0] = %v, want %v", w[0], 4.0/6.0)
	}
	if math.Abs(w[1]-2.0) > 1e-12 {
		t.Errorf("weight[1] = %v, want 2", w[1])
	}
}

func TestSelectRows(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	got := SelectRows(X, []int{2, 0})
	want := mat.NewDense(2, 2, []float64{5, 6, 1, 2})
	if !mat.Equal(got, want) {
		t.Errorf("SelectRows() = %v, want %v", mat.Formatted(got), mat.Formatted(want))
	}

	if l := SelectLabels([]int{7, 8, 9}, []int{2, 0}); l[0] != 9 || l[1] != 7 {
		t.Errorf("SelectLabels() = %v", l)
	}
}

func TestStateManager(t *testing.T) {
	s := NewStateManager("SVC")

	err := s.RequireFitted("Predict", nil)
	var notFitted *errors.NotFittedError
	if !errors.As(err, &notFitted) {
		t.Fatalf("Expected NotFittedError, got %v", err)
	}

	s.SetFitted(2, 10)
	if err := s.RequireFitted("Predict", mat.NewDense(1, 2, nil)); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	var dimErr *errors.DimensionError
	if err := s.RequireFitted("Predict", mat.NewDense(1, 3, nil)); !errors.As(err, &dimErr) {
		t.Errorf("Expected DimensionError, got %v", err)
	}

	s.Reset()
	if s.IsFitted() {
		t.Error("Reset should clear fitted state")
	}
}
