package model

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/cvscore/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ValidateFitInput checks that X and y are non-empty, that y is a column vector
// and that both have the same number of rows.
func ValidateFitInput(op string, X, y mat.Matrix) (nSamples, nFeatures int, err error) {
	if X == nil || y == nil {
		return 0, 0, errors.NewModelError(op, "nil input", errors.ErrEmptyData)
	}
	nSamples, nFeatures = X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return 0, 0, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	yRows, yCols := y.Dims()
	if yRows != nSamples {
		return 0, 0, errors.NewDimensionError(op, nSamples, yRows, 0)
	}
	if yCols != 1 {
		return 0, 0, errors.NewValueError(op, "y must be a column vector (n x 1 matrix)")
	}
	return nSamples, nFeatures, nil
}

// Labels converts an n x 1 label matrix into integer labels.
func Labels(y mat.Matrix) []int {
	rows, _ := y.Dims()
	labels := make([]int, rows)
	for i := range labels {
		labels[i] = int(math.Round(y.At(i, 0)))
	}
	return labels
}

// LabelMatrix converts integer labels into an n x 1 matrix.
func LabelMatrix(labels []int) *mat.Dense {
	data := make([]float64, len(labels))
	for i, l := range labels {
		data[i] = float64(l)
	}
	return mat.NewDense(len(labels), 1, data)
}

// UniqueLabels returns the distinct labels in ascending order.
func UniqueLabels(labels []int) []int {
	seen := make(map[int]struct{}, 4)
	out := make([]int, 0, 4)
	for _, l := range labels {
		if _, ok := seen[l]; !ok {
			seen[l] = struct{}{}
			out = append(out, l)
		}
	}
	sort.Ints(out)
	return out
}

// ClassIndex maps each class label to its position in classes.
func ClassIndex(classes []int) map[int]int {
	idx := make(map[int]int, len(classes))
	for i, c := range classes {
		idx[c] = i
	}
	return idx
}

// BalancedClassWeights returns n_samples / (n_classes * count(c)) for each class,
// the weighting used by class_weight="balanced".
func BalancedClassWeights(labels []int, classes []int) map[int]float64 {
	counts := make(map[int]int, len(classes))
	for _, l := range labels {
		counts[l]++
	}
	weights := make(map[int]float64, len(classes))
	for _, c := range classes {
		if counts[c] == 0 {
			weights[c] = 1
			continue
		}
		weights[c] = float64(len(labels)) / (float64(len(classes)) * float64(counts[c]))
	}
	return weights
}

// SelectRows copies the given rows of X, in the given order.
func SelectRows(X mat.Matrix, indices []int) *mat.Dense {
	_, cols := X.Dims()
	out := mat.NewDense(len(indices), cols, nil)
	if dense, ok := X.(mat.RawRowViewer); ok {
		for i, idx := range indices {
			out.SetRow(i, dense.RawRowView(idx))
		}
		return out
	}
	for i, idx := range indices {
		for j := 0; j < cols; j++ {
			out.Set(i, j, X.At(idx, j))
		}
	}
	return out
}

// SelectLabels returns labels[indices] in the given order.
func SelectLabels(labels []int, indices []int) []int {
	out := make([]int, len(indices))
	for i, idx := range indices {
		out[i] = labels[idx]
	}
	return out
}
