package svm

import (
	"math"

	"github.com/YuminosukeSato/cvscore/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// kernelFunc evaluates the kernel on two feature rows.
type kernelFunc func(a, b []float64) float64

func linearKernel(a, b []float64) float64 {
	return floats.Dot(a, b)
}

func rbfKernel(gamma float64) kernelFunc {
	return func(a, b []float64) float64 {
		d := floats.Distance(a, b, 2)
		return math.Exp(-gamma * d * d)
	}
}

// resolveGamma turns the gamma setting into a value for X. "scale" is
// 1 / (n_features * var(X)) and "auto" is 1 / n_features.
func resolveGamma(gamma string, value float64, X *mat.Dense) (float64, error) {
	_, nFeatures := X.Dims()
	switch gamma {
	case "scale":
		v := stat.Variance(X.RawMatrix().Data, nil)
		if !(v > 0) {
			return 1, nil
		}
		return 1 / (float64(nFeatures) * v), nil
	case "auto":
		return 1 / float64(nFeatures), nil
	case "value":
		if value <= 0 {
			return 0, errors.NewValidationError("gamma", "must be positive", value)
		}
		return value, nil
	default:
		return 0, errors.NewValidationError("gamma", "must be 'scale', 'auto' or a positive value", gamma)
	}
}

// gramCacheLimit is the largest n for which the full n x n kernel matrix is kept.
const gramCacheLimit = 4096

// gram serves kernel rows over the training set, precomputing the full matrix
// when it is small enough and caching computed rows otherwise.
type gram struct {
	k    kernelFunc
	rows [][]float64 // training rows
	full []float64   // row-major n x n, nil when rows are cached on demand
	diag []float64

	cache    map[int][]float64
	maxCache int
}

func newGram(k kernelFunc, X *mat.Dense) *gram {
	n, _ := X.Dims()
	g := &gram{k: k, rows: make([][]float64, n), diag: make([]float64, n)}
	for i := range g.rows {
		g.rows[i] = X.RawRowView(i)
		g.diag[i] = k(g.rows[i], g.rows[i])
	}

	if n <= gramCacheLimit {
		g.full = make([]float64, n*n)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				v := k(g.rows[i], g.rows[j])
				g.full[i*n+j] = v
				g.full[j*n+i] = v
			}
		}
		return g
	}

	g.cache = make(map[int][]float64)
	g.maxCache = max(2, (gramCacheLimit*gramCacheLimit)/n)
	return g
}

// row returns K(i, .) over the training set. The slice must not be modified.
func (g *gram) row(i int) []float64 {
	if g.full != nil {
		n := len(g.rows)
		return g.full[i*n : (i+1)*n]
	}
	if r, ok := g.cache[i]; ok {
		return r
	}
	if len(g.cache) >= g.maxCache {
		clear(g.cache)
	}
	r := make([]float64, len(g.rows))
	for j := range r {
		r[j] = g.k(g.rows[i], g.rows[j])
	}
	g.cache[i] = r
	return r
}
