package model_selection

import (
	"sort"
	"testing"

	"github.com/YuminosukeSato/cvscore/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func makeData(labels []float64) (*mat.Dense, *mat.Dense) {
	n := len(labels)
	X := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, float64(i)*2)
	}
	return X, mat.NewDense(n, 1, labels)
}

func assertPartition(t *testing.T, folds []Fold, n int) {
	t.Helper()
	coverage := make([]int, n)
	for i, fold := range folds {
		assert.True(t, sort.IntsAreSorted(fold.TrainIndices), "fold %d train not sorted", i)
		assert.True(t, sort.IntsAreSorted(fold.TestIndices), "fold %d test not sorted", i)
		assert.Equal(t, n, len(fold.TrainIndices)+len(fold.TestIndices), "fold %d does not cover the dataset", i)

		testSet := make(map[int]bool, len(fold.TestIndices))
		for _, idx := range fold.TestIndices {
			testSet[idx] = true
			coverage[idx]++
		}
		for _, idx := range fold.TrainIndices {
			assert.False(t, testSet[idx], "fold %d: index %d in both train and test", i, idx)
		}
	}
	for idx, c := range coverage {
		assert.Equal(t, 1, c, "index %d appears in %d test folds", idx, c)
	}
}

func TestStratifiedKFold(t *testing.T) {
	t.Run("100 balanced samples, 10 folds", func(t *testing.T) {
		labels := make([]float64, 100)
		for i := range labels {
			labels[i] = float64(i % 2)
		}
		X, y := makeData(labels)

		skf := NewStratifiedKFold(10, true, 42)
		assert.Equal(t, 10, skf.GetNSplits())

		folds, err := skf.Split(X, y)
		require.NoError(t, err)
		require.Len(t, folds, 10)
		assertPartition(t, folds, 100)

		for i, fold := range folds {
			assert.Len(t, fold.TestIndices, 10, "fold %d test size", i)
			assert.Len(t, fold.TrainIndices, 90, "fold %d train size", i)

			var pos int
			for _, idx := range fold.TestIndices {
				if labels[idx] == 1 {
					pos++
				}
			}
			assert.Equal(t, 5, pos, "fold %d positives", i)
		}
	})

	t.Run("per-class counts differ by at most one", func(t *testing.T) {
		// 23 of class 0, 11 of class 1, 7 of class 2
		var labels []float64
		for i := 0; i < 23; i++ {
			labels = append(labels, 0)
		}
		for i := 0; i < 11; i++ {
			labels = append(labels, 1)
		}
		for i := 0; i < 7; i++ {
			labels = append(labels, 2)
		}
		X, y := makeData(labels)

		folds, err := NewStratifiedKFold(5, true, 7).Split(X, y)
		require.NoError(t, err)
		assertPartition(t, folds, len(labels))

		for class, total := range map[float64]int{0: 23, 1: 11, 2: 7} {
			lo, hi := total/5, (total+4)/5
			for i, fold := range folds {
				var count int
				for _, idx := range fold.TestIndices {
					if labels[idx] == class {
						count++
					}
				}
				assert.True(t, count >= lo && count <= hi,
					"fold %d holds %d members of class %v, want [%d, %d]", i, count, class, lo, hi)
			}
		}
	})

	t.Run("test fold sizes differ by at most one", func(t *testing.T) {
		tests := []struct {
			name    string
			classes []int // members per class
			k       int
		}{
			{"three classes of 11, k=10", []int{11, 11, 11}, 10},
			{"uneven classes, k=5", []int{23, 11, 7}, 5},
			{"remainders wrap around, k=4", []int{7, 7, 7, 5}, 4},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				var labels []float64
				for c, n := range tt.classes {
					for i := 0; i < n; i++ {
						labels = append(labels, float64(c))
					}
				}
				X, y := makeData(labels)

				for _, shuffled := range []bool{false, true} {
					folds, err := NewStratifiedKFold(tt.k, shuffled, 1).Split(X, y)
					require.NoError(t, err)
					assertPartition(t, folds, len(labels))

					lo, hi := len(labels), 0
					for _, fold := range folds {
						lo = min(lo, len(fold.TestIndices))
						hi = max(hi, len(fold.TestIndices))
					}
					assert.LessOrEqual(t, hi-lo, 1, "test fold sizes range over [%d, %d]", lo, hi)
				}
			})
		}
	})

	t.Run("class with fewer members than folds", func(t *testing.T) {
		labels := make([]float64, 100)
		for i := 0; i < 3; i++ {
			labels[i] = 1
		}
		X, y := makeData(labels)

		_, err := NewStratifiedKFold(10, false, 0).Split(X, y)
		require.Error(t, err)

		var insufficient *errors.InsufficientSamplesError
		require.True(t, errors.As(err, &insufficient))
		assert.Equal(t, 1, insufficient.Class)
		assert.Equal(t, 3, insufficient.Count)
		assert.Equal(t, 10, insufficient.NSplits)
	})

	t.Run("same seed gives same folds", func(t *testing.T) {
		labels := make([]float64, 40)
		for i := range labels {
			labels[i] = float64(i % 2)
		}
		X, y := makeData(labels)

		a, err := NewStratifiedKFold(4, true, 11).Split(X, y)
		require.NoError(t, err)
		b, err := NewStratifiedKFold(4, true, 11).Split(X, y)
		require.NoError(t, err)
		assert.Equal(t, a, b)

		unshuffled, err := NewStratifiedKFold(4, false, 11).Split(X, y)
		require.NoError(t, err)
		assert.NotEqual(t, a, unshuffled)
	})

	t.Run("invalid input", func(t *testing.T) {
		X, y := makeData([]float64{0, 1, 0, 1})

		var valErr *errors.ValidationError
		_, err := NewStratifiedKFold(1, false, 0).Split(X, y)
		assert.True(t, errors.As(err, &valErr), "k=1 should be a ValidationError, got %v", err)

		var dimErr *errors.DimensionError
		_, err = NewStratifiedKFold(2, false, 0).Split(X, mat.NewDense(3, 1, nil))
		assert.True(t, errors.As(err, &dimErr), "row mismatch should be a DimensionError, got %v", err)

		var valueErr *errors.ValueError
		_, err = NewStratifiedKFold(2, false, 0).Split(nil, nil)
		assert.True(t, errors.As(err, &valueErr), "empty data should be a ValueError, got %v", err)
	})
}

func TestKFold(t *testing.T) {
	t.Run("Basic KFold split", func(t *testing.T) {
		X, y := makeData(make([]float64, 103))

		folds, err := NewKFold(5, false, 0).Split(X, y)
		require.NoError(t, err)
		require.Len(t, folds, 5)
		assertPartition(t, folds, 103)

		// 103 = 4*21 + 19
		for i, fold := range folds {
			want := 20
			if i < 3 {
				want = 21
			}
			assert.Len(t, fold.TestIndices, want, "fold %d test size", i)
		}
		assert.Equal(t, []int{0, 1, 2}, folds[0].TestIndices[:3])
	})

	t.Run("KFold with shuffle", func(t *testing.T) {
		X, y := makeData(make([]float64, 50))

		plain, err := NewKFold(5, false, 42).Split(X, y)
		require.NoError(t, err)
		shuffled, err := NewKFold(5, true, 42).Split(X, y)
		require.NoError(t, err)

		assertPartition(t, shuffled, 50)
		assert.NotEqual(t, plain, shuffled)
	})

	t.Run("more folds than samples", func(t *testing.T) {
		X, y := makeData([]float64{0, 1})
		_, err := NewKFold(3, false, 0).Split(X, y)
		assert.Error(t, err)
	})
}

func TestSplitterInterface(t *testing.T) {
	var _ Splitter = NewKFold(2, false, 0)
	var _ Splitter = NewStratifiedKFold(2, false, 0)
}
