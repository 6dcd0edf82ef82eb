// Package model_selection provides the k-fold splitters that plan
// cross-validation runs.
package model_selection

import (
	"math/rand/v2"

	"github.com/YuminosukeSato/cvscore/core/model"
	"github.com/YuminosukeSato/cvscore/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Splitter plans train/test partitions of a dataset.
type Splitter interface {
	Split(X, y mat.Matrix) ([]Fold, error)
	GetNSplits() int
}

// Fold is one train/test partition. Both index sets are sorted ascending and
// disjoint, and together they cover every row of the dataset.
type Fold struct {
	TrainIndices []int
	TestIndices  []int
}

// KFold splits rows into k consecutive folds without looking at the labels.
type KFold struct {
	NSplits     int
	Shuffle     bool
	RandomState int64
}

// NewKFold creates a k-fold splitter. A negative randomState draws a fresh seed
// on every Split.
func NewKFold(nSplits int, shuffle bool, randomState int64) *KFold {
	return &KFold{
		NSplits:     nSplits,
		Shuffle:     shuffle,
		RandomState: randomState,
	}
}

// GetNSplits returns the number of folds.
func (kf *KFold) GetNSplits() int {
	return kf.NSplits
}

// Split generates train/test indices for each fold.
func (kf *KFold) Split(X, y mat.Matrix) ([]Fold, error) {
	nSamples, err := checkSplitInput("KFold.Split", kf.NSplits, X, y)
	if err != nil {
		return nil, err
	}
	if nSamples < kf.NSplits {
		return nil, errors.NewValidationError("n_splits",
			"cannot be greater than the number of samples", kf.NSplits)
	}

	indices := make([]int, nSamples)
	for i := range indices {
		indices[i] = i
	}
	if kf.Shuffle {
		shuffle(newRand(kf.RandomState), indices)
	}

	assignment := make([]int, nSamples)
	deal(indices, kf.NSplits, 0, assignment)
	return buildFolds(assignment, kf.NSplits), nil
}

// StratifiedKFold splits rows into k folds that preserve the class proportions
// of y. Each class's members are dealt into the folds in contiguous blocks, so
// every test fold holds floor(n_c/k) or ceil(n_c/k) members of class c. The
// leftover members of successive classes go to successive folds, which keeps
// test fold sizes within one of each other.
type StratifiedKFold struct {
	NSplits     int
	Shuffle     bool
	RandomState int64
}

// NewStratifiedKFold creates a stratified k-fold splitter. With shuffle set, the
// members of each class are shuffled before dealing, using a PCG source seeded
// from randomState. A negative randomState draws a fresh seed on every Split, so
// repeated splits differ.
func NewStratifiedKFold(nSplits int, shuffle bool, randomState int64) *StratifiedKFold {
	return &StratifiedKFold{
		NSplits:     nSplits,
		Shuffle:     shuffle,
		RandomState: randomState,
	}
}

// GetNSplits returns the number of folds.
func (skf *StratifiedKFold) GetNSplits() int {
	return skf.NSplits
}

// Split generates stratified train/test indices for each fold.
//
// It fails with InsufficientSamplesError when any class has fewer members than
// the number of folds.
func (skf *StratifiedKFold) Split(X, y mat.Matrix) ([]Fold, error) {
	nSamples, err := checkSplitInput("StratifiedKFold.Split", skf.NSplits, X, y)
	if err != nil {
		return nil, err
	}
	if y == nil {
		return nil, errors.NewValueError("StratifiedKFold.Split", "y is required for stratification")
	}

	labels := model.Labels(y)
	classIndices := make(map[int][]int)
	for i, l := range labels {
		classIndices[l] = append(classIndices[l], i)
	}
	classes := model.UniqueLabels(labels)

	for _, c := range classes {
		if n := len(classIndices[c]); n < skf.NSplits {
			return nil, errors.NewInsufficientSamplesError(c, n, skf.NSplits)
		}
	}

	var r *rand.Rand
	if skf.Shuffle {
		r = newRand(skf.RandomState)
	}

	assignment := make([]int, nSamples)
	offset := 0
	for _, c := range classes {
		members := classIndices[c]
		if r != nil {
			shuffle(r, members)
		}
		offset = deal(members, skf.NSplits, offset, assignment)
	}

	return buildFolds(assignment, skf.NSplits), nil
}

func checkSplitInput(op string, nSplits int, X, y mat.Matrix) (int, error) {
	if nSplits < 2 {
		return 0, errors.NewValidationError("n_splits", "must be at least 2", nSplits)
	}
	if X == nil {
		return 0, errors.NewValueError(op, "empty data")
	}
	nSamples, _ := X.Dims()
	if nSamples == 0 {
		return 0, errors.NewValueError(op, "empty data")
	}
	if y != nil {
		if yRows, _ := y.Dims(); yRows != nSamples {
			return 0, errors.NewDimensionError(op, nSamples, yRows, 0)
		}
	}
	return nSamples, nil
}

// deal assigns members to folds in contiguous blocks. The len%k folds starting
// at offset (wrapping around) receive one extra member; the returned offset is
// the fold after the last one that did.
func deal(members []int, k, offset int, assignment []int) int {
	size := len(members) / k
	remainder := len(members) % k

	current := 0
	for fold := 0; fold < k; fold++ {
		n := size
		if (fold-offset+k)%k < remainder {
			n++
		}
		for _, idx := range members[current : current+n] {
			assignment[idx] = fold
		}
		current += n
	}
	return (offset + remainder) % k
}

func buildFolds(assignment []int, k int) []Fold {
	folds := make([]Fold, k)
	for i := range folds {
		folds[i] = Fold{
			TrainIndices: make([]int, 0, len(assignment)),
			TestIndices:  make([]int, 0, len(assignment)/k+1),
		}
	}
	// ascending row order keeps both index sets sorted
	for idx, fold := range assignment {
		for i := range folds {
			if i == fold {
				folds[i].TestIndices = append(folds[i].TestIndices, idx)
			} else {
				folds[i].TrainIndices = append(folds[i].TrainIndices, idx)
			}
		}
	}
	return folds
}

func newRand(randomState int64) *rand.Rand {
	seed := uint64(randomState)
	if randomState < 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed))
}

func shuffle(r *rand.Rand, indices []int) {
	r.Shuffle(len(indices), func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})
}

