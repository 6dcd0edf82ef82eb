package ensemble

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/YuminosukeSato/cvscore/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// blobs returns two well separated Gaussian clusters, nPerClass points each.
func blobs(nPerClass int, seed uint64) (*mat.Dense, *mat.Dense) {
	r := rand.New(rand.NewPCG(seed, seed))
	X := mat.NewDense(2*nPerClass, 3, nil)
	y := mat.NewDense(2*nPerClass, 1, nil)
	for i := 0; i < 2*nPerClass; i++ {
		class := i % 2
		center := float64(class) * 4
		X.Set(i, 0, center+r.NormFloat64())
		X.Set(i, 1, center+r.NormFloat64())
		X.Set(i, 2, r.NormFloat64()) // noise
		y.Set(i, 0, float64(class))
	}
	return X, y
}

func TestRandomForestClassifier_FitPredict(t *testing.T) {
	X, y := blobs(40, 1)

	rf := NewRandomForestClassifier(WithNEstimators(25), WithNJobs(-1), WithRandomState(3))
	if err := rf.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit: %v", err)
	}

	predictions, err := rf.Predict(X)
	if err != nil {
		t.Fatalf("Failed to predict: %v", err)
	}
	correct := 0
	for i := 0; i < 80; i++ {
		if predictions.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	if acc := float64(correct) / 80; acc < 0.95 {
		t.Errorf("training accuracy too low: %v", acc)
	}

	probas, err := rf.PredictProba(X)
	if err != nil {
		t.Fatalf("Failed to predict probabilities: %v", err)
	}
	rows, cols := probas.Dims()
	if rows != 80 || cols != 2 {
		t.Fatalf("Expected probas shape (80, 2), got (%d, %d)", rows, cols)
	}
	for i := 0; i < rows; i++ {
		if sum := probas.At(i, 0) + probas.At(i, 1); math.Abs(sum-1) > 1e-9 {
			t.Errorf("Probabilities for sample %d don't sum to 1: %v", i, sum)
		}
	}

	imp := rf.FeatureImportances()
	if imp[2] >= imp[0] || imp[2] >= imp[1] {
		t.Errorf("noise feature should be least important: %v", imp)
	}
}

func TestRandomForestClassifier_SeededIsReproducible(t *testing.T) {
	X, y := blobs(20, 2)

	fit := func(nJobs int) mat.Matrix {
		rf := NewRandomForestClassifier(WithNEstimators(10), WithNJobs(nJobs), WithRandomState(42))
		if err := rf.Fit(X, y); err != nil {
			t.Fatalf("Failed to fit: %v", err)
		}
		p, err := rf.PredictProba(X)
		if err != nil {
			t.Fatalf("Failed to predict probabilities: %v", err)
		}
		return p
	}

	// worker count must not change the result
	if !mat.Equal(fit(1), fit(4)) {
		t.Error("seeded forests should not depend on the number of workers")
	}
}

func TestRandomForestClassifier_Multiclass(t *testing.T) {
	X := mat.NewDense(12, 1, []float64{0, 0.1, 0.2, 0.3, 5, 5.1, 5.2, 5.3, 10, 10.1, 10.2, 10.3})
	y := mat.NewDense(12, 1, []float64{0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2})

	rf := NewRandomForestClassifier(WithNEstimators(15), WithBootstrap(false), WithClassWeight("balanced"))
	if err := rf.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit: %v", err)
	}
	if classes := rf.Classes(); len(classes) != 3 {
		t.Fatalf("Classes() = %v", classes)
	}

	predictions, _ := rf.Predict(mat.NewDense(3, 1, []float64{0.15, 5.15, 10.15}))
	for i, want := range []float64{0, 1, 2} {
		if predictions.At(i, 0) != want {
			t.Errorf("prediction %d = %v, want %v", i, predictions.At(i, 0), want)
		}
	}
}

func TestRandomForestClassifier_Errors(t *testing.T) {
	X, y := blobs(5, 3)

	var valErr *errors.ValidationError
	if err := NewRandomForestClassifier(WithNEstimators(0)).Fit(X, y); !errors.As(err, &valErr) {
		t.Errorf("Expected ValidationError for n_estimators=0, got %v", err)
	}
	if err := NewRandomForestClassifier(WithMaxFeatures("half")).Fit(X, y); !errors.As(err, &valErr) {
		t.Errorf("Expected ValidationError for max_features, got %v", err)
	}

	var notFitted *errors.NotFittedError
	if _, err := NewRandomForestClassifier().Predict(X); !errors.As(err, &notFitted) {
		t.Errorf("Expected NotFittedError, got %v", err)
	}
}
