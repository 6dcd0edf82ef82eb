package plotting

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/cvscore/evaluation"
	"github.com/YuminosukeSato/cvscore/pkg/errors"
)

var _ evaluation.ROCRenderer = (*ROCPlot)(nil)

func curves() []evaluation.FoldCurve {
	return []evaluation.FoldCurve{
		{Fold: 1, FPR: []float64{0, 0, 0.5, 1}, TPR: []float64{0, 0.5, 1, 1}, AUC: 0.875, Label: "ROC fold 1 (area = 0.88)"},
		{Fold: 2, FPR: []float64{0, 0.25, 1}, TPR: []float64{0, 1, 1}, AUC: 0.875, Label: "ROC fold 2 (area = 0.88)"},
	}
}

func TestROCPlot_Render(t *testing.T) {
	for _, name := range []string{"roc.png", "roc.svg"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, NewROCPlot(path).Render(curves(), true))

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Positive(t, info.Size())
		})
	}
}

func TestROCPlot_WithoutLegend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roc.png")
	r := NewROCPlot(path)
	r.Title = "fold curves"
	require.NoError(t, r.Render(curves(), false))
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestROCPlot_NoCurves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chance.svg")
	require.NoError(t, NewROCPlot(path).Render(nil, false))
}

func TestROCPlot_Errors(t *testing.T) {
	bad := []evaluation.FoldCurve{{Fold: 1, FPR: []float64{0, 1}, TPR: []float64{0}}}
	var dimErr *errors.DimensionError
	err := NewROCPlot(filepath.Join(t.TempDir(), "roc.png")).Render(bad, false)
	assert.True(t, errors.As(err, &dimErr), "got %v", err)

	err = NewROCPlot(filepath.Join(t.TempDir(), "roc.unknown")).Render(curves(), false)
	assert.Error(t, err)
}
