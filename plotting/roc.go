// Package plotting renders the per-fold ROC curves of a cross-validation run.
package plotting

import (
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/cvscore/evaluation"
	"github.com/YuminosukeSato/cvscore/pkg/errors"
)

const lineWidth = 2

// ROCPlot writes ROC curves to an image file. The format follows the file
// extension (.png, .svg, .pdf, ...).
type ROCPlot struct {
	Path   string
	Title  string
	Width  vg.Length
	Height vg.Length
}

// NewROCPlot creates a 6x6 inch ROC plot written to path.
func NewROCPlot(path string) *ROCPlot {
	return &ROCPlot{
		Path:   path,
		Title:  "Receiver operating characteristic",
		Width:  6 * vg.Inch,
		Height: 6 * vg.Inch,
	}
}

// Render draws one line per fold, colored by fold order, over the chance
// diagonal and saves the plot.
func (r *ROCPlot) Render(curves []evaluation.FoldCurve, showLegend bool) error {
	p, err := r.build(curves, showLegend)
	if err != nil {
		return err
	}
	if err := p.Save(r.Width, r.Height, r.Path); err != nil {
		return errors.Wrapf(err, "save ROC plot to %s", r.Path)
	}
	return nil
}

func (r *ROCPlot) build(curves []evaluation.FoldCurve, showLegend bool) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = r.Title
	p.X.Label.Text = "False Positive Rate"
	p.Y.Label.Text = "True Positive Rate"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1.05
	p.Legend.Top = false
	p.Legend.Left = false

	chance, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 1}})
	if err != nil {
		return nil, errors.Wrap(err, "chance line")
	}
	chance.LineStyle.Color = color.Gray{Y: 0x80}
	chance.LineStyle.Width = vg.Points(lineWidth)
	chance.LineStyle.Dashes = plotutil.Dashes(1)
	p.Add(chance)
	if showLegend {
		p.Legend.Add("Chance", chance)
	}

	for i, c := range curves {
		if len(c.FPR) != len(c.TPR) {
			return nil, errors.NewDimensionError("ROCPlot.Render", len(c.FPR), len(c.TPR), 0)
		}
		pts := make(plotter.XYs, len(c.FPR))
		for j := range c.FPR {
			pts[j].X = c.FPR[j]
			pts[j].Y = c.TPR[j]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, errors.Wrapf(err, "fold %d", c.Fold)
		}
		line.LineStyle.Color = plotutil.Color(i)
		line.LineStyle.Width = vg.Points(lineWidth)
		p.Add(line)
		if showLegend {
			p.Legend.Add(c.Label, line)
		}
	}
	return p, nil
}
