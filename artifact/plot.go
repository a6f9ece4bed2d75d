package artifact

import (
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/dgpbench/pkg/errors"
)

// PlotPredictions writes a true-vs-predicted scatter with the identity line.
// The image format follows the file extension.
func PlotPredictions(path, title string, rows []Row) error {
	if len(rows) == 0 {
		return errors.NewValueError("artifact.PlotPredictions", "no rows to plot")
	}

	pts := make(plotter.XYs, len(rows))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, r := range rows {
		pts[i] = plotter.XY{X: r.Y, Y: r.Pred}
		lo = math.Min(lo, math.Min(r.Y, r.Pred))
		hi = math.Max(hi, math.Max(r.Y, r.Pred))
	}
	if lo == hi {
		lo, hi = lo-1, hi+1
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "y"
	p.Y.Label.Text = "pred"
	p.Add(plotter.NewGrid())

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return errors.Wrap(err, "building scatter")
	}
	sc.GlyphStyle.Color = color.RGBA{R: 20, G: 80, B: 200, A: 200}
	sc.GlyphStyle.Radius = vg.Points(2)
	p.Add(sc)

	diag, err := plotter.NewLine(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}})
	if err != nil {
		return errors.Wrap(err, "building identity line")
	}
	diag.Color = color.RGBA{R: 200, G: 30, B: 30, A: 255}
	diag.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(diag)

	p.X.Min, p.X.Max = lo, hi
	p.Y.Min, p.Y.Max = lo, hi

	if err := p.Save(6*vg.Inch, 6*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "saving plot %s", path)
	}
	return nil
}
