package chart

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"

	"optreturns/internal/core"
)

// Default image size.
const (
	DefaultWidth  = 12 * vg.Inch
	DefaultHeight = 6 * vg.Inch
)

var ErrNoBars = errors.New("chart has no bars")

// skyblue as RGB.
var barFill = color.RGBA{R: 135, G: 206, B: 235, A: 255}

// RenderPNG draws the chart and writes it as PNG. Bars whose height is not
// finite are drawn at zero but keep their annotation. Non-positive sizes
// fall back to the defaults.
func RenderPNG(w io.Writer, spec core.ChartSpec, width, height vg.Length) error {
	if len(spec.Bars) == 0 {
		return ErrNoBars
	}
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	p, err := newPlot(spec)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("create png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

func newPlot(spec core.ChartSpec) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = spec.Title
	p.X.Label.Text = spec.XLabel
	p.Y.Label.Text = spec.YLabel

	heights := make(plotter.Values, len(spec.Bars))
	xys := make(plotter.XYs, len(spec.Bars))
	texts := make([]string, len(spec.Bars))
	lo, hi := 0.0, 0.0
	for i, b := range spec.Bars {
		h := b.Height
		if math.IsNaN(h) || math.IsInf(h, 0) {
			h = 0
		}
		heights[i] = h
		xys[i] = plotter.XY{X: float64(i), Y: h}
		texts[i] = b.Text
		lo, hi = math.Min(lo, h), math.Max(hi, h)
	}

	bars, err := plotter.NewBarChart(heights, vg.Points(20))
	if err != nil {
		return nil, fmt.Errorf("bar chart: %w", err)
	}
	bars.Color = barFill
	bars.LineStyle.Width = 0
	p.Add(bars)

	labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: texts})
	if err != nil {
		return nil, fmt.Errorf("bar labels: %w", err)
	}
	for i := range labels.TextStyle {
		labels.TextStyle[i].XAlign = text.XCenter
		labels.TextStyle[i].YAlign = text.YBottom
	}
	labels.Offset = vg.Point{Y: vg.Points(3)}
	p.Add(labels)

	p.NominalX(spec.Labels()...)
	p.X.Tick.Label.Rotation = spec.XTickRotation * math.Pi / 180
	p.X.Tick.Label.XAlign = text.XRight
	p.X.Tick.Label.YAlign = text.YCenter

	// Headroom so the annotations above the tallest bar stay inside the canvas.
	pad := (hi - lo) * 0.1
	if pad == 0 {
		pad = 1
	}
	p.Y.Min = lo - pad*boolToFloat(lo < 0)
	p.Y.Max = hi + pad
	return p, nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
