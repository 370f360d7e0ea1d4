package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"github.com/banshee-data/ghmm/internal/topology"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// PlotOptions controls PlotTopology.
type PlotOptions struct {
	Title  string
	Width  vg.Length // default 8in
	Height vg.Length // default 8in
	// X and Y are the centroid components on the horizontal and vertical
	// axes.
	X, Y   int
	Weight Weight
}

func (o PlotOptions) withDefaults() PlotOptions {
	if o.Width <= 0 {
		o.Width = 8 * vg.Inch
	}
	if o.Height <= 0 {
		o.Height = 8 * vg.Inch
	}
	if o.X == 0 && o.Y == 0 {
		o.Y = 1
	}
	return o
}

// PlotTopology draws the centroids of g as a scatter coloured by weight,
// with one segment per connected pair, and saves the image to path. The
// format follows the file extension (png, svg, pdf).
func PlotTopology(g *topology.Graph, path string, opts PlotOptions) error {
	opts = opts.withDefaults()
	if err := axes(g, opts.X, opts.Y); err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = opts.Title
	if p.Title.Text == "" {
		p.Title.Text = "Topology"
	}
	p.Title.Text += fmt.Sprintf(" (%d states, %d transitions)", g.NumStates(), g.NumTransitions())
	p.X.Label.Text = fmt.Sprintf("c%d", opts.X)
	p.Y.Label.Text = fmt.Sprintf("c%d", opts.Y)
	p.Add(plotter.NewGrid())

	edgeColor := color.RGBA{R: 160, G: 160, B: 160, A: 255}
	for _, e := range g.Transitions() {
		if e.From == e.To {
			continue
		}
		// Draw each undirected pair once.
		if e.From > e.To && g.Transition(e.To, e.From) != nil {
			continue
		}
		a, b := g.State(e.From).Centroid, g.State(e.To).Centroid
		seg, err := plotter.NewLine(plotter.XYs{
			{X: a[opts.X], Y: a[opts.Y]},
			{X: b[opts.X], Y: b[opts.Y]},
		})
		if err != nil {
			return fmt.Errorf("transition %d->%d: %w", e.From, e.To, err)
		}
		seg.Color = edgeColor
		seg.Width = vg.Points(0.5)
		p.Add(seg)
	}

	states := g.States()
	pts := make(plotter.XYs, len(states))
	for i, s := range states {
		pts[i] = plotter.XY{X: s.Centroid[opts.X], Y: s.Centroid[opts.Y]}
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("failed to create scatter: %w", err)
	}

	cmap := moreland.SmoothBlueRed()
	max := maxWeight(g, opts.Weight)
	if max <= 0 {
		max = 1
	}
	cmap.SetMax(max)
	cmap.SetMin(0)
	scatter.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		c, err := cmap.At(opts.Weight.of(states[i]))
		if err != nil {
			c = color.Black
		}
		return draw.GlyphStyle{Color: c, Radius: vg.Points(3), Shape: draw.CircleGlyph{}}
	}
	p.Add(scatter)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	}
	if err := p.Save(opts.Width, opts.Height, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}
