package monitor

import (
	"fmt"
	"io"

	"github.com/banshee-data/ghmm/internal/topology"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// ChartOptions controls RenderBeliefChart.
type ChartOptions struct {
	X, Y   int
	Weight Weight
}

// RenderBeliefChart writes an HTML page with a scatter of the centroids of
// g, coloured through a visual map on the selected weight.
func RenderBeliefChart(w io.Writer, g *topology.Graph, title string, co ChartOptions) error {
	if co.X == 0 && co.Y == 0 {
		co.Y = 1
	}
	if err := axes(g, co.X, co.Y); err != nil {
		return err
	}

	data := make([]opts.ScatterData, 0, g.NumStates())
	for _, s := range g.States() {
		data = append(data, opts.ScatterData{
			Name:  fmt.Sprintf("state %d", s.ID),
			Value: []interface{}{s.Centroid[co.X], s.Centroid[co.Y], co.Weight.of(s)},
		})
	}
	max := maxWeight(g, co.Weight)
	if max <= 0 {
		max = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("states=%d transitions=%d weight=%s", g.NumStates(), g.NumTransitions(), co.Weight)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: fmt.Sprintf("c%d", co.X), NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: fmt.Sprintf("c%d", co.Y), NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(max),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries(co.Weight.String(), data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
