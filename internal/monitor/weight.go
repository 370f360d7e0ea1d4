package monitor

import (
	"fmt"

	"github.com/banshee-data/ghmm/internal/topology"
)

// Weight selects which per-state quantity colours a rendering.
type Weight int

const (
	// WeightProbability uses the learned initial-state probability.
	WeightProbability Weight = iota
	// WeightBelief uses the tracking belief.
	WeightBelief
)

func (w Weight) String() string {
	if w == WeightBelief {
		return "belief"
	}
	return "probability"
}

func (w Weight) of(s *topology.State) float64 {
	if w == WeightBelief {
		return s.Belief
	}
	return s.Probability
}

// axes checks that components x and y exist in g.
func axes(g *topology.Graph, x, y int) error {
	if g == nil || g.NumStates() == 0 {
		return fmt.Errorf("monitor: nothing to render: empty graph")
	}
	if x < 0 || y < 0 || x >= g.Dim() || y >= g.Dim() {
		return fmt.Errorf("monitor: axes (%d, %d) out of range for dimension %d", x, y, g.Dim())
	}
	return nil
}

func maxWeight(g *topology.Graph, w Weight) float64 {
	var max float64
	for _, s := range g.States() {
		if v := w.of(s); v > max {
			max = v
		}
	}
	return max
}
