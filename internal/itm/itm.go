// Package itm grows the GHMM state graph with an Instantaneous Topological
// Map: each observation either adapts the nearest state, or inserts a new
// state when it falls outside the existing tiling.
//
// The map is append-only. States and transitions are never removed, so
// accumulators held by an in-flight estimation pass stay valid.
package itm

import (
	"errors"
	"fmt"

	"github.com/banshee-data/ghmm/internal/topology"
	"gonum.org/v1/gonum/floats"
)

// ErrInvalidConfig indicates a non-positive insertion distance or an
// adaptation rate outside (0, 1].
var ErrInvalidConfig = errors.New("itm: invalid configuration")

// Metric measures distance between two full-dimensional vectors.
type Metric interface {
	Distance(a, b []float64) float64
}

// Change reports what a single Grow call did to the graph.
type Change struct {
	Nearest    topology.StateID // winner before insertion; -1 on the first state
	Inserted   topology.StateID // new state, or -1
	EdgesAdded int
	Adapted    bool
}

// StateAdded reports whether the call inserted a state.
func (c Change) StateAdded() bool { return c.Inserted >= 0 }

// Map is the topology builder.
type Map struct {
	metric            Metric
	insertionDistance float64
	epsilon           float64
}

// New returns a Map. insertionDistance is measured by metric; epsilon is
// the rate at which the winning state moves toward each observation.
func New(metric Metric, insertionDistance, epsilon float64) (*Map, error) {
	if metric == nil {
		return nil, fmt.Errorf("%w: nil metric", ErrInvalidConfig)
	}
	if !(insertionDistance > 0) {
		return nil, fmt.Errorf("%w: insertion distance %g", ErrInvalidConfig, insertionDistance)
	}
	if !(epsilon > 0 && epsilon <= 1) {
		return nil, fmt.Errorf("%w: epsilon %g", ErrInvalidConfig, epsilon)
	}
	return &Map{metric: metric, insertionDistance: insertionDistance, epsilon: epsilon}, nil
}

// Nearest returns the closest and second closest states to x, or -1 for
// either when the graph has too few states. Ties keep the lower ID.
func Nearest(g *topology.Graph, metric Metric, x []float64) (first, second topology.StateID) {
	first, second = -1, -1
	var d1, d2 float64
	for _, s := range g.States() {
		d := metric.Distance(x, s.Centroid)
		switch {
		case first < 0 || d < d1:
			second, d2 = first, d1
			first, d1 = s.ID, d
		case second < 0 || d < d2:
			second, d2 = s.ID, d
		}
	}
	return first, second
}

// Grow feeds one full-dimensional observation into the map.
func (m *Map) Grow(g *topology.Graph, x []float64) (Change, error) {
	ch := Change{Nearest: -1, Inserted: -1}
	if len(x) != g.Dim() {
		return ch, fmt.Errorf("%w: got %d, want %d", topology.ErrDimensionMismatch, len(x), g.Dim())
	}

	if g.NumStates() == 0 {
		id, added, err := m.insert(g, x)
		if err != nil {
			return ch, err
		}
		ch.Inserted = id
		ch.EdgesAdded = added
		return ch, nil
	}

	n, s := Nearest(g, m.metric, x)
	ch.Nearest = n

	// Reference vector adaptation.
	wn := g.State(n).Centroid
	moved := make([]float64, len(wn))
	for i := range wn {
		moved[i] = wn[i] + m.epsilon*(x[i]-wn[i])
	}
	if err := g.MoveState(n, moved); err != nil {
		return ch, err
	}
	ch.Adapted = true

	// Edge adaptation: the two best matches are neighbours.
	if s >= 0 {
		added, err := connectBoth(g, n, s)
		if err != nil {
			return ch, err
		}
		ch.EdgesAdded += added
	}

	// Node insertion: x must lie outside the Thales sphere spanned by the
	// two winners and be farther than the insertion distance from the
	// winner.
	wn = g.State(n).Centroid
	outside := true
	if s >= 0 {
		toWinner := floats.SubTo(make([]float64, len(x)), wn, x)
		toSecond := floats.SubTo(make([]float64, len(x)), g.State(s).Centroid, x)
		outside = floats.Dot(toWinner, toSecond) > 0
	}
	if outside && m.metric.Distance(x, wn) > m.insertionDistance {
		id, added, err := m.insert(g, x)
		if err != nil {
			return ch, err
		}
		ch.Inserted = id
		ch.EdgesAdded += added
		more, err := connectBoth(g, n, id)
		if err != nil {
			return ch, err
		}
		ch.EdgesAdded += more
	}
	return ch, nil
}

// insert adds a state at x with a self-loop.
func (m *Map) insert(g *topology.Graph, x []float64) (topology.StateID, int, error) {
	id, err := g.AddState(x)
	if err != nil {
		return -1, 0, err
	}
	_, created, err := g.Connect(id, id)
	if err != nil {
		return -1, 0, err
	}
	if created {
		return id, 1, nil
	}
	return id, 0, nil
}

func connectBoth(g *topology.Graph, a, b topology.StateID) (int, error) {
	added := 0
	for _, p := range [2][2]topology.StateID{{a, b}, {b, a}} {
		_, created, err := g.Connect(p[0], p[1])
		if err != nil {
			return added, err
		}
		if created {
			added++
		}
	}
	return added, nil
}
