package ghmm

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/ghmm/internal/monitoring"
	"github.com/banshee-data/ghmm/internal/topology"
	"gonum.org/v1/gonum/floats"
)

// InitTrack overwrites out with a deep copy of the learned graph and sets
// every state's belief to its learned probability.
func (m *Model) InitTrack(out *topology.Graph) error {
	if out == nil {
		return errors.New("ghmm: nil tracking graph")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.trained() {
		return ErrUntrainedModel
	}
	out.CopyFrom(m.graph)
	for _, s := range out.States() {
		s.Belief = s.Probability
	}
	return nil
}

// Update runs one Bayesian filtering step on the tracking graph g with
// observation o, which may be full-dimensional or already projected onto
// the observed subspace.
//
// When o has zero likelihood under every predicted state the belief is
// held or reset to uniform according to Params.DegenerateFallback, and
// an error wrapping ErrDegenerateLikelihood is returned.
func (m *Model) Update(g *topology.Graph, o []float64) error {
	obs, err := m.observe(o)
	if err != nil {
		return err
	}
	if err := m.checkGraph(g); err != nil {
		return err
	}
	prior := beliefs(g)
	post := propagate(g, prior)
	for _, s := range g.States() {
		post[s.ID] *= m.emission.Density(s.Centroid, obs)
	}
	sum := floats.Sum(post)
	if !usable(sum) {
		m.fallback(g, prior)
		return fmt.Errorf("%w: belief mass %g after update", ErrDegenerateLikelihood, sum)
	}
	floats.Scale(1/sum, post)
	setBeliefs(g, post)
	return nil
}

// Predict projects the belief horizon steps forward without observations.
// Predict(g, 0) is a no-op and Predict(g, a) followed by Predict(g, b)
// equals Predict(g, a+b).
func (m *Model) Predict(g *topology.Graph, horizon int) error {
	if horizon < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidHorizon, horizon)
	}
	if horizon == 0 {
		return nil
	}
	if err := m.checkGraph(g); err != nil {
		return err
	}
	b := beliefs(g)
	next, err := projectBelief(g, b, horizon)
	if err != nil {
		m.fallback(g, b)
		return err
	}
	setBeliefs(g, next)
	return nil
}

// ObservationPdf returns the mixture density Σ_s belief_t[s]·density(s, o)
// where belief_t is the current belief projected t steps ahead. g is not
// modified; t = 0 scores o against the current belief.
func (m *Model) ObservationPdf(g *topology.Graph, t int, o []float64) (float64, error) {
	if t < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidHorizon, t)
	}
	obs, err := m.observe(o)
	if err != nil {
		return 0, err
	}
	if err := m.checkGraph(g); err != nil {
		return 0, err
	}
	b, err := projectBelief(g, beliefs(g), t)
	if err != nil {
		return 0, err
	}
	var pdf float64
	for _, s := range g.States() {
		if b[s.ID] == 0 {
			continue
		}
		pdf += b[s.ID] * m.emission.Density(s.Centroid, obs)
	}
	return pdf, nil
}

// MostLikely returns the state holding the highest belief and that
// belief. Ties keep the lower ID; -1 on an empty graph.
func MostLikely(g *topology.Graph) (topology.StateID, float64) {
	if g.NumStates() == 0 {
		return -1, 0
	}
	b := beliefs(g)
	i := floats.MaxIdx(b)
	return topology.StateID(i), b[i]
}

// PredictedCentroid returns the belief-weighted mean centroid: the
// expected full-dimensional position, goal components included.
func PredictedCentroid(g *topology.Graph) []float64 {
	mean := make([]float64, g.Dim())
	for _, s := range g.States() {
		if s.Belief == 0 {
			continue
		}
		floats.AddScaled(mean, s.Belief, s.Centroid)
	}
	return mean
}

// checkGraph rejects tracking graphs that were not initialised from a
// model of this dimensionality.
func (m *Model) checkGraph(g *topology.Graph) error {
	if g == nil || g.NumStates() == 0 {
		return ErrUntrainedModel
	}
	if g.Dim() != m.params.FullDim {
		return fmt.Errorf("%w: tracking graph has dimension %d, want %d", ErrDimensionMismatch, g.Dim(), m.params.FullDim)
	}
	return nil
}

func (m *Model) fallback(g *topology.Graph, prior []float64) {
	switch m.params.fallback() {
	case FallbackUniform:
		u := make([]float64, g.NumStates())
		normalize(u)
		setBeliefs(g, u)
		monitoring.Logf("[ghmm] degenerate observation: belief reset to uniform over %d states", len(u))
	default:
		setBeliefs(g, prior)
		monitoring.Logf("[ghmm] degenerate observation: belief held")
	}
}

// projectBelief applies steps structural propagation steps to b, renormalizing
// after each one. b is not modified.
func projectBelief(g *topology.Graph, b []float64, steps int) ([]float64, error) {
	cur := append([]float64(nil), b...)
	for i := 0; i < steps; i++ {
		next := propagate(g, cur)
		sum := floats.Sum(next)
		if !usable(sum) {
			return nil, fmt.Errorf("%w: belief mass %g at step %d", ErrDegenerateLikelihood, sum, i+1)
		}
		floats.Scale(1/sum, next)
		cur = next
	}
	return cur, nil
}

// propagate returns predicted[s] = Σ_p b[p]·a(p→s). Terminal states keep
// their own mass.
func propagate(g *topology.Graph, b []float64) []float64 {
	next := make([]float64, g.NumStates())
	for _, s := range g.States() {
		mass := b[s.ID]
		if mass == 0 {
			continue
		}
		out := g.Out(s.ID)
		if len(out) == 0 {
			next[s.ID] += mass
			continue
		}
		for _, e := range out {
			next[e.To] += mass * e.Probability
		}
	}
	return next
}

func beliefs(g *topology.Graph) []float64 {
	b := make([]float64, g.NumStates())
	for _, s := range g.States() {
		b[s.ID] = s.Belief
	}
	return b
}

func setBeliefs(g *topology.Graph, b []float64) {
	for _, s := range g.States() {
		s.Belief = b[s.ID]
	}
}

func usable(sum float64) bool {
	return sum > 0 && !math.IsInf(sum, 0) && !math.IsNaN(sum)
}
