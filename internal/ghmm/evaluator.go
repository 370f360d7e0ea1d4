package ghmm

import (
	"fmt"
	"math"

	"github.com/banshee-data/ghmm/internal/topology"
	"gonum.org/v1/gonum/floats"
)

// weights holds the probabilities the evaluator works with. States and
// transitions that have never been finalized carry no learned mass, so
// they are weighted uniformly (1/N per state, 1/outDegree per edge) and
// each group is renormalized together with the learned entries.
type weights struct {
	g       *topology.Graph
	initial []float64
	outNorm []float64
}

func newWeights(g *topology.Graph) *weights {
	n := g.NumStates()
	w := &weights{
		g:       g,
		initial: make([]float64, n),
		outNorm: make([]float64, n),
	}
	for _, s := range g.States() {
		if s.Learned {
			w.initial[s.ID] = s.Probability
		} else {
			w.initial[s.ID] = 1 / float64(n)
		}
		for _, e := range g.Out(s.ID) {
			w.outNorm[s.ID] += w.raw(e)
		}
	}
	if sum := floats.Sum(w.initial); sum > 0 {
		floats.Scale(1/sum, w.initial)
	}
	return w
}

func (w *weights) raw(e *topology.Transition) float64 {
	if e.Learned {
		return e.Probability
	}
	return 1 / float64(w.g.OutDegree(e.From))
}

func (w *weights) transition(e *topology.Transition) float64 {
	norm := w.outNorm[e.From]
	if norm == 0 {
		return 0
	}
	return w.raw(e) / norm
}

// Evaluation is the result of one scaled forward/backward pass. Its
// arrays are sized to the state count and trajectory length of that pass
// and are never reused for another trajectory.
type Evaluation struct {
	// States is the number of states the pass was run against.
	States int
	// T is the trajectory length.
	T int
	// LogLikelihood is Σ_t log(factors[t]).
	LogLikelihood float64

	alpha   [][]float64 // [t][s], scaled
	beta    [][]float64 // [t][s], scaled by the same factors
	dens    [][]float64 // [t][s] emission density of o[t] under s
	factors []float64
	w       *weights
}

// Factors returns the per-timestep scaling factors.
func (ev *Evaluation) Factors() []float64 { return ev.factors }

// Alpha returns the scaled forward value of state s at time t.
func (ev *Evaluation) Alpha(s topology.StateID, t int) float64 { return ev.alpha[t][s] }

// Beta returns the scaled backward value of state s at time t.
func (ev *Evaluation) Beta(s topology.StateID, t int) float64 { return ev.beta[t][s] }

// Posterior returns gamma[·][t]: the probability of each state at time t
// given the whole trajectory. All zeros when alpha·beta has no mass.
func (ev *Evaluation) Posterior(t int) []float64 {
	gamma := make([]float64, ev.States)
	floats.MulTo(gamma, ev.alpha[t], ev.beta[t])
	if sum := floats.Sum(gamma); sum > 0 {
		floats.Scale(1/sum, gamma)
	}
	return gamma
}

// evaluate runs the scaled forward/backward pass of obs against g. obs
// must already be projected onto the observed subspace.
func evaluate(g *topology.Graph, em Emission, obs [][]float64) (*Evaluation, error) {
	n, T := g.NumStates(), len(obs)
	if T == 0 {
		return nil, ErrEmptyTrajectory
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: no states", ErrInconsistentTopology)
	}
	ev := &Evaluation{
		States:  n,
		T:       T,
		alpha:   matrix(T, n),
		beta:    matrix(T, n),
		dens:    matrix(T, n),
		factors: make([]float64, T),
		w:       newWeights(g),
	}
	for t, o := range obs {
		for _, s := range g.States() {
			ev.dens[t][s.ID] = em.Density(s.Centroid, o)
		}
	}

	// Forward.
	floats.MulTo(ev.alpha[0], ev.w.initial, ev.dens[0])
	if err := ev.rescale(0); err != nil {
		return nil, err
	}
	for t := 1; t < T; t++ {
		for _, s := range g.States() {
			var sum float64
			for _, e := range g.In(s.ID) {
				sum += ev.alpha[t-1][e.From] * ev.w.transition(e)
			}
			ev.alpha[t][s.ID] = ev.dens[t][s.ID] * sum
		}
		if err := ev.rescale(t); err != nil {
			return nil, err
		}
	}

	// Backward.
	for s := range ev.beta[T-1] {
		ev.beta[T-1][s] = 1
	}
	for t := T - 2; t >= 0; t-- {
		for _, s := range g.States() {
			var sum float64
			for _, e := range g.Out(s.ID) {
				sum += ev.beta[t+1][e.To] * ev.w.transition(e) * ev.dens[t+1][e.To]
			}
			ev.beta[t][s.ID] = sum / ev.factors[t+1]
		}
	}

	for _, f := range ev.factors {
		ev.LogLikelihood += math.Log(f)
	}
	return ev, nil
}

func (ev *Evaluation) rescale(t int) error {
	f := floats.Sum(ev.alpha[t])
	if f == 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("%w: scaling factor %g at t=%d", ErrDegenerateLikelihood, f, t)
	}
	ev.factors[t] = f
	floats.Scale(1/f, ev.alpha[t])
	return nil
}

func matrix(rows, cols int) [][]float64 {
	backing := make([]float64, rows*cols)
	m := make([][]float64, rows)
	for i := range m {
		m[i] = backing[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return m
}
