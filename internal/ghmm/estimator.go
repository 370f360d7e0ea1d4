package ghmm

import (
	"fmt"

	"github.com/banshee-data/ghmm/internal/topology"
	"gonum.org/v1/gonum/floats"
)

// accumulate folds one evaluated trajectory into the graph's EM
// accumulators. ev must have been computed against g as it is now.
func accumulate(g *topology.Graph, ev *Evaluation) error {
	if ev.States != g.NumStates() {
		return fmt.Errorf("%w: evaluation has %d states, graph has %d", ErrInconsistentTopology, ev.States, g.NumStates())
	}

	gamma := ev.Posterior(0)
	for _, s := range g.States() {
		s.ProbabilitySum += gamma[s.ID]
	}

	for t := 0; t < ev.T-1; t++ {
		if t > 0 {
			gamma = ev.Posterior(t)
		}
		scale := ev.factors[t+1]
		for _, e := range g.Transitions() {
			xi := ev.alpha[t][e.From] * ev.w.transition(e) * ev.dens[t+1][e.To] * ev.beta[t+1][e.To] / scale
			e.NumeratorSum += xi
			e.DenominatorSum += gamma[e.From]
		}
	}
	return nil
}

// finalize re-estimates every probability from the accumulators with
// additive Dirichlet priors, then normalizes each group to sum to one.
// A group with no mass at all (only possible with zero priors) becomes
// uniform. Every state and transition is marked learned.
func finalize(g *topology.Graph, trajectoryCount int, statePrior, transitionPrior float64) {
	n := g.NumStates()
	if n == 0 {
		return
	}
	probs := make([]float64, n)
	denom := float64(trajectoryCount) + statePrior*float64(n)
	for _, s := range g.States() {
		if denom > 0 {
			probs[s.ID] = (s.ProbabilitySum + statePrior) / denom
		}
	}
	normalize(probs)
	for _, s := range g.States() {
		s.Probability = probs[s.ID]
		s.Learned = true
	}

	for _, s := range g.States() {
		out := g.Out(s.ID)
		if len(out) == 0 {
			continue
		}
		var den float64
		for _, e := range out {
			den += e.DenominatorSum
		}
		den += transitionPrior * float64(len(out))

		group := make([]float64, len(out))
		for i, e := range out {
			if den > 0 {
				group[i] = (e.NumeratorSum + transitionPrior) / den
			}
		}
		normalize(group)
		for i, e := range out {
			e.Probability = group[i]
			e.Learned = true
		}
	}
}

// normalize rescales p in place to sum to one, or to uniform when it has
// no mass.
func normalize(p []float64) {
	if len(p) == 0 {
		return
	}
	if sum := floats.Sum(p); sum > 0 {
		floats.Scale(1/sum, p)
		return
	}
	for i := range p {
		p[i] = 1 / float64(len(p))
	}
}
