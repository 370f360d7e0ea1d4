// Package ghmm implements a growing hidden Markov model over trajectories.
//
// A Model tiles trajectory space with states grown incrementally from the
// training data, learns prior and transition probabilities with a scaled
// Baum-Welch pass per batch, and tracks live trajectories by filtering a
// belief distribution over a private clone of the learned graph.
//
// Learning a batch is atomic: either every trajectory is folded into the
// model and the probabilities are re-estimated, or the model is left
// exactly as it was before the call.
package ghmm
