// Package testutil provides shared test fixtures and assertions for the
// model packages.
package testutil

import (
	"math"
	"testing"

	"github.com/banshee-data/ghmm/internal/topology"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertNormalized reports an error when the state probabilities, or the
// outgoing transition probabilities of any non-terminal state, do not sum
// to one within tol.
func AssertNormalized(t testing.TB, g *topology.Graph, tol float64) {
	t.Helper()
	if err := g.CheckNormalized(tol); err != nil {
		t.Errorf("graph not normalized: %v", err)
	}
}

// AssertBeliefNormalized reports an error when the beliefs of g do not
// sum to one within tol or any belief is not a finite non-negative value.
func AssertBeliefNormalized(t testing.TB, g *topology.Graph, tol float64) {
	t.Helper()
	for _, s := range g.States() {
		if math.IsNaN(s.Belief) || math.IsInf(s.Belief, 0) || s.Belief < 0 {
			t.Errorf("state %d has belief %g", s.ID, s.Belief)
		}
	}
	if m := g.BeliefMass(); math.Abs(m-1) > tol {
		t.Errorf("belief sums to %g, want 1", m)
	}
}

// DiagonalRows returns a row-major diagonal matrix.
func DiagonalRows(diag ...float64) [][]float64 {
	rows := make([][]float64, len(diag))
	for i, v := range diag {
		rows[i] = make([]float64, len(diag))
		rows[i][i] = v
	}
	return rows
}

// TwoPointBatch is a single two-observation trajectory in the plane.
func TwoPointBatch() [][][]float64 {
	return [][][]float64{{{0, 0}, {1, 1}}}
}

// CrossingBatch returns n planar trajectories of length steps: even ones
// run along the x axis, odd ones along the y axis, with the goal appended
// as two trailing components.
func CrossingBatch(n, steps int, spacing float64) [][][]float64 {
	batch := make([][][]float64, n)
	for i := range batch {
		traj := make([][]float64, steps)
		for j := range traj {
			p := float64(j) * spacing
			end := float64(steps-1) * spacing
			if i%2 == 0 {
				traj[j] = []float64{p, 0, end, 0}
			} else {
				traj[j] = []float64{0, p, 0, end}
			}
		}
		batch[i] = traj
	}
	return batch
}
