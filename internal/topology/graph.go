package topology

import (
	"errors"
	"fmt"
	"math"
)

// Sentinel errors for graph operations.
var (
	// ErrStateNotFound indicates an operation referenced a state outside the arena.
	ErrStateNotFound = errors.New("topology: state not found")

	// ErrDimensionMismatch indicates a centroid of the wrong length.
	ErrDimensionMismatch = errors.New("topology: centroid dimension mismatch")
)

// StateID is the stable index of a state in its graph. IDs are assigned
// densely from zero in insertion order and are preserved by Clone.
type StateID int

// State is a node of the learned model.
type State struct {
	ID StateID

	// Centroid is the representative vector in the full feature space.
	Centroid []float64

	// Probability is the learned prior weight of the state.
	Probability float64
	// ProbabilitySum accumulates first-timestep posteriors during a batch.
	ProbabilitySum float64
	// Belief is the tracking-time mass; only meaningful on a tracking copy.
	Belief float64

	// Learned is set once the state has been through a finalize pass.
	Learned bool
}

// Transition is a directed, probability-weighted edge From -> To.
type Transition struct {
	From StateID
	To   StateID

	Probability    float64
	NumeratorSum   float64 // expected transition count over the batch
	DenominatorSum float64 // expected time spent in From over the batch

	Learned bool
}

type edgeKey struct {
	from, to StateID
}

// Graph is a directed graph with self-loops and at most one edge per
// ordered pair of states. States and transitions are append-only.
//
// Graph is not safe for concurrent mutation; callers that share a graph
// must synchronise externally. Tracking sessions should Clone instead.
type Graph struct {
	dim    int
	states []*State
	edges  []*Transition
	out    [][]*Transition
	in     [][]*Transition
	index  map[edgeKey]*Transition
}

// New returns an empty graph whose centroids have dim components.
func New(dim int) *Graph {
	return &Graph{
		dim:   dim,
		index: make(map[edgeKey]*Transition),
	}
}

// Dim returns the centroid dimensionality.
func (g *Graph) Dim() int { return g.dim }

// NumStates returns the number of states.
func (g *Graph) NumStates() int { return len(g.states) }

// NumTransitions returns the number of transitions.
func (g *Graph) NumTransitions() int { return len(g.edges) }

// States returns the state arena in ID order. The slice is owned by the
// graph and must not be modified; the states it points to may be.
func (g *Graph) States() []*State { return g.states }

// Transitions returns all transitions in creation order.
func (g *Graph) Transitions() []*Transition { return g.edges }

// State returns the state with the given ID, or nil when out of range.
func (g *Graph) State(id StateID) *State {
	if !g.has(id) {
		return nil
	}
	return g.states[id]
}

// Out returns the outgoing transitions of id (read-only view).
func (g *Graph) Out(id StateID) []*Transition {
	if !g.has(id) {
		return nil
	}
	return g.out[id]
}

// In returns the incoming transitions of id (read-only view).
func (g *Graph) In(id StateID) []*Transition {
	if !g.has(id) {
		return nil
	}
	return g.in[id]
}

// OutDegree returns the number of outgoing transitions of id.
func (g *Graph) OutDegree(id StateID) int {
	return len(g.Out(id))
}

// Transition returns the edge from -> to, or nil if absent.
func (g *Graph) Transition(from, to StateID) *Transition {
	return g.index[edgeKey{from, to}]
}

func (g *Graph) has(id StateID) bool {
	return id >= 0 && int(id) < len(g.states)
}

// AddState appends a new state at centroid and returns its ID. The
// centroid is copied.
func (g *Graph) AddState(centroid []float64) (StateID, error) {
	if len(centroid) != g.dim {
		return -1, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(centroid), g.dim)
	}
	id := StateID(len(g.states))
	g.states = append(g.states, &State{
		ID:       id,
		Centroid: append([]float64(nil), centroid...),
	})
	g.out = append(g.out, nil)
	g.in = append(g.in, nil)
	return id, nil
}

// MoveState overwrites the centroid of id.
func (g *Graph) MoveState(id StateID, centroid []float64) error {
	if !g.has(id) {
		return fmt.Errorf("%w: %d", ErrStateNotFound, id)
	}
	if len(centroid) != g.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(centroid), g.dim)
	}
	copy(g.states[id].Centroid, centroid)
	return nil
}

// Connect ensures an edge from -> to exists. It returns the edge and
// whether it was created by this call.
func (g *Graph) Connect(from, to StateID) (*Transition, bool, error) {
	if !g.has(from) {
		return nil, false, fmt.Errorf("%w: %d", ErrStateNotFound, from)
	}
	if !g.has(to) {
		return nil, false, fmt.Errorf("%w: %d", ErrStateNotFound, to)
	}
	key := edgeKey{from, to}
	if e, ok := g.index[key]; ok {
		return e, false, nil
	}
	e := &Transition{From: from, To: to}
	g.edges = append(g.edges, e)
	g.out[from] = append(g.out[from], e)
	g.in[to] = append(g.in[to], e)
	g.index[key] = e
	return e, true, nil
}

// ResetAccumulators zeroes every EM accumulator in the graph.
func (g *Graph) ResetAccumulators() {
	for _, s := range g.states {
		s.ProbabilitySum = 0
	}
	for _, e := range g.edges {
		e.NumeratorSum = 0
		e.DenominatorSum = 0
	}
}

// ProbabilityMass returns the sum of state probabilities.
func (g *Graph) ProbabilityMass() float64 {
	var sum float64
	for _, s := range g.states {
		sum += s.Probability
	}
	return sum
}

// BeliefMass returns the sum of state beliefs.
func (g *Graph) BeliefMass() float64 {
	var sum float64
	for _, s := range g.states {
		sum += s.Belief
	}
	return sum
}

// OutgoingMass returns the sum of outgoing transition probabilities of id.
func (g *Graph) OutgoingMass(id StateID) float64 {
	var sum float64
	for _, e := range g.Out(id) {
		sum += e.Probability
	}
	return sum
}

// CheckNormalized reports the first probability that is negative or not
// finite, then the first group that does not sum to one within tol: all
// states, then each state's outgoing edges.
func (g *Graph) CheckNormalized(tol float64) error {
	if len(g.states) == 0 {
		return nil
	}
	for _, s := range g.states {
		if !validProbability(s.Probability) {
			return fmt.Errorf("state %d has probability %g", s.ID, s.Probability)
		}
	}
	for _, e := range g.edges {
		if !validProbability(e.Probability) {
			return fmt.Errorf("transition %d->%d has probability %g", e.From, e.To, e.Probability)
		}
	}
	if m := g.ProbabilityMass(); !(math.Abs(m-1) <= tol) {
		return fmt.Errorf("state probabilities sum to %g", m)
	}
	for _, s := range g.states {
		if len(g.out[s.ID]) == 0 {
			continue
		}
		if m := g.OutgoingMass(s.ID); !(math.Abs(m-1) <= tol) {
			return fmt.Errorf("outgoing probabilities of state %d sum to %g", s.ID, m)
		}
	}
	return nil
}

func validProbability(p float64) bool {
	return p >= 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}
