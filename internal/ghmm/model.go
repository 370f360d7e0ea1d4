package ghmm

import (
	"fmt"
	"sync"

	"github.com/banshee-data/ghmm/internal/monitoring"
	"github.com/banshee-data/ghmm/internal/topology"
)

// Model is a growing HMM. Learn takes the write lock; InitTrack and the
// accessors take the read lock, so a tracking snapshot never observes a
// half-learned batch. Update, Predict and ObservationPdf operate on
// caller-owned tracking graphs and take no lock.
type Model struct {
	mu              sync.RWMutex
	params          Params
	graph           *topology.Graph
	trajectoryCount int

	builder  Builder
	emission Emission
}

// BatchStats summarises one Learn call.
type BatchStats struct {
	Trajectories     int
	Observations     int
	States           int
	Transitions      int
	StatesAdded      int
	TransitionsAdded int
	// LogLikelihood is the sum over trajectories, each evaluated against
	// the topology as grown up to and including that trajectory.
	LogLikelihood float64
}

// New validates p and returns an untrained model.
func New(p Params, opts ...Option) (*Model, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	builder, emission, err := p.defaults()
	if err != nil {
		return nil, err
	}
	m := &Model{
		params:   p,
		graph:    topology.New(p.FullDim),
		builder:  builder,
		emission: emission,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Restore rebuilds a model from a persisted graph. The graph is cloned;
// it must match p.FullDim and carry normalized probabilities.
func Restore(p Params, g *topology.Graph, trajectoryCount int, opts ...Option) (*Model, error) {
	m, err := New(p, opts...)
	if err != nil {
		return nil, err
	}
	if g.Dim() != p.FullDim {
		return nil, fmt.Errorf("%w: graph dimension %d, want %d", ErrInconsistentTopology, g.Dim(), p.FullDim)
	}
	if trajectoryCount < 0 {
		return nil, fmt.Errorf("%w: trajectory count %d", ErrInvalidParams, trajectoryCount)
	}
	if err := g.CheckNormalized(normalizedTolerance); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInconsistentTopology, err)
	}
	m.graph = g.Clone()
	m.trajectoryCount = trajectoryCount
	return m, nil
}

const normalizedTolerance = 1e-6

// Params returns the construction parameters.
func (m *Model) Params() Params { return m.params }

// TrajectoryCount returns the total number of trajectories ever learned.
func (m *Model) TrajectoryCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trajectoryCount
}

// Graph returns a deep copy of the learned graph.
func (m *Model) Graph() *topology.Graph {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.graph.Clone()
}

// Snapshot returns a deep copy of the learned graph together with the
// trajectory count it was finalized with, read under one lock.
func (m *Model) Snapshot() (*topology.Graph, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.graph.Clone(), m.trajectoryCount
}

// Trained reports whether at least one batch has been learned.
func (m *Model) Trained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trained()
}

func (m *Model) trained() bool {
	return m.trajectoryCount > 0 && m.graph.NumStates() > 0
}

// Learn grows the topology with every observation of batch, runs the
// forward/backward pass per trajectory and re-estimates all
// probabilities. Accumulators are reset per call; the topology carries
// over, so repeated calls refine the model.
//
// On any error the model is left exactly as before the call.
func (m *Model) Learn(batch [][][]float64) (BatchStats, error) {
	var stats BatchStats
	if err := m.validateBatch(batch); err != nil {
		return stats, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Work on a clone and swap it in only once the batch has finalized.
	g := m.graph.Clone()
	statesBefore, edgesBefore := g.NumStates(), g.NumTransitions()
	g.ResetAccumulators()

	for i, traj := range batch {
		for t, o := range traj {
			if _, err := m.builder.Grow(g, o); err != nil {
				m.logRollback(i, err)
				return stats, fmt.Errorf("trajectory %d, observation %d: %w: %w", i, t, ErrInconsistentTopology, err)
			}
		}
		ev, err := evaluate(g, m.emission, m.project(traj))
		if err != nil {
			m.logRollback(i, err)
			return stats, fmt.Errorf("trajectory %d: %w", i, err)
		}
		if err := accumulate(g, ev); err != nil {
			m.logRollback(i, err)
			return stats, fmt.Errorf("trajectory %d: %w", i, err)
		}
		stats.LogLikelihood += ev.LogLikelihood
		stats.Observations += len(traj)
	}

	count := m.trajectoryCount + len(batch)
	finalize(g, count, m.params.StatePrior, m.params.TransitionPrior)
	m.graph = g
	m.trajectoryCount = count

	stats.Trajectories = len(batch)
	stats.States = g.NumStates()
	stats.Transitions = g.NumTransitions()
	stats.StatesAdded = stats.States - statesBefore
	stats.TransitionsAdded = stats.Transitions - edgesBefore
	monitoring.Logf("[ghmm] learned %d trajectories (%d observations): states=%d (+%d) transitions=%d (+%d) loglik=%.4f total=%d",
		stats.Trajectories, stats.Observations, stats.States, stats.StatesAdded,
		stats.Transitions, stats.TransitionsAdded, stats.LogLikelihood, count)
	return stats, nil
}

func (m *Model) logRollback(index int, err error) {
	monitoring.Logf("[ghmm] batch rolled back at trajectory %d: %v", index, err)
}

func (m *Model) validateBatch(batch [][][]float64) error {
	if len(batch) == 0 {
		return fmt.Errorf("%w: empty batch", ErrEmptyTrajectory)
	}
	for i, traj := range batch {
		if len(traj) == 0 {
			return fmt.Errorf("%w: trajectory %d", ErrEmptyTrajectory, i)
		}
		for t, o := range traj {
			if len(o) != m.params.FullDim {
				return fmt.Errorf("%w: trajectory %d, observation %d has %d components, want %d",
					ErrDimensionMismatch, i, t, len(o), m.params.FullDim)
			}
		}
	}
	return nil
}

// project returns the observed-subspace view of each full observation.
func (m *Model) project(traj [][]float64) [][]float64 {
	out := make([][]float64, len(traj))
	for i, o := range traj {
		out[i] = o[:m.params.ObservedDim]
	}
	return out
}

// observe accepts a full or observed-subspace observation and returns the
// observed-subspace view.
func (m *Model) observe(o []float64) ([]float64, error) {
	switch len(o) {
	case m.params.ObservedDim:
		return o, nil
	case m.params.FullDim:
		return o[:m.params.ObservedDim], nil
	}
	return nil, fmt.Errorf("%w: got %d components, want %d or %d",
		ErrDimensionMismatch, len(o), m.params.FullDim, m.params.ObservedDim)
}
