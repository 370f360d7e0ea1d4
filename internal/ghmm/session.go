package ghmm

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/ghmm/internal/timeutil"
	"github.com/banshee-data/ghmm/internal/topology"
	"github.com/google/uuid"
)

// ErrSessionNotFound indicates an unknown or closed session ID.
var ErrSessionNotFound = errors.New("ghmm: tracking session not found")

// SessionState is a point-in-time view of one tracking session.
type SessionState struct {
	ID         string
	Opened     time.Time
	LastUpdate time.Time
	Updates    int
	// Degenerate counts updates that hit the degenerate fallback.
	Degenerate int

	MostLikely    topology.StateID
	MaxBelief     float64
	Belief        []float64
	PredictedMean []float64
}

type session struct {
	mu         sync.Mutex
	id         string
	graph      *topology.Graph
	opened     time.Time
	lastUpdate time.Time
	updates    int
	degenerate int
}

// Sessions tracks many live trajectories against one model. Each session
// owns a private clone of the learned graph, so sessions can be driven
// from different goroutines; calls on the same session are serialised.
type Sessions struct {
	model *Model
	clock timeutil.Clock

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewSessions returns an empty registry. A nil clock uses wall time.
func NewSessions(m *Model, clock timeutil.Clock) *Sessions {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Sessions{
		model:    m,
		clock:    clock,
		sessions: make(map[string]*session),
	}
}

// Open starts a session from the model's current learned graph and
// returns its ID.
func (r *Sessions) Open() (string, error) {
	g := topology.New(r.model.Params().FullDim)
	if err := r.model.InitTrack(g); err != nil {
		return "", err
	}
	now := r.clock.Now()
	s := &session{
		id:         uuid.NewString(),
		graph:      g,
		opened:     now,
		lastUpdate: now,
	}
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
	return s.id, nil
}

func (r *Sessions) get(id string) (*session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Update filters observation o into session id.
func (r *Sessions) Update(id string, o []float64) error {
	s, err := r.get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err = r.model.Update(s.graph, o)
	if errors.Is(err, ErrDegenerateLikelihood) {
		s.degenerate++
	}
	if err == nil || errors.Is(err, ErrDegenerateLikelihood) {
		s.updates++
		s.lastUpdate = r.clock.Now()
	}
	return err
}

// Predict projects the belief of session id horizon steps ahead.
func (r *Sessions) Predict(id string, horizon int) error {
	s, err := r.get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return r.model.Predict(s.graph, horizon)
}

// Pdf scores o against the belief of session id projected t steps ahead.
func (r *Sessions) Pdf(id string, t int, o []float64) (float64, error) {
	s, err := r.get(id)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return r.model.ObservationPdf(s.graph, t, o)
}

// Get returns a snapshot of session id.
func (r *Sessions) Get(id string) (SessionState, error) {
	s, err := r.get(id)
	if err != nil {
		return SessionState{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	best, p := MostLikely(s.graph)
	return SessionState{
		ID:            s.id,
		Opened:        s.opened,
		LastUpdate:    s.lastUpdate,
		Updates:       s.updates,
		Degenerate:    s.degenerate,
		MostLikely:    best,
		MaxBelief:     p,
		Belief:        beliefs(s.graph),
		PredictedMean: PredictedCentroid(s.graph),
	}, nil
}

// Graph returns a deep copy of the tracking graph of session id.
func (r *Sessions) Graph(id string) (*topology.Graph, error) {
	s, err := r.get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Clone(), nil
}

// Close discards session id. It reports whether the session existed.
func (r *Sessions) Close(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

// CloseIdle discards every session not updated within maxIdle and
// returns how many were closed.
func (r *Sessions) CloseIdle(maxIdle time.Duration) int {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	closed := 0
	for id, s := range r.sessions {
		s.mu.Lock()
		idle := now.Sub(s.lastUpdate) > maxIdle
		s.mu.Unlock()
		if idle {
			delete(r.sessions, id)
			closed++
		}
	}
	return closed
}

// Len returns the number of open sessions.
func (r *Sessions) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
