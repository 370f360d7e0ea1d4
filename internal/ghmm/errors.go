package ghmm

import "errors"

var (
	// ErrDegenerateLikelihood indicates a scaling factor or belief mass that
	// is zero or not finite: the observation is incompatible with every state.
	ErrDegenerateLikelihood = errors.New("ghmm: degenerate likelihood")

	// ErrUntrainedModel indicates tracking was requested before any
	// successful Learn.
	ErrUntrainedModel = errors.New("ghmm: model has not been trained")

	// ErrDimensionMismatch indicates an observation of the wrong length.
	ErrDimensionMismatch = errors.New("ghmm: observation dimension mismatch")

	// ErrEmptyTrajectory indicates an empty batch or a zero-length trajectory.
	ErrEmptyTrajectory = errors.New("ghmm: empty trajectory")

	// ErrInconsistentTopology indicates the graph and an evaluation pass
	// disagree on the state set, or the topology builder failed.
	ErrInconsistentTopology = errors.New("ghmm: inconsistent topology")

	// ErrInvalidHorizon indicates a negative prediction horizon.
	ErrInvalidHorizon = errors.New("ghmm: invalid horizon")

	// ErrInvalidParams indicates construction parameters failed validation.
	ErrInvalidParams = errors.New("ghmm: invalid parameters")
)
