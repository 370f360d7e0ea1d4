package ghmm

import (
	"fmt"
	"math"

	"github.com/banshee-data/ghmm/internal/density"
	"github.com/banshee-data/ghmm/internal/itm"
	"github.com/banshee-data/ghmm/internal/topology"
)

// DegenerateFallback selects what Update does with the belief when an
// observation has zero likelihood under every state.
type DegenerateFallback string

const (
	// FallbackHold keeps the belief from before the failed update.
	FallbackHold DegenerateFallback = "hold"
	// FallbackUniform resets the belief to 1/N over all states.
	FallbackUniform DegenerateFallback = "uniform"
)

// Params configures a Model. Observations carry FullDim components; the
// emission density only sees the first ObservedDim of them.
type Params struct {
	FullDim     int `json:"full_dim"`
	ObservedDim int `json:"observed_dim"`

	// FullSigma is the FullDim x FullDim covariance of the growth metric.
	FullSigma [][]float64 `json:"full_sigma"`
	// Sigma is the ObservedDim x ObservedDim emission covariance.
	Sigma [][]float64 `json:"sigma"`

	// InsertionDistance is the Mahalanobis distance beyond which the
	// topology builder inserts a new state.
	InsertionDistance float64 `json:"insertion_distance"`
	// Epsilon is the rate at which the nearest state's centroid moves
	// toward each training observation. It has no other effect.
	Epsilon float64 `json:"epsilon"`

	StatePrior      float64 `json:"state_prior"`
	TransitionPrior float64 `json:"transition_prior"`

	DegenerateFallback DegenerateFallback `json:"degenerate_fallback,omitempty"`
}

// Validate checks dimensions, covariances and scalar ranges.
func (p Params) Validate() error {
	if p.FullDim <= 0 {
		return fmt.Errorf("%w: full_dim must be positive, got %d", ErrInvalidParams, p.FullDim)
	}
	if p.ObservedDim <= 0 || p.ObservedDim > p.FullDim {
		return fmt.Errorf("%w: observed_dim must be in [1, %d], got %d", ErrInvalidParams, p.FullDim, p.ObservedDim)
	}
	if len(p.FullSigma) != p.FullDim {
		return fmt.Errorf("%w: full_sigma has %d rows, want %d", ErrInvalidParams, len(p.FullSigma), p.FullDim)
	}
	if len(p.Sigma) != p.ObservedDim {
		return fmt.Errorf("%w: sigma has %d rows, want %d", ErrInvalidParams, len(p.Sigma), p.ObservedDim)
	}
	if !(p.InsertionDistance > 0) || math.IsInf(p.InsertionDistance, 0) {
		return fmt.Errorf("%w: insertion_distance must be positive, got %g", ErrInvalidParams, p.InsertionDistance)
	}
	if !(p.Epsilon > 0 && p.Epsilon <= 1) {
		return fmt.Errorf("%w: epsilon must be in (0, 1], got %g", ErrInvalidParams, p.Epsilon)
	}
	if !(p.StatePrior >= 0) || math.IsInf(p.StatePrior, 0) {
		return fmt.Errorf("%w: state_prior must be non-negative, got %g", ErrInvalidParams, p.StatePrior)
	}
	if !(p.TransitionPrior >= 0) || math.IsInf(p.TransitionPrior, 0) {
		return fmt.Errorf("%w: transition_prior must be non-negative, got %g", ErrInvalidParams, p.TransitionPrior)
	}
	switch p.DegenerateFallback {
	case "", FallbackHold, FallbackUniform:
	default:
		return fmt.Errorf("%w: unknown degenerate_fallback %q", ErrInvalidParams, p.DegenerateFallback)
	}
	return nil
}

func (p Params) fallback() DegenerateFallback {
	if p.DegenerateFallback == "" {
		return FallbackHold
	}
	return p.DegenerateFallback
}

// Builder grows the topology from one full-dimensional observation.
type Builder interface {
	Grow(g *topology.Graph, x []float64) (itm.Change, error)
}

// Emission evaluates the density of an observed-subspace observation
// under a state. centroid is full-dimensional; implementations read only
// the components they model.
type Emission interface {
	Density(centroid, observation []float64) float64
}

// Option customises a Model at construction.
type Option func(*Model)

// WithBuilder replaces the default ITM topology builder.
func WithBuilder(b Builder) Option {
	return func(m *Model) { m.builder = b }
}

// WithEmission replaces the default Gaussian emission.
func WithEmission(e Emission) Option {
	return func(m *Model) { m.emission = e }
}

// defaults builds the Mahalanobis ITM and the observed-subspace Gaussian
// from validated params.
func (p Params) defaults() (Builder, Emission, error) {
	full, err := density.SymFromRows(p.FullSigma)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: full_sigma: %w", ErrInvalidParams, err)
	}
	metric, err := density.NewMahalanobis(full)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: full_sigma: %w", ErrInvalidParams, err)
	}
	builder, err := itm.New(metric, p.InsertionDistance, p.Epsilon)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	obs, err := density.SymFromRows(p.Sigma)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: sigma: %w", ErrInvalidParams, err)
	}
	emission, err := density.NewGaussian(obs)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: sigma: %w", ErrInvalidParams, err)
	}
	return builder, emission, nil
}
