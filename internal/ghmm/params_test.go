package ghmm

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Params)
		ok     bool
	}{
		{name: "valid", mutate: func(*Params) {}, ok: true},
		{name: "zero priors", mutate: func(p *Params) { p.StatePrior, p.TransitionPrior = 0, 0 }, ok: true},
		{name: "uniform fallback", mutate: func(p *Params) { p.DegenerateFallback = FallbackUniform }, ok: true},
		{name: "full dim", mutate: func(p *Params) { p.FullDim = 0 }},
		{name: "observed above full", mutate: func(p *Params) { p.ObservedDim = 5 }},
		{name: "full sigma rows", mutate: func(p *Params) { p.FullSigma = p.FullSigma[:2] }},
		{name: "sigma rows", mutate: func(p *Params) { p.Sigma = [][]float64{{1}} }},
		{name: "insertion distance", mutate: func(p *Params) { p.InsertionDistance = 0 }},
		{name: "insertion distance inf", mutate: func(p *Params) { p.InsertionDistance = math.Inf(1) }},
		{name: "epsilon zero", mutate: func(p *Params) { p.Epsilon = 0 }},
		{name: "epsilon nan", mutate: func(p *Params) { p.Epsilon = math.NaN() }},
		{name: "negative prior", mutate: func(p *Params) { p.StatePrior = -0.1 }},
		{name: "nan prior", mutate: func(p *Params) { p.TransitionPrior = math.NaN() }},
		{name: "fallback", mutate: func(p *Params) { p.DegenerateFallback = "ignore" }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := goalParams()
			tt.mutate(&p)
			err := p.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidParams), "got %v", err)
		})
	}
}

func TestNewRejectsBadCovariance(t *testing.T) {
	t.Parallel()

	p := goalParams()
	p.Sigma = [][]float64{{1, 2}, {2, 1}} // symmetric, indefinite
	_, err := New(p)
	assert.True(t, errors.Is(err, ErrInvalidParams), "got %v", err)

	p = goalParams()
	p.FullSigma[0][1] = 0.5 // asymmetric
	_, err = New(p)
	assert.True(t, errors.Is(err, ErrInvalidParams), "got %v", err)
}

func TestNewDefaultsToHold(t *testing.T) {
	t.Parallel()
	m, err := New(goalParams())
	require.NoError(t, err)
	assert.Equal(t, FallbackHold, m.Params().fallback())
	assert.False(t, m.Trained())
	assert.Zero(t, m.TrajectoryCount())
}
